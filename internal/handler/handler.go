package handler

import (
	"bytes"
	"encoding/json"

	"creditledger/internal/model"
	"creditledger/internal/service"
	"creditledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	customerService *service.CustomerService
	creditService   *service.CreditService
}

// NewHandler 创建处理器实例
func NewHandler(customers *service.CustomerService, credits *service.CreditService) *Handler {
	return &Handler{
		customerService: customers,
		creditService:   credits,
	}
}

// ============================================================
// 客户相关接口
// ============================================================

// ListCustomers 按可用额度从高到低列出未删除客户
// GET /api/customers
func (h *Handler) ListCustomers(c *gin.Context) {
	customers, err := h.customerService.ListSortedByBalance(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, customers)
}

// GetCustomer 查询客户
// GET /api/customers/:id
func (h *Handler) GetCustomer(c *gin.Context) {
	customer, err := h.customerService.GetCustomer(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, customer)
}

// CreateCustomer 创建客户
// POST /api/customers
//
// 请求体只解码到 CustomerFields，available_credit、is_deleted 等字段直接丢弃
func (h *Handler) CreateCustomer(c *gin.Context) {
	var req model.CustomerFields
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request body")
		return
	}

	customer, err := h.customerService.CreateCustomer(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, customer)
}

// UpdateCustomer 更新客户资料
// PATCH/PUT /api/customers/:id
//
// 目标不存在或已删除时返回 200 空响应体
func (h *Handler) UpdateCustomer(c *gin.Context) {
	var req model.CustomerFields
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request body")
		return
	}

	customer, updated, err := h.customerService.UpdateCustomer(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !updated {
		c.Status(200)
		return
	}
	response.OK(c, customer)
}

// DeleteCustomer 软删除客户
// DELETE /api/customers/:id
func (h *Handler) DeleteCustomer(c *gin.Context) {
	if err := h.customerService.DeleteCustomer(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RestoreCustomer 恢复已删除客户
// PUT /api/customers/:id/restore
func (h *Handler) RestoreCustomer(c *gin.Context) {
	if _, err := h.customerService.RestoreCustomer(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ============================================================
// 额度相关接口
// ============================================================

// ApplyCreditRequest 记账请求
// amount 必须是 JSON 数字，保留原始文本按十进制解析，不经过 float64
type ApplyCreditRequest struct {
	Amount json.RawMessage `json:"amount"`
	Type   string          `json:"type"`
}

// parseAmount 字符串、null、缺失均视为非法金额
func parseAmount(raw json.RawMessage) (decimal.Decimal, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, false
	}
	return amount, true
}

// ApplyCredit 记一笔额度流水
// POST /api/customers/:id/credit
func (h *Handler) ApplyCredit(c *gin.Context) {
	var req ApplyCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request body")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		response.ParamError(c, "invalid credit amount")
		return
	}

	entry, err := h.creditService.ApplyCredit(c.Request.Context(), c.Param("id"), amount, req.Type)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// ListCredits 查询客户流水，按时间倒序
// GET /api/customers/:id/credits
func (h *Handler) ListCredits(c *gin.Context) {
	entries, err := h.creditService.ListCreditHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entries)
}
