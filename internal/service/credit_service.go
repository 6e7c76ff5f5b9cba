package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"creditledger/internal/model"
	"creditledger/internal/repository"
	"creditledger/pkg/apperr"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var creditEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_credit_entries_total",
	Help: "Credit entries applied, by type",
}, []string{"type"})

// amountScale 与 credits.amount / customers.available_credit 的 DECIMAL(12,2) 保持一致
const amountScale = 2

// maxAmountExponent 限制 decimal 指数范围，超出的金额在做任何 decimal 运算前拒绝
const maxAmountExponent = 18

// CustomerLocker 按客户加锁，返回释放函数
type CustomerLocker interface {
	Lock(ctx context.Context, customerID uuid.UUID) (func(), error)
}

// CreditOption 配置 CreditService 的可选依赖
type CreditOption func(*CreditService)

// WithLocker 记账前先获取客户锁（多实例部署时使用 Redis 锁）
func WithLocker(locker CustomerLocker) CreditOption {
	return func(s *CreditService) {
		s.locker = locker
	}
}

// WithCreditAppliedTopic 记账时在同一事务内写入 outbox 消息
func WithCreditAppliedTopic(topic string) CreditOption {
	return func(s *CreditService) {
		s.topic = topic
	}
}

// CreditService 修改客户余额的唯一入口
type CreditService struct {
	store  repository.LedgerStore
	locker CustomerLocker
	topic  string
}

func NewCreditService(store repository.LedgerStore, opts ...CreditOption) *CreditService {
	s := &CreditService{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyCredit 校验并记一笔额度流水
//
// 符号校验针对调用方传入的原始金额：deposit 不能为负，purchase 不能为正。
// 入库金额统一规范化：purchase 为 -|amount|，deposit/refund 为 +|amount|。
// 余额变更、流水写入、outbox 消息在同一个事务内完成。
func (s *CreditService) ApplyCredit(ctx context.Context, customerID string, amount decimal.Decimal, creditType string) (*model.CreditEntry, error) {
	id, err := parseID(customerID)
	if err != nil {
		return nil, err
	}

	if exp := amount.Exponent(); exp < -maxAmountExponent || exp > maxAmountExponent {
		return nil, apperr.InvalidArgument("invalid credit amount")
	}
	if amount.IsZero() {
		return nil, apperr.InvalidArgument("invalid credit amount")
	}
	if !amount.Equal(amount.Truncate(amountScale)) {
		return nil, apperr.InvalidArgument(fmt.Sprintf("credit amount supports at most %d decimal places", amountScale))
	}

	ct, ok := model.ParseCreditType(creditType)
	if !ok {
		return nil, apperr.InvalidArgument("invalid credit type")
	}

	switch {
	case ct == model.CreditTypeDeposit && amount.IsNegative():
		return nil, apperr.InvalidArgument("deposit amount must be positive")
	case ct == model.CreditTypePurchase && amount.IsPositive():
		return nil, apperr.InvalidArgument("purchase amount must be negative")
	}

	finalAmount := ct.Normalize(amount)

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, id)
		if err != nil {
			log.Printf("[CreditService] 获取客户锁失败: customerID=%s, err=%v", id, err)
			return nil, apperr.Internal(err)
		}
		defer unlock()
	}

	var entry *model.CreditEntry
	err = s.store.Transaction(ctx, func(tx repository.LedgerStore) error {
		if _, err := tx.FindCustomer(ctx, id); err != nil {
			return err
		}

		customer, err := tx.ApplyBalanceDelta(ctx, id, finalAmount)
		if err != nil {
			return fmt.Errorf("更新余额失败: %w", err)
		}
		// 查询和加锁之间客户可能被删除，以加锁后的行为准
		if customer.IsDeleted {
			return repository.ErrCustomerNotFound
		}

		entry, err = tx.InsertCreditEntry(ctx, &model.CreditEntry{
			CustomerID: id,
			Amount:     finalAmount,
			Type:       ct,
		})
		if err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		if s.topic == "" {
			return nil
		}
		msg, err := newCreditAppliedMessage(s.topic, entry, customer.AvailableCredit)
		if err != nil {
			return err
		}
		if err := tx.AppendOutbox(ctx, msg); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return nil, apperr.NotFound("customer not found")
		}
		log.Printf("[CreditService] 记账失败: customerID=%s, type=%s, amount=%s, err=%v", id, ct, finalAmount, err)
		return nil, apperr.Internal(err)
	}

	creditEntriesTotal.WithLabelValues(string(ct)).Inc()
	log.Printf("记账成功: creditID=%s, customerID=%s, type=%s, amount=%s", entry.ID, id, ct, finalAmount)
	return entry, nil
}

// ListCreditHistory 按时间倒序返回客户的流水
func (s *CreditService) ListCreditHistory(ctx context.Context, customerID string) ([]*model.CreditEntry, error) {
	id, err := parseID(customerID)
	if err != nil {
		return nil, err
	}

	entries, err := s.store.ListCreditEntriesForCustomer(ctx, id)
	if err != nil {
		log.Printf("[CreditService] 查询流水失败: customerID=%s, err=%v", id, err)
		return nil, apperr.Internal(err)
	}
	return entries, nil
}

func newCreditAppliedMessage(topic string, entry *model.CreditEntry, balance decimal.Decimal) (*model.OutboxMessage, error) {
	payload, err := json.Marshal(model.CreditAppliedEvent{
		CreditID:     entry.ID.String(),
		CustomerID:   entry.CustomerID.String(),
		Amount:       entry.Amount.StringFixed(amountScale),
		Type:         string(entry.Type),
		BalanceAfter: balance.StringFixed(amountScale),
		CreatedAt:    entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("序列化消息失败: %w", err)
	}

	return &model.OutboxMessage{
		MessageKey: entry.CustomerID.String(),
		Topic:      topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}, nil
}
