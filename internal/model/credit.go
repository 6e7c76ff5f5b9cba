package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================================
// 流水类型
// ============================================================================

type CreditType string

const (
	CreditTypeDeposit  CreditType = "deposit"  // 充值，入账
	CreditTypePurchase CreditType = "purchase" // 消费，出账
	CreditTypeRefund   CreditType = "refund"   // 退款，入账
)

func ParseCreditType(s string) (CreditType, bool) {
	switch t := CreditType(s); t {
	case CreditTypeDeposit, CreditTypePurchase, CreditTypeRefund:
		return t, true
	}
	return "", false
}

// Normalize 按类型返回入库金额，与调用方传入的符号无关：purchase 恒为负，其余恒为正
func (t CreditType) Normalize(amount decimal.Decimal) decimal.Decimal {
	if t == CreditTypePurchase {
		return amount.Abs().Neg()
	}
	return amount.Abs()
}

// ============================================================================
// 额度流水实体
// ============================================================================

// CreditEntry 额度流水表
// 只追加，不修改，不删除。与余额变更在同一个事务内写入。
type CreditEntry struct {
	ID         uuid.UUID       `gorm:"type:char(36);primaryKey" json:"id"`
	CustomerID uuid.UUID       `gorm:"type:char(36);index;not null" json:"customer_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Type       CreditType      `gorm:"type:varchar(16);not null;check:chk_credits_type,type IN ('deposit','purchase','refund')" json:"type"`
	CreatedAt  time.Time       `gorm:"autoCreateTime;precision:6;index" json:"created_at"`

	Customer *Customer `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (CreditEntry) TableName() string {
	return "credits"
}

func (e *CreditEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
