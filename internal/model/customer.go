package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Customer 客户表
// AvailableCredit 只能通过 CreditService 的原子增量修改，始终等于该客户全部 credits 金额之和。
type Customer struct {
	ID              uuid.UUID       `gorm:"type:char(36);primaryKey" json:"id"`
	Name            string          `gorm:"type:varchar(255);not null" json:"name"`
	Email           string          `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Phone           string          `gorm:"type:varchar(32)" json:"phone"`
	Address         string          `gorm:"type:text" json:"address"`
	AvailableCredit decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"available_credit"`
	IsDeleted       bool            `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;precision:6" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime;precision:6" json:"updated_at"`
}

func (Customer) TableName() string {
	return "customers"
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CustomerFields 客户可写字段的全集
// 请求体解码到该结构时，id、available_credit、is_deleted 等字段会被丢弃（防止越权赋值）。
// nil 表示调用方未传该字段。
type CustomerFields struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
}

// Columns 返回已传字段，key 为列名
func (f CustomerFields) Columns() map[string]interface{} {
	cols := make(map[string]interface{}, 4)
	if f.Name != nil {
		cols["name"] = *f.Name
	}
	if f.Email != nil {
		cols["email"] = *f.Email
	}
	if f.Phone != nil {
		cols["phone"] = *f.Phone
	}
	if f.Address != nil {
		cols["address"] = *f.Address
	}
	return cols
}

// Apply 把已传字段写到 c 上
func (f CustomerFields) Apply(c *Customer) {
	if f.Name != nil {
		c.Name = *f.Name
	}
	if f.Email != nil {
		c.Email = *f.Email
	}
	if f.Phone != nil {
		c.Phone = *f.Phone
	}
	if f.Address != nil {
		c.Address = *f.Address
	}
}
