package repository

import (
	"context"

	"creditledger/internal/model"
	"creditledger/pkg/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrCustomerNotFound = apperr.NotFound("customer not found")
	ErrDuplicateEmail   = apperr.DuplicateEmail("email already in use")
	ErrInsertFailed     = apperr.Internal(errInsertNoRow)
)

// LedgerStore 客户与额度流水的持久化能力
//
// 余额变更（ApplyBalanceDelta）与流水写入（InsertCreditEntry）必须放在同一个
// Transaction 内执行，二者要么同时提交，要么同时回滚。
type LedgerStore interface {
	// FindCustomer 只返回未删除的客户
	FindCustomer(ctx context.Context, id uuid.UUID) (*model.Customer, error)
	CreateCustomer(ctx context.Context, customer *model.Customer) (*model.Customer, error)
	// UpdateCustomerFields 只更新资料字段，目标不存在或已删除时返回 ErrCustomerNotFound
	UpdateCustomerFields(ctx context.Context, id uuid.UUID, fields model.CustomerFields) (*model.Customer, error)
	// ApplyBalanceDelta 行锁内读改写余额，不检查 is_deleted
	ApplyBalanceDelta(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (*model.Customer, error)
	SoftDelete(ctx context.Context, id uuid.UUID) (*model.Customer, error)
	// Restore 仅允许 已删除 -> 未删除，其余情况返回 ErrCustomerNotFound
	Restore(ctx context.Context, id uuid.UUID) (*model.Customer, error)
	ListAllSortedByBalance(ctx context.Context) ([]*model.Customer, error)
	InsertCreditEntry(ctx context.Context, entry *model.CreditEntry) (*model.CreditEntry, error)
	ListCreditEntriesForCustomer(ctx context.Context, customerID uuid.UUID) ([]*model.CreditEntry, error)
	AppendOutbox(ctx context.Context, msg *model.OutboxMessage) error

	// Transaction 在一个事务内执行 fn，fn 返回错误则整体回滚
	Transaction(ctx context.Context, fn func(tx LedgerStore) error) error
}

// GormLedgerStore 基于 gorm 的 LedgerStore 实现（MySQL / Postgres）
type GormLedgerStore struct {
	db   *gorm.DB
	inTx bool
}

func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{db: db}
}

func (s *GormLedgerStore) Transaction(ctx context.Context, fn func(tx LedgerStore) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormLedgerStore{db: tx, inTx: true})
	})
}

// atomic 保证多步写操作在事务内执行；已在事务中时直接复用当前事务
func (s *GormLedgerStore) atomic(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.inTx {
		return fn(s.db.WithContext(ctx))
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

var _ LedgerStore = (*GormLedgerStore)(nil)
