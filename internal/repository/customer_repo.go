package repository

import (
	"context"
	"errors"
	"time"

	"creditledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *GormLedgerStore) FindCustomer(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	var customer model.Customer
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (s *GormLedgerStore) CreateCustomer(ctx context.Context, customer *model.Customer) (*model.Customer, error) {
	err := s.atomic(ctx, func(tx *gorm.DB) error {
		result := tx.Create(customer)
		if result.Error != nil {
			return translateError(result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrInsertFailed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return customer, nil
}

func (s *GormLedgerStore) UpdateCustomerFields(ctx context.Context, id uuid.UUID, fields model.CustomerFields) (*model.Customer, error) {
	var customer model.Customer
	err := s.atomic(ctx, func(tx *gorm.DB) error {
		if err := lockCustomer(tx, &customer, "id = ? AND is_deleted = ?", id, false); err != nil {
			return err
		}

		updates := fields.Columns()
		updates["updated_at"] = time.Now()

		if err := tx.Model(&customer).Updates(updates).Error; err != nil {
			return translateError(err)
		}
		return tx.Where("id = ?", id).First(&customer).Error
	})
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// ApplyBalanceDelta SELECT ... FOR UPDATE 锁住客户行后在内存中用 decimal 计算新余额再写回，
// 同一客户的并发增量在行锁上串行，不会丢失更新。
// 这里不过滤 is_deleted，是否允许对已删除客户记账由调用方决定。
func (s *GormLedgerStore) ApplyBalanceDelta(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (*model.Customer, error) {
	var customer model.Customer
	err := s.atomic(ctx, func(tx *gorm.DB) error {
		if err := lockCustomer(tx, &customer, "id = ?", id); err != nil {
			return err
		}

		balance := customer.AvailableCredit.Add(delta)
		now := time.Now()
		result := tx.Model(&model.Customer{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"available_credit": balance,
				"updated_at":       now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrCustomerNotFound
		}

		customer.AvailableCredit = balance
		customer.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// SoftDelete 不检查当前标记，行存在即置为已删除
func (s *GormLedgerStore) SoftDelete(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	var customer model.Customer
	err := s.atomic(ctx, func(tx *gorm.DB) error {
		if err := lockCustomer(tx, &customer, "id = ?", id); err != nil {
			return err
		}

		err := tx.Model(&model.Customer{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"is_deleted": true,
				"updated_at": time.Now(),
			}).Error
		if err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&customer).Error
	})
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// Restore 条件更新：WHERE is_deleted = true，未命中即视为不存在或已是正常状态
func (s *GormLedgerStore) Restore(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	var customer model.Customer
	err := s.atomic(ctx, func(tx *gorm.DB) error {
		result := tx.Model(&model.Customer{}).
			Where("id = ? AND is_deleted = ?", id, true).
			Updates(map[string]interface{}{
				"is_deleted": false,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrCustomerNotFound
		}
		return tx.Where("id = ? AND is_deleted = ?", id, false).First(&customer).Error
	})
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *GormLedgerStore) ListAllSortedByBalance(ctx context.Context) ([]*model.Customer, error) {
	var customers []*model.Customer
	err := s.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Order("available_credit DESC").
		Order("id ASC").
		Find(&customers).Error
	return customers, err
}

func lockCustomer(tx *gorm.DB, customer *model.Customer, query string, args ...interface{}) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(query, args...).
		First(customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrCustomerNotFound
	}
	return err
}
