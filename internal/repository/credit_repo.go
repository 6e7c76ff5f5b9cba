package repository

import (
	"context"

	"creditledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InsertCreditEntry 只追加写入流水
func (s *GormLedgerStore) InsertCreditEntry(ctx context.Context, entry *model.CreditEntry) (*model.CreditEntry, error) {
	err := s.atomic(ctx, func(tx *gorm.DB) error {
		result := tx.Omit("Customer").Create(entry)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrInsertFailed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *GormLedgerStore) ListCreditEntriesForCustomer(ctx context.Context, customerID uuid.UUID) ([]*model.CreditEntry, error) {
	var entries []*model.CreditEntry
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&entries).Error
	return entries, err
}
