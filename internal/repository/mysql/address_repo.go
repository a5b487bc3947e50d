package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/example/museauction/internal/datamodels/address"
)

type addressRepo struct {
	db *gorm.DB
}

// NewAddressRepository creates the address store.
func NewAddressRepository(db *gorm.DB) address.Repository {
	return &addressRepo{db: db}
}

func (r *addressRepo) GetDefault(ctx context.Context, userID int64) (*address.Address, error) {
	var a address.Address
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_default = ?", userID, true).
		Order("created_at DESC").
		First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *addressRepo) SaveDefault(ctx context.Context, a *address.Address) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&address.Address{}).
			Where("user_id = ? AND is_default = ?", a.UserID, true).
			Update("is_default", false).Error; err != nil {
			return err
		}
		a.IsDefault = true
		return tx.Create(a).Error
	})
}
