package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/example/museauction/internal/datamodels/shipment"
)

type shipmentRepo struct {
	db *gorm.DB
}

// NewShipmentRepository creates the shipment store.
func NewShipmentRepository(db *gorm.DB) shipment.Repository {
	return &shipmentRepo{db: db}
}

func (r *shipmentRepo) Create(ctx context.Context, s *shipment.Shipment) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *shipmentRepo) GetByPaymentID(ctx context.Context, paymentID int64) (*shipment.Shipment, error) {
	var s shipment.Shipment
	if err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *shipmentRepo) Update(ctx context.Context, s *shipment.Shipment) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *shipmentRepo) DeleteByPaymentID(ctx context.Context, paymentID int64) error {
	return r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Delete(&shipment.Shipment{}).Error
}
