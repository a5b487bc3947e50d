package mysql

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/museauction/internal/datamodels/payment"
)

type paymentRepo struct {
	db *gorm.DB
}

// NewPaymentRepository creates the payment store.
func NewPaymentRepository(db *gorm.DB) payment.Repository {
	return &paymentRepo{db: db}
}

func (r *paymentRepo) Create(ctx context.Context, p *payment.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *paymentRepo) GetByID(ctx context.Context, id int64) (*payment.Payment, error) {
	var p payment.Payment
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) GetByAuctionID(ctx context.Context, auctionID int64) (*payment.Payment, error) {
	var p payment.Payment
	if err := r.db.WithContext(ctx).Where("auction_id = ?", auctionID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) GetByToken(ctx context.Context, token string) (*payment.Payment, error) {
	var p payment.Payment
	if err := r.db.WithContext(ctx).Where("payment_token = ?", token).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) Update(ctx context.Context, p *payment.Payment) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *paymentRepo) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&payment.Payment{}, id).Error
}

func (r *paymentRepo) ListPipelineOrder(ctx context.Context) ([]*payment.Payment, error) {
	var list []*payment.Payment
	if err := r.db.WithContext(ctx).
		Order(`CASE status
			WHEN 'pending' THEN 0
			WHEN 'awaiting_payment' THEN 1
			WHEN 'paid' THEN 2
			WHEN 'shipped' THEN 3
			WHEN 'completed' THEN 4
			ELSE 5 END, created_at DESC`).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *paymentRepo) CountByStatus(ctx context.Context, statuses ...string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&payment.Payment{}).
		Where("status IN ?", statuses).
		Count(&n).Error
	return n, err
}

func (r *paymentRepo) SumAmountByStatus(ctx context.Context, statuses ...string) (decimal.Decimal, error) {
	var raw decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&payment.Payment{}).
		Select("SUM(amount)").
		Where("status IN ?", statuses).
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !raw.Valid {
		return decimal.Zero, nil
	}
	return raw.Decimal, nil
}

func (r *paymentRepo) ListByBuyer(ctx context.Context, buyerID int64) ([]*payment.Payment, error) {
	var list []*payment.Payment
	if err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC, id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
