package mysql

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/museauction/internal/datamodels/auction"
	"github.com/example/museauction/internal/datamodels/muse"
)

type museRepo struct {
	db *gorm.DB
}

// NewMuseRepository creates the muse profile store.
func NewMuseRepository(db *gorm.DB) muse.Repository {
	return &museRepo{db: db}
}

func (r *museRepo) GetByID(ctx context.Context, id int64) (*muse.Profile, error) {
	var m muse.Profile
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *museRepo) ListAll(ctx context.Context) ([]*muse.Profile, error) {
	var list []*muse.Profile
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *museRepo) ListVerified(ctx context.Context) ([]*muse.Profile, error) {
	var list []*muse.Profile
	if err := r.db.WithContext(ctx).
		Where("verification = ?", muse.VerificationVerified).
		Order("display_name ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *museRepo) Create(ctx context.Context, m *muse.Profile) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *museRepo) Update(ctx context.Context, m *muse.Profile) error {
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *museRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&muse.Profile{}).Count(&n).Error
	return n, err
}

func (r *museRepo) Stats(ctx context.Context, museID int64) (*muse.Stats, error) {
	stats := &muse.Stats{AvgPrice: decimal.Zero, Revenue: decimal.Zero}

	if err := r.db.WithContext(ctx).
		Model(&auction.Auction{}).
		Where("muse_id = ?", museID).
		Count(&stats.TotalListed).Error; err != nil {
		return nil, err
	}

	sold := r.db.WithContext(ctx).
		Model(&auction.Auction{}).
		Where("muse_id = ? AND status <> ? AND status <> ? AND current_bidder_id IS NOT NULL",
			museID, auction.StatusDraft, auction.StatusLive)
	if err := sold.Count(&stats.TotalSold).Error; err != nil {
		return nil, err
	}
	if stats.TotalSold == 0 {
		return stats, nil
	}

	var sum decimal.NullDecimal
	if err := r.db.WithContext(ctx).
		Model(&auction.Auction{}).
		Select("SUM(current_bid)").
		Where("muse_id = ? AND status <> ? AND status <> ? AND current_bidder_id IS NOT NULL",
			museID, auction.StatusDraft, auction.StatusLive).
		Scan(&sum).Error; err != nil {
		return nil, err
	}
	if sum.Valid {
		stats.Revenue = sum.Decimal
		stats.AvgPrice = sum.Decimal.Div(decimal.NewFromInt(stats.TotalSold)).Round(2)
	}
	return stats, nil
}

func (r *museRepo) IncrementSales(ctx context.Context, museID int64) error {
	return r.db.WithContext(ctx).
		Model(&muse.Profile{}).
		Where("id = ?", museID).
		Update("total_sales", gorm.Expr("total_sales + 1")).Error
}
