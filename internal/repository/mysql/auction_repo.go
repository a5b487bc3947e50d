package mysql

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/museauction/internal/datamodels/auction"
	"github.com/example/museauction/internal/datamodels/payment"
)

type auctionRepo struct {
	db *gorm.DB
}

// NewAuctionRepository creates the auction store.
func NewAuctionRepository(db *gorm.DB) auction.Repository {
	return &auctionRepo{db: db}
}

func (r *auctionRepo) GetByID(ctx context.Context, id int64) (*auction.Auction, error) {
	var a auction.Auction
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *auctionRepo) ListDisplayOrder(ctx context.Context) ([]*auction.Auction, error) {
	var list []*auction.Auction
	if err := r.db.WithContext(ctx).
		Order("CASE status WHEN 'live' THEN 0 ELSE 1 END, ends_at ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *auctionRepo) ListByMuse(ctx context.Context, museID int64) ([]*auction.Auction, error) {
	var list []*auction.Auction
	if err := r.db.WithContext(ctx).
		Where("muse_id = ? AND status <> ?", museID, auction.StatusDraft).
		Order("CASE status WHEN 'live' THEN 0 ELSE 1 END, ends_at ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *auctionRepo) Create(ctx context.Context, a *auction.Auction) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *auctionRepo) Update(ctx context.Context, a *auction.Auction) error {
	return r.db.WithContext(ctx).Save(a).Error
}

func (r *auctionRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	return r.db.WithContext(ctx).
		Model(&auction.Auction{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *auctionRepo) ListExpiredLiveIDs(ctx context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).
		Model(&auction.Auction{}).
		Where("status = ? AND ends_at <= ?", auction.StatusLive, now).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *auctionRepo) ListUnsettledEndedIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).
		Model(&auction.Auction{}).
		Where("status = ? AND current_bidder_id IS NOT NULL", auction.StatusEnded).
		Where("id NOT IN (?)", r.db.Model(&payment.Payment{}).Select("auction_id")).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *auctionRepo) EndExpired(ctx context.Context, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&auction.Auction{}).
		Where("status = ? AND ends_at <= ?", auction.StatusLive, now).
		Update("status", auction.StatusEnded).Error
}

func (r *auctionRepo) StatusCounts(ctx context.Context) (*auction.StatusCounts, error) {
	var counts auction.StatusCounts
	q := r.db.WithContext(ctx).Model(&auction.Auction{})
	if err := q.Count(&counts.Total).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&auction.Auction{}).
		Where("status = ?", auction.StatusLive).Count(&counts.Live).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&auction.Auction{}).
		Where("status = ?", auction.StatusEnded).Count(&counts.Ended).Error; err != nil {
		return nil, err
	}
	return &counts, nil
}

func (r *auctionRepo) EndedGMV(ctx context.Context) (decimal.Decimal, error) {
	var raw decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&auction.Auction{}).
		Select("SUM(current_bid)").
		Where("status <> ? AND status <> ? AND current_bidder_id IS NOT NULL",
			auction.StatusDraft, auction.StatusLive).
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !raw.Valid {
		return decimal.Zero, nil
	}
	return raw.Decimal, nil
}
