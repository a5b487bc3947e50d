package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/example/museauction/internal/datamodels/auction"
	"github.com/example/museauction/internal/datamodels/bid"
)

type bidRepo struct {
	db *gorm.DB
}

// NewBidRepository creates the bid ledger reader.
func NewBidRepository(db *gorm.DB) bid.Repository {
	return &bidRepo{db: db}
}

func (r *bidRepo) ListRecentByAuction(ctx context.Context, auctionID int64, limit int) ([]*bid.WithBidder, error) {
	if limit <= 0 {
		limit = 5
	}
	var list []*bid.WithBidder
	if err := r.db.WithContext(ctx).
		Table("bids").
		Select("bids.*, users.display_name AS bidder_name").
		Joins("JOIN users ON users.id = bids.user_id").
		Where("bids.auction_id = ?", auctionID).
		Order("bids.placed_at DESC, bids.id DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *bidRepo) ListByAuction(ctx context.Context, auctionID int64) ([]*bid.WithBidder, error) {
	var list []*bid.WithBidder
	if err := r.db.WithContext(ctx).
		Table("bids").
		Select("bids.*, users.display_name AS bidder_name").
		Joins("JOIN users ON users.id = bids.user_id").
		Where("bids.auction_id = ?", auctionID).
		Order("bids.placed_at DESC, bids.id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *bidRepo) ListActiveByUser(ctx context.Context, userID int64) ([]*bid.UserBid, error) {
	var list []*bid.UserBid
	if err := r.db.WithContext(ctx).
		Table("bids").
		Select(`bids.*, auctions.title AS auction_title, auctions.status AS auction_status,
			auctions.ends_at AS auction_ends_at, auctions.current_bid, auctions.current_bidder_id`).
		Joins("JOIN auctions ON auctions.id = bids.auction_id").
		Where("bids.user_id = ? AND auctions.status = ?", userID, auction.StatusLive).
		Where("bids.amount = (SELECT MAX(b2.amount) FROM bids b2 WHERE b2.auction_id = bids.auction_id AND b2.user_id = bids.user_id)").
		Order("auctions.ends_at ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *bidRepo) ListHistoryByUser(ctx context.Context, userID int64, limit int) ([]*bid.UserBid, error) {
	if limit <= 0 {
		limit = 20
	}
	var list []*bid.UserBid
	if err := r.db.WithContext(ctx).
		Table("bids").
		Select(`bids.*, auctions.title AS auction_title, auctions.status AS auction_status,
			auctions.ends_at AS auction_ends_at, auctions.current_bid, auctions.current_bidder_id`).
		Joins("JOIN auctions ON auctions.id = bids.auction_id").
		Where("bids.user_id = ?", userID).
		Order("bids.placed_at DESC, bids.id DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *bidRepo) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&bid.Bid{}).Count(&n).Error
	return n, err
}

func (r *bidRepo) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&bid.Bid{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}
