package bid

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Bid is an accepted bid. Rows are immutable once written except for
// IsWinning, which the placement engine reassigns on every accepted bid so
// that at most one bid per auction carries it.
type Bid struct {
	ID        int64           `gorm:"primaryKey" json:"id"`
	AuctionID int64           `gorm:"index;not null" json:"auction_id"`
	UserID    int64           `gorm:"index;not null" json:"user_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	PlacedAt  time.Time       `gorm:"index;not null" json:"placed_at"`
	IsWinning bool            `gorm:"not null;default:false" json:"is_winning"`
	IPAddress string          `gorm:"size:45" json:"-"`
}

// WithBidder is a bid joined with the bidder's display name.
type WithBidder struct {
	Bid
	BidderName string `json:"bidder_name"`
}

// UserBid is a bid joined with its auction, for buyer dashboard views.
type UserBid struct {
	Bid
	AuctionTitle    string              `json:"auction_title"`
	AuctionStatus   string              `json:"auction_status"`
	AuctionEndsAt   time.Time           `json:"auction_ends_at"`
	CurrentBid      decimal.NullDecimal `json:"current_bid"`
	CurrentBidderID *int64              `json:"current_bidder_id"`
}

// Repository bid persistence. Writes that must be atomic with the auction
// row update happen inside the placement engine's transaction; this
// interface serves the read/display paths.
type Repository interface {
	// ListRecentByAuction returns the latest bids with bidder names,
	// newest first.
	ListRecentByAuction(ctx context.Context, auctionID int64, limit int) ([]*WithBidder, error)
	// ListByAuction returns every bid for an auction, newest first.
	ListByAuction(ctx context.Context, auctionID int64) ([]*WithBidder, error)
	// ListActiveByUser returns a user's best bid per live auction,
	// soonest deadline first.
	ListActiveByUser(ctx context.Context, userID int64) ([]*UserBid, error)
	// ListHistoryByUser returns a user's bids across all auctions,
	// newest first.
	ListHistoryByUser(ctx context.Context, userID int64, limit int) ([]*UserBid, error)
	CountAll(ctx context.Context) (int64, error)
	CountByUser(ctx context.Context, userID int64) (int64, error)
}
