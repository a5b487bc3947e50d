package auction

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status values an auction moves through. Auctions are never deleted.
const (
	StatusDraft     = "draft"
	StatusLive      = "live"
	StatusEnded     = "ended"
	StatusPaid      = "paid"
	StatusShipped   = "shipped"
	StatusCompleted = "completed"
)

// Auction is a single timed listing. CurrentBid and CurrentBidderID are null
// until the first accepted bid; whenever one is set, both are, and BidCount
// is positive. EndsAt moves (anti-snipe, admin extend); OriginalEnd never does.
type Auction struct {
	ID              int64               `gorm:"primaryKey" json:"id"`
	MuseID          int64               `gorm:"index;not null" json:"muse_id"`
	Title           string              `gorm:"size:128;not null" json:"title"`
	Description     string              `gorm:"size:1024" json:"description"`
	Category        string              `gorm:"size:32;index" json:"category"`
	WearDuration    string              `gorm:"size:64" json:"wear_duration"`
	Image           string              `gorm:"size:255" json:"image"`
	StartingBid     decimal.Decimal     `gorm:"type:decimal(10,2);not null" json:"starting_bid"`
	CurrentBid      decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"current_bid"`
	CurrentBidderID *int64              `gorm:"index" json:"current_bidder_id"`
	BidCount        int64               `gorm:"not null;default:0" json:"bid_count"`
	Status          string              `gorm:"size:16;index;not null;default:draft" json:"status"`
	StartsAt        time.Time           `json:"starts_at"`
	EndsAt          time.Time           `gorm:"index;not null" json:"ends_at"`
	OriginalEnd     time.Time           `gorm:"not null" json:"original_end"`
	CreatedBy       int64               `json:"created_by"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// HasWinner reports whether the auction closed (or would close) with a
// leading bidder.
func (a *Auction) HasWinner() bool {
	return a.CurrentBidderID != nil
}

// LeadingPrice is the price the next bid competes against.
func (a *Auction) LeadingPrice() decimal.Decimal {
	if a.CurrentBid.Valid {
		return a.CurrentBid.Decimal
	}
	return a.StartingBid
}

// StatusCounts aggregate used by the admin dashboard.
type StatusCounts struct {
	Total int64
	Live  int64
	Ended int64
}

// Repository auction persistence.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Auction, error)
	// ListDisplayOrder returns every auction, live ones first, soonest
	// deadline first within each group.
	ListDisplayOrder(ctx context.Context) ([]*Auction, error)
	ListByMuse(ctx context.Context, museID int64) ([]*Auction, error)
	Create(ctx context.Context, a *Auction) error
	Update(ctx context.Context, a *Auction) error
	UpdateStatus(ctx context.Context, id int64, status string) error
	// ListExpiredLiveIDs selects live auctions whose deadline has passed.
	ListExpiredLiveIDs(ctx context.Context, now time.Time) ([]int64, error)
	// EndExpired bulk-transitions live auctions past their deadline to ended.
	EndExpired(ctx context.Context, now time.Time) error
	// ListUnsettledEndedIDs selects ended auctions that closed with a winner
	// but have no payment row yet, so a failed issuance gets retried.
	ListUnsettledEndedIDs(ctx context.Context) ([]int64, error)
	StatusCounts(ctx context.Context) (*StatusCounts, error)
	// EndedGMV sums winning prices across ended-or-later auctions with a winner.
	EndedGMV(ctx context.Context) (decimal.Decimal, error)
}
