package notification

import (
	"context"
	"time"
)

// Notification types emitted by the auction and fulfillment pipeline.
const (
	TypeAuctionWon       = "auction_won"
	TypePaymentPending   = "payment_pending"
	TypePaymentConfirmed = "payment_confirmed"
	TypeOrderShipped     = "order_shipped"
	TypeOrderDelivered   = "order_delivered"
)

// Notification is a per-user inbox record. Delivery rendering is out of
// scope; this is the produced record plus the queue event mirror.
type Notification struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	UserID    int64     `gorm:"index;not null" json:"user_id"`
	Type      string    `gorm:"size:32;not null" json:"type"`
	Title     string    `gorm:"size:128;not null" json:"title"`
	Message   string    `gorm:"size:1024" json:"message"`
	Link      string    `gorm:"size:255" json:"link"`
	IsRead    bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository notification persistence.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]*Notification, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	MarkAllRead(ctx context.Context, userID int64) error
	// DeleteByLinkFragment removes notifications whose link contains the
	// fragment (used when an order and its payment token are purged).
	DeleteByLinkFragment(ctx context.Context, fragment string) error
}
