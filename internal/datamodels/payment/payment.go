package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status values a payment moves through.
const (
	StatusAwaitingPayment = "awaiting_payment"
	StatusPending         = "pending" // crypto: awaiting manual verification
	StatusPaid            = "paid"
	StatusShipped         = "shipped"
	StatusCompleted       = "completed"
)

// Payment is the obligation issued to an auction winner. At most one exists
// per auction; the unique index on AuctionID is what actually closes the
// concurrent-issuance race, the existence check is just the fast path.
type Payment struct {
	ID           int64           `gorm:"primaryKey" json:"id"`
	AuctionID    int64           `gorm:"uniqueIndex;not null" json:"auction_id"`
	BuyerID      int64           `gorm:"index;not null" json:"buyer_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Processor    string          `gorm:"size:32" json:"processor"`
	ProcessorTxn string          `gorm:"size:64" json:"processor_txn"`
	Status       string          `gorm:"size:24;index;not null;default:awaiting_payment" json:"status"`
	Token        string          `gorm:"column:payment_token;uniqueIndex;size:64" json:"-"`
	AdminNotes   string          `gorm:"size:1024" json:"admin_notes"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
}

// Repository payment persistence.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id int64) (*Payment, error)
	GetByAuctionID(ctx context.Context, auctionID int64) (*Payment, error)
	GetByToken(ctx context.Context, token string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	Delete(ctx context.Context, id int64) error
	// ListPipelineOrder returns all payments in fulfillment order
	// (pending, awaiting, paid, shipped, completed).
	ListPipelineOrder(ctx context.Context) ([]*Payment, error)
	CountByStatus(ctx context.Context, statuses ...string) (int64, error)
	SumAmountByStatus(ctx context.Context, statuses ...string) (decimal.Decimal, error)
	ListByBuyer(ctx context.Context, buyerID int64) ([]*Payment, error)
}
