package shipment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Shipment states.
const (
	StatusAwaitingPayment = "awaiting_payment"
	StatusPreparing       = "preparing"
	StatusShipped         = "shipped"
	StatusDelivered       = "delivered"
)

// Shipment tracks fulfillment of a paid auction, one per payment.
type Shipment struct {
	ID             int64           `gorm:"primaryKey" json:"id"`
	PaymentID      int64           `gorm:"uniqueIndex;not null" json:"payment_id"`
	TrackingNumber string          `gorm:"size:64" json:"tracking_number"`
	Carrier        string          `gorm:"size:32;default:DHL" json:"carrier"`
	Destination    string          `gorm:"size:255" json:"destination"`
	Status         string          `gorm:"size:24;not null;default:preparing" json:"status"`
	ShippingCost   decimal.Decimal `gorm:"type:decimal(10,2)" json:"shipping_cost"`
	ShippedAt      *time.Time      `json:"shipped_at"`
	DeliveredAt    *time.Time      `json:"delivered_at"`
}

// Repository shipment persistence.
type Repository interface {
	Create(ctx context.Context, s *Shipment) error
	GetByPaymentID(ctx context.Context, paymentID int64) (*Shipment, error)
	Update(ctx context.Context, s *Shipment) error
	DeleteByPaymentID(ctx context.Context, paymentID int64) error
}
