package muse

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Verification states for a muse profile.
const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"
)

// Profile is a seller identity. Muses are managed entirely by
// administrators and have no login-capable account.
type Profile struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	DisplayName  string    `gorm:"size:64;not null" json:"display_name"`
	Bio          string    `gorm:"size:1024" json:"bio"`
	AvatarURL    string    `gorm:"size:255" json:"avatar_url"`
	Verification string    `gorm:"size:16;not null;default:pending" json:"verification"`
	TotalSales   int64     `gorm:"not null;default:0" json:"total_sales"`
	AvgRating    float64   `gorm:"not null;default:0" json:"avg_rating"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName names the table after the entity, not the struct.
func (Profile) TableName() string { return "muses" }

// Stats per-muse sales aggregates.
type Stats struct {
	TotalListed int64           `json:"total_listed"`
	TotalSold   int64           `json:"total_sold"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// Repository muse persistence.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Profile, error)
	ListAll(ctx context.Context) ([]*Profile, error)
	ListVerified(ctx context.Context) ([]*Profile, error)
	Create(ctx context.Context, m *Profile) error
	Update(ctx context.Context, m *Profile) error
	Count(ctx context.Context) (int64, error)
	Stats(ctx context.Context, museID int64) (*Stats, error)
	IncrementSales(ctx context.Context, museID int64) error
}
