package address

import (
	"context"
	"time"
)

// Address is a buyer shipping address. One default per user; saving a new
// one clears the previous default.
type Address struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	UserID       int64     `gorm:"index;not null" json:"user_id"`
	FullName     string    `gorm:"size:128;not null" json:"full_name"`
	AddressLine1 string    `gorm:"size:255;not null" json:"address_line1"`
	AddressLine2 string    `gorm:"size:255" json:"address_line2"`
	City         string    `gorm:"size:64;not null" json:"city"`
	State        string    `gorm:"size:64" json:"state"`
	PostalCode   string    `gorm:"size:16;not null" json:"postal_code"`
	Country      string    `gorm:"size:2;not null" json:"country"`
	Phone        string    `gorm:"size:32" json:"phone"`
	IsDefault    bool      `gorm:"not null;default:true" json:"is_default"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repository address persistence.
type Repository interface {
	GetDefault(ctx context.Context, userID int64) (*Address, error)
	// SaveDefault clears the user's previous default and inserts a as the
	// new one, atomically.
	SaveDefault(ctx context.Context, a *Address) error
}
