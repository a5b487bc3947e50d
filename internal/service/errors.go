package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors the API layer maps onto response codes.
var (
	ErrAuctionNotFound  = errors.New("auction not found")
	ErrAuctionNotActive = errors.New("auction is not active")
	ErrAuctionEnded     = errors.New("auction has ended")
	ErrInvalidAmount    = errors.New("invalid bid amount")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrEmailTaken       = errors.New("email already registered")
	ErrBadCredentials   = errors.New("invalid email or password")
	ErrAccountDisabled  = errors.New("account is deactivated")
)

// BidTooLowError carries the minimum acceptable amount so the rejection
// message can state it.
type BidTooLowError struct {
	Min decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid must be at least $%s", e.Min.StringFixed(2))
}
