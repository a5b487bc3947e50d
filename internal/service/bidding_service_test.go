package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/museauction/internal/datamodels/auction"
	"github.com/example/museauction/internal/datamodels/bid"
	"github.com/example/museauction/internal/datamodels/payment"
)

func TestPlaceBidFirstBid(t *testing.T) {
	s := newStack(t)
	m := s.seedMuse(t, "Luna")
	buyer := s.seedUser(t, "buyer@example.com", "Buyer")
	a := s.seedAuction(t, m.ID, "65.00", time.Hour)
	ctx := context.Background()

	// Below starting + increment.
	_, err := s.bidding.PlaceBid(ctx, a.ID, buyer.ID, dec(t, "69.99"), "1.2.3.4")
	var tooLow *BidTooLowError
	require.ErrorAs(t, err, &tooLow)
	assert.True(t, tooLow.Min.Equal(dec(t, "70.00")), "min should be starting plus increment, got %s", tooLow.Min)

	// Exactly at the minimum.
	result, err := s.bidding.PlaceBid(ctx, a.ID, buyer.ID, dec(t, "70.00"), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, result.Auction.CurrentBid.Valid)
	assert.True(t, result.Auction.CurrentBid.Decimal.Equal(dec(t, "70.00")))
	assert.Equal(t, int64(1), result.Auction.BidCount)
	require.NotNil(t, result.Auction.CurrentBidderID)
	assert.Equal(t, buyer.ID, *result.Auction.CurrentBidderID)
	assert.True(t, result.Bid.IsWinning)
	assert.False(t, result.Extended)
}

func TestPlaceBidMonotonicBoundary(t *testing.T) {
	s := newStack(t)
	m := s.seedMuse(t, "Luna")
	alice := s.seedUser(t, "alice@example.com", "Alice")
	bob := s.seedUser(t, "bob@example.com", "Bob")
	a := s.seedAuction(t, m.ID, "65.00", time.Hour)
	ctx := context.Background()

	_, err := s.bidding.PlaceBid(ctx, a.ID, alice.ID, dec(t, "100.00"), "")
	require.NoError(t, err)

	// One cent short of the next minimum.
	_, err = s.bidding.PlaceBid(ctx, a.ID, bob.ID, dec(t, "104.99"), "")
	var tooLow *BidTooLowError
	require.ErrorAs(t, err, &tooLow)
	assert.True(t, tooLow.Min.Equal(dec(t, "105.00")))

	result, err := s.bidding.PlaceBid(ctx, a.ID, bob.ID, dec(t, "105.00"), "")
	require.NoError(t, err)
	assert.True(t, result.Auction.CurrentBid.Decimal.Equal(dec(t, "105.00")))
	assert.Equal(t, int64(2), result.Auction.BidCount)
}

func TestPlaceBidRejections(t *testing.T) {
	s := newStack(t)
	m := s.seedMuse(t, "Luna")
	buyer := s.seedUser(t, "buyer@example.com", "Buyer")
	ctx := context.Background()

	t.Run("unknown_auction", func(t *testing.T) {
		_, err := s.bidding.PlaceBid(ctx, 9999, buyer.ID, dec(t, "70.00"), "")
		assert.ErrorIs(t, err, ErrAuctionNotFound)
	})

	t.Run("draft_auction", func(t *testing.T) {
		a := s.seedAuction(t, m.ID, "65.00", time.Hour)
		require.NoError(t, s.db.Model(a).Update("status", auction.StatusDraft).Error)
		_, err := s.bidding.PlaceBid(ctx, a.ID, buyer.ID, dec(t, "70.00"), "")
		assert.ErrorIs(t, err, ErrAuctionNotActive)
	})

	t.Run("non_positive_amount", func(t *testing.T) {
		a := s.seedAuction(t, m.ID, "65.00", time.Hour)
		_, err := s.bidding.PlaceBid(ctx, a.ID, buyer.ID, decimal.Zero, "")
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = s.bidding.PlaceBid(ctx, a.ID, buyer.ID, dec(t, "-5.00"), "")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestPlaceBidExpiredSelfHeals(t *testing.T) {
	s := newStack(t)
	m := s.seedMuse(t, "Luna")
	alice := s.seedUser(t, "alice@example.com", "Alice")
	bob := s.seedUser(t, "bob@example.com", "Bob")
	a := s.seedAuction(t, m.ID, "65.00", time.Hour)
	ctx := context.Background()

	_, err := s.bidding.PlaceBid(ctx, a.ID, alice.ID, dec(t, "80.00"), "")
	require.NoError(t, err)

	s.clock.Advance(2 * time.Hour)

	_, err = s.bidding.PlaceBid(ctx, a.ID, bob.ID, dec(t, "200.00"), "")
	require.ErrorIs(t, err, ErrAuctionEnded)

	// The transition committed even though the bid was rejected.
	healed := s.reloadAuction(t, a.ID)
	assert.Equal(t, auction.StatusEnded, healed.Status)
	assert.True(t, healed.CurrentBid.Decimal.Equal(dec(t, "80.00")), "late bid must not move the price")

	// Settlement ran: the winner got a payment.
	var p payment.Payment
	require.NoError(t, s.db.Where("auction_id = ?", a.ID).First(&p).Error)
	assert.Equal(t, alice.ID, p.BuyerID)
	assert.True(t, p.Amount.Equal(dec(t, "80.00")))
}

func TestPlaceBidExpiredNoBidsNoPayment(t *testing.T) {
	s := newStack(t)
	m := s.seedMuse(t, "Luna")
	buyer := s.seedUser(t, "buyer@example.com", "Buyer")
	a := s.seedAuction(t, m.ID, "65.00", time.Hour)
	ctx := context.Background()

	s.clock.Advance(2 * time.Hour)

	_, err := s.bidding.PlaceBid(ctx, a.ID, buyer.ID, dec(t, "70.00"), "")
	require.ErrorIs(t, err, ErrAuctionEnded)

	var count int64
	require.NoError(t, s.db.Model(&payment.Payment{}).Where("auction_id = ?", a.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAntiSnipeExtension(t *testing.T) {
	s := newStack(t)
	m := s.seedMuse(t, "Luna")
	alice := s.seedUser(t, "alice@example.com", "Alice")
	bob := s.seedUser(t, "bob@example.com", "Bob")
	a := s.seedAuction(t, m.ID, "65.00", time.Hour)
	ctx := context.Background()
	originalEnd := a.EndsAt

	// 10 minutes remaining: outside the window, no extension.
	s.clock.Advance(50 * time.Minute)
	result, err := s.bidding.PlaceBid(ctx, a.ID, alice.ID, dec(t, "70.00"), "")
	require.NoError(t, err)
	assert.False(t, result.Extended)
	assert.True(t, result.Auction.EndsAt.Equal(originalEnd))

	// 3 minutes remaining: extend by two minutes from the current deadline.
	s.clock.Advance(7 * time.Minute)
	result, err = s.bidding.PlaceBid(ctx, a.ID, bob.ID, dec(t, "75.00"), "")
	require.NoError(t, err)
	assert.True(t, result.Extended)
	assert.True(t, result.Auction.EndsAt.Equal(originalEnd.Add(2*time.Minute)))

	// Extensions repeat without cap.
	s.clock.Advance(4 * time.Minute)
	result, err = s.bidding.PlaceBid(ctx, a.ID, alice.ID, dec(t, "80.00"), "")
	require.NoError(t, err)
	assert.True(t, result.Extended)
	assert.True(t, result.Auction.EndsAt.Equal(originalEnd.Add(4*time.Minute)))

	// OriginalEnd never moves.
	reloaded := s.reloadAuction(t, a.ID)
	assert.True(t, reloaded.OriginalEnd.Equal(originalEnd))
}

func TestWinningFlagSingleHolder(t *testing.T) {
	s := newStack(t)
	m := s.seedMuse(t, "Luna")
	alice := s.seedUser(t, "alice@example.com", "Alice")
	bob := s.seedUser(t, "bob@example.com", "Bob")
	a := s.seedAuction(t, m.ID, "65.00", time.Hour)
	ctx := context.Background()

	_, err := s.bidding.PlaceBid(ctx, a.ID, alice.ID, dec(t, "70.00"), "")
	require.NoError(t, err)
	_, err = s.bidding.PlaceBid(ctx, a.ID, bob.ID, dec(t, "75.00"), "")
	require.NoError(t, err)
	result, err := s.bidding.PlaceBid(ctx, a.ID, alice.ID, dec(t, "80.00"), "")
	require.NoError(t, err)

	var winners []bid.Bid
	require.NoError(t, s.db.Where("auction_id = ? AND is_winning = ?", a.ID, true).Find(&winners).Error)
	require.Len(t, winners, 1)
	assert.Equal(t, result.Bid.ID, winners[0].ID)
	assert.Equal(t, alice.ID, winners[0].UserID)
}

func TestStatusFallsBackToDatabase(t *testing.T) {
	s := newStack(t)
	m := s.seedMuse(t, "Luna")
	buyer := s.seedUser(t, "buyer@example.com", "Buyer")
	a := s.seedAuction(t, m.ID, "65.00", time.Hour)
	ctx := context.Background()

	_, err := s.bidding.PlaceBid(ctx, a.ID, buyer.ID, dec(t, "70.00"), "")
	require.NoError(t, err)

	snap, err := s.bidding.Status(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusLive, snap.Status)
	assert.True(t, snap.CurrentBid.Decimal.Equal(dec(t, "70.00")))
	assert.Equal(t, int64(1), snap.BidCount)

	// Past the deadline the poll endpoint heals and settles too.
	s.clock.Advance(2 * time.Hour)
	snap, err = s.bidding.Status(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusEnded, snap.Status)

	var p payment.Payment
	require.NoError(t, s.db.Where("auction_id = ?", a.ID).First(&p).Error)
	assert.Equal(t, buyer.ID, p.BuyerID)

	_, err = s.bidding.Status(ctx, 9999)
	assert.True(t, errors.Is(err, ErrAuctionNotFound))
}
