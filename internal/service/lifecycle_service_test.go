package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/museauction/internal/datamodels/auction"
	"github.com/example/museauction/internal/datamodels/notification"
	"github.com/example/museauction/internal/datamodels/payment"
)

func TestSweepExpiredIdempotent(t *testing.T) {
	s := newStack(t)
	m := s.seedMuse(t, "Luna")
	buyer := s.seedUser(t, "buyer@example.com", "Buyer")
	ctx := context.Background()

	withBids := s.seedAuction(t, m.ID, "65.00", time.Hour)
	noBids := s.seedAuction(t, m.ID, "50.00", time.Hour)
	future := s.seedAuction(t, m.ID, "40.00", 3*time.Hour)

	_, err := s.bidding.PlaceBid(ctx, withBids.ID, buyer.ID, dec(t, "90.00"), "")
	require.NoError(t, err)

	s.clock.Advance(2 * time.Hour)

	ended, err := s.lifecycle.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, ended)

	assert.Equal(t, auction.StatusEnded, s.reloadAuction(t, withBids.ID).Status)
	assert.Equal(t, auction.StatusEnded, s.reloadAuction(t, noBids.ID).Status)
	assert.Equal(t, auction.StatusLive, s.reloadAuction(t, future.ID).Status)

	// Only the auction with a winner gets a payment.
	var count int64
	require.NoError(t, s.db.Model(&payment.Payment{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// Running again does nothing new.
	ended, err = s.lifecycle.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, ended)
	require.NoError(t, s.db.Model(&payment.Payment{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// An auction flipped to ended whose payment never landed (transient issuance
// failure) is settled by the next sweep.
func TestSweepRetriesUnsettledIssuance(t *testing.T) {
	s := newStack(t)
	m := s.seedMuse(t, "Luna")
	buyer := s.seedUser(t, "buyer@example.com", "Buyer")
	ctx := context.Background()

	a := s.seedAuction(t, m.ID, "65.00", time.Hour)
	_, err := s.bidding.PlaceBid(ctx, a.ID, buyer.ID, dec(t, "70.00"), "")
	require.NoError(t, err)

	require.NoError(t, s.db.Model(a).Update("status", auction.StatusEnded).Error)

	ended, err := s.lifecycle.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, ended, "nothing newly expired")

	var p payment.Payment
	require.NoError(t, s.db.Where("auction_id = ?", a.ID).First(&p).Error)
	assert.Equal(t, buyer.ID, p.BuyerID)
	assert.True(t, p.Amount.Equal(dec(t, "70.00")))

	// Settled auctions stay settled.
	ended, err = s.lifecycle.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, ended)
	var count int64
	require.NoError(t, s.db.Model(&payment.Payment{}).Where("auction_id = ?", a.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// Full run of a timed sale: open, early bid, sniper extension, expiry sweep,
// single settlement.
func TestAuctionEndToEnd(t *testing.T) {
	s := newStack(t)
	m := s.seedMuse(t, "Luna")
	alice := s.seedUser(t, "alice@example.com", "Alice")
	bob := s.seedUser(t, "bob@example.com", "Bob")
	ctx := context.Background()

	a := s.seedAuction(t, m.ID, "65.00", time.Hour)
	originalEnd := a.EndsAt

	// T+10m: ordinary bid, deadline untouched.
	s.clock.Advance(10 * time.Minute)
	result, err := s.bidding.PlaceBid(ctx, a.ID, alice.ID, dec(t, "70.00"), "")
	require.NoError(t, err)
	assert.False(t, result.Extended)

	// T+56m, four minutes remaining: sniper bid pushes the deadline out.
	s.clock.Advance(46 * time.Minute)
	result, err = s.bidding.PlaceBid(ctx, a.ID, bob.ID, dec(t, "75.00"), "")
	require.NoError(t, err)
	assert.True(t, result.Extended)
	assert.True(t, result.Auction.EndsAt.Equal(originalEnd.Add(2*time.Minute)))

	// Nothing more arrives; pass the extended deadline and sweep.
	s.clock.Advance(10 * time.Minute)
	ended, err := s.lifecycle.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ended)

	final := s.reloadAuction(t, a.ID)
	assert.Equal(t, auction.StatusEnded, final.Status)
	assert.Equal(t, int64(2), final.BidCount)

	var p payment.Payment
	require.NoError(t, s.db.Where("auction_id = ?", a.ID).First(&p).Error)
	assert.Equal(t, bob.ID, p.BuyerID)
	assert.True(t, p.Amount.Equal(dec(t, "75.00")))
	assert.Equal(t, payment.StatusAwaitingPayment, p.Status)
	assert.NotEmpty(t, p.Token)

	// Winner was told, in the inbox and on the queue.
	var n notification.Notification
	require.NoError(t, s.db.Where("user_id = ? AND type = ?", bob.ID, notification.TypeAuctionWon).First(&n).Error)
	assert.Contains(t, n.Link, p.Token)
	require.Len(t, s.publisher.events, 1)
	assert.Equal(t, notification.TypeAuctionWon, s.publisher.events[0].Type)
}

func TestEndNow(t *testing.T) {
	s := newStack(t)
	m := s.seedMuse(t, "Luna")
	buyer := s.seedUser(t, "buyer@example.com", "Buyer")
	ctx := context.Background()

	a := s.seedAuction(t, m.ID, "65.00", time.Hour)
	_, err := s.bidding.PlaceBid(ctx, a.ID, buyer.ID, dec(t, "70.00"), "")
	require.NoError(t, err)

	ended, err := s.lifecycle.EndNow(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusEnded, ended.Status)

	var p payment.Payment
	require.NoError(t, s.db.Where("auction_id = ?", a.ID).First(&p).Error)
	assert.Equal(t, buyer.ID, p.BuyerID)

	// A second force-end is rejected.
	_, err = s.lifecycle.EndNow(ctx, a.ID)
	assert.ErrorIs(t, err, ErrAuctionNotActive)

	_, err = s.lifecycle.EndNow(ctx, 9999)
	assert.ErrorIs(t, err, ErrAuctionNotFound)
}
