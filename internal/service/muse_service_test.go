package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/museauction/internal/datamodels/muse"
)

func TestMuseLifecycle(t *testing.T) {
	s := newStack(t)
	admin := s.seedUser(t, "admin@example.com", "Admin")
	ctx := context.Background()

	m, err := s.muses.Create(ctx, "Luna", "bio text", "", admin.ID)
	require.NoError(t, err)
	assert.Equal(t, muse.VerificationPending, m.Verification)

	// Unverified muses stay off the public roster.
	roster, err := s.muses.ListVerified(ctx)
	require.NoError(t, err)
	assert.Empty(t, roster)

	m, err = s.muses.Verify(ctx, m.ID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, muse.VerificationVerified, m.Verification)

	roster, err = s.muses.ListVerified(ctx)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, "Luna", roster[0].DisplayName)

	m, err = s.muses.Update(ctx, m.ID, "Luna Noir", "new bio", "", admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "Luna Noir", m.DisplayName)

	_, err = s.muses.Update(ctx, 9999, "x", "", "", admin.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.muses.Create(ctx, "", "", "", admin.ID)
	assert.Error(t, err)
}

func TestMuseStatsFromSales(t *testing.T) {
	s := newStack(t)
	buyer := s.seedUser(t, "buyer@example.com", "Buyer")
	m := s.seedMuse(t, "Luna")
	ctx := context.Background()

	a := s.seedAuction(t, m.ID, "10.00", time.Hour)
	_, err := s.bidding.PlaceBid(ctx, a.ID, buyer.ID, dec(t, "40.00"), "")
	require.NoError(t, err)
	s.clock.Advance(2 * time.Hour)
	_, err = s.lifecycle.SweepExpired(ctx)
	require.NoError(t, err)

	p, err := s.payments.IssueForAuction(ctx, a.ID)
	require.NoError(t, err)
	_, err = s.payments.ProcessCard(ctx, p.Token, buyer.ID)
	require.NoError(t, err)

	withStats, auctions, err := s.muses.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, auctions, 1)
	assert.Equal(t, int64(1), withStats.Stats.TotalListed)
	assert.Equal(t, int64(1), withStats.Stats.TotalSold)
	assert.True(t, withStats.Stats.Revenue.Equal(dec(t, "40.00")))

	_, _, err = s.muses.Get(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}
