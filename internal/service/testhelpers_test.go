package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/museauction/internal/config"
	"github.com/example/museauction/internal/datamodels/auction"
	"github.com/example/museauction/internal/datamodels/muse"
	"github.com/example/museauction/internal/datamodels/user"
	"github.com/example/museauction/internal/repository/mysql"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakePublisher struct {
	events []*AuctionEvent
}

func (p *fakePublisher) Publish(_ context.Context, event any) error {
	if e, ok := event.(*AuctionEvent); ok {
		p.events = append(p.events, e)
	}
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, mysql.Migrate(db))
	return db
}

// stack bundles the services under test against one database and one clock.
type stack struct {
	db        *gorm.DB
	clock     *fakeClock
	cfg       *config.Config
	publisher *fakePublisher
	notify    *NotificationService
	payments  *PaymentService
	lifecycle *LifecycleService
	bidding   *BiddingService
	auctions  *AuctionService
	users     *UserService
	muses     *MuseService
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db := newTestDB(t)
	cfg := config.DefaultConfig()
	// Anchored to the wall clock: gorm stamps created_at itself, and the
	// payment deadline math compares the two.
	clk := &fakeClock{now: time.Now().UTC()}
	pub := &fakePublisher{}

	auctionRepo := mysql.NewAuctionRepository(db)
	bidRepo := mysql.NewBidRepository(db)
	paymentRepo := mysql.NewPaymentRepository(db)
	museRepo := mysql.NewMuseRepository(db)
	userRepo := mysql.NewUserRepository(db)
	notificationRepo := mysql.NewNotificationRepository(db)
	shipmentRepo := mysql.NewShipmentRepository(db)
	addressRepo := mysql.NewAddressRepository(db)
	auditRepo := mysql.NewAuditRepository(db)

	notify := NewNotificationService(notificationRepo, pub)
	payments := NewPaymentService(paymentRepo, auctionRepo, userRepo, museRepo,
		shipmentRepo, addressRepo, auditRepo, notify, cfg.Auction, cfg.Shipping, clk)
	lifecycle := NewLifecycleService(auctionRepo, payments, cfg.Auction, clk)
	bidding := NewBiddingService(db, cfg.Auction, clk, payments, nil)
	auctions := NewAuctionService(auctionRepo, bidRepo, museRepo, userRepo, auditRepo,
		lifecycle, payments, cfg.Auction, clk)
	users := NewUserService(userRepo, auditRepo, &cfg.JWT, clk)
	muses := NewMuseService(museRepo, auctionRepo, auditRepo)

	return &stack{
		db:        db,
		clock:     clk,
		cfg:       cfg,
		publisher: pub,
		notify:    notify,
		payments:  payments,
		lifecycle: lifecycle,
		bidding:   bidding,
		auctions:  auctions,
		users:     users,
		muses:     muses,
	}
}

func (s *stack) seedUser(t *testing.T, email, name string) *user.User {
	t.Helper()
	u := &user.User{
		Email:        email,
		PasswordHash: "x",
		DisplayName:  name,
		Role:         user.RoleBuyer,
		AgeVerified:  true,
		IsActive:     true,
	}
	require.NoError(t, s.db.Create(u).Error)
	return u
}

func (s *stack) seedMuse(t *testing.T, name string) *muse.Profile {
	t.Helper()
	m := &muse.Profile{DisplayName: name, Verification: muse.VerificationVerified}
	require.NoError(t, s.db.Create(m).Error)
	return m
}

// seedAuction creates a live auction starting now and ending after d.
func (s *stack) seedAuction(t *testing.T, museID int64, starting string, d time.Duration) *auction.Auction {
	t.Helper()
	start, err := decimal.NewFromString(starting)
	require.NoError(t, err)
	now := s.clock.Now()
	a := &auction.Auction{
		MuseID:      museID,
		Title:       "worn set",
		StartingBid: start,
		Status:      auction.StatusLive,
		StartsAt:    now,
		EndsAt:      now.Add(d),
		OriginalEnd: now.Add(d),
	}
	require.NoError(t, s.db.Create(a).Error)
	return a
}

func (s *stack) reloadAuction(t *testing.T, id int64) *auction.Auction {
	t.Helper()
	var a auction.Auction
	require.NoError(t, s.db.First(&a, id).Error)
	return &a
}

func dec(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	require.NoError(t, err)
	return d
}
