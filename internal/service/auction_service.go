package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/museauction/internal/clock"
	"github.com/example/museauction/internal/config"
	"github.com/example/museauction/internal/datamodels/audit"
	"github.com/example/museauction/internal/datamodels/auction"
	"github.com/example/museauction/internal/datamodels/bid"
	"github.com/example/museauction/internal/datamodels/muse"
	"github.com/example/museauction/internal/datamodels/user"
)

// Listing is an auction prepared for display: the row, the seller's name, the
// leading bidder's name and the trailing bids.
type Listing struct {
	*auction.Auction
	MuseName   string            `json:"muse_name"`
	LeaderName string            `json:"leader_name,omitempty"`
	RecentBids []*bid.WithBidder `json:"recent_bids"`
}

// Dashboard is the buyer's personal view.
type Dashboard struct {
	ActiveBids []*bid.UserBid `json:"active_bids"`
	History    []*bid.UserBid `json:"history"`
	Wins       []*OrderView   `json:"wins"`
	TotalBids  int64          `json:"total_bids"`
}

// AdminStats is the admin dashboard headline block.
type AdminStats struct {
	Auctions  *auction.StatusCounts `json:"auctions"`
	GMV       decimal.Decimal       `json:"gmv"`
	TotalBids int64                 `json:"total_bids"`
	Users     *user.Counts          `json:"users"`
	Muses     int64                 `json:"muses"`
}

// AuctionService assembles listings and runs the admin-side auction
// management. Read paths sweep lazily first, so a dead background sweeper
// never shows an expired auction as live.
type AuctionService struct {
	auctionRepo auction.Repository
	bidRepo     bid.Repository
	museRepo    muse.Repository
	userRepo    user.Repository
	auditRepo   audit.Repository
	lifecycle   *LifecycleService
	payments    *PaymentService
	cfg         config.AuctionConfig
	clock       clock.Clock
}

func NewAuctionService(
	auctionRepo auction.Repository,
	bidRepo bid.Repository,
	museRepo muse.Repository,
	userRepo user.Repository,
	auditRepo audit.Repository,
	lifecycle *LifecycleService,
	payments *PaymentService,
	cfg config.AuctionConfig,
	clk clock.Clock,
) *AuctionService {
	if clk == nil {
		clk = clock.System{}
	}
	return &AuctionService{
		auctionRepo: auctionRepo,
		bidRepo:     bidRepo,
		museRepo:    museRepo,
		userRepo:    userRepo,
		auditRepo:   auditRepo,
		lifecycle:   lifecycle,
		payments:    payments,
		cfg:         cfg,
		clock:       clk,
	}
}

func (s *AuctionService) lazySweep(ctx context.Context) {
	if s.lifecycle == nil {
		return
	}
	if _, err := s.lifecycle.SweepExpired(ctx); err != nil {
		zap.L().Warn("lazy sweep failed", zap.Error(err))
	}
}

// ListHome returns every non-draft auction in display order, live first.
func (s *AuctionService) ListHome(ctx context.Context) ([]*Listing, error) {
	s.lazySweep(ctx)

	auctions, err := s.auctionRepo.ListDisplayOrder(ctx)
	if err != nil {
		return nil, err
	}

	museNames := map[int64]string{}
	bidderNames := map[int64]string{}
	out := make([]*Listing, 0, len(auctions))
	for _, a := range auctions {
		if a.Status == auction.StatusDraft {
			continue
		}
		name, ok := museNames[a.MuseID]
		if !ok {
			if m, err := s.museRepo.GetByID(ctx, a.MuseID); err == nil {
				name = m.DisplayName
			}
			museNames[a.MuseID] = name
		}
		l := &Listing{Auction: a, MuseName: name, RecentBids: []*bid.WithBidder{}}
		l.LeaderName = s.bidderName(ctx, a.CurrentBidderID, bidderNames)
		out = append(out, l)
	}
	return out, nil
}

func (s *AuctionService) bidderName(ctx context.Context, id *int64, memo map[int64]string) string {
	if id == nil {
		return ""
	}
	if name, ok := memo[*id]; ok {
		return name
	}
	name := ""
	if u, err := s.userRepo.GetByID(ctx, *id); err == nil {
		name = u.DisplayName
	}
	memo[*id] = name
	return name
}

// GetListing returns one auction with its recent bids.
func (s *AuctionService) GetListing(ctx context.Context, id int64) (*Listing, error) {
	s.lazySweep(ctx)

	a, err := s.auctionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}

	listing := &Listing{Auction: a, RecentBids: []*bid.WithBidder{}}
	if m, err := s.museRepo.GetByID(ctx, a.MuseID); err == nil {
		listing.MuseName = m.DisplayName
	}
	listing.LeaderName = s.bidderName(ctx, a.CurrentBidderID, map[int64]string{})
	if bids, err := s.bidRepo.ListRecentByAuction(ctx, id, s.cfg.RecentBids); err == nil {
		listing.RecentBids = bids
	}
	return listing, nil
}

// DashboardFor assembles the buyer's personal page.
func (s *AuctionService) DashboardFor(ctx context.Context, userID int64) (*Dashboard, error) {
	s.lazySweep(ctx)

	d := &Dashboard{
		ActiveBids: []*bid.UserBid{},
		History:    []*bid.UserBid{},
		Wins:       []*OrderView{},
	}
	var err error
	if d.ActiveBids, err = s.bidRepo.ListActiveByUser(ctx, userID); err != nil {
		return nil, err
	}
	if d.History, err = s.bidRepo.ListHistoryByUser(ctx, userID, 20); err != nil {
		return nil, err
	}
	if d.TotalBids, err = s.bidRepo.CountByUser(ctx, userID); err != nil {
		return nil, err
	}
	if s.payments != nil {
		if d.Wins, err = s.payments.ListWinsByBuyer(ctx, userID); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// CreateInput is the admin auction creation form.
type CreateInput struct {
	MuseID       int64
	Title        string
	Description  string
	Category     string
	WearDuration string
	Image        string
	StartingBid  decimal.Decimal
	Duration     time.Duration
	Draft        bool
}

// Create opens a new listing. Non-draft auctions go live immediately; the
// deadline is start plus duration and OriginalEnd pins it for extension math.
func (s *AuctionService) Create(ctx context.Context, in CreateInput, adminID int64) (*auction.Auction, error) {
	if in.Title == "" || in.StartingBid.LessThanOrEqual(decimal.Zero) || in.Duration <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := s.museRepo.GetByID(ctx, in.MuseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	now := s.clock.Now()
	status := auction.StatusLive
	if in.Draft {
		status = auction.StatusDraft
	}
	a := &auction.Auction{
		MuseID:       in.MuseID,
		Title:        in.Title,
		Description:  in.Description,
		Category:     in.Category,
		WearDuration: in.WearDuration,
		Image:        in.Image,
		StartingBid:  in.StartingBid,
		Status:       status,
		StartsAt:     now,
		EndsAt:       now.Add(in.Duration),
		OriginalEnd:  now.Add(in.Duration),
		CreatedBy:    adminID,
	}
	if err := s.auctionRepo.Create(ctx, a); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, a.ID, "auction_created", map[string]any{
		"title":        a.Title,
		"starting_bid": a.StartingBid.StringFixed(2),
		"ends_at":      a.EndsAt,
	}, adminID)
	return a, nil
}

// UpdateInput carries the editable listing fields. Nil pointers leave the
// field alone.
type UpdateInput struct {
	Title        *string
	Description  *string
	Category     *string
	WearDuration *string
	Image        *string
	StartingBid  *decimal.Decimal
}

// Update edits listing copy. The starting bid can only change while nobody
// has bid against it.
func (s *AuctionService) Update(ctx context.Context, id int64, in UpdateInput, adminID int64) (*auction.Auction, error) {
	a, err := s.auctionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}

	changes := map[string]any{}
	if in.Title != nil && *in.Title != "" {
		changes["title"] = *in.Title
		a.Title = *in.Title
	}
	if in.Description != nil {
		a.Description = *in.Description
	}
	if in.Category != nil {
		a.Category = *in.Category
	}
	if in.WearDuration != nil {
		a.WearDuration = *in.WearDuration
	}
	if in.Image != nil {
		a.Image = *in.Image
	}
	if in.StartingBid != nil && in.StartingBid.GreaterThan(decimal.Zero) {
		if a.BidCount > 0 {
			return nil, ErrInvalidAmount
		}
		changes["starting_bid"] = in.StartingBid.StringFixed(2)
		a.StartingBid = *in.StartingBid
	}

	if err := s.auctionRepo.Update(ctx, a); err != nil {
		return nil, err
	}
	if len(changes) > 0 {
		s.recordAudit(ctx, a.ID, "auction_edited", changes, adminID)
	}
	return a, nil
}

// Publish moves a draft live, restarting its clock from now.
func (s *AuctionService) Publish(ctx context.Context, id int64, duration time.Duration, adminID int64) (*auction.Auction, error) {
	a, err := s.auctionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}
	if a.Status != auction.StatusDraft {
		return nil, ErrAuctionNotActive
	}
	if duration <= 0 {
		return nil, ErrInvalidAmount
	}
	now := s.clock.Now()
	a.Status = auction.StatusLive
	a.StartsAt = now
	a.EndsAt = now.Add(duration)
	a.OriginalEnd = a.EndsAt
	if err := s.auctionRepo.Update(ctx, a); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, a.ID, "auction_published", map[string]any{"ends_at": a.EndsAt}, adminID)
	return a, nil
}

// Extend pushes a live auction's deadline out by d.
func (s *AuctionService) Extend(ctx context.Context, id int64, d time.Duration, adminID int64) (*auction.Auction, error) {
	if d <= 0 {
		return nil, ErrInvalidAmount
	}
	a, err := s.auctionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}
	if a.Status != auction.StatusLive {
		return nil, ErrAuctionNotActive
	}
	a.EndsAt = a.EndsAt.Add(d)
	if err := s.auctionRepo.Update(ctx, a); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, a.ID, "auction_extended", map[string]any{
		"by":      d.String(),
		"ends_at": a.EndsAt,
	}, adminID)
	return a, nil
}

// BidsFor returns the complete bid ledger for an auction, newest first.
func (s *AuctionService) BidsFor(ctx context.Context, auctionID int64) ([]*bid.WithBidder, error) {
	if _, err := s.auctionRepo.GetByID(ctx, auctionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}
	return s.bidRepo.ListByAuction(ctx, auctionID)
}

// ListAll returns every auction including drafts, for the admin screen.
func (s *AuctionService) ListAll(ctx context.Context) ([]*auction.Auction, error) {
	s.lazySweep(ctx)
	return s.auctionRepo.ListDisplayOrder(ctx)
}

// Stats builds the admin dashboard headline numbers.
func (s *AuctionService) Stats(ctx context.Context) (*AdminStats, error) {
	s.lazySweep(ctx)

	stats := &AdminStats{GMV: decimal.Zero}
	var err error
	if stats.Auctions, err = s.auctionRepo.StatusCounts(ctx); err != nil {
		return nil, err
	}
	if stats.GMV, err = s.auctionRepo.EndedGMV(ctx); err != nil {
		return nil, err
	}
	if stats.TotalBids, err = s.bidRepo.CountAll(ctx); err != nil {
		return nil, err
	}
	if stats.Users, err = s.userRepo.Counts(ctx); err != nil {
		return nil, err
	}
	if stats.Muses, err = s.museRepo.Count(ctx); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *AuctionService) recordAudit(ctx context.Context, auctionID int64, action string, details map[string]any, adminID int64) {
	body := ""
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			body = string(raw)
		}
	}
	entry := &audit.Entry{
		EntityType: "auction",
		EntityID:   auctionID,
		Action:     action,
		Details:    body,
		AdminID:    &adminID,
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		zap.L().Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
