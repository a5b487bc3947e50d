package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/museauction/internal/clock"
	"github.com/example/museauction/internal/config"
	"github.com/example/museauction/internal/datamodels/auction"
	"github.com/example/museauction/internal/metrics"
)

// LifecycleService ends auctions whose deadline has passed and hands winners
// to the payment issuer. It runs both as a periodic background sweeper and
// lazily from read paths, so a stalled sweeper only delays, never loses,
// settlements.
type LifecycleService struct {
	auctionRepo auction.Repository
	payments    *PaymentService
	cfg         config.AuctionConfig
	clock       clock.Clock
}

func NewLifecycleService(auctionRepo auction.Repository, payments *PaymentService, cfg config.AuctionConfig, clk clock.Clock) *LifecycleService {
	if clk == nil {
		clk = clock.System{}
	}
	return &LifecycleService{
		auctionRepo: auctionRepo,
		payments:    payments,
		cfg:         cfg,
		clock:       clk,
	}
}

// SweepExpired transitions every overdue live auction to ended and issues
// payments for the ones that closed with a winner. Safe to run concurrently
// and repeatedly: ending is a status filter and issuance is idempotent.
func (s *LifecycleService) SweepExpired(ctx context.Context) (int, error) {
	metrics.SweepRuns.Inc()
	now := s.clock.Now()

	ids, err := s.auctionRepo.ListExpiredLiveIDs(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		if err := s.auctionRepo.EndExpired(ctx, now); err != nil {
			return 0, err
		}
		for range ids {
			metrics.AuctionsEnded.Inc()
		}
	}

	if s.payments != nil {
		// Issuance is settled from the unsettled-ended set, not the list
		// just flipped, so an auction whose issuance failed on an earlier
		// sweep (or on a self-heal path) is picked up again here.
		unsettled, err := s.auctionRepo.ListUnsettledEndedIDs(ctx)
		if err != nil {
			return len(ids), err
		}
		for _, id := range unsettled {
			if _, err := s.payments.IssueForAuction(ctx, id); err != nil {
				zap.L().Error("issue payment on sweep failed",
					zap.Int64("auction_id", id),
					zap.Error(err))
			}
		}
	}

	if len(ids) > 0 {
		zap.L().Info("lifecycle sweep", zap.Int("ended", len(ids)))
	}
	return len(ids), nil
}

// Run executes sweeps on the configured interval until ctx is cancelled.
func (s *LifecycleService) Run(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	zap.L().Info("lifecycle sweeper started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("lifecycle sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil {
				zap.L().Error("lifecycle sweep failed", zap.Error(err))
			}
		}
	}
}

// EndNow force-ends a live auction ahead of its deadline (admin action) and
// settles it like a natural expiry.
func (s *LifecycleService) EndNow(ctx context.Context, auctionID int64) (*auction.Auction, error) {
	a, err := s.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}
	if a.Status != auction.StatusLive {
		return nil, ErrAuctionNotActive
	}
	a.Status = auction.StatusEnded
	a.EndsAt = s.clock.Now()
	if err := s.auctionRepo.Update(ctx, a); err != nil {
		return nil, err
	}
	metrics.AuctionsEnded.Inc()
	if s.payments != nil {
		if _, err := s.payments.IssueForAuction(ctx, auctionID); err != nil {
			zap.L().Error("issue payment on force end failed",
				zap.Int64("auction_id", auctionID),
				zap.Error(err))
		}
	}
	return a, nil
}
