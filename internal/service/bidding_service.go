package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	radix "github.com/mediocregopher/radix/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/museauction/internal/clock"
	"github.com/example/museauction/internal/config"
	"github.com/example/museauction/internal/datamodels/auction"
	"github.com/example/museauction/internal/datamodels/bid"
	"github.com/example/museauction/internal/metrics"
)

const redisAuctionStatusKey = "auction:status:%d"

// StatusSnapshot is the cached shape served to bid-status pollers.
type StatusSnapshot struct {
	AuctionID  int64               `json:"auction_id"`
	Status     string              `json:"status"`
	CurrentBid decimal.NullDecimal `json:"current_bid"`
	BidCount   int64               `json:"bid_count"`
	EndsAt     time.Time           `json:"ends_at"`
}

// BidResult is what an accepted bid returns: the inserted bid plus the
// auction row as committed, including any deadline extension.
type BidResult struct {
	Bid      *bid.Bid
	Auction  *auction.Auction
	Extended bool
}

// BiddingService validates and places bids. All writes for one bid happen in
// a single transaction with the auction row locked, so concurrent bids
// serialize and the monotonic-price invariant holds under load.
type BiddingService struct {
	db       *gorm.DB
	cfg      config.AuctionConfig
	clock    clock.Clock
	payments *PaymentService
	redis    radix.Client
}

// NewBiddingService creates the engine. redis may be nil (status snapshots
// are then skipped); payments handles the self-heal settlement path.
func NewBiddingService(db *gorm.DB, cfg config.AuctionConfig, clk clock.Clock, payments *PaymentService, redis radix.Client) *BiddingService {
	if clk == nil {
		clk = clock.System{}
	}
	return &BiddingService{
		db:       db,
		cfg:      cfg,
		clock:    clk,
		payments: payments,
		redis:    redis,
	}
}

// lockForUpdate applies a row lock where the dialect supports it. SQLite
// serializes writers on its own.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "mysql" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// PlaceBid runs the full validation chain and, on success, records the bid,
// advances the auction price, reassigns the winning flag and applies the
// anti-snipe extension. Validation failures reject the bid in a fixed order:
// unknown auction, not live, past deadline, non-positive amount, below
// minimum. A bid that finds the deadline already passed flips the auction to
// ended before rejecting, so read traffic never sees a live-but-expired row.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, userID int64, amount decimal.Decimal, ip string) (*BidResult, error) {
	metrics.BidRequests.Inc()
	now := s.clock.Now()

	var (
		result BidResult
		healed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a auction.Auction
		if err := lockForUpdate(tx).First(&a, auctionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAuctionNotFound
			}
			return err
		}

		if a.Status != auction.StatusLive {
			return ErrAuctionNotActive
		}

		if !now.Before(a.EndsAt) {
			// Deadline passed but the sweeper has not caught up. Commit the
			// transition, then reject; settlement happens after commit.
			if err := tx.Model(&auction.Auction{}).
				Where("id = ?", a.ID).
				Update("status", auction.StatusEnded).Error; err != nil {
				return err
			}
			healed = true
			return nil
		}

		if amount.LessThanOrEqual(decimal.Zero) {
			return ErrInvalidAmount
		}

		min := a.LeadingPrice().Add(s.cfg.MinIncrement)
		if amount.LessThan(min) {
			return &BidTooLowError{Min: min}
		}

		b := bid.Bid{
			AuctionID: a.ID,
			UserID:    userID,
			Amount:    amount,
			PlacedAt:  now,
			IsWinning: true,
			IPAddress: ip,
		}
		if err := tx.Create(&b).Error; err != nil {
			return err
		}
		if err := tx.Model(&bid.Bid{}).
			Where("auction_id = ? AND id <> ?", a.ID, b.ID).
			Update("is_winning", false).Error; err != nil {
			return err
		}

		a.CurrentBid = decimal.NullDecimal{Decimal: amount, Valid: true}
		a.CurrentBidderID = &userID
		a.BidCount++
		if a.EndsAt.Sub(now) < s.cfg.SnipeWindow {
			a.EndsAt = a.EndsAt.Add(s.cfg.SnipeExtension)
			result.Extended = true
		}
		if err := tx.Save(&a).Error; err != nil {
			return err
		}

		result.Bid = &b
		result.Auction = &a
		return nil
	})
	if err != nil {
		s.recordRejection(err)
		return nil, err
	}

	if healed {
		metrics.AuctionsEnded.Inc()
		if s.payments != nil {
			if _, err := s.payments.IssueForAuction(ctx, auctionID); err != nil {
				zap.L().Error("settle expired auction failed",
					zap.Int64("auction_id", auctionID),
					zap.Error(err))
			}
		}
		s.recordRejection(ErrAuctionEnded)
		return nil, ErrAuctionEnded
	}

	metrics.BidsAccepted.Inc()
	if result.Extended {
		metrics.SnipeExtensions.Inc()
	}
	s.cacheStatus(result.Auction)

	zap.L().Info("bid accepted",
		zap.Int64("auction_id", auctionID),
		zap.Int64("user_id", userID),
		zap.String("amount", amount.StringFixed(2)),
		zap.Bool("extended", result.Extended))
	return &result, nil
}

func (s *BiddingService) recordRejection(err error) {
	var tooLow *BidTooLowError
	switch {
	case errors.Is(err, ErrAuctionNotFound):
		metrics.BidsRejected.WithLabelValues("not_found").Inc()
	case errors.Is(err, ErrAuctionNotActive):
		metrics.BidsRejected.WithLabelValues("not_active").Inc()
	case errors.Is(err, ErrAuctionEnded):
		metrics.BidsRejected.WithLabelValues("ended").Inc()
	case errors.Is(err, ErrInvalidAmount):
		metrics.BidsRejected.WithLabelValues("invalid_amount").Inc()
	case errors.As(err, &tooLow):
		metrics.BidsRejected.WithLabelValues("too_low").Inc()
	default:
		metrics.BidsRejected.WithLabelValues("internal").Inc()
	}
}

// Status serves the poll endpoint: Redis snapshot when fresh, database
// otherwise. A live auction found past its deadline is healed on the spot.
func (s *BiddingService) Status(ctx context.Context, auctionID int64) (*StatusSnapshot, error) {
	if s.redis != nil {
		var raw string
		key := fmt.Sprintf(redisAuctionStatusKey, auctionID)
		if err := s.redis.Do(radix.Cmd(&raw, "GET", key)); err == nil && raw != "" {
			var snap StatusSnapshot
			if err := json.Unmarshal([]byte(raw), &snap); err == nil {
				return &snap, nil
			}
		}
	}

	var a auction.Auction
	if err := s.db.WithContext(ctx).First(&a, auctionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}
	if a.Status == auction.StatusLive && !s.clock.Now().Before(a.EndsAt) {
		if err := s.db.WithContext(ctx).Model(&auction.Auction{}).
			Where("id = ? AND status = ?", a.ID, auction.StatusLive).
			Update("status", auction.StatusEnded).Error; err == nil {
			a.Status = auction.StatusEnded
			metrics.AuctionsEnded.Inc()
			if s.payments != nil {
				if _, err := s.payments.IssueForAuction(ctx, a.ID); err != nil {
					zap.L().Error("settle expired auction failed",
						zap.Int64("auction_id", a.ID),
						zap.Error(err))
				}
			}
		}
	}

	snap := &StatusSnapshot{
		AuctionID:  a.ID,
		Status:     a.Status,
		CurrentBid: a.CurrentBid,
		BidCount:   a.BidCount,
		EndsAt:     a.EndsAt,
	}
	s.cacheStatus(&a)
	return snap, nil
}

// cacheStatus refreshes the short-lived Redis snapshot polled by auction
// detail pages between bids.
func (s *BiddingService) cacheStatus(a *auction.Auction) {
	if s.redis == nil || a == nil {
		return
	}
	snap := StatusSnapshot{
		AuctionID:  a.ID,
		Status:     a.Status,
		CurrentBid: a.CurrentBid,
		BidCount:   a.BidCount,
		EndsAt:     a.EndsAt,
	}
	body, err := json.Marshal(&snap)
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisAuctionStatusKey, a.ID)
	if err := s.redis.Do(radix.FlatCmd(nil, "SETEX", key, 10, body)); err != nil {
		zap.L().Warn("cache auction status failed", zap.Int64("auction_id", a.ID), zap.Error(err))
	}
}
