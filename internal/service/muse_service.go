package service

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/museauction/internal/datamodels/audit"
	"github.com/example/museauction/internal/datamodels/auction"
	"github.com/example/museauction/internal/datamodels/muse"
)

// ProfileWithStats is a muse plus her sales aggregates.
type ProfileWithStats struct {
	*muse.Profile
	Stats *muse.Stats `json:"stats"`
}

// MuseService manages seller profiles. Muses have no accounts; every write
// here is an admin action.
type MuseService struct {
	museRepo    muse.Repository
	auctionRepo auction.Repository
	auditRepo   audit.Repository
}

func NewMuseService(museRepo muse.Repository, auctionRepo auction.Repository, auditRepo audit.Repository) *MuseService {
	return &MuseService{
		museRepo:    museRepo,
		auctionRepo: auctionRepo,
		auditRepo:   auditRepo,
	}
}

// List returns every muse with stats, for the admin screen.
func (s *MuseService) List(ctx context.Context) ([]*ProfileWithStats, error) {
	muses, err := s.museRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*ProfileWithStats, 0, len(muses))
	for _, m := range muses {
		stats, err := s.museRepo.Stats(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, &ProfileWithStats{Profile: m, Stats: stats})
	}
	return out, nil
}

// ListVerified returns the public roster.
func (s *MuseService) ListVerified(ctx context.Context) ([]*muse.Profile, error) {
	return s.museRepo.ListVerified(ctx)
}

// Get returns one muse with stats and her visible auctions.
func (s *MuseService) Get(ctx context.Context, id int64) (*ProfileWithStats, []*auction.Auction, error) {
	m, err := s.museRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	stats, err := s.museRepo.Stats(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	auctions, err := s.auctionRepo.ListByMuse(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return &ProfileWithStats{Profile: m, Stats: stats}, auctions, nil
}

// Create registers a new muse, unverified.
func (s *MuseService) Create(ctx context.Context, displayName, bio, avatarURL string, adminID int64) (*muse.Profile, error) {
	if displayName == "" {
		return nil, ErrInvalidAmount
	}
	m := &muse.Profile{
		DisplayName:  displayName,
		Bio:          bio,
		AvatarURL:    avatarURL,
		Verification: muse.VerificationPending,
	}
	if err := s.museRepo.Create(ctx, m); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, m.ID, "muse_created", map[string]any{"display_name": displayName}, adminID)
	return m, nil
}

// Update edits profile copy.
func (s *MuseService) Update(ctx context.Context, id int64, displayName, bio, avatarURL string, adminID int64) (*muse.Profile, error) {
	m, err := s.museRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if displayName != "" {
		m.DisplayName = displayName
	}
	m.Bio = bio
	if avatarURL != "" {
		m.AvatarURL = avatarURL
	}
	if err := s.museRepo.Update(ctx, m); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, m.ID, "muse_edited", map[string]any{"display_name": m.DisplayName}, adminID)
	return m, nil
}

// Verify marks a muse's identity as checked.
func (s *MuseService) Verify(ctx context.Context, id int64, adminID int64) (*muse.Profile, error) {
	m, err := s.museRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if m.Verification == muse.VerificationVerified {
		return m, nil
	}
	m.Verification = muse.VerificationVerified
	if err := s.museRepo.Update(ctx, m); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, m.ID, "muse_verified", nil, adminID)
	return m, nil
}

func (s *MuseService) recordAudit(ctx context.Context, museID int64, action string, details map[string]any, adminID int64) {
	body := ""
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			body = string(raw)
		}
	}
	entry := &audit.Entry{
		EntityType: "muse",
		EntityID:   museID,
		Action:     action,
		Details:    body,
		AdminID:    &adminID,
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		zap.L().Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
