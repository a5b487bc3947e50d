package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/museauction/internal/datamodels/notification"
	"github.com/example/museauction/internal/infra/mq"
)

// AuctionEvent is the queue mirror of an inbox notification, consumed by the
// notify worker for out-of-band delivery (email, push).
type AuctionEvent struct {
	Type    string `json:"type"`
	UserID  int64  `json:"user_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Link    string `json:"link"`
}

// NotificationService writes inbox records and mirrors them onto the event
// queue. Queue publish failures are logged and swallowed: the inbox row is
// the source of truth.
type NotificationService struct {
	repo      notification.Repository
	publisher mq.Publisher
}

// NewNotificationService creates the service. publisher may be nil.
func NewNotificationService(repo notification.Repository, publisher mq.Publisher) *NotificationService {
	return &NotificationService{repo: repo, publisher: publisher}
}

// Notify records a notification and emits the matching queue event.
func (s *NotificationService) Notify(ctx context.Context, userID int64, typ, title, message, link string) error {
	n := &notification.Notification{
		UserID:  userID,
		Type:    typ,
		Title:   title,
		Message: message,
		Link:    link,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}
	if s.publisher != nil {
		event := &AuctionEvent{
			Type:    typ,
			UserID:  userID,
			Title:   title,
			Message: message,
			Link:    link,
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			zap.L().Warn("publish auction event failed",
				zap.String("type", typ),
				zap.Int64("user_id", userID),
				zap.Error(err))
		}
	}
	return nil
}

// ListForUser returns the user's latest notifications.
func (s *NotificationService) ListForUser(ctx context.Context, userID int64, limit int) ([]*notification.Notification, error) {
	return s.repo.ListByUser(ctx, userID, limit)
}

// UnreadCount returns how many notifications the user has not read.
func (s *NotificationService) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkAllRead clears the user's unread flag.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID int64) error {
	return s.repo.MarkAllRead(ctx, userID)
}
