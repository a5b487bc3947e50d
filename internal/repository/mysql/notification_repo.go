package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/example/museauction/internal/datamodels/notification"
)

type notificationRepo struct {
	db *gorm.DB
}

// NewNotificationRepository creates the notification store.
func NewNotificationRepository(db *gorm.DB) notification.Repository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) Create(ctx context.Context, n *notification.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepo) ListByUser(ctx context.Context, userID int64, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	var list []*notification.Notification
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *notificationRepo) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&notification.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	return n, err
}

func (r *notificationRepo) MarkAllRead(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).
		Model(&notification.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
}

func (r *notificationRepo) DeleteByLinkFragment(ctx context.Context, fragment string) error {
	return r.db.WithContext(ctx).
		Where("link LIKE ?", "%"+fragment+"%").
		Delete(&notification.Notification{}).Error
}
