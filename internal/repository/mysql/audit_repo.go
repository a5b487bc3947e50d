package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/example/museauction/internal/datamodels/audit"
)

type auditRepo struct {
	db *gorm.DB
}

// NewAuditRepository creates the audit log sink.
func NewAuditRepository(db *gorm.DB) audit.Repository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Create(ctx context.Context, e *audit.Entry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *auditRepo) ListByEntity(ctx context.Context, entityType string, entityID int64) ([]*audit.WithAdmin, error) {
	var list []*audit.WithAdmin
	if err := r.db.WithContext(ctx).
		Table("audit_entries").
		Select("audit_entries.*, COALESCE(users.display_name, '') AS admin_name").
		Joins("LEFT JOIN users ON users.id = audit_entries.admin_id").
		Where("audit_entries.entity_type = ? AND audit_entries.entity_id = ?", entityType, entityID).
		Order("audit_entries.created_at DESC, audit_entries.id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
