package audit

import (
	"context"
	"time"
)

// Entry is a write-only record of an administrative action. Details holds a
// JSON document describing the change.
type Entry struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	EntityType string    `gorm:"size:32;index:idx_audit_entity;not null" json:"entity_type"`
	EntityID   int64     `gorm:"index:idx_audit_entity;not null" json:"entity_id"`
	Action     string    `gorm:"size:32;not null" json:"action"`
	Details    string    `gorm:"size:2048" json:"details"`
	AdminID    *int64    `json:"admin_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName keeps the table grouped with the other audit artifacts.
func (Entry) TableName() string { return "audit_entries" }

// WithAdmin is an entry joined with the acting admin's display name.
type WithAdmin struct {
	Entry
	AdminName string `json:"admin_name"`
}

// Repository audit sink.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	ListByEntity(ctx context.Context, entityType string, entityID int64) ([]*WithAdmin, error)
}
