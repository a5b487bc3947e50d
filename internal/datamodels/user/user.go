package user

import (
	"context"
	"time"
)

// Roles a user can hold.
const (
	RoleBuyer = "buyer"
	RoleAdmin = "admin"
)

// User is a login-capable account (buyers and administrators; sellers are
// muse profiles, not users).
type User struct {
	ID           int64      `gorm:"primaryKey" json:"id"`
	Email        string     `gorm:"uniqueIndex;size:128;not null" json:"email"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	DisplayName  string     `gorm:"size:64;not null" json:"display_name"`
	Role         string     `gorm:"size:16;index;not null;default:buyer" json:"role"`
	AgeVerified  bool       `gorm:"not null;default:false" json:"age_verified"`
	DOB          string     `gorm:"size:10" json:"-"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	LastLogin    *time.Time `json:"last_login"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ListFilter narrows admin user listings.
type ListFilter struct {
	Search string // matches display name or email
	Role   string
	Status string // "active" | "inactive" | ""
}

// Counts aggregate for the admin user screen.
type Counts struct {
	Total    int64 `json:"total"`
	Buyers   int64 `json:"buyers"`
	Admins   int64 `json:"admins"`
	Active   int64 `json:"active"`
	Inactive int64 `json:"inactive"`
}

// Repository user persistence.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	List(ctx context.Context, filter ListFilter) ([]*User, error)
	Counts(ctx context.Context) (*Counts, error)
	CountByRole(ctx context.Context, role string) (int64, error)
}
