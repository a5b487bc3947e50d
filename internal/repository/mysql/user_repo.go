package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/example/museauction/internal/datamodels/user"
)

type userRepo struct {
	db *gorm.DB
}

// NewUserRepository creates the user store.
func NewUserRepository(db *gorm.DB) user.Repository {
	return &userRepo{db: db}
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var u user.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var u user.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, u *user.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *userRepo) Update(ctx context.Context, u *user.User) error {
	return r.db.WithContext(ctx).Save(u).Error
}

func (r *userRepo) List(ctx context.Context, filter user.ListFilter) ([]*user.User, error) {
	q := r.db.WithContext(ctx).Model(&user.User{})
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where("display_name LIKE ? OR email LIKE ?", pattern, pattern)
	}
	if filter.Role != "" {
		q = q.Where("role = ?", filter.Role)
	}
	switch filter.Status {
	case "active":
		q = q.Where("is_active = ?", true)
	case "inactive":
		q = q.Where("is_active = ?", false)
	}
	var list []*user.User
	if err := q.Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *userRepo) Counts(ctx context.Context) (*user.Counts, error) {
	var c user.Counts
	base := func() *gorm.DB { return r.db.WithContext(ctx).Model(&user.User{}) }
	if err := base().Count(&c.Total).Error; err != nil {
		return nil, err
	}
	if err := base().Where("role = ?", user.RoleBuyer).Count(&c.Buyers).Error; err != nil {
		return nil, err
	}
	if err := base().Where("role = ?", user.RoleAdmin).Count(&c.Admins).Error; err != nil {
		return nil, err
	}
	if err := base().Where("is_active = ?", true).Count(&c.Active).Error; err != nil {
		return nil, err
	}
	c.Inactive = c.Total - c.Active
	return &c, nil
}

func (r *userRepo) CountByRole(ctx context.Context, role string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&user.User{}).Where("role = ?", role).Count(&n).Error
	return n, err
}
