package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/example/museauction/internal/auth"
	"github.com/example/museauction/internal/clock"
	"github.com/example/museauction/internal/config"
	"github.com/example/museauction/internal/datamodels/audit"
	"github.com/example/museauction/internal/datamodels/user"
)

// UserService handles registration, login and admin account management.
type UserService struct {
	userRepo  user.Repository
	auditRepo audit.Repository
	jwtCfg    *config.JWTConfig
	clock     clock.Clock
}

func NewUserService(userRepo user.Repository, auditRepo audit.Repository, jwtCfg *config.JWTConfig, clk clock.Clock) *UserService {
	if clk == nil {
		clk = clock.System{}
	}
	return &UserService{userRepo: userRepo, auditRepo: auditRepo, jwtCfg: jwtCfg, clock: clk}
}

// Register creates a buyer account. DOB is "2006-01-02"; registrants must be
// at least 18 or the account is refused outright.
func (s *UserService) Register(ctx context.Context, email, password, displayName, dob string) (*user.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") || len(password) < 8 || displayName == "" {
		return nil, "", ErrBadCredentials
	}

	born, err := time.Parse("2006-01-02", dob)
	if err != nil {
		return nil, "", ErrBadCredentials
	}
	if s.clock.Now().Before(born.AddDate(18, 0, 0)) {
		return nil, "", ErrForbidden
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}
	u := &user.User{
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		Role:         user.RoleBuyer,
		AgeVerified:  true,
		DOB:          dob,
		IsActive:     true,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", err
	}

	token, err := auth.GenerateToken(s.jwtCfg, u.ID, u.DisplayName, u.Role)
	if err != nil {
		return nil, "", err
	}
	zap.L().Info("user registered", zap.Int64("user_id", u.ID))
	return u, token, nil
}

// Login authenticates and returns a fresh session token.
func (s *UserService) Login(ctx context.Context, email, password string) (*user.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrBadCredentials
		}
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrBadCredentials
	}
	if !u.IsActive {
		return nil, "", ErrAccountDisabled
	}

	now := s.clock.Now()
	u.LastLogin = &now
	if err := s.userRepo.Update(ctx, u); err != nil {
		zap.L().Warn("update last login failed", zap.Int64("user_id", u.ID), zap.Error(err))
	}

	token, err := auth.GenerateToken(s.jwtCfg, u.ID, u.DisplayName, u.Role)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id int64) (*user.User, error) {
	u, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// List filters users for the admin screen.
func (s *UserService) List(ctx context.Context, filter user.ListFilter) ([]*user.User, error) {
	return s.userRepo.List(ctx, filter)
}

// Counts returns the admin user screen aggregates.
func (s *UserService) Counts(ctx context.Context) (*user.Counts, error) {
	return s.userRepo.Counts(ctx)
}

// AdminCreate provisions an account from the back office. Admin-created
// accounts skip the age gate; the operator vouches for the registrant.
func (s *UserService) AdminCreate(ctx context.Context, email, password, displayName, role string, adminID int64) (*user.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") || len(password) < 8 || displayName == "" {
		return nil, ErrBadCredentials
	}
	if role != user.RoleBuyer && role != user.RoleAdmin {
		return nil, ErrInvalidAmount
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &user.User{
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		Role:         role,
		AgeVerified:  true,
		IsActive:     true,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	s.recordAudit(ctx, u.ID, "user_created", map[string]any{
		"email": email,
		"role":  role,
	}, adminID)
	return u, nil
}

// AdminEdit changes an account's display name, email and role. Demoting the
// last admin is refused, like SetRole.
func (s *UserService) AdminEdit(ctx context.Context, id int64, displayName, email, role string, adminID int64) (*user.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") || displayName == "" {
		return nil, ErrBadCredentials
	}
	if role == "" {
		role = u.Role
	}
	if role != user.RoleBuyer && role != user.RoleAdmin {
		return nil, ErrInvalidAmount
	}
	if u.Role == user.RoleAdmin && role != user.RoleAdmin {
		admins, err := s.userRepo.CountByRole(ctx, user.RoleAdmin)
		if err != nil {
			return nil, err
		}
		if admins <= 1 {
			return nil, ErrForbidden
		}
	}

	changes := map[string]any{}
	if displayName != u.DisplayName {
		changes["display_name"] = map[string]string{"from": u.DisplayName, "to": displayName}
		u.DisplayName = displayName
	}
	if email != u.Email {
		changes["email"] = map[string]string{"from": u.Email, "to": email}
		u.Email = email
	}
	if role != u.Role {
		changes["role"] = map[string]string{"from": u.Role, "to": role}
		u.Role = role
	}
	if len(changes) == 0 {
		return u, nil
	}
	if err := s.userRepo.Update(ctx, u); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	s.recordAudit(ctx, u.ID, "user_edited", changes, adminID)
	return u, nil
}

// ResetPassword sets a new password on an account from the back office.
func (s *UserService) ResetPassword(ctx context.Context, id int64, newPassword string, adminID int64) error {
	if len(newPassword) < 8 {
		return ErrBadCredentials
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	if err := s.userRepo.Update(ctx, u); err != nil {
		return err
	}
	s.recordAudit(ctx, id, "password_reset", map[string]any{"reset_by_admin": true}, adminID)
	return nil
}

// SetActive enables or disables an account. The last admin cannot disable
// themselves out of the system.
func (s *UserService) SetActive(ctx context.Context, id int64, active bool, adminID int64) (*user.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !active && u.Role == user.RoleAdmin {
		admins, err := s.userRepo.CountByRole(ctx, user.RoleAdmin)
		if err != nil {
			return nil, err
		}
		if admins <= 1 {
			return nil, ErrForbidden
		}
	}
	u.IsActive = active
	if err := s.userRepo.Update(ctx, u); err != nil {
		return nil, err
	}
	zap.L().Info("user active flag changed",
		zap.Int64("user_id", id),
		zap.Bool("active", active),
		zap.Int64("admin_id", adminID))
	return u, nil
}

// SetRole promotes or demotes an account. Demoting the last admin is
// refused.
func (s *UserService) SetRole(ctx context.Context, id int64, role string, adminID int64) (*user.User, error) {
	if role != user.RoleBuyer && role != user.RoleAdmin {
		return nil, ErrInvalidAmount
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role == user.RoleAdmin && role != user.RoleAdmin {
		admins, err := s.userRepo.CountByRole(ctx, user.RoleAdmin)
		if err != nil {
			return nil, err
		}
		if admins <= 1 {
			return nil, ErrForbidden
		}
	}
	u.Role = role
	if err := s.userRepo.Update(ctx, u); err != nil {
		return nil, err
	}
	zap.L().Info("user role changed",
		zap.Int64("user_id", id),
		zap.String("role", role),
		zap.Int64("admin_id", adminID))
	return u, nil
}

func (s *UserService) recordAudit(ctx context.Context, userID int64, action string, details map[string]any, adminID int64) {
	if s.auditRepo == nil {
		return
	}
	body := ""
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			body = string(raw)
		}
	}
	entry := &audit.Entry{
		EntityType: "user",
		EntityID:   userID,
		Action:     action,
		Details:    body,
		AdminID:    &adminID,
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		zap.L().Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
