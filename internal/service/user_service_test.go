package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/museauction/internal/auth"
	"github.com/example/museauction/internal/datamodels/user"
)

func TestRegisterAndLogin(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	u, token, err := s.users.Register(ctx, "Buyer@Example.com", "hunter2hunter2", "Buyer", "1990-01-15")
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", u.Email)
	assert.Equal(t, user.RoleBuyer, u.Role)
	assert.True(t, u.AgeVerified)
	assert.NotEmpty(t, token)

	claims, err := auth.ParseToken(&s.cfg.JWT, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, "Buyer", claims.DisplayName)

	// Same email again.
	_, _, err = s.users.Register(ctx, "buyer@example.com", "hunter2hunter2", "Other", "1990-01-15")
	assert.ErrorIs(t, err, ErrEmailTaken)

	logged, token, err := s.users.Login(ctx, "buyer@example.com", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, u.ID, logged.ID)
	assert.NotEmpty(t, token)
	assert.NotNil(t, logged.LastLogin)

	_, _, err = s.users.Login(ctx, "buyer@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, _, err = s.users.Login(ctx, "nobody@example.com", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestRegisterRejectsMinors(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	dob := s.clock.Now().AddDate(-17, 0, 0).Format("2006-01-02")
	_, _, err := s.users.Register(ctx, "kid@example.com", "hunter2hunter2", "Kid", dob)
	assert.ErrorIs(t, err, ErrForbidden)

	dob = s.clock.Now().AddDate(-18, 0, -1).Format("2006-01-02")
	_, _, err = s.users.Register(ctx, "adult@example.com", "hunter2hunter2", "Adult", dob)
	assert.NoError(t, err)
}

func TestLoginDisabledAccount(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	u, _, err := s.users.Register(ctx, "buyer@example.com", "hunter2hunter2", "Buyer", "1990-01-15")
	require.NoError(t, err)
	require.NoError(t, s.db.Model(u).Update("is_active", false).Error)

	_, _, err = s.users.Login(ctx, "buyer@example.com", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestAdminUserManagement(t *testing.T) {
	s := newStack(t)
	admin := s.seedUser(t, "admin@example.com", "Admin")
	require.NoError(t, s.db.Model(admin).Update("role", user.RoleAdmin).Error)
	ctx := context.Background()

	u, err := s.users.AdminCreate(ctx, "Staff@Example.com", "hunter2hunter2", "Staff", user.RoleBuyer, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "staff@example.com", u.Email)
	assert.True(t, u.AgeVerified)

	_, err = s.users.AdminCreate(ctx, "staff@example.com", "hunter2hunter2", "Dup", user.RoleBuyer, admin.ID)
	assert.ErrorIs(t, err, ErrEmailTaken)
	_, err = s.users.AdminCreate(ctx, "x@example.com", "short", "X", user.RoleBuyer, admin.ID)
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = s.users.AdminCreate(ctx, "x@example.com", "hunter2hunter2", "X", "superuser", admin.ID)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	edited, err := s.users.AdminEdit(ctx, u.ID, "Staff Two", "staff2@example.com", user.RoleAdmin, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "Staff Two", edited.DisplayName)
	assert.Equal(t, "staff2@example.com", edited.Email)
	assert.Equal(t, user.RoleAdmin, edited.Role)

	require.NoError(t, s.users.ResetPassword(ctx, u.ID, "newpassword1", admin.ID))
	_, _, err = s.users.Login(ctx, "staff2@example.com", "newpassword1")
	assert.NoError(t, err)
	_, _, err = s.users.Login(ctx, "staff2@example.com", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrBadCredentials)
	assert.ErrorIs(t, s.users.ResetPassword(ctx, u.ID, "short", admin.ID), ErrBadCredentials)
}

func TestLastAdminProtection(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	admin := s.seedUser(t, "admin@example.com", "Admin")
	require.NoError(t, s.db.Model(admin).Update("role", user.RoleAdmin).Error)
	buyer := s.seedUser(t, "buyer@example.com", "Buyer")

	// Cannot demote or disable the only admin.
	_, err := s.users.SetRole(ctx, admin.ID, user.RoleBuyer, admin.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.users.SetActive(ctx, admin.ID, false, admin.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	// With a second admin, demotion works.
	_, err = s.users.SetRole(ctx, buyer.ID, user.RoleAdmin, admin.ID)
	require.NoError(t, err)
	demoted, err := s.users.SetRole(ctx, admin.ID, user.RoleBuyer, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleBuyer, demoted.Role)
}
