package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usersvc/internal/auth"
	"usersvc/internal/db"
	apperrors "usersvc/internal/errors"
	"usersvc/internal/model"
	"usersvc/internal/repository"
)

func newRepo(t *testing.T) repository.UserRepository {
	t.Helper()
	gormDB, err := db.NewSQLite(":memory:")
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gormDB, false))
	return repository.NewUserRepository(gormDB)
}

func TestSeedUsers_CreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	admin := SeedUser{Username: "admin", Name: "Administrator", Email: "Admin@x.com", Password: "Secret123", Role: model.RoleAdmin}
	seeded, updated, err := seedUsers(ctx, repo, []SeedUser{admin})
	require.NoError(t, err)
	assert.Equal(t, 1, seeded)
	assert.Equal(t, 0, updated)

	stored, err := repo.FindByEmail(ctx, "admin@x.com")
	require.NoError(t, err)
	assert.True(t, stored.IsEmailVerified)
	assert.True(t, stored.IsAdmin())
	assert.True(t, auth.CheckPassword(stored.PasswordHash, "Secret123"))

	admin.Password = "Rotated456"
	admin.Name = "Root"
	seeded, updated, err = seedUsers(ctx, repo, []SeedUser{admin})
	require.NoError(t, err)
	assert.Equal(t, 0, seeded)
	assert.Equal(t, 1, updated)

	stored, err = repo.FindByEmail(ctx, "admin@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Root", stored.Name)
	assert.True(t, auth.CheckPassword(stored.PasswordHash, "Rotated456"))
}

func TestSeedUsers_RejectsInvalidEntries(t *testing.T) {
	repo := newRepo(t)

	_, _, err := seedUsers(context.Background(), repo, []SeedUser{
		{Username: "admin", Name: "Administrator", Email: "admin@x.com", Password: ""},
	})
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)

	_, err = repo.FindByEmail(context.Background(), "admin@x.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLoadSeedUsers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"username":"admin","name":"Admin","email":"admin@x.com","password":"Secret123","role":"admin"},
		{"username":"bob","name":"Bob","email":"bob@x.com","password":"Secret123"}
	]`), 0o600))

	users, err := loadSeedUsers(path)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, model.RoleAdmin, users[0].Role)
	assert.Empty(t, users[1].Role)

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
	_, err = loadSeedUsers(path)
	assert.Error(t, err)
}
