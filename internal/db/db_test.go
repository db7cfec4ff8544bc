package db

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"usersvc/internal/model"
)

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("postgres", "", "")
	assert.ErrorContains(t, err, "unsupported db driver")
}

func TestMigrate_Reset(t *testing.T) {
	gormDB, err := Open(DriverSQLite, "", filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Migrate(gormDB, false))
	require.NoError(t, gormDB.Create(&model.User{Username: "alice", Name: "Alice", Email: "alice@x.com", PasswordHash: "h"}).Error)

	var count int64
	require.NoError(t, gormDB.Model(&model.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, Migrate(gormDB, true))
	require.NoError(t, gormDB.Model(&model.User{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

// captureWriter collects the lines GORM would have logged.
type captureWriter struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureWriter) Printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, fmt.Sprintf(format, args...))
}

func (c *captureWriter) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.lines, "\n")
}

func TestGormLogger_OmitsBoundValues(t *testing.T) {
	gormDB, err := NewSQLite(":memory:")
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, Migrate(gormDB, false))

	capture := &captureWriter{}
	session := gormDB.Session(&gorm.Session{Logger: newGormLogger(capture)})

	const hash = "$2a$10$secretbcrypthashvalue"
	const digest = "c0ffee0ddigestvalue"
	user := model.User{Username: "alice", Name: "Alice", Email: "alice@x.com", PasswordHash: hash, PasswordResetDigest: digest}
	require.NoError(t, session.Create(&user).Error)

	dup := model.User{Username: "alice", Name: "Alice", Email: "alice@x.com", PasswordHash: hash, PasswordResetDigest: digest}
	require.Error(t, session.Create(&dup).Error)

	logged := capture.String()
	assert.Contains(t, logged, "INSERT")
	assert.NotContains(t, logged, hash)
	assert.NotContains(t, logged, digest)
}

func TestGormLogger_IgnoresRecordNotFound(t *testing.T) {
	gormDB, err := NewSQLite(":memory:")
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, Migrate(gormDB, false))

	capture := &captureWriter{}
	session := gormDB.Session(&gorm.Session{Logger: newGormLogger(capture)})

	var user model.User
	err = session.Where("email = ?", "nobody@x.com").First(&user).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Empty(t, capture.String())
}
