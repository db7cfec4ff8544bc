package db

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"usersvc/internal/logger"
	"usersvc/internal/model"
)

const (
	// DriverMySQL selects the MySQL dialector.
	DriverMySQL = "mysql"
	// DriverSQLite selects the embedded SQLite dialector.
	DriverSQLite = "sqlite"
)

// gormWriter forwards GORM's log lines to the service logger.
type gormWriter struct{}

func (gormWriter) Printf(format string, args ...interface{}) {
	logger.Warningf(format, args...)
}

// newGormLogger reports failed and slow statements without bound values,
// so password hashes and token digests never reach the log.
func newGormLogger(w gormlogger.Writer) gormlogger.Interface {
	return gormlogger.New(w, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
		Colorful:                  false,
	})
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		// Unique index violations surface as gorm.ErrDuplicatedKey.
		TranslateError: true,
		Logger:         newGormLogger(gormWriter{}),
	}
}

// NewMySQL returns a connected GORM DB instance.
func NewMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	return db, nil
}

// NewSQLite opens a SQLite database at path. ":memory:" is accepted.
func NewSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}

// Open connects using the named driver.
func Open(driver, mysqlDSN, sqlitePath string) (*gorm.DB, error) {
	switch driver {
	case DriverMySQL, "":
		return NewMySQL(mysqlDSN)
	case DriverSQLite:
		return NewSQLite(sqlitePath)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

// Migrate creates or updates the users table.
func Migrate(db *gorm.DB, reset bool) error {
	if reset {
		if err := db.Migrator().DropTable(&model.User{}); err != nil {
			return fmt.Errorf("drop users table: %w", err)
		}
	}
	if err := db.AutoMigrate(&model.User{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
