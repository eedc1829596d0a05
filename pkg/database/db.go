package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/avnsound/duplexd/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// Use modernc.org/sqlite (pure Go, no CGO)
	"gorm.io/driver/sqlite"
	_ "modernc.org/sqlite"
)

// DB wraps the GORM database connection backing the run-history log.
type DB struct {
	db     *gorm.DB
	logger *logger.Logger
}

// Config holds database bootstrap parameters.
type Config struct {
	Path          string // Path to SQLite database file
	BusyTimeoutMS int    // SQLITE_BUSY retry window; 0 defaults to 5000
	RetentionDays int    // purge RunRecords older than this many days at startup; 0 disables the sweep
}

// NewDB opens the SQLite-backed run-history store, migrates the schema,
// and prunes records older than Config.RetentionDays if set.
func NewDB(cfg Config, log *logger.Logger) (*DB, error) {
	if cfg.Path == "" {
		cfg.Path = "duplexd.db"
	}
	busyTimeout := cfg.BusyTimeoutMS
	if busyTimeout <= 0 {
		busyTimeout = 5000
	}

	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	gormLog := gormlogger.New(
		&gormLogAdapter{log: log},
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	dialector := sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        cfg.Path,
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout),
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := gormDB.AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db := &DB{db: gormDB, logger: log}

	if cfg.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -cfg.RetentionDays)
		removed, err := NewRunRepository(gormDB).DeleteOlderThan(cutoff)
		if err != nil {
			return nil, fmt.Errorf("failed to apply retention sweep: %w", err)
		}
		if removed > 0 {
			log.Info("Pruned run records past retention window",
				logger.Int64("removed", removed),
				logger.Int("retention_days", cfg.RetentionDays))
		}
	}

	log.Info("Database initialized",
		logger.String("path", cfg.Path),
		logger.Int("busy_timeout_ms", busyTimeout))

	return db, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the underlying GORM database instance
func (d *DB) GetDB() *gorm.DB {
	return d.db
}

// gormLogAdapter adapts our logger to GORM's logger interface
type gormLogAdapter struct {
	log *logger.Logger
}

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Info(fmt.Sprintf(format, args...))
}
