package db

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"tunetube/config"
	"tunetube/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open establishes the embedded database connection and migrates the schema.
// The returned handle is constructed once at process start and passed to the
// components that need it; there is no package-level instance.
func Open(cfg *config.Config) (*gorm.DB, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	gdb, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// between the engine, the session synchronizer and background scans.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := migrate(gdb); err != nil {
		return nil, err
	}

	return gdb, nil
}

var memorySeq atomic.Int64

// OpenMemory opens a throwaway in-memory database for tests. Every call
// gets its own database.
func OpenMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", memorySeq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// Keep one connection open so the in-memory database survives.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	if err := migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

func migrate(gdb *gorm.DB) error {
	err := gdb.AutoMigrate(
		&model.Track{},
		&model.Format{},
		&model.QueuedTrack{},
		&model.PlaybackEvent{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}
	return nil
}

// Reset drops all rows. Test isolation only.
func Reset(gdb *gorm.DB) error {
	for _, m := range []interface{}{
		&model.PlaybackEvent{},
		&model.QueuedTrack{},
		&model.Format{},
		&model.Track{},
	} {
		if err := gdb.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
			return fmt.Errorf("failed to reset table: %w", err)
		}
	}
	return nil
}

// Close closes the underlying connection.
func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
