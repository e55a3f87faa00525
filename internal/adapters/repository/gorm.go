package repository

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/okian/pairwise/internal/domain/model"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormStore stores records through GORM, normally on MySQL.
type GormStore struct {
	db     *gorm.DB
	closed atomic.Bool
	settings
}

// NewGormStore connects to the MySQL dsn and migrates the trial_logs table.
func NewGormStore(dsn string, opts ...Option) (*GormStore, error) {
	if dsn == "" {
		return nil, errors.New("mysql dsn is required")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return NewGormStoreFromDB(db, opts...)
}

// NewGormStoreFromDB migrates the schema on an existing connection.
func NewGormStoreFromDB(db *gorm.DB, opts ...Option) (*GormStore, error) {
	if err := db.AutoMigrate(&model.LogRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &GormStore{db: db, settings: newSettings(opts)}, nil
}

// Save implements Store.
func (g *GormStore) Save(ctx context.Context, rec *model.LogRecord) error {
	if rec == nil {
		return ErrNilRecord
	}
	if g.closed.Load() {
		return ErrClosed
	}
	g.stamp(rec)
	if err := g.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert trial log: %w", err)
	}
	return nil
}

// Count implements Store.
func (g *GormStore) Count(ctx context.Context) (int64, error) {
	if g.closed.Load() {
		return 0, ErrClosed
	}
	var n int64
	if err := g.db.WithContext(ctx).Model(&model.LogRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count trial logs: %w", err)
	}
	return n, nil
}

// Close implements Store.
func (g *GormStore) Close() error {
	if g.closed.Swap(true) {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
