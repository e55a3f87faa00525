// Package repository persists trial log records.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/pairwise/internal/domain/model"
	"github.com/okian/pairwise/pkg/metrics"
)

// Store is the durable sink for trial log records.
type Store interface {
	// Save persists rec. It assigns rec.ID and rec.CreatedAt when unset.
	Save(ctx context.Context, rec *model.LogRecord) error
	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)
	// Close releases the underlying connection.
	Close() error
}

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Open returns the store for driver, connected to dsn and wrapped with metrics.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverMemory, "":
		s = NewMemoryStore(opts...)
	case DriverSQLite:
		s, err = NewSQLiteStore(ctx, dsn, opts...)
	case DriverMySQL:
		s, err = NewGormStore(dsn, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(s), nil
}

type settings struct {
	newID func() string
	now   func() time.Time
}

func newSettings(opts []Option) settings {
	s := settings{newID: uuid.NewString, now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s settings) stamp(rec *model.LogRecord) {
	if rec.ID == "" {
		rec.ID = s.newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
}

type instrumented struct {
	Store
}

// Instrument wraps s so every Save records latency and outcome metrics.
func Instrument(s Store) Store {
	if _, ok := s.(instrumented); ok {
		return s
	}
	return instrumented{Store: s}
}

func (i instrumented) Save(ctx context.Context, rec *model.LogRecord) error {
	start := time.Now()
	err := i.Store.Save(ctx, rec)
	metrics.RecordStoreLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordLogFailed("store")
		return err
	}
	trialType := ""
	if rec != nil {
		trialType = string(rec.TrialType)
	}
	metrics.RecordLogPersisted(trialType)
	return nil
}
