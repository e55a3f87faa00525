package repository

import (
	"context"
	"sync"

	"github.com/okian/pairwise/internal/domain/model"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []model.LogRecord
	closed  bool
	failErr error
	settings
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{settings: newSettings(opts)}
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, rec *model.LogRecord) error {
	if rec == nil {
		return ErrNilRecord
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.failErr != nil {
		return m.failErr
	}
	m.stamp(rec)
	m.records = append(m.records, *rec)
	return nil
}

// Count implements Store.
func (m *MemoryStore) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

// Records returns a copy of the stored records in insertion order.
func (m *MemoryStore) Records() []model.LogRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.LogRecord, len(m.records))
	copy(out, m.records)
	return out
}

// FailWith makes every following Save return err. A nil err restores normal operation.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
