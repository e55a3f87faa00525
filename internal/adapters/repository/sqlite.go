package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/okian/pairwise/internal/domain/model"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

var schema = []string{ //nolint:gochecknoglobals // applied in order on open
	`PRAGMA busy_timeout = 5000`,
	`CREATE TABLE IF NOT EXISTS trial_logs (
	id               TEXT PRIMARY KEY,
	created_at       TEXT NOT NULL,
	rt               REAL,
	trial_type       TEXT,
	trial_index      REAL,
	time_elapsed     REAL,
	internal_node_id REAL,
	subject          TEXT,
	response         TEXT,
	pic              TEXT,
	stimulus         TEXT,
	block            TEXT,
	study_id         TEXT,
	session_id       TEXT,
	video1           TEXT,
	video2           TEXT,
	chosen_video     TEXT,
	chosen_object    TEXT,
	chosen_position  TEXT,
	explanation      TEXT,
	left_video_name  TEXT,
	right_video_name TEXT,
	left_object      TEXT,
	right_object     TEXT,
	left_video       TEXT,
	right_video      TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_trial_logs_session ON trial_logs(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_trial_logs_subject ON trial_logs(subject)`,
}

var trialLogColumns = []string{ //nolint:gochecknoglobals // column order shared by insert and args
	"id", "created_at", "rt", "trial_type", "trial_index", "time_elapsed", "internal_node_id",
	"subject", "response", "pic", "stimulus", "block", "study_id", "session_id",
	"video1", "video2", "chosen_video", "chosen_object", "chosen_position", "explanation",
	"left_video_name", "right_video_name", "left_object", "right_object", "left_video", "right_video",
}

// SQLiteStore stores records in a SQLite database file.
type SQLiteStore struct {
	db     *sql.DB
	insert string
	mu     sync.RWMutex
	closed bool
	settings
}

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema. ":memory:" keeps the database in memory.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; one connection also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(trialLogColumns)), ", ")
	return &SQLiteStore{
		db:       db,
		insert:   fmt.Sprintf("INSERT INTO trial_logs (%s) VALUES (%s)", strings.Join(trialLogColumns, ", "), placeholders),
		settings: newSettings(opts),
	}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, rec *model.LogRecord) error {
	if rec == nil {
		return ErrNilRecord
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	s.stamp(rec)
	if _, err := s.db.ExecContext(ctx, s.insert, recordArgs(rec)...); err != nil {
		return fmt.Errorf("insert trial log: %w", err)
	}
	return nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trial_logs").Scan(&n); err != nil {
		return 0, fmt.Errorf("count trial logs: %w", err)
	}
	return n, nil
}

// BySession returns the records of one session in insertion order.
func (s *SQLiteStore) BySession(ctx context.Context, sessionID string) ([]model.LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, created_at, trial_type, trial_index, block, chosen_video, chosen_object, explanation FROM trial_logs WHERE session_id = ? ORDER BY rowid",
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query trial logs: %w", err)
	}
	defer rows.Close()

	var out []model.LogRecord
	for rows.Next() {
		var (
			rec                                                model.LogRecord
			created, trialType, block, chosen, object, explain sql.NullString
			index                                              sql.NullFloat64
		)
		if err := rows.Scan(&rec.ID, &created, &trialType, &index, &block, &chosen, &object, &explain); err != nil {
			return nil, fmt.Errorf("scan trial log: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, created.String); err == nil {
			rec.CreatedAt = ts
		}
		rec.SessionID = model.Text(sessionID)
		rec.TrialType = model.Text(trialType.String)
		rec.Block = model.Text(block.String)
		rec.ChosenVideo = model.Text(chosen.String)
		rec.ChosenObject = model.Text(object.String)
		rec.Explanation = model.Text(explain.String)
		if index.Valid {
			rec.TrialIndex = model.Num(index.Float64)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func recordArgs(rec *model.LogRecord) []any {
	return []any{
		rec.ID, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		nullNum(rec.RT), nullText(rec.TrialType), nullNum(rec.TrialIndex), nullNum(rec.TimeElapsed), nullNum(rec.InternalNodeID),
		nullText(rec.Subject), nullText(rec.Response), nullText(rec.Pic), nullText(rec.Stimulus), nullText(rec.Block),
		nullText(rec.StudyID), nullText(rec.SessionID),
		nullText(rec.Video1), nullText(rec.Video2), nullText(rec.ChosenVideo), nullText(rec.ChosenObject),
		nullText(rec.ChosenPosition), nullText(rec.Explanation),
		nullText(rec.LeftVideoName), nullText(rec.RightVideoName), nullText(rec.LeftObject), nullText(rec.RightObject),
		nullText(rec.LeftVideo), nullText(rec.RightVideo),
	}
}

func nullText(t model.Text) any {
	if t == "" {
		return nil
	}
	return string(t)
}

func nullNum(n *model.Number) any {
	if n == nil {
		return nil
	}
	return float64(*n)
}
