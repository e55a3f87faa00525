package sessionsim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/pairwise/internal/adapters/apiclient"
	"github.com/okian/pairwise/internal/adapters/mq/queue"
	"github.com/okian/pairwise/internal/adapters/mq/worker"
	"github.com/okian/pairwise/internal/domain/experiment"
	"github.com/okian/pairwise/internal/domain/model"
	"github.com/okian/pairwise/internal/domain/playback"
	"github.com/okian/pairwise/internal/domain/random"
	"github.com/okian/pairwise/internal/domain/sequence"
	"github.com/okian/pairwise/internal/domain/session"
	"github.com/okian/pairwise/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
	percent             = 100
)

// ErrInvalidConfig is returned by Run and Plan for unusable settings.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Result is the outcome of one simulated session.
type Result struct {
	Subject      string            `json:"subject"`
	SessionID    string            `json:"session_id"`
	Seed         int64             `json:"seed"`
	Trials       int               `json:"trials"`
	Delivered    int               `json:"delivered"`
	Failed       int               `json:"failed"`
	Fallbacks    int               `json:"fallbacks"`
	BlankRetries int               `json:"blank_retries"`
	Redirect     string            `json:"redirect,omitempty"`
	Alert        string            `json:"alert,omitempty"`
	Error        string            `json:"error,omitempty"`
	Records      []model.LogRecord `json:"records,omitempty"`
}

// Simulator drives simulated sessions against one server.
type Simulator struct {
	cfg     *Config
	variant experiment.Variant
	client  *apiclient.Client
	log     logger.Logger
}

// New validates cfg and returns a Simulator. A nil log discards output.
func New(cfg *Config, log logger.Logger) (*Simulator, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Subjects < 1 {
		return nil, fmt.Errorf("%w: subjects must be positive, got %d", ErrInvalidConfig, cfg.Subjects)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	}
	v, err := experiment.Lookup(cfg.Variant)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Seed == 0 {
		cfg.Seed = random.NewSeed()
	}
	return &Simulator{
		cfg:     cfg,
		variant: v,
		client:  apiclient.New(cfg.BaseURL, apiclient.WithTimeout(cfg.Timeout)),
		log:     log.Named("sessionsim"),
	}, nil
}

// Plan returns the sequence subject i would see.
func (s *Simulator) Plan(ctx context.Context, i int) (sequence.Sequence, error) {
	return s.plan(ctx, s.cfg.Seed+int64(i), random.New(s.cfg.Seed+int64(i)))
}

func (s *Simulator) plan(ctx context.Context, seed int64, r random.Rand) (sequence.Sequence, error) {
	if s.cfg.ServerPlan {
		seq, err := s.client.Sequence(ctx, s.cfg.Variant, &seed)
		if err != nil {
			return sequence.Sequence{}, fmt.Errorf("fetch sequence: %w", err)
		}
		return seq, nil
	}
	return experiment.Plan(ctx, s.variant, s.variant.ListingSource(s.client), r, s.log)
}

// Run executes every configured session and returns the aggregated stats.
// Sessions that fail are counted as aborted; Run itself only fails when the
// run could not start or ctx ended.
func (s *Simulator) Run(ctx context.Context) (*Stats, []Result, error) {
	stats := &Stats{StartTime: time.Now(), Sessions: s.cfg.Subjects}

	s.log.Info(ctx, "starting session simulation",
		logger.String("baseURL", s.cfg.BaseURL),
		logger.String("variant", s.cfg.Variant),
		logger.Int("subjects", s.cfg.Subjects),
		logger.Int("concurrency", s.cfg.Concurrency),
		logger.Int64("seed", s.cfg.Seed),
		logger.Bool("serverPlan", s.cfg.ServerPlan),
	)

	q := queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.QueueSize))
	pool := worker.NewPool(s.cfg.Workers, q, s.client,
		worker.WithLogger(s.log),
		worker.WithSendTimeout(s.cfg.Timeout),
	)
	pool.Start(ctx)
	defer func() {
		if err := pool.Shutdown(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn(ctx, "dispatcher shutdown", logger.Error(err))
		}
	}()

	results := make([]Result, s.cfg.Subjects)
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i := range results {
		g.Go(func() error {
			results[i] = s.session(ctx, i, pool)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		stats.add(r, s.variant.ComparisonTrialType)
	}
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	s.logStats(ctx, stats)

	if s.cfg.OutputFile != "" {
		if err := writeResults(s.cfg.OutputFile, results); err != nil {
			s.log.Warn(ctx, "failed to save session results", logger.Error(err))
		} else {
			s.log.Info(ctx, "session results saved", logger.String("file", s.cfg.OutputFile))
		}
	}
	if err := ctx.Err(); err != nil {
		return stats, results, err
	}
	return stats, results, nil
}

func (s *Simulator) session(ctx context.Context, i int, d session.Dispatcher) Result {
	seed := s.cfg.Seed + int64(i)
	rng := random.New(seed)
	id := session.Identity{
		SubjectID: "sim-" + uuid.NewString(),
		StudyID:   s.cfg.StudyID,
		SessionID: uuid.NewString(),
	}
	res := Result{Subject: id.SubjectID, SessionID: id.SessionID, Seed: seed}

	seq, err := s.plan(ctx, seed, rng)
	if err != nil {
		res.Error = err.Error()
		s.log.Warn(ctx, "session not planned", logger.Int("subject", i), logger.Error(err))
		return res
	}
	res.Trials = seq.Len()

	subject := NewSubject(rng, s.cfg.Subject)
	runner := session.NewRunner(s.variant, subject, d,
		session.WithRand(rng),
		session.WithGateOptions(playback.WithFallback(s.cfg.Subject.FallbackDelay, 0)),
		session.WithLogger(s.log),
	)
	out, err := runner.Run(ctx, seq, id)
	res.Fallbacks = subject.Fallbacks()
	res.BlankRetries = subject.BlankRetries()
	if err != nil {
		res.Error = err.Error()
		s.log.Warn(ctx, "session aborted", logger.Int("subject", i), logger.Error(err))
		return res
	}
	res.Records = out.Records
	res.Delivered = out.Report.Delivered
	res.Failed = out.Report.Failed
	res.Redirect = out.Redirect
	res.Alert = out.Alert
	return res
}

func (st *Stats) add(r Result, comparisonType string) {
	st.RecordsDelivered += r.Delivered
	st.RecordsFailed += r.Failed
	st.FallbackTriggers += r.Fallbacks
	st.BlankRetries += r.BlankRetries
	for _, rec := range r.Records {
		if string(rec.TrialType) == comparisonType {
			st.Comparisons++
		}
	}
	switch {
	case r.Error != "":
		st.Aborted++
	case r.Alert != "":
		st.Alerts++
	default:
		st.Completed++
	}
}

func (s *Simulator) logStats(ctx context.Context, st *Stats) {
	var saveRate, sessionsPerSecond float64
	if total := st.RecordsDelivered + st.RecordsFailed; total > 0 {
		saveRate = float64(st.RecordsDelivered) / float64(total) * percent
	}
	if st.Duration > 0 {
		sessionsPerSecond = float64(st.Sessions) / st.Duration.Seconds()
	}
	s.log.Info(ctx, "final statistics",
		logger.Int("sessions", st.Sessions),
		logger.Int("completed", st.Completed),
		logger.Int("alerts", st.Alerts),
		logger.Int("aborted", st.Aborted),
		logger.Int("comparisons", st.Comparisons),
		logger.Int("recordsDelivered", st.RecordsDelivered),
		logger.Int("recordsFailed", st.RecordsFailed),
		logger.Int("fallbackTriggers", st.FallbackTriggers),
		logger.Int("blankRetries", st.BlankRetries),
		logger.Duration("duration", st.Duration),
		logger.Float64("saveRate", saveRate),
		logger.Float64("sessionsPerSecond", sessionsPerSecond),
	)
}

func writeResults(path string, results []Result) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), filePermission); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
