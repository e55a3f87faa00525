// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/pairwise/internal/domain/experiment"
	"github.com/okian/pairwise/internal/domain/model"
	"github.com/okian/pairwise/internal/domain/stimulus"
	"github.com/okian/pairwise/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	VideoLister
	TrialLogger
	SequencePlanner
}

// VideoLister exposes the server-side stimulus listing.
type VideoLister interface {
	ListVideos(ctx context.Context) ([]stimulus.Item, error)
	VideoLayout() experiment.Layout
}

// TrialLogger persists one trial record.
type TrialLogger interface {
	LogTrial(ctx context.Context, rec *model.LogRecord) error
}

// SequencePlanner generates a trial sequence for a named variant. A nil seed
// draws a fresh one, reported back in the assignment.
type SequencePlanner interface {
	PlanSequence(ctx context.Context, variant string, seed *int64) (experiment.Assignment, error)
}

// Server wires HTTP routes for the experiment API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	videosHandler   *VideosHandler
	logHandler      *LogHandler
	sequenceHandler *SequenceHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		videosHandler:   NewVideosHandler(deps, log),
		logHandler:      NewLogHandler(deps, log),
		sequenceHandler: NewSequenceHandler(deps, log),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/api/videos", MetricsMiddleware(s.videosHandler.HandleListVideos, "videos"))
	mux.HandleFunc("/api/log", MetricsMiddleware(s.logHandler.HandleLog, "log"))
	mux.HandleFunc("/api/sequence", MetricsMiddleware(s.sequenceHandler.HandleSequence, "sequence"))
}

// errorResponse mirrors the body the experiment pages expect on failures.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
