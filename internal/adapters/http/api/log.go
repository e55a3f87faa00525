package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/pairwise/internal/domain/model"
	"github.com/okian/pairwise/pkg/logger"
)

const maxLogBody = 1 << 20

// LogHandler serves POST /api/log.
type LogHandler struct {
	sink   TrialLogger
	logger logger.Logger
}

// NewLogHandler creates a new log handler.
func NewLogHandler(sink TrialLogger, log logger.Logger) *LogHandler {
	return &LogHandler{sink: sink, logger: log.Named("log")}
}

// HandleLog persists one trial record.
func (h *LogHandler) HandleLog(w http.ResponseWriter, r *http.Request) {
	const op = "api.log"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var rec model.LogRecord
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLogBody)).Decode(&rec); err != nil {
		h.logger.Warn(r.Context(), "rejected log record", logger.Error(WrapKind(op, ErrBadRequest, err)))
		writeText(w, http.StatusBadRequest, "Error logging action: "+err.Error())
		return
	}
	if err := h.sink.LogTrial(r.Context(), &rec); err != nil {
		h.logger.Error(r.Context(), "error logging action",
			logger.String("trial_type", string(rec.TrialType)),
			logger.Error(WrapKind(op, ErrPersist, err)),
		)
		writeText(w, http.StatusInternalServerError, "Error logging action: "+err.Error())
		return
	}
	writeText(w, http.StatusOK, "Action logged successfully")
}
