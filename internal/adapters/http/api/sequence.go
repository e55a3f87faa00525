package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/pairwise/internal/domain/experiment"
	"github.com/okian/pairwise/internal/domain/sequence"
	"github.com/okian/pairwise/pkg/logger"
)

// SequenceHandler serves GET /api/sequence.
type SequenceHandler struct {
	planner SequencePlanner
	logger  logger.Logger
}

// NewSequenceHandler creates a new sequence handler.
func NewSequenceHandler(planner SequencePlanner, log logger.Logger) *SequenceHandler {
	return &SequenceHandler{planner: planner, logger: log.Named("sequence")}
}

type sequenceResponse struct {
	Variant       string           `json:"variant"`
	Seed          int64            `json:"seed"`
	CompletionURL string           `json:"completion_url,omitempty"`
	Practice      []sequence.Trial `json:"practice"`
	Main          []sequence.Trial `json:"main"`
}

// HandleSequence generates a trial sequence for ?variant=, optionally
// reproducible with ?seed=.
func (h *SequenceHandler) HandleSequence(w http.ResponseWriter, r *http.Request) {
	const op = "api.sequence"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	name := q.Get("variant")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing variant")
		return
	}
	var seed *int64
	if raw := q.Get("seed"); raw != "" {
		s, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid seed")
			return
		}
		seed = &s
	}

	a, err := h.planner.PlanSequence(r.Context(), name, seed)
	switch {
	case errors.Is(err, experiment.ErrUnknownVariant):
		writeError(w, http.StatusNotFound, NewKind(op, ErrUnknownVariant).Error())
		return
	case errors.Is(err, sequence.ErrInsufficientStimuli), errors.Is(err, sequence.ErrDuplicateStimulus):
		writeError(w, http.StatusUnprocessableEntity, WrapKind(op, ErrUnprocessable, err).Error())
		return
	case err != nil:
		h.logger.Error(r.Context(), "sequence planning failed", logger.String("variant", name), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "")
		return
	}

	writeJSON(w, http.StatusOK, sequenceResponse{
		Variant:       a.Variant.Name,
		Seed:          a.Seed,
		CompletionURL: a.Variant.CompletionURL,
		Practice:      a.Sequence.Practice,
		Main:          a.Sequence.Main,
	})
}
