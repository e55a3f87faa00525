package api

import (
	"net/http"

	"github.com/okian/pairwise/internal/domain/experiment"
	"github.com/okian/pairwise/internal/domain/model"
	"github.com/okian/pairwise/internal/domain/stimulus"
	"github.com/okian/pairwise/pkg/logger"
)

// VideosHandler serves GET /api/videos.
type VideosHandler struct {
	lister VideoLister
	logger logger.Logger
}

// NewVideosHandler creates a new videos handler.
func NewVideosHandler(lister VideoLister, log logger.Logger) *VideosHandler {
	return &VideosHandler{lister: lister, logger: log.Named("videos")}
}

// HandleListVideos returns bare file names for a flat layout and
// {path, folder, fullName} descriptors for a categorized one.
func (h *VideosHandler) HandleListVideos(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_videos"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	items, err := h.lister.ListVideos(r.Context())
	if err != nil {
		h.logger.Error(r.Context(), "error reading videos directory", logger.Error(WrapKind(op, ErrListVideos, err)))
		writeError(w, http.StatusInternalServerError, "Failed to read videos directory")
		return
	}

	if h.lister.VideoLayout() == experiment.LayoutCategorized {
		writeJSON(w, http.StatusOK, descriptors(items))
		return
	}
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name()
	}
	writeJSON(w, http.StatusOK, names)
}

func descriptors(items []stimulus.Item) []model.VideoDescriptor {
	out := make([]model.VideoDescriptor, len(items))
	for i, it := range items {
		out[i] = model.VideoDescriptor{Path: it.Path, Folder: it.Folder, FullName: it.FullName}
	}
	return out
}
