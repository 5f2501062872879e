package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/voltrade/voltbot/internal/domain"
)

// ArchiveSource lists objects in cold storage.
type ArchiveSource interface {
	List(ctx context.Context, prefix string) ([]domain.BlobInfo, error)
}

// ArchiveHandler serves the archived-position object index.
type ArchiveHandler struct {
	blobs  ArchiveSource
	prefix string
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler rooted at the given prefix.
func NewArchiveHandler(blobs ArchiveSource, prefix string, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{blobs: blobs, prefix: prefix, logger: logger}
}

// listArchiveResponse wraps the archive index response.
type listArchiveResponse struct {
	Objects []domain.BlobInfo `json:"objects"`
	Count   int               `json:"count"`
}

// ListObjects returns the month-partitioned archive objects under the
// configured prefix.
// GET /api/archive
func (h *ArchiveHandler) ListObjects(w http.ResponseWriter, r *http.Request) {
	objects, err := h.blobs.List(r.Context(), h.prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: archive list failed",
			slog.String("prefix", h.prefix),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archive")
		return
	}
	if objects == nil {
		objects = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, listArchiveResponse{
		Objects: objects,
		Count:   len(objects),
	})
}
