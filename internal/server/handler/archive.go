package handler

import (
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/alanyoungcy/bondd/internal/domain"
)

// archivePrefix is where settled issuances are archived in the bucket.
const archivePrefix = "issuances/"

// ArchiveHandler lists and serves archived issuance history from object
// storage.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{blobs: blobs, logger: logger}
}

// ListArchives returns archive files, optionally narrowed by ?day=2025/06/30.
// GET /api/archives
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	prefix := archivePrefix
	if day := strings.Trim(r.URL.Query().Get("day"), "/"); day != "" {
		prefix += day + "/"
	}
	infos, err := h.blobs.List(r.Context(), prefix)
	if err != nil {
		writeServiceError(w, r, h.logger, "list archives", err)
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"archives": infos,
		"count":    len(infos),
	})
}

// GetArchive streams one JSONL archive file.
// GET /api/archives/{path...}
func (h *ArchiveHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	p := path.Clean("/" + r.PathValue("path"))
	key := archivePrefix + strings.TrimPrefix(p, "/")
	if p == "/" || !strings.HasSuffix(key, ".jsonl") {
		writeError(w, http.StatusBadRequest, "path must name a .jsonl archive")
		return
	}

	body, err := h.blobs.Get(r.Context(), key)
	if err != nil {
		writeServiceError(w, r, h.logger, "get archive", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "stream archive failed",
			slog.String("path", key),
			slog.String("error", err.Error()),
		)
	}
}
