package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/config"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/constants"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/database"
)

// WatchlistHandler handles watchlist uploads and queries.
type WatchlistHandler struct {
	config          *config.Config
	store           database.IdentityReader
	newOrchestrator OrchestratorFactory
	logger          *slog.Logger
}

// NewWatchlistHandler creates a new watchlist handler
func NewWatchlistHandler(deps Deps) *WatchlistHandler {
	return &WatchlistHandler{
		config:          deps.Config,
		store:           deps.Store,
		newOrchestrator: deps.NewOrchestrator,
		logger:          deps.logger(),
	}
}

// saveUpload copies one multipart file to path.
func saveUpload(fileHeader *multipart.FileHeader, path string) error {
	file, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("failed to open file: %s", filepath.Base(fileHeader.Filename))
	}
	defer file.Close()

	out, err := os.Create(path) //nolint:gosec // callers sanitize the file name
	if err != nil {
		return errors.New("failed to create file")
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return errors.New("failed to save file")
	}
	if err := out.Close(); err != nil {
		return errors.New("failed to save file")
	}
	return nil
}

// saveUploadedFiles copies multipart files into dir and returns their paths.
// Files rejected by keep are skipped.
func saveUploadedFiles(files []*multipart.FileHeader, dir string, keep func(string) bool) ([]string, error) {
	var filePaths []string
	for _, fileHeader := range files {
		safeName := filepath.Base(fileHeader.Filename)
		if safeName == "." || safeName == string(filepath.Separator) || !keep(safeName) {
			continue
		}
		path := filepath.Join(dir, safeName)
		if err := saveUpload(fileHeader, path); err != nil {
			return nil, err
		}
		filePaths = append(filePaths, path)
	}
	return filePaths, nil
}

// Upload handles POST /watchlist: stores the uploaded photos in the watchlist
// directory and enrolls only those photos. New person IDs continue after the
// ones already stored.
func (h *WatchlistHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes(h.config))
	if err := r.ParseMultipartForm(constants.MultipartMemory); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	files := r.MultipartForm.File["photos"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no photos provided")
		return
	}

	dir := h.config.Web.WatchlistDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		h.logger.Error("creating watchlist directory", "dir", dir, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create watchlist directory")
		return
	}

	saved, err := saveUploadedFiles(files, dir, h.config.IsImageFile)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(saved) == 0 {
		respondError(w, http.StatusBadRequest, "no image files provided")
		return
	}
	h.logger.Info("watchlist photos uploaded", "saved", len(saved), "dir", dir)

	report, err := h.newOrchestrator(0, 0).EnrollImages(r.Context(), saved, constants.DefaultPersonIDPrefix, nil)
	if err != nil {
		h.logger.Error("enrolling watchlist photos", "dir", dir, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to build watchlist")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"count":    report.Count(),
		"added":    report.Added,
		"no_faces": report.NoFaces,
		"failed":   report.Failed,
	})
}

// Count handles GET /watchlist/count.
func (h *WatchlistHandler) Count(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Count(r.Context())
	if err != nil {
		h.logger.Error("counting watchlist", "error", err)
		respondError(w, http.StatusServiceUnavailable, "watchlist store unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": n})
}

// Person handles GET /watchlist/{personId}.
func (h *WatchlistHandler) Person(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personId")
	if personID == "" {
		respondError(w, http.StatusBadRequest, "missing person ID")
		return
	}
	embs, err := h.store.GetByPerson(r.Context(), personID)
	if err != nil {
		h.logger.Error("reading person", "person_id", sanitizeForLog(personID), "error", err)
		respondError(w, http.StatusServiceUnavailable, "watchlist store unavailable")
		return
	}
	if len(embs) == 0 {
		respondError(w, http.StatusNotFound, "person not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"person_id":  personID,
		"embeddings": len(embs),
	})
}

func maxUploadBytes(cfg *config.Config) int64 {
	if cfg.Web.MaxUploadMB > 0 {
		return int64(cfg.Web.MaxUploadMB) << 20
	}
	return constants.MaxUploadBytes
}
