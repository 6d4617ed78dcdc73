package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-archive/internal/constants"
	"github.com/kozaktomas/photo-archive/internal/database"
	"github.com/kozaktomas/photo-archive/internal/ingest"
)

// PhotosHandler handles photo record endpoints.
type PhotosHandler struct {
	store    *database.Store
	pipeline *ingest.Pipeline
	log      *zap.Logger
}

// NewPhotosHandler creates a new photos handler. pipeline may be nil, which
// disables uploads.
func NewPhotosHandler(store *database.Store, pipeline *ingest.Pipeline, log *zap.Logger) *PhotosHandler {
	return &PhotosHandler{store: store, pipeline: pipeline, log: log}
}

// UploadResult is the outcome for one uploaded file.
type UploadResult struct {
	Filename string `json:"filename"`
	Faces    int    `json:"faces"`
	Labels   int    `json:"labels"`
	Error    string `json:"error,omitempty"`
}

func readUploadedFile(fh *multipart.FileHeader) ([]byte, error) {
	file, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %s", fh.Filename)
	}
	defer file.Close()
	return io.ReadAll(file)
}

// Upload ingests multipart "files". An optional "metadata" field holds a JSON
// object applied to every file.
func (h *PhotosHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.pipeline == nil {
		respondError(w, http.StatusServiceUnavailable, "ingestion is not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	var metadata map[string]string
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			respondError(w, http.StatusBadRequest, "metadata must be a JSON object of strings")
			return
		}
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no files provided")
		return
	}

	results := make([]UploadResult, 0, len(files))
	var firstErr error
	succeeded := 0
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		result := UploadResult{Filename: name}

		data, err := readUploadedFile(fh)
		if err == nil {
			var rec database.PhotoRecord
			rec, err = h.pipeline.Process(r.Context(), name, data, metadata)
			result.Faces = len(rec.Faces)
			result.Labels = len(rec.Labels)
		}
		if err != nil {
			h.log.Warn("upload failed", zap.String("filename", sanitizeForLog(name)), zap.Error(err))
			result.Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
		} else {
			succeeded++
		}
		results = append(results, result)
	}

	status := http.StatusOK
	if succeeded == 0 {
		status = MapHTTPStatus(firstErr)
	}
	respondJSON(w, status, map[string]any{
		"uploaded": succeeded,
		"results":  results,
	})
}

// Get returns one record.
func (h *PhotosHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Get(r.Context(), chi.URLParam(r, "filename"))
	if err != nil {
		respondFailure(w, h.log, "failed to get photo", err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// List returns records in filename order, at most ?limit (0 for all).
func (h *PhotosHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	records := make([]database.PhotoRecord, 0)
	for rec := range h.store.All() {
		records = append(records, rec)
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"total":   h.store.Len(),
		"results": records,
	})
}

// Delete removes a record. The stored image and indexed faces are kept.
func (h *PhotosHandler) Delete(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if err := h.store.Delete(r.Context(), filename); err != nil {
		respondFailure(w, h.log, "failed to delete photo", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
