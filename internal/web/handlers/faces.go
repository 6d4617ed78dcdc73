package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-archive/internal/config"
	"github.com/kozaktomas/photo-archive/internal/constants"
	"github.com/kozaktomas/photo-archive/internal/database"
	"github.com/kozaktomas/photo-archive/internal/search"
	"github.com/kozaktomas/photo-archive/internal/tagging"
)

// FacesHandler handles face tagging endpoints
type FacesHandler struct {
	reconciler *tagging.Reconciler
	engine     *search.Engine
	cfg        config.TaggingConfig
	log        *zap.Logger
}

// NewFacesHandler creates a new faces handler
func NewFacesHandler(reconciler *tagging.Reconciler, engine *search.Engine, cfg config.TaggingConfig, log *zap.Logger) *FacesHandler {
	return &FacesHandler{reconciler: reconciler, engine: engine, cfg: cfg, log: log}
}

// TagRequest names a face.
type TagRequest struct {
	PersonName string `json:"person_name"`
}

// TagSimilarRequest names a face and the faces similar to it. A missing
// threshold uses the configured default.
type TagSimilarRequest struct {
	PersonName          string   `json:"person_name"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
}

// TagSimilarResponse reports which faces were tagged.
type TagSimilarResponse struct {
	Count int `json:"count"`
	*tagging.Result
	Error string `json:"error,omitempty"`
}

// Tag assigns a person name to a single face
func (h *FacesHandler) Tag(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	faceID := chi.URLParam(r, "faceId")

	ok, err := h.reconciler.TagFace(r.Context(), faceID, req.PersonName)
	if err != nil {
		respondFailure(w, h.log, "failed to tag face", err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "face not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"face_id":     faceID,
		"person_name": req.PersonName,
		"tagged":      true,
	})
}

// TagSimilar tags a face and propagates the name to similar faces. When the
// similarity search fails after the reference face was tagged, the partial
// result is returned alongside the error.
func (h *FacesHandler) TagSimilar(w http.ResponseWriter, r *http.Request) {
	var req TagSimilarRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	threshold := h.cfg.SimilarityThreshold
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
	}

	result, err := h.reconciler.TagSimilarFaces(r.Context(), tagging.TagRequest{
		ReferenceFaceID:     chi.URLParam(r, "faceId"),
		PersonName:          req.PersonName,
		SimilarityThreshold: threshold,
	})
	if err != nil && result == nil {
		respondFailure(w, h.log, "failed to tag similar faces", err)
		return
	}
	if err != nil {
		h.log.Error("similar face propagation incomplete", zap.Error(err))
		respondJSON(w, MapHTTPStatus(err), TagSimilarResponse{Count: result.Count(), Result: result, Error: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, TagSimilarResponse{Count: result.Count(), Result: result})
}

// Untagged lists faces that still need a name
func (h *FacesHandler) Untagged(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", constants.DefaultUntaggedLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	faces := h.engine.UntaggedFaces(limit)
	if faces == nil {
		faces = []database.FaceRef{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"count": len(faces), "faces": faces})
}

// People lists tagged people with their counts
func (h *FacesHandler) People(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.People())
}

// SuggestPeople autocompletes person names from ?q
func (h *FacesHandler) SuggestPeople(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 10)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	names := h.engine.SuggestPeople(r.URL.Query().Get("q"), limit)
	if names == nil {
		names = []string{}
	}
	respondJSON(w, http.StatusOK, names)
}
