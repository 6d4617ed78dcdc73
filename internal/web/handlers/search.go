package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/kozaktomas/photo-archive/internal/constants"
	"github.com/kozaktomas/photo-archive/internal/database"
	"github.com/kozaktomas/photo-archive/internal/search"
)

// maxProbeImageSize bounds search-by-face uploads (multipart included).
const maxProbeImageSize = 20 << 20

// SearchHandler serves archive queries.
type SearchHandler struct {
	engine *search.Engine
	log    *zap.Logger
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(engine *search.Engine, log *zap.Logger) *SearchHandler {
	return &SearchHandler{engine: engine, log: log}
}

func respondRecords(w http.ResponseWriter, records []database.PhotoRecord) {
	if records == nil {
		records = []database.PhotoRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"results": records,
	})
}

// Labels handles GET /search/labels?name=&min_confidence=.
func (h *SearchHandler) Labels(w http.ResponseWriter, r *http.Request) {
	minConfidence, ok := queryFloat(r, "min_confidence", constants.DefaultLabelConfidence)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid min_confidence")
		return
	}
	respondRecords(w, h.engine.ByLabel(r.URL.Query().Get("name"), minConfidence))
}

// People handles GET /search/people?name=.
func (h *SearchHandler) People(w http.ResponseWriter, r *http.Request) {
	respondRecords(w, h.engine.ByPerson(r.URL.Query().Get("name")))
}

// Text handles GET /search/text?q=.
func (h *SearchHandler) Text(w http.ResponseWriter, r *http.Request) {
	respondRecords(w, h.engine.ByText(r.URL.Query().Get("q")))
}

// Location handles GET /search/location?q=.
func (h *SearchHandler) Location(w http.ResponseWriter, r *http.Request) {
	respondRecords(w, h.engine.ByLocation(r.URL.Query().Get("q")))
}

// Combined handles POST /search with a JSON criteria body.
func (h *SearchHandler) Combined(w http.ResponseWriter, r *http.Request) {
	var c search.Criteria
	if err := decodeJSON(r, &c); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	respondRecords(w, h.engine.Combined(c))
}

// ByFace handles POST /search/face with a multipart "image" and optional
// "threshold".
func (h *SearchHandler) ByFace(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxProbeImageSize)
	if err := r.ParseMultipartForm(maxProbeImageSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	threshold := constants.DefaultFaceSearchThreshold
	if raw := r.FormValue("threshold"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		threshold = f
	}

	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "image is required")
		return
	}
	data, err := readUploadedFile(files[0])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	hits, err := h.engine.ByFaceImage(r.Context(), data, threshold)
	if err != nil {
		respondFailure(w, h.log, "face search failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":   len(hits),
		"results": hits,
	})
}
