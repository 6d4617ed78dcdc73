package handlers

import (
	"net/http"

	"github.com/kozaktomas/photo-archive/internal/config"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse exposes the settings clients need. Credentials are never included.
type ConfigResponse struct {
	Backend             string   `json:"backend"`
	Bucket              string   `json:"bucket"`
	CollectionID        string   `json:"collection_id"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
	MaxSimilarFaces     int      `json:"max_similar_faces"`
	Extensions          []string `json:"extensions"`
}

// Get returns the public configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ConfigResponse{
		Backend:             h.config.Database.Backend,
		Bucket:              h.config.AWS.Bucket,
		CollectionID:        h.config.AWS.CollectionID,
		SimilarityThreshold: h.config.Tagging.SimilarityThreshold,
		MaxSimilarFaces:     h.config.Tagging.MaxSimilarFaces,
		Extensions:          h.config.Ingest.Extensions,
	})
}
