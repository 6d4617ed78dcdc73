// Package tagging names faces and propagates names to similar faces.
package tagging

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/photo-archive/internal/config"
	"github.com/kozaktomas/photo-archive/internal/constants"
	"github.com/kozaktomas/photo-archive/internal/database"
	"github.com/kozaktomas/photo-archive/internal/recognition"
)

// FaceStore is the part of the record store the reconciler writes through.
type FaceStore interface {
	FindFaceByID(ctx context.Context, faceID string) (string, database.FaceObservation, error)
	UpdateFaceName(ctx context.Context, filename, faceID, personName string) error
}

// SimilarFaceSearcher finds collection faces similar to a known face.
type SimilarFaceSearcher interface {
	SearchFacesByFaceID(ctx context.Context, faceID string, threshold float64, maxFaces int) ([]recognition.FaceMatch, error)
}

// TagRequest asks for PersonName on the reference face and on every face at
// least SimilarityThreshold (0-100) similar to it.
type TagRequest struct {
	ReferenceFaceID     string  `json:"reference_face_id"`
	PersonName          string  `json:"person_name"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

// Result lists the outcome per face ID. The reference face is in Tagged or,
// when no record holds it, in Skipped.
type Result struct {
	Tagged  []string `json:"tagged"`
	Skipped []string `json:"skipped"` // not in the archive
	Failed  []string `json:"failed"`
}

// Count returns the number of faces tagged.
func (r *Result) Count() int {
	return len(r.Tagged)
}

// Reconciler applies face tags to the record store. Propagation is a sequence
// of independent per-face updates; a failure part way leaves the faces tagged
// so far in place.
type Reconciler struct {
	store    FaceStore
	searcher SimilarFaceSearcher
	cfg      config.TaggingConfig
	log      *zap.Logger
}

// New creates a Reconciler.
func New(store FaceStore, searcher SimilarFaceSearcher, cfg config.TaggingConfig, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = constants.DefaultConcurrency
	}
	if cfg.MaxSimilarFaces <= 0 || cfg.MaxSimilarFaces > constants.MaxSimilarFaces {
		cfg.MaxSimilarFaces = constants.MaxSimilarFaces
	}
	return &Reconciler{store: store, searcher: searcher, cfg: cfg, log: log}
}

// TagFace names a single face wherever it lives in the archive, replacing any
// previous name. It returns false when no record holds the face.
func (r *Reconciler) TagFace(ctx context.Context, faceID, personName string) (bool, error) {
	personName = strings.TrimSpace(personName)
	if personName == "" {
		return false, database.Validationf("person name is required")
	}
	if faceID == "" {
		return false, database.Validationf("face ID is required")
	}

	filename, _, err := r.store.FindFaceByID(ctx, faceID)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	err = r.store.UpdateFaceName(ctx, filename, faceID, personName)
	if errors.Is(err, database.ErrNotFound) {
		// Deleted or re-ingested between lookup and update.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// TagSimilarFaces tags the reference face and every stored face the
// recognition service rates at or above the threshold. A stored reference
// face is always tagged and counted once, whether or not the search returns
// it. A reference missing from the archive (its record deleted while the
// face stays in the collection) is reported as skipped and the search still
// runs. Candidates missing from the archive are skipped; per-candidate
// failures are logged and do not stop the others.
func (r *Reconciler) TagSimilarFaces(ctx context.Context, req TagRequest) (*Result, error) {
	req.PersonName = strings.TrimSpace(req.PersonName)
	if err := validate(req); err != nil {
		return nil, err
	}

	ok, err := r.TagFace(ctx, req.ReferenceFaceID, req.PersonName)
	if err != nil {
		return nil, fmt.Errorf("tagging reference face %s: %w", req.ReferenceFaceID, err)
	}
	result := &Result{}
	if ok {
		result.Tagged = append(result.Tagged, req.ReferenceFaceID)
	} else {
		result.Skipped = append(result.Skipped, req.ReferenceFaceID)
	}

	// No store lock is held here.
	matches, err := r.searcher.SearchFacesByFaceID(ctx, req.ReferenceFaceID, req.SimilarityThreshold, r.cfg.MaxSimilarFaces)
	if err != nil {
		return result, fmt.Errorf("searching faces similar to %s: %w", req.ReferenceFaceID, err)
	}

	candidates := Candidates(matches, req.ReferenceFaceID, req.SimilarityThreshold, r.cfg.MaxSimilarFaces)
	outcomes := r.tagAll(ctx, candidates, req.PersonName)

	for i, id := range candidates {
		switch outcomes[i] {
		case outcomeTagged:
			result.Tagged = append(result.Tagged, id)
		case outcomeSkipped:
			result.Skipped = append(result.Skipped, id)
		default:
			result.Failed = append(result.Failed, id)
		}
	}

	r.log.Info("propagated face tag",
		zap.String("reference_face_id", req.ReferenceFaceID),
		zap.String("person", req.PersonName),
		zap.Float64("threshold", req.SimilarityThreshold),
		zap.Int("tagged", len(result.Tagged)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeTagged
	outcomeSkipped
)

// tagAll tags candidates on a bounded pool. Order of application is not
// significant since each write is an idempotent per-face update.
func (r *Reconciler) tagAll(ctx context.Context, candidates []string, personName string) []outcome {
	outcomes := make([]outcome, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, faceID := range candidates {
		g.Go(func() error {
			ok, err := r.TagFace(gctx, faceID, personName)
			o := outcomeTagged
			switch {
			case err != nil:
				r.log.Warn("failed to tag similar face", zap.String("face_id", faceID), zap.Error(err))
				o = outcomeFailed
			case !ok:
				o = outcomeSkipped
			}
			outcomes[i] = o
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Candidates filters search matches to the faces to propagate to: at or
// above threshold, de-duplicated, without the reference face, at most limit.
func Candidates(matches []recognition.FaceMatch, referenceFaceID string, threshold float64, limit int) []string {
	seen := map[string]struct{}{referenceFaceID: {}}
	var out []string
	for _, m := range matches {
		if m.Similarity < threshold || m.FaceID == "" {
			continue
		}
		if _, dup := seen[m.FaceID]; dup {
			continue
		}
		seen[m.FaceID] = struct{}{}
		out = append(out, m.FaceID)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func validate(req TagRequest) error {
	if req.ReferenceFaceID == "" {
		return database.Validationf("reference face ID is required")
	}
	if req.PersonName == "" {
		return database.Validationf("person name is required")
	}
	if math.IsNaN(req.SimilarityThreshold) || req.SimilarityThreshold < 0 || req.SimilarityThreshold > 100 {
		return database.Validationf("similarity threshold %.2f outside [0,100]", req.SimilarityThreshold)
	}
	return nil
}
