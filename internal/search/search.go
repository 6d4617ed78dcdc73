// Package search answers archive queries from the record store's indices.
package search

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-archive/internal/constants"
	"github.com/kozaktomas/photo-archive/internal/database"
	"github.com/kozaktomas/photo-archive/internal/facematch"
	"github.com/kozaktomas/photo-archive/internal/imaging"
	"github.com/kozaktomas/photo-archive/internal/recognition"
	"github.com/kozaktomas/photo-archive/internal/storage"
)

// FaceImageSearcher finds collection faces matching the face in a probe image.
type FaceImageSearcher interface {
	SearchFacesByImage(ctx context.Context, img recognition.Image, threshold float64, maxFaces int) ([]recognition.FaceMatch, error)
}

// Criteria combines predicates with AND. Within Labels and within People a
// record matches if it has at least one of the values. Zero values are not
// applied.
type Criteria struct {
	Labels             []string  `json:"labels,omitempty"`
	MinLabelConfidence float64   `json:"min_label_confidence,omitempty"`
	People             []string  `json:"people,omitempty"`
	Text               string    `json:"text,omitempty"`
	Location           string    `json:"location,omitempty"`
	UploadedAfter      time.Time `json:"uploaded_after,omitzero"`
	UploadedBefore     time.Time `json:"uploaded_before,omitzero"`
}

// FaceHit is one archived face matching a probe image.
type FaceHit struct {
	Filename        string  `json:"filename"`
	StorageLocation string  `json:"storage_location"`
	FaceID          string  `json:"face_id"`
	PersonName      string  `json:"person_name,omitempty"`
	Similarity      float64 `json:"similarity"`
}

// Engine runs queries. Results are ordered by filename; no match yields an
// empty slice, never an error.
type Engine struct {
	store    *database.Store
	searcher FaceImageSearcher
	objects  storage.ObjectStore
	maxDim   int
	log      *zap.Logger
}

// New creates an Engine. searcher and objects are only needed by
// ByFaceImage and may be nil.
func New(store *database.Store, searcher FaceImageSearcher, objects storage.ObjectStore, maxImageDimension int, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, searcher: searcher, objects: objects, maxDim: maxImageDimension, log: log}
}

// ByLabel returns records carrying the label (case-insensitive) with
// confidence >= minConfidence.
func (e *Engine) ByLabel(name string, minConfidence float64) []database.PhotoRecord {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	return e.Combined(Criteria{Labels: []string{name}, MinLabelConfidence: minConfidence})
}

// ByPerson returns records with a face tagged as name (case-insensitive).
func (e *Engine) ByPerson(name string) []database.PhotoRecord {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	return e.Combined(Criteria{People: []string{name}})
}

// ByText returns records with an OCR line containing query (case-insensitive).
// A blank query matches nothing.
func (e *Engine) ByText(query string) []database.PhotoRecord {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	return e.Combined(Criteria{Text: query})
}

// ByLocation returns records whose location metadata contains query
// (case-insensitive). Records without a location never match.
func (e *Engine) ByLocation(query string) []database.PhotoRecord {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	return e.Combined(Criteria{Location: query})
}

// Combined returns records matching every supplied criterion. Candidates come
// from the narrowest available index and are then verified; only when no
// criterion can use an index are all records scanned. Empty criteria match
// every record.
func (e *Engine) Combined(c Criteria) []database.PhotoRecord {
	m := compile(c)

	candidates, indexed := e.candidates(c)
	var out []database.PhotoRecord
	if !indexed {
		for rec := range e.store.All() {
			if m.match(&rec) {
				out = append(out, rec)
			}
		}
		return out
	}

	for _, filename := range candidates {
		rec, err := e.store.Get(context.Background(), filename)
		if err != nil {
			// Deleted since the index lookup.
			continue
		}
		if m.match(&rec) {
			out = append(out, rec)
		}
	}
	return out
}

// candidates intersects the posting lists of every indexable criterion.
// indexed is false when none applies.
func (e *Engine) candidates(c Criteria) ([]string, bool) {
	var sets [][]string

	if labels := nonBlank(c.Labels); len(labels) > 0 {
		sets = append(sets, e.union(labels, e.store.FilenamesByLabel))
	}
	if people := nonBlank(c.People); len(people) > 0 {
		sets = append(sets, e.union(people, e.store.FilenamesByPerson))
	}
	if strings.TrimSpace(c.Text) != "" {
		if files, ok := e.store.FilenamesByText(c.Text); ok {
			sets = append(sets, files)
		}
	}
	if strings.TrimSpace(c.Location) != "" {
		if files, ok := e.store.FilenamesByLocation(c.Location); ok {
			sets = append(sets, files)
		}
	}
	if len(sets) == 0 {
		return nil, false
	}

	slices.SortFunc(sets, func(a, b []string) int { return len(a) - len(b) })
	result := sets[0]
	for _, set := range sets[1:] {
		if len(result) == 0 {
			break
		}
		result = intersectSorted(result, set)
	}
	return result, true
}

func (e *Engine) union(values []string, lookup func(string) []string) []string {
	set := make(map[string]struct{})
	for _, v := range values {
		for _, f := range lookup(v) {
			set[f] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

// intersectSorted intersects two ascending filename lists.
func intersectSorted(a, b []string) []string {
	var out []string
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch strings.Compare(a[i], b[j]) {
		case 0:
			out = append(out, a[i])
			i++
			j++
		case -1:
			i++
		default:
			j++
		}
	}
	return out
}

// ByFaceImage finds archived faces matching the face in image. The probe is
// uploaded under a temporary key for the duration of the search and removed
// afterwards. An image without a face yields no hits. Hits are ordered by
// descending similarity.
func (e *Engine) ByFaceImage(ctx context.Context, image []byte, threshold float64) ([]FaceHit, error) {
	if e.searcher == nil || e.objects == nil {
		return nil, errors.New("face search is not configured")
	}
	if len(image) == 0 {
		return nil, database.Validationf("reference image is empty")
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 100 {
		return nil, database.Validationf("similarity threshold %.2f outside [0,100]", threshold)
	}

	prepared, err := imaging.Prepare(image, e.maxDim)
	if err != nil {
		return nil, database.Validationf("reference image: %v", err)
	}

	// Prepare passes small PNGs through unchanged.
	key := constants.TempReferencePrefix + uuid.NewString() + imaging.Extension(prepared)
	if _, err := e.objects.Put(ctx, key, prepared, storage.ContentType(key)); err != nil {
		return nil, fmt.Errorf("uploading reference image: %w", err)
	}
	defer func() {
		// Clean up even when the caller's context is already done.
		if err := e.objects.Delete(context.WithoutCancel(ctx), key); err != nil {
			e.log.Warn("failed to delete temporary reference image", zap.String("key", key), zap.Error(err))
		}
	}()

	matches, err := e.searcher.SearchFacesByImage(ctx,
		recognition.Image{Bucket: e.objects.Bucket(), Key: key},
		threshold, constants.MaxSimilarFaces)
	if errors.Is(err, recognition.ErrNoFaceInImage) {
		return []FaceHit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("searching faces by image: %w", err)
	}

	hits := make([]FaceHit, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if m.Similarity < threshold {
			continue
		}
		if _, dup := seen[m.FaceID]; dup {
			continue
		}
		seen[m.FaceID] = struct{}{}

		filename, face, err := e.store.FindFaceByID(ctx, m.FaceID)
		if err != nil {
			e.log.Debug("matched face not in archive", zap.String("face_id", m.FaceID), zap.String("external_image_id", m.ExternalImageID))
			continue
		}
		rec, err := e.store.Get(ctx, filename)
		if err != nil {
			continue
		}
		hits = append(hits, FaceHit{
			Filename:        filename,
			StorageLocation: rec.StorageLocation,
			FaceID:          m.FaceID,
			PersonName:      face.Name(),
			Similarity:      m.Similarity,
		})
	}

	slices.SortStableFunc(hits, func(a, b FaceHit) int {
		if a.Similarity != b.Similarity {
			if a.Similarity > b.Similarity {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Filename, b.Filename)
	})
	return hits, nil
}

// UntaggedFaces returns up to limit faces awaiting a name.
func (e *Engine) UntaggedFaces(limit int) []database.FaceRef {
	return e.store.UntaggedFaces(limit)
}

// People lists every tagged person.
func (e *Engine) People() []database.Person {
	return e.store.People()
}

// SuggestPeople returns known person names matching a partial query.
func (e *Engine) SuggestPeople(query string, limit int) []string {
	people := e.store.People()
	names := make([]string, len(people))
	for i, p := range people {
		names[i] = p.Name
	}
	return facematch.SuggestNames(names, query, limit)
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
