// Package ingest turns recognition output into stored photo records.
package ingest

import (
	"context"
	"fmt"
	"maps"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/photo-archive/internal/constants"
	"github.com/kozaktomas/photo-archive/internal/database"
	"github.com/kozaktomas/photo-archive/internal/recognition"
)

// RecordWriter stores complete records.
type RecordWriter interface {
	Put(ctx context.Context, record database.PhotoRecord) error
}

// Input is one analysed image ready to be recorded.
type Input struct {
	Filename        string
	StorageLocation string
	Analysis        recognition.Analysis
	Metadata        map[string]string
}

// Adapter normalizes an analysis into a PhotoRecord and stores it. Storing a
// filename again replaces the previous record, tags included.
type Adapter struct {
	store RecordWriter
	now   func() time.Time
	log   *zap.Logger
}

// NewAdapter creates an Adapter writing to store.
func NewAdapter(store RecordWriter, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{store: store, now: time.Now, log: log}
}

// Ingest builds and stores the record for in. Only LINE text detections are
// kept and every face starts untagged.
func (a *Adapter) Ingest(ctx context.Context, in Input) (database.PhotoRecord, error) {
	filename, err := cleanFilename(in.Filename)
	if err != nil {
		return database.PhotoRecord{}, err
	}
	if strings.TrimSpace(in.StorageLocation) == "" {
		return database.PhotoRecord{}, database.Validationf("storage location is required for %s", filename)
	}

	rec := database.PhotoRecord{
		Filename:        filename,
		StorageLocation: in.StorageLocation,
		UploadedAt:      a.now().UTC(),
		Metadata:        maps.Clone(in.Metadata),
		Labels:          make([]database.Label, 0, len(in.Analysis.Labels)),
		Faces:           make([]database.FaceObservation, 0, len(in.Analysis.Faces)),
		TextLines:       []database.TextLine{},
		Celebrities:     make([]database.Celebrity, 0, len(in.Analysis.Celebrities)),
	}
	rec.Labels = append(rec.Labels, in.Analysis.Labels...)
	rec.Celebrities = append(rec.Celebrities, in.Analysis.Celebrities...)

	for _, f := range in.Analysis.Faces {
		f = f.Clone()
		f.PersonName = nil
		rec.Faces = append(rec.Faces, f)
	}
	for _, t := range in.Analysis.Text {
		if t.Kind != constants.TextKindLine {
			continue
		}
		rec.TextLines = append(rec.TextLines, database.TextLine{Text: t.Text, Confidence: t.Confidence})
	}

	if err := a.store.Put(ctx, rec); err != nil {
		return database.PhotoRecord{}, fmt.Errorf("recording %s: %w", filename, err)
	}

	a.log.Debug("photo recorded",
		zap.String("filename", filename),
		zap.Int("labels", len(rec.Labels)),
		zap.Int("faces", len(rec.Faces)),
		zap.Int("text_lines", len(rec.TextLines)))
	return rec, nil
}

// cleanFilename rejects names that are not a single path element.
func cleanFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", database.Validationf("filename is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." || path.Base(name) != name {
		return "", database.Validationf("filename %q must not contain a path", name)
	}
	return name, nil
}
