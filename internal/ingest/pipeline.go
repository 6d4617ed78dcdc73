package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/photo-archive/internal/config"
	"github.com/kozaktomas/photo-archive/internal/constants"
	"github.com/kozaktomas/photo-archive/internal/database"
	"github.com/kozaktomas/photo-archive/internal/imaging"
	"github.com/kozaktomas/photo-archive/internal/recognition"
	"github.com/kozaktomas/photo-archive/internal/storage"
)

// Analyzer is the part of the recognition service ingestion needs.
type Analyzer interface {
	DetectLabels(ctx context.Context, img recognition.Image) ([]database.Label, error)
	IndexFaces(ctx context.Context, img recognition.Image, externalImageID string) ([]database.FaceObservation, error)
	DetectText(ctx context.Context, img recognition.Image) ([]recognition.TextDetection, error)
	RecognizeCelebrities(ctx context.Context, img recognition.Image) ([]database.Celebrity, error)
}

// Pipeline uploads, analyses and records photos.
type Pipeline struct {
	adapter  *Adapter
	analyzer Analyzer
	objects  storage.ObjectStore
	cfg      config.IngestConfig
	log      *zap.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(adapter *Adapter, analyzer Analyzer, objects storage.ObjectStore, cfg config.IngestConfig, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = constants.DefaultConcurrency
	}
	return &Pipeline{adapter: adapter, analyzer: analyzer, objects: objects, cfg: cfg, log: log}
}

// Process stores the original image under its filename, runs the four
// recognition calls on a prepared copy and records the result.
func (p *Pipeline) Process(ctx context.Context, filename string, data []byte, metadata map[string]string) (database.PhotoRecord, error) {
	filename, err := cleanFilename(filename)
	if err != nil {
		return database.PhotoRecord{}, err
	}
	if len(data) == 0 {
		return database.PhotoRecord{}, database.Validationf("%s is empty", filename)
	}

	prepared, err := imaging.Prepare(data, p.cfg.MaxImageDimension)
	if err != nil {
		return database.PhotoRecord{}, database.Validationf("%s: %v", filename, err)
	}

	location, err := p.objects.Put(ctx, filename, data, storage.ContentType(filename))
	if err != nil {
		return database.PhotoRecord{}, fmt.Errorf("uploading %s: %w", filename, err)
	}

	analysis, err := p.analyze(ctx, filename, recognition.Image{Bytes: prepared})
	if err != nil {
		return database.PhotoRecord{}, fmt.Errorf("analysing %s: %w", filename, err)
	}

	return p.adapter.Ingest(ctx, Input{
		Filename:        filename,
		StorageLocation: location,
		Analysis:        analysis,
		Metadata:        metadata,
	})
}

// analyze runs the recognition calls in parallel. Any failure fails the photo.
func (p *Pipeline) analyze(ctx context.Context, filename string, img recognition.Image) (recognition.Analysis, error) {
	var a recognition.Analysis
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		a.Labels, err = p.analyzer.DetectLabels(gctx, img)
		return err
	})
	g.Go(func() (err error) {
		a.Faces, err = p.analyzer.IndexFaces(gctx, img, filename)
		return err
	})
	g.Go(func() (err error) {
		a.Text, err = p.analyzer.DetectText(gctx, img)
		return err
	})
	g.Go(func() (err error) {
		a.Celebrities, err = p.analyzer.RecognizeCelebrities(gctx, img)
		return err
	})
	if err := g.Wait(); err != nil {
		return recognition.Analysis{}, err
	}
	return a, nil
}

// FileError is a file the batch could not ingest.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Summary describes a finished batch.
type Summary struct {
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Faces     int           `json:"faces"`
	Labels    int           `json:"labels"`
	Errors    []FileError   `json:"errors,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Progress is reported after every file.
type Progress struct {
	Path        string
	Done        int
	Total       int
	Err         error
	Faces       int
	Labels      int
	Celebrities []string
}

// ProcessFiles ingests files on a bounded pool. A failing file is logged and
// recorded in the summary; it never stops the batch. metadata is keyed by base
// filename. progress may be nil and is called from worker goroutines.
func (p *Pipeline) ProcessFiles(ctx context.Context, paths []string, metadata map[string]map[string]string, progress func(Progress)) Summary {
	start := time.Now()
	summary := Summary{Total: len(paths)}

	var (
		mu   sync.Mutex
		done atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for _, path := range paths {
		g.Go(func() error {
			rec, err := p.processFile(gctx, path, metadata)

			mu.Lock()
			if err != nil {
				p.log.Warn("failed to ingest photo", zap.String("path", path), zap.Error(err))
				summary.Errors = append(summary.Errors, FileError{Path: path, Error: err.Error()})
			} else {
				summary.Processed++
				summary.Faces += len(rec.Faces)
				summary.Labels += len(rec.Labels)
			}
			mu.Unlock()

			if progress != nil {
				ev := Progress{Path: path, Done: int(done.Add(1)), Total: len(paths), Err: err}
				if err == nil {
					ev.Faces = len(rec.Faces)
					ev.Labels = len(rec.Labels)
					for _, c := range rec.Celebrities {
						ev.Celebrities = append(ev.Celebrities, c.Name)
					}
				}
				progress(ev)
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(summary.Errors, func(a, b FileError) int { return strings.Compare(a.Path, b.Path) })
	summary.Duration = time.Since(start)

	p.log.Info("batch ingest finished",
		zap.Int("total", summary.Total),
		zap.Int("processed", summary.Processed),
		zap.Int("failed", len(summary.Errors)),
		zap.Duration("duration", summary.Duration))
	return summary
}

func (p *Pipeline) processFile(ctx context.Context, path string, metadata map[string]map[string]string) (database.PhotoRecord, error) {
	if err := ctx.Err(); err != nil {
		return database.PhotoRecord{}, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // paths come from CollectFiles
	if err != nil {
		return database.PhotoRecord{}, fmt.Errorf("reading file: %w", err)
	}
	name := filepath.Base(path)
	return p.Process(ctx, name, data, metadata[name])
}

// CollectFiles lists the image files in dirs, sorted. Without recursive only
// the top level of each directory is read.
func CollectFiles(dirs []string, recursive bool, cfg *config.IngestConfig) ([]string, error) {
	var paths []string
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("cannot access folder %s: %w", dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", dir)
		}

		if recursive {
			err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && cfg.IsImageFile(d.Name()) {
					paths = append(paths, path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("cannot walk folder %s: %w", dir, err)
			}
			continue
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("cannot read folder %s: %w", dir, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && cfg.IsImageFile(entry.Name()) {
				paths = append(paths, filepath.Join(dir, entry.Name()))
			}
		}
	}
	slices.Sort(paths)
	return paths, nil
}
