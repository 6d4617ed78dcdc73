package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-archive/internal/config"
	"github.com/kozaktomas/photo-archive/internal/database"
	"github.com/kozaktomas/photo-archive/internal/ingest"
	"github.com/kozaktomas/photo-archive/internal/recognition"
	"github.com/kozaktomas/photo-archive/internal/search"
	"github.com/kozaktomas/photo-archive/internal/storage"
	"github.com/kozaktomas/photo-archive/internal/tagging"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		AWS:     config.AWSConfig{Bucket: "negatives", CollectionID: "faces"},
		Tagging: config.TaggingConfig{SimilarityThreshold: 90, MaxSimilarFaces: 100, Workers: 2},
		Ingest:  config.IngestConfig{Concurrency: 2, MaxImageDimension: 1024, Extensions: []string{".jpg"}},
		Database: config.DatabaseConfig{
			Backend: config.BackendMemory,
		},
	}
}

func strPtr(s string) *string { return &s }

// seedStore creates a store with three records.
func seedStore(t *testing.T) *database.Store {
	t.Helper()
	store := database.NewStore(nil, nil)
	records := []database.PhotoRecord{
		{
			Filename:        "beach.jpg",
			StorageLocation: "s3://negatives/beach.jpg",
			UploadedAt:      time.Date(1985, 7, 1, 0, 0, 0, 0, time.UTC),
			Labels:          []database.Label{{Name: "Beach", Confidence: 80}},
			Metadata:        map[string]string{"location": "Malibu"},
			Faces:           []database.FaceObservation{{FaceID: "f1"}, {FaceID: "f2"}},
		},
		{
			Filename:        "party.jpg",
			StorageLocation: "s3://negatives/party.jpg",
			UploadedAt:      time.Date(1985, 7, 2, 0, 0, 0, 0, time.UTC),
			Labels:          []database.Label{{Name: "Party", Confidence: 95}},
			Faces:           []database.FaceObservation{{FaceID: "f3", PersonName: strPtr("Alice")}},
			TextLines:       []database.TextLine{{Text: "HAPPY BIRTHDAY"}},
		},
		{
			Filename:        "street.jpg",
			StorageLocation: "s3://negatives/street.jpg",
			UploadedAt:      time.Date(1985, 7, 3, 0, 0, 0, 0, time.UTC),
			Labels:          []database.Label{{Name: "Road", Confidence: 79}},
		},
	}
	for _, rec := range records {
		if err := store.Put(context.Background(), rec); err != nil {
			t.Fatalf("seeding %s: %v", rec.Filename, err)
		}
	}
	return store
}

// fakeRecognition implements the similarity searches used by the handlers.
type fakeRecognition struct {
	byFace  map[string][]recognition.FaceMatch
	byImage []recognition.FaceMatch
	err     error
}

func (f *fakeRecognition) SearchFacesByFaceID(_ context.Context, faceID string, _ float64, _ int) ([]recognition.FaceMatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byFace[faceID], nil
}

func (f *fakeRecognition) SearchFacesByImage(context.Context, recognition.Image, float64, int) ([]recognition.FaceMatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byImage, nil
}

// fakeAnalyzer returns one face and one label per image.
type fakeAnalyzer struct{}

func (fakeAnalyzer) DetectLabels(context.Context, recognition.Image) ([]database.Label, error) {
	return []database.Label{{Name: "Portrait", Confidence: 99}}, nil
}

func (fakeAnalyzer) IndexFaces(_ context.Context, _ recognition.Image, id string) ([]database.FaceObservation, error) {
	return []database.FaceObservation{{FaceID: "new-" + id}}, nil
}

func (fakeAnalyzer) DetectText(context.Context, recognition.Image) ([]recognition.TextDetection, error) {
	return nil, nil
}

func (fakeAnalyzer) RecognizeCelebrities(context.Context, recognition.Image) ([]database.Celebrity, error) {
	return nil, nil
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memObjects) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = data
	return storage.Location(m.Bucket(), key), nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memObjects) Bucket() string { return "negatives" }

// testDeps wires the archive components around store and rec.
type testDeps struct {
	store      *database.Store
	engine     *search.Engine
	reconciler *tagging.Reconciler
	pipeline   *ingest.Pipeline
	objects    *memObjects
}

func newTestDeps(store *database.Store, rec *fakeRecognition) testDeps {
	cfg := testConfig()
	objects := &memObjects{}
	return testDeps{
		store:      store,
		engine:     search.New(store, rec, objects, cfg.Ingest.MaxImageDimension, nil),
		reconciler: tagging.New(store, rec, cfg.Tagging, nil),
		pipeline:   ingest.NewPipeline(ingest.NewAdapter(store, nil), fakeAnalyzer{}, objects, cfg.Ingest, nil),
		objects:    objects,
	}
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}

var nopLog = zap.NewNop()

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
