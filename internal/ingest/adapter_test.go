package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/photo-archive/internal/database"
	"github.com/kozaktomas/photo-archive/internal/database/mock"
	"github.com/kozaktomas/photo-archive/internal/recognition"
)

func ptr(s string) *string { return &s }

func sampleAnalysis() recognition.Analysis {
	return recognition.Analysis{
		Labels: []database.Label{{Name: "Beach", Confidence: 97.5}, {Name: "Person", Confidence: 99}},
		Faces: []database.FaceObservation{
			{FaceID: "face-1", Confidence: 99.9},
			{FaceID: "face-2", Confidence: 98, PersonName: ptr("should be dropped")},
		},
		Text: []recognition.TextDetection{
			{Text: "SURF SHOP", Kind: "LINE", Confidence: 95},
			{Text: "SURF", Kind: "WORD", Confidence: 95},
			{Text: "SHOP", Kind: "WORD", Confidence: 94},
			{Text: "OPEN DAILY", Kind: "LINE", Confidence: 90},
		},
		Celebrities: []database.Celebrity{{Name: "Someone Famous", Confidence: 92}},
	}
}

func TestAdapter_Ingest(t *testing.T) {
	store := database.NewStore(nil, nil)
	adapter := NewAdapter(store, nil)
	fixed := time.Date(1985, 7, 4, 10, 30, 0, 0, time.UTC)
	adapter.now = func() time.Time { return fixed }

	rec, err := adapter.Ingest(context.Background(), Input{
		Filename:        "roll12_frame03.tif",
		StorageLocation: "s3://negatives/roll12_frame03.tif",
		Analysis:        sampleAnalysis(),
		Metadata:        map[string]string{"location": "Malibu", "roll": "12"},
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if !rec.UploadedAt.Equal(fixed) {
		t.Errorf("expected upload time %v, got %v", fixed, rec.UploadedAt)
	}
	if len(rec.TextLines) != 2 || rec.TextLines[0].Text != "SURF SHOP" || rec.TextLines[1].Text != "OPEN DAILY" {
		t.Errorf("expected only LINE detections, got %+v", rec.TextLines)
	}
	for _, f := range rec.Faces {
		if f.PersonName != nil {
			t.Errorf("expected face %s untagged, got %q", f.FaceID, *f.PersonName)
		}
	}
	if len(rec.Celebrities) != 1 || len(rec.Labels) != 2 {
		t.Errorf("unexpected labels/celebrities: %+v %+v", rec.Labels, rec.Celebrities)
	}

	stored, err := store.Get(context.Background(), "roll12_frame03.tif")
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if stored.Location() != "Malibu" || stored.Metadata["roll"] != "12" {
		t.Errorf("metadata not copied: %+v", stored.Metadata)
	}
	if got := store.UntaggedFaces(0); len(got) != 2 {
		t.Errorf("expected 2 untagged faces, got %d", len(got))
	}
}

func TestAdapter_IngestDoesNotAliasInput(t *testing.T) {
	store := database.NewStore(nil, nil)
	adapter := NewAdapter(store, nil)

	meta := map[string]string{"location": "Malibu"}
	analysis := sampleAnalysis()
	if _, err := adapter.Ingest(context.Background(), Input{
		Filename: "a.jpg", StorageLocation: "s3://b/a.jpg", Analysis: analysis, Metadata: meta,
	}); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	meta["location"] = "Changed"
	analysis.Labels[0].Name = "Changed"

	rec, _ := store.Get(context.Background(), "a.jpg")
	if rec.Location() != "Malibu" || rec.Labels[0].Name != "Beach" {
		t.Errorf("stored record aliased caller data: %+v", rec)
	}
}

func TestAdapter_ReingestReplacesRecord(t *testing.T) {
	store := database.NewStore(nil, nil)
	adapter := NewAdapter(store, nil)
	ctx := context.Background()

	in := Input{Filename: "a.jpg", StorageLocation: "s3://b/a.jpg", Analysis: sampleAnalysis()}
	if _, err := adapter.Ingest(ctx, in); err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}
	if err := store.UpdateFaceName(ctx, "a.jpg", "face-1", "Bob"); err != nil {
		t.Fatalf("UpdateFaceName failed: %v", err)
	}

	in.Analysis = recognition.Analysis{
		Labels: []database.Label{{Name: "Sunset", Confidence: 90}},
		Faces:  []database.FaceObservation{{FaceID: "face-9"}},
	}
	if _, err := adapter.Ingest(ctx, in); err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}

	rec, _ := store.Get(ctx, "a.jpg")
	if len(rec.Faces) != 1 || rec.Faces[0].FaceID != "face-9" || rec.Faces[0].Tagged() {
		t.Errorf("expected record fully replaced, got %+v", rec.Faces)
	}
	if got := store.FilenamesByPerson("Bob"); len(got) != 0 {
		t.Errorf("expected old tag gone from index, got %v", got)
	}
	if _, _, err := store.FindFaceByID(ctx, "face-1"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected old face unindexed, got %v", err)
	}
}

func TestAdapter_Validation(t *testing.T) {
	adapter := NewAdapter(database.NewStore(nil, nil), nil)

	tests := []struct {
		name string
		in   Input
	}{
		{"missing filename", Input{StorageLocation: "s3://b/a.jpg"}},
		{"path in filename", Input{Filename: "../a.jpg", StorageLocation: "s3://b/a.jpg"}},
		{"nested filename", Input{Filename: "dir/a.jpg", StorageLocation: "s3://b/a.jpg"}},
		{"missing location", Input{Filename: "a.jpg"}},
		{"face without id", Input{Filename: "a.jpg", StorageLocation: "s3://b/a.jpg", Analysis: recognition.Analysis{
			Faces: []database.FaceObservation{{FaceID: ""}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := adapter.Ingest(context.Background(), tt.in); !errors.Is(err, database.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestAdapter_BackendFailure(t *testing.T) {
	backend := mock.NewMockBackend()
	backend.PutError = database.NewServiceError("dynamodb", "PutItem", errors.New("throttled"))
	store := database.NewStore(backend, nil)
	adapter := NewAdapter(store, nil)

	_, err := adapter.Ingest(context.Background(), Input{
		Filename: "a.jpg", StorageLocation: "s3://b/a.jpg", Analysis: sampleAnalysis(),
	})
	if !errors.Is(err, database.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
	if store.Len() != 0 {
		t.Error("expected nothing stored after backend failure")
	}
}
