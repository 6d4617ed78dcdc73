package database_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/photo-archive/internal/database"
	"github.com/kozaktomas/photo-archive/internal/database/mock"
)

func strPtr(s string) *string { return &s }

func testRecord(filename string, faceIDs ...string) database.PhotoRecord {
	faces := make([]database.FaceObservation, len(faceIDs))
	for i, id := range faceIDs {
		faces[i] = database.FaceObservation{
			FaceID:      id,
			Confidence:  99.5,
			BoundingBox: database.BoundingBox{Left: 0.3, Top: 0.2, Width: 0.2, Height: 0.3},
			AgeRange:    database.AgeRange{Low: 30, High: 40},
			Gender:      database.Gender{Value: "Male", Confidence: 95},
			Emotions:    []database.Emotion{{Type: "HAPPY", Confidence: 80}},
		}
	}
	return database.PhotoRecord{
		Filename:        filename,
		StorageLocation: "s3://negatives/" + filename,
		UploadedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Metadata:        map[string]string{"location": "Santa Monica, California", "date": "1985"},
		Labels: []database.Label{
			{Name: "Beach", Confidence: 92.1, Categories: []string{"Nature"}},
			{Name: "Person", Confidence: 99},
		},
		Faces:       faces,
		TextLines:   []database.TextLine{{Text: "Welcome to Santa Monica Pier", Confidence: 97}},
		Celebrities: []database.Celebrity{{Name: "Someone Famous", Confidence: 91}},
	}
}

func newStore(t *testing.T) (*database.Store, *mock.MockBackend) {
	t.Helper()
	backend := mock.NewMockBackend()
	return database.NewStore(backend, nil), backend
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	store, backend := newStore(t)
	ctx := context.Background()

	rec := testRecord("negative_0042.jpg", "f1", "f2")
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, rec.Filename)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(got, rec) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, rec)
	}

	stored, ok := backend.Record(rec.Filename)
	if !ok {
		t.Fatal("expected record to be written through to the backend")
	}
	if !reflect.DeepEqual(stored, rec) {
		t.Errorf("backend copy mismatch")
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testRecord("a.jpg", "f1")); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Get(ctx, "a.jpg")
	got.Faces[0].PersonName = strPtr("Mallory")
	got.Metadata["location"] = "Nowhere"
	got.Labels[0].Categories[0] = "Changed"

	again, _ := store.Get(ctx, "a.jpg")
	if again.Faces[0].PersonName != nil {
		t.Error("mutating a returned copy changed the stored face")
	}
	if again.Metadata["location"] != "Santa Monica, California" {
		t.Error("mutating a returned copy changed the stored metadata")
	}
	if again.Labels[0].Categories[0] != "Nature" {
		t.Error("mutating a returned copy changed the stored categories")
	}
}

func TestStore_GetNotFound(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.Get(context.Background(), "missing.jpg")
	if !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_PutValidation(t *testing.T) {
	store, backend := newStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testRecord("owner.jpg", "shared")); err != nil {
		t.Fatal(err)
	}

	badConfidence := testRecord("conf.jpg")
	badConfidence.Labels[0].Confidence = 120

	tests := []struct {
		name string
		rec  database.PhotoRecord
	}{
		{"empty filename", testRecord("  ")},
		{"empty face id", testRecord("a.jpg", "")},
		{"duplicate face id", testRecord("a.jpg", "f1", "f1")},
		{"face owned by other record", testRecord("other.jpg", "shared")},
		{"label confidence out of range", badConfidence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Put(ctx, tt.rec)
			if !errors.Is(err, database.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}

	if backend.PutCalls != 1 {
		t.Errorf("expected invalid records to never reach the backend, got %d puts", backend.PutCalls)
	}
}

func TestStore_PutReplacesRecord(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testRecord("a.jpg", "f1")); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateFaceName(ctx, "a.jpg", "f1", "Bob"); err != nil {
		t.Fatal(err)
	}

	replacement := testRecord("a.jpg", "f9")
	replacement.Labels = []database.Label{{Name: "Wedding", Confidence: 88}}
	if err := store.Put(ctx, replacement); err != nil {
		t.Fatal(err)
	}

	if got := store.FilenamesByLabel("beach"); len(got) != 0 {
		t.Errorf("expected old label to be unindexed, got %v", got)
	}
	if got := store.FilenamesByLabel("WEDDING"); !slices.Equal(got, []string{"a.jpg"}) {
		t.Errorf("expected new label indexed, got %v", got)
	}
	if got := store.FilenamesByPerson("bob"); len(got) != 0 {
		t.Errorf("expected re-ingestion to drop old tags, got %v", got)
	}
	if _, _, err := store.FindFaceByID(ctx, "f1"); !errors.Is(err, database.ErrFaceNotFound) {
		t.Errorf("expected old face to be gone, got %v", err)
	}
	if name, _, err := store.FindFaceByID(ctx, "f9"); err != nil || name != "a.jpg" {
		t.Errorf("expected new face in a.jpg, got %q, %v", name, err)
	}
}

func TestStore_PutBackendFailure(t *testing.T) {
	store, backend := newStore(t)
	backend.PutError = errors.New("table unavailable")

	err := store.Put(context.Background(), testRecord("a.jpg", "f1"))
	if err == nil {
		t.Fatal("expected error")
	}
	if store.Len() != 0 {
		t.Error("expected failed backend write to leave the store unchanged")
	}
}

func TestStore_UpdateFaceName(t *testing.T) {
	store, backend := newStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testRecord("a.jpg", "f1", "f2")); err != nil {
		t.Fatal(err)
	}

	for range 2 {
		if err := store.UpdateFaceName(ctx, "a.jpg", "f2", "Alice"); err != nil {
			t.Fatalf("UpdateFaceName failed: %v", err)
		}
	}

	rec, _ := store.Get(ctx, "a.jpg")
	if rec.Faces[0].PersonName != nil {
		t.Error("expected f1 to stay untagged")
	}
	if rec.Faces[1].Name() != "Alice" {
		t.Errorf("expected f2 tagged Alice, got %q", rec.Faces[1].Name())
	}

	people := store.People()
	if len(people) != 1 || people[0].FaceCount != 1 || people[0].PhotoCount != 1 {
		t.Errorf("expected idempotent tagging to count one face, got %+v", people)
	}

	stored, _ := backend.Record("a.jpg")
	if stored.Faces[1].Name() != "Alice" {
		t.Error("expected tag written through to the backend")
	}
}

func TestStore_UpdateFaceNameRetag(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testRecord("a.jpg", "f1")); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateFaceName(ctx, "a.jpg", "f1", "Bob"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateFaceName(ctx, "a.jpg", "f1", "Robert"); err != nil {
		t.Fatal(err)
	}

	if got := store.FilenamesByPerson("Bob"); len(got) != 0 {
		t.Errorf("expected Bob unindexed after retag, got %v", got)
	}
	if got := store.FilenamesByPerson("robert"); !slices.Equal(got, []string{"a.jpg"}) {
		t.Errorf("expected Robert indexed, got %v", got)
	}
}

func TestStore_UpdateFaceNameErrors(t *testing.T) {
	store, backend := newStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testRecord("a.jpg", "f1")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		filename string
		faceID   string
		person   string
		wantErr  error
	}{
		{"missing record", "b.jpg", "f1", "Bob", database.ErrNotFound},
		{"missing face", "a.jpg", "f7", "Bob", database.ErrFaceNotFound},
		{"empty name", "a.jpg", "f1", "   ", database.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.UpdateFaceName(ctx, tt.filename, tt.faceID, tt.person)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	backend.UpdateFaceNameError = errors.New("throttled")
	if err := store.UpdateFaceName(ctx, "a.jpg", "f1", "Bob"); err == nil {
		t.Fatal("expected backend error")
	}
	rec, _ := store.Get(ctx, "a.jpg")
	if rec.Faces[0].PersonName != nil {
		t.Error("expected failed backend update to leave the face untagged")
	}
}

func TestStore_FindFaceByID(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testRecord("a.jpg", "f1")); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, testRecord("b.jpg", "f2")); err != nil {
		t.Fatal(err)
	}

	filename, face, err := store.FindFaceByID(ctx, "f2")
	if err != nil {
		t.Fatalf("FindFaceByID failed: %v", err)
	}
	if filename != "b.jpg" || face.FaceID != "f2" {
		t.Errorf("expected f2 in b.jpg, got %s in %s", face.FaceID, filename)
	}

	if _, _, err := store.FindFaceByID(ctx, "nonexistent"); !errors.Is(err, database.ErrFaceNotFound) {
		t.Errorf("expected ErrFaceNotFound, got %v", err)
	}
	if !errors.Is(database.ErrFaceNotFound, database.ErrNotFound) {
		t.Error("expected ErrFaceNotFound to be a NotFound")
	}
}

func TestStore_Delete(t *testing.T) {
	store, backend := newStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testRecord("a.jpg", "f1")); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateFaceName(ctx, "a.jpg", "f1", "Bob"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "a.jpg"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.Get(ctx, "a.jpg"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected record gone, got %v", err)
	}
	if _, _, err := store.FindFaceByID(ctx, "f1"); !errors.Is(err, database.ErrFaceNotFound) {
		t.Errorf("expected face gone, got %v", err)
	}
	if got := store.FilenamesByPerson("bob"); len(got) != 0 {
		t.Errorf("expected person index cleared, got %v", got)
	}
	if got, _ := store.FilenamesByText("pier"); len(got) != 0 {
		t.Errorf("expected text index cleared, got %v", got)
	}
	if backend.DeleteCalls != 1 {
		t.Errorf("expected one backend delete, got %d", backend.DeleteCalls)
	}
	if err := store.Delete(ctx, "a.jpg"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestStore_AllIsOrderedAndRestartable(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	for _, name := range []string{"c.jpg", "a.jpg", "b.jpg"} {
		if err := store.Put(ctx, testRecord(name)); err != nil {
			t.Fatal(err)
		}
	}

	collect := func() []string {
		var names []string
		for rec := range store.All() {
			names = append(names, rec.Filename)
		}
		return names
	}

	want := []string{"a.jpg", "b.jpg", "c.jpg"}
	if got := collect(); !slices.Equal(got, want) {
		t.Errorf("first pass = %v, want %v", got, want)
	}
	if got := collect(); !slices.Equal(got, want) {
		t.Errorf("second pass = %v, want %v", got, want)
	}

	// Early termination must not panic or leak the lock.
	for range store.All() {
		break
	}
	if err := store.Put(ctx, testRecord("d.jpg")); err != nil {
		t.Fatalf("Put after early break failed: %v", err)
	}
}

func TestStore_SubstringIndices(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	other := testRecord("b.jpg")
	other.Metadata = map[string]string{"location": "Portland, Oregon"}
	other.TextLines = []database.TextLine{{Text: "STOP", Confidence: 99}}

	if err := store.Put(ctx, testRecord("a.jpg")); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, other); err != nil {
		t.Fatal(err)
	}

	got, ok := store.FilenamesByText("MONICA PIER")
	if !ok || !slices.Equal(got, []string{"a.jpg"}) {
		t.Errorf("FilenamesByText = %v, %v", got, ok)
	}
	got, ok = store.FilenamesByLocation("oregon")
	if !ok || !slices.Equal(got, []string{"b.jpg"}) {
		t.Errorf("FilenamesByLocation = %v, %v", got, ok)
	}
	got, ok = store.FilenamesByText("zebra")
	if !ok || len(got) != 0 {
		t.Errorf("expected no candidates for unknown text, got %v", got)
	}
	if _, ok := store.FilenamesByText("st"); ok {
		t.Error("expected short query to require a scan")
	}
}

func TestStore_PeopleAndUntagged(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testRecord("a.jpg", "f1", "f2")); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, testRecord("b.jpg", "f3")); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"f1", "f2"} {
		if err := store.UpdateFaceName(ctx, "a.jpg", id, "John Smith"); err != nil {
			t.Fatal(err)
		}
	}

	people := store.People()
	want := []database.Person{{Name: "John Smith", FaceCount: 2, PhotoCount: 1}}
	if !reflect.DeepEqual(people, want) {
		t.Errorf("People() = %+v, want %+v", people, want)
	}

	untagged := store.UntaggedFaces(0)
	if len(untagged) != 1 || untagged[0].Face.FaceID != "f3" || untagged[0].Filename != "b.jpg" {
		t.Errorf("unexpected untagged faces %+v", untagged)
	}

	if err := store.Put(ctx, testRecord("c.jpg", "f4", "f5")); err != nil {
		t.Fatal(err)
	}
	if got := store.UntaggedFaces(2); len(got) != 2 {
		t.Errorf("expected limit of 2, got %d", len(got))
	}
}

func TestStore_Load(t *testing.T) {
	backend := mock.NewMockBackend()
	tagged := testRecord("a.jpg", "f1")
	tagged.Faces[0].PersonName = strPtr("Bob")
	backend.AddRecord(tagged)
	backend.AddRecord(testRecord("b.jpg", "f2"))
	backend.AddRecord(testRecord("", "f3"))

	store := database.NewStore(backend, nil)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if store.Len() != 2 {
		t.Errorf("expected invalid record to be skipped, got %d records", store.Len())
	}
	if got := store.FilenamesByPerson("BOB"); !slices.Equal(got, []string{"a.jpg"}) {
		t.Errorf("expected loaded tags to be indexed, got %v", got)
	}
	if backend.PutCalls != 0 {
		t.Error("expected Load not to write back")
	}
}

func TestStore_LoadScanError(t *testing.T) {
	backend := mock.NewMockBackend()
	backend.ScanError = errors.New("access denied")

	if err := database.NewStore(backend, nil).Load(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestStore_InMemoryWithoutBackend(t *testing.T) {
	store := database.NewStore(nil, nil)
	ctx := context.Background()

	if err := store.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, testRecord("a.jpg", "f1")); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateFaceName(ctx, "a.jpg", "f1", "Bob"); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestStore_ConcurrentMutations(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	const files = 20
	for i := range files {
		name := fmt.Sprintf("%02d.jpg", i)
		if err := store.Put(ctx, testRecord(name, "face-"+name)); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := range files {
		name := fmt.Sprintf("%02d.jpg", i)
		wg.Add(3)
		go func() {
			defer wg.Done()
			_ = store.UpdateFaceName(ctx, name, "face-"+name, "Alice")
		}()
		go func() {
			defer wg.Done()
			_ = store.UpdateFaceName(ctx, name, "face-"+name, "Alice")
		}()
		go func() {
			defer wg.Done()
			for range store.All() {
			}
		}()
	}
	wg.Wait()

	if got := store.FilenamesByPerson("alice"); len(got) != files {
		t.Errorf("expected %d files tagged Alice, got %d", files, len(got))
	}
	people := store.People()
	if len(people) != 1 || people[0].FaceCount != files {
		t.Errorf("expected %d faces for Alice, got %+v", files, people)
	}
}

func TestStore_SharedBackendSeesOtherWriters(t *testing.T) {
	backend := mock.NewMockBackend()
	ctx := context.Background()

	server := database.NewStore(backend, nil)
	if err := server.Load(ctx); err != nil {
		t.Fatal(err)
	}
	writer := database.NewStore(backend, nil)
	if err := writer.Put(ctx, testRecord("a.jpg", "f1")); err != nil {
		t.Fatal(err)
	}

	filename, _, err := server.FindFaceByID(ctx, "f1")
	if err != nil {
		t.Fatalf("FindFaceByID failed: %v", err)
	}
	if filename != "a.jpg" {
		t.Errorf("expected f1 in a.jpg, got %s", filename)
	}
	if err := server.UpdateFaceName(ctx, filename, "f1", "Bob"); err != nil {
		t.Fatalf("UpdateFaceName failed: %v", err)
	}
	if got := server.FilenamesByPerson("bob"); !slices.Equal(got, []string{"a.jpg"}) {
		t.Errorf("expected the fetched record indexed, got %v", got)
	}
	stored, _ := backend.Record("a.jpg")
	if stored.Faces[0].Name() != "Bob" {
		t.Errorf("expected tag written to the backend, got %q", stored.Faces[0].Name())
	}
}

func TestStore_GetFallsBackToBackend(t *testing.T) {
	store, backend := newStore(t)
	ctx := context.Background()
	backend.AddRecord(testRecord("a.jpg", "f1"))

	rec, err := store.Get(ctx, "a.jpg")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.Filename != "a.jpg" || store.Len() != 1 {
		t.Errorf("expected a.jpg fetched and cached, got %s with %d cached", rec.Filename, store.Len())
	}

	calls := backend.GetCalls
	if _, err := store.Get(ctx, "a.jpg"); err != nil {
		t.Fatal(err)
	}
	if backend.GetCalls != calls {
		t.Error("expected the second Get to be served from memory")
	}

	if _, err := store.Get(ctx, "missing.jpg"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	backend.GetError = errors.New("throttled")
	if _, err := store.Get(ctx, "other.jpg"); err == nil || errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected the backend error, got %v", err)
	}
}

func TestStore_UpdateFaceNameAfterReingestElsewhere(t *testing.T) {
	store, backend := newStore(t)
	ctx := context.Background()
	if err := store.Put(ctx, testRecord("a.jpg", "f1")); err != nil {
		t.Fatal(err)
	}
	// Another process re-ingested a.jpg with new face IDs.
	backend.AddRecord(testRecord("a.jpg", "f9"))

	if err := store.UpdateFaceName(ctx, "a.jpg", "f9", "Eve"); err != nil {
		t.Fatalf("UpdateFaceName failed: %v", err)
	}
	if _, _, err := store.FindFaceByID(ctx, "f1"); err == nil {
		t.Error("expected the stale face replaced by the stored record")
	}
	if got := store.FilenamesByPerson("eve"); !slices.Equal(got, []string{"a.jpg"}) {
		t.Errorf("expected a.jpg indexed under Eve, got %v", got)
	}
}

func TestStore_DeleteRecordOnlyInBackend(t *testing.T) {
	store, backend := newStore(t)
	ctx := context.Background()
	backend.AddRecord(testRecord("a.jpg", "f1"))

	if err := store.Delete(ctx, "a.jpg"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := backend.Record("a.jpg"); ok {
		t.Error("expected the record removed from the backend")
	}
	if err := store.Delete(ctx, "a.jpg"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_LoadDropsRecordsGoneFromBackend(t *testing.T) {
	store, backend := newStore(t)
	ctx := context.Background()
	if err := store.Put(ctx, testRecord("a.jpg", "f1")); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, testRecord("b.jpg", "f2")); err != nil {
		t.Fatal(err)
	}
	_ = backend.Delete(ctx, "a.jpg")
	moved := testRecord("c.jpg", "f1")
	moved.Faces[0].PersonName = strPtr("Bob")
	backend.AddRecord(moved)

	if err := store.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 records, got %d", store.Len())
	}
	filename, _, err := store.FindFaceByID(ctx, "f1")
	if err != nil || filename != "c.jpg" {
		t.Errorf("expected f1 in c.jpg, got %q, %v", filename, err)
	}
	if got := store.FilenamesByPerson("bob"); !slices.Equal(got, []string{"c.jpg"}) {
		t.Errorf("expected Bob in c.jpg, got %v", got)
	}
}

func TestStore_Refresh(t *testing.T) {
	store, backend := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Refresh(ctx, 5*time.Millisecond)
		close(done)
	}()

	backend.AddRecord(testRecord("a.jpg", "f1"))
	deadline := time.Now().Add(2 * time.Second)
	for store.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if got := store.FilenamesByLabel("beach"); !slices.Equal(got, []string{"a.jpg"}) {
		t.Errorf("expected the refreshed record indexed, got %v", got)
	}
}
