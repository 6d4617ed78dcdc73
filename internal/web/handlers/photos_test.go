package handlers

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/photo-archive/internal/database"
)

func uploadRequest(t *testing.T, files map[string][]byte, metadata string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, data := range files {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(data)
	}
	if metadata != "" {
		_ = mw.WriteField("metadata", metadata)
	}
	_ = mw.Close()

	req := httptest.NewRequest("POST", "/api/v1/photos", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestPhotosHandler_Upload(t *testing.T) {
	store := database.NewStore(nil, nil)
	deps := newTestDeps(store, &fakeRecognition{})
	handler := NewPhotosHandler(store, deps.pipeline, nopLog)

	recorder := httptest.NewRecorder()
	handler.Upload(recorder, uploadRequest(t, map[string][]byte{
		"wedding.jpg": testJPEG(t),
		"broken.jpg":  []byte("not an image"),
	}, `{"location":"Grand Hotel","roll":"12"}`))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp struct {
		Uploaded int            `json:"uploaded"`
		Results  []UploadResult `json:"results"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.Uploaded != 1 || len(resp.Results) != 2 {
		t.Fatalf("unexpected upload response %+v", resp)
	}
	for _, r := range resp.Results {
		switch r.Filename {
		case "wedding.jpg":
			if r.Error != "" || r.Faces != 1 || r.Labels != 1 {
				t.Errorf("unexpected result for wedding.jpg: %+v", r)
			}
		case "broken.jpg":
			if r.Error == "" {
				t.Error("expected an error for broken.jpg")
			}
		}
	}

	rec, err := store.Get(context.Background(), "wedding.jpg")
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if rec.Location() != "Grand Hotel" || rec.Metadata["roll"] != "12" {
		t.Errorf("metadata not applied: %v", rec.Metadata)
	}
	if rec.StorageLocation != "s3://negatives/wedding.jpg" {
		t.Errorf("unexpected storage location %q", rec.StorageLocation)
	}
	if _, ok := deps.objects.objects["wedding.jpg"]; !ok {
		t.Error("original image was not stored")
	}
}

func TestPhotosHandler_UploadErrors(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string][]byte
		metadata string
		wantCode int
	}{
		{"no files", nil, "", http.StatusBadRequest},
		{"metadata not an object", map[string][]byte{"a.jpg": {1}}, `["x"]`, http.StatusBadRequest},
		{"every file invalid", map[string][]byte{"a.jpg": []byte("nope")}, "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := database.NewStore(nil, nil)
			handler := NewPhotosHandler(store, newTestDeps(store, &fakeRecognition{}).pipeline, nopLog)
			recorder := httptest.NewRecorder()
			handler.Upload(recorder, uploadRequest(t, tt.files, tt.metadata))
			assertStatusCode(t, recorder, tt.wantCode)
		})
	}
}

func TestPhotosHandler_UploadNotConfigured(t *testing.T) {
	handler := NewPhotosHandler(database.NewStore(nil, nil), nil, nopLog)
	recorder := httptest.NewRecorder()
	handler.Upload(recorder, uploadRequest(t, map[string][]byte{"a.jpg": {1}}, ""))
	assertStatusCode(t, recorder, http.StatusServiceUnavailable)
}

func TestPhotosHandler_Get(t *testing.T) {
	handler := NewPhotosHandler(seedStore(t), nil, nopLog)

	recorder := httptest.NewRecorder()
	handler.Get(recorder, requestWithChiParams(httptest.NewRequest("GET", "/api/v1/photos/party.jpg", nil), map[string]string{"filename": "party.jpg"}))
	assertStatusCode(t, recorder, http.StatusOK)
	var rec database.PhotoRecord
	parseJSONResponse(t, recorder, &rec)
	if rec.Filename != "party.jpg" || len(rec.Faces) != 1 || rec.Faces[0].Name() != "Alice" {
		t.Errorf("unexpected record %+v", rec)
	}

	recorder = httptest.NewRecorder()
	handler.Get(recorder, requestWithChiParams(httptest.NewRequest("GET", "/api/v1/photos/none.jpg", nil), map[string]string{"filename": "none.jpg"}))
	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestPhotosHandler_List(t *testing.T) {
	handler := NewPhotosHandler(seedStore(t), nil, nopLog)

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest("GET", "/api/v1/photos?limit=2", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		Count   int                    `json:"count"`
		Total   int                    `json:"total"`
		Results []database.PhotoRecord `json:"results"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.Count != 2 || resp.Total != 3 {
		t.Errorf("expected 2 of 3 records, got %d of %d", resp.Count, resp.Total)
	}
	if resp.Results[0].Filename != "beach.jpg" || resp.Results[1].Filename != "party.jpg" {
		t.Errorf("records not in filename order: %s, %s", resp.Results[0].Filename, resp.Results[1].Filename)
	}
}

func TestPhotosHandler_Delete(t *testing.T) {
	store := seedStore(t)
	handler := NewPhotosHandler(store, nil, nopLog)

	recorder := httptest.NewRecorder()
	handler.Delete(recorder, requestWithChiParams(httptest.NewRequest("DELETE", "/api/v1/photos/party.jpg", nil), map[string]string{"filename": "party.jpg"}))
	assertStatusCode(t, recorder, http.StatusOK)

	if _, err := store.Get(context.Background(), "party.jpg"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected record deleted, got %v", err)
	}
	if people := store.People(); len(people) != 0 {
		t.Errorf("person index not updated after delete: %+v", people)
	}

	recorder = httptest.NewRecorder()
	handler.Delete(recorder, requestWithChiParams(httptest.NewRequest("DELETE", "/api/v1/photos/party.jpg", nil), map[string]string{"filename": "party.jpg"}))
	assertStatusCode(t, recorder, http.StatusNotFound)
}
