package database

import (
	"maps"
	"slices"
	"time"

	"github.com/kozaktomas/photo-archive/internal/constants"
)

// PhotoRecord is the analysis record of one archived image, keyed by filename.
type PhotoRecord struct {
	Filename        string            `json:"filename"`
	StorageLocation string            `json:"storage_location"`
	UploadedAt      time.Time         `json:"upload_date"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Labels          []Label           `json:"labels"`
	Faces           []FaceObservation `json:"faces"`
	TextLines       []TextLine        `json:"text"`
	Celebrities     []Celebrity       `json:"celebrities"`
}

// Label is a recognized object, scene or activity.
type Label struct {
	Name       string   `json:"name"`
	Confidence float64  `json:"confidence"` // 0-100
	Categories []string `json:"categories,omitempty"`
}

// TextLine is one line of OCR text.
type TextLine struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Celebrity is a celebrity match reported by the recognition service.
type Celebrity struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// FaceObservation is a face detected in exactly one PhotoRecord.
// PersonName is the only field that changes after ingestion.
type FaceObservation struct {
	FaceID      string      `json:"face_id"`
	Confidence  float64     `json:"confidence"`
	BoundingBox BoundingBox `json:"bounding_box"`
	Quality     Quality     `json:"quality"`
	Emotions    []Emotion   `json:"emotions,omitempty"`
	AgeRange    AgeRange    `json:"age_range"`
	Gender      Gender      `json:"gender"`
	PersonName  *string     `json:"person_name"`
}

// BoundingBox is relative to the image size (0-1).
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Quality struct {
	Brightness float64 `json:"brightness"`
	Sharpness  float64 `json:"sharpness"`
}

type Emotion struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

type AgeRange struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

type Gender struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Name returns the tagged person name, or "" when untagged.
func (f *FaceObservation) Name() string {
	if f.PersonName == nil {
		return ""
	}
	return *f.PersonName
}

// Tagged reports whether a person name has been assigned.
func (f *FaceObservation) Tagged() bool {
	return f.PersonName != nil && *f.PersonName != ""
}

// Clone returns a deep copy of the face.
func (f FaceObservation) Clone() FaceObservation {
	f.Emotions = slices.Clone(f.Emotions)
	if f.PersonName != nil {
		name := *f.PersonName
		f.PersonName = &name
	}
	return f
}

// FaceIndex returns the position of faceID within the record, or -1.
func (r *PhotoRecord) FaceIndex(faceID string) int {
	for i := range r.Faces {
		if r.Faces[i].FaceID == faceID {
			return i
		}
	}
	return -1
}

// Location returns metadata["location"], or "" when absent.
func (r *PhotoRecord) Location() string {
	return r.Metadata[constants.LocationMetadataKey]
}

// Clone returns a deep copy so callers never alias the store's canonical record.
func (r PhotoRecord) Clone() PhotoRecord {
	r.Metadata = maps.Clone(r.Metadata)
	r.Labels = slices.Clone(r.Labels)
	for i := range r.Labels {
		r.Labels[i].Categories = slices.Clone(r.Labels[i].Categories)
	}
	if r.Faces != nil {
		faces := make([]FaceObservation, len(r.Faces))
		for i := range r.Faces {
			faces[i] = r.Faces[i].Clone()
		}
		r.Faces = faces
	}
	r.TextLines = slices.Clone(r.TextLines)
	r.Celebrities = slices.Clone(r.Celebrities)
	return r
}

// FaceRef locates a face inside the archive.
type FaceRef struct {
	Filename        string          `json:"filename"`
	StorageLocation string          `json:"storage_location"`
	Face            FaceObservation `json:"face"`
}

// Person summarizes one tagged person across the archive.
type Person struct {
	Name       string `json:"name"`
	FaceCount  int    `json:"face_count"`
	PhotoCount int    `json:"photo_count"`
}
