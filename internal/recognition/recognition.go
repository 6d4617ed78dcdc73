// Package recognition wraps the external image-recognition API used to
// analyse photos and to search the face collection.
package recognition

import (
	"context"
	"errors"

	"github.com/kozaktomas/photo-archive/internal/database"
)

// ErrNoFaceInImage is returned by SearchFacesByImage when the probe image
// contains no detectable face.
var ErrNoFaceInImage = errors.New("no face detected in image")

// Image references the picture to analyse: inline bytes when Bytes is set,
// otherwise an object in the archive bucket.
type Image struct {
	Bytes  []byte
	Bucket string
	Key    string
}

// TextDetection is one OCR result. Kind is LINE or WORD.
type TextDetection struct {
	Text       string
	Kind       string
	Confidence float64
}

// FaceMatch is a collection face similar to the probe.
type FaceMatch struct {
	FaceID          string
	ExternalImageID string
	Similarity      float64 // 0-100
}

// Analysis is the combined output of the four per-photo recognition calls.
type Analysis struct {
	Labels      []database.Label
	Faces       []database.FaceObservation
	Text        []TextDetection
	Celebrities []database.Celebrity
}

// Service is the recognition API. Every method returns a
// *database.ServiceError (matching database.ErrExternalService) when the
// remote call fails.
type Service interface {
	DetectLabels(ctx context.Context, img Image) ([]database.Label, error)
	// IndexFaces detects faces and adds them to the collection. The returned
	// faces carry collection-wide unique IDs.
	IndexFaces(ctx context.Context, img Image, externalImageID string) ([]database.FaceObservation, error)
	DetectText(ctx context.Context, img Image) ([]TextDetection, error)
	RecognizeCelebrities(ctx context.Context, img Image) ([]database.Celebrity, error)
	// SearchFacesByFaceID returns collection faces similar to faceID, never
	// including faceID itself, sorted by descending similarity.
	SearchFacesByFaceID(ctx context.Context, faceID string, threshold float64, maxFaces int) ([]FaceMatch, error)
	SearchFacesByImage(ctx context.Context, img Image, threshold float64, maxFaces int) ([]FaceMatch, error)
	// EnsureCollection creates the face collection if needed and reports
	// whether it was created.
	EnsureCollection(ctx context.Context) (bool, error)
}
