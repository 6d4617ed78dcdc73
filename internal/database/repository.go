package database

import (
	"context"
)

// Backend is the durable table behind the Store. Implementations only persist;
// indexing and validation happen in the Store. Other processes may write the
// same table, so the Backend, not the Store's memory, is authoritative.
type Backend interface {
	// Scan calls fn for every stored record. Used to hydrate and refresh the Store.
	Scan(ctx context.Context, fn func(PhotoRecord) error) error
	// Get reads one record, or returns ErrNotFound.
	Get(ctx context.Context, filename string) (PhotoRecord, error)
	// FindFace returns the record holding faceID, or ErrFaceNotFound.
	FindFace(ctx context.Context, faceID string) (PhotoRecord, error)
	// Put inserts or fully replaces the record keyed by its filename.
	Put(ctx context.Context, record PhotoRecord) error
	// UpdateFaceName sets the person name of the face at faceIndex, which must
	// hold faceID. Returns ErrFaceNotFound when it does not.
	UpdateFaceName(ctx context.Context, filename string, faceIndex int, faceID, personName string) error
	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, filename string) error
	// Close releases backend resources.
	Close() error
}

// RecordReader provides read-only access to archived records.
type RecordReader interface {
	// Get returns a copy of the record, or ErrNotFound
	Get(ctx context.Context, filename string) (PhotoRecord, error)
	// FindFaceByID locates a face anywhere in the archive, or returns ErrFaceNotFound
	FindFaceByID(ctx context.Context, faceID string) (string, FaceObservation, error)
}

// RecordWriter provides write access to archived records.
type RecordWriter interface {
	RecordReader

	// Put inserts or replaces a record (last write wins)
	Put(ctx context.Context, record PhotoRecord) error
	// UpdateFaceName tags a single face of a record
	UpdateFaceName(ctx context.Context, filename, faceID, personName string) error
	// Delete removes a record and its faces
	Delete(ctx context.Context, filename string) error
}
