// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kozaktomas/photo-archive/internal/database"
)

// MockBackend is an in-memory implementation of database.Backend
// with error injection and call counting.
type MockBackend struct {
	mu      sync.RWMutex
	records map[string]database.PhotoRecord

	// Error injection
	ScanError           error
	GetError            error
	PutError            error
	UpdateFaceNameError error
	DeleteError         error
	CloseError          error

	// Call counters
	GetCalls            int
	PutCalls            int
	UpdateFaceNameCalls int
	DeleteCalls         int
	Closed              bool
}

// NewMockBackend creates a new empty mock backend
func NewMockBackend() *MockBackend {
	return &MockBackend{
		records: make(map[string]database.PhotoRecord),
	}
}

// AddRecord seeds a record without counting a Put call
func (m *MockBackend) AddRecord(rec database.PhotoRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Filename] = rec.Clone()
}

// Record returns the stored copy of a record
func (m *MockBackend) Record(filename string) (database.PhotoRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[filename]
	return rec.Clone(), ok
}

// Scan calls fn for every record in filename order
func (m *MockBackend) Scan(ctx context.Context, fn func(database.PhotoRecord) error) error {
	if m.ScanError != nil {
		return m.ScanError
	}
	m.mu.RLock()
	recs := make([]database.PhotoRecord, 0, len(m.records))
	for _, rec := range m.records {
		recs = append(recs, rec.Clone())
	}
	m.mu.RUnlock()

	slices.SortFunc(recs, func(a, b database.PhotoRecord) int {
		return strings.Compare(a.Filename, b.Filename)
	})
	for _, rec := range recs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a copy of one record
func (m *MockBackend) Get(ctx context.Context, filename string) (database.PhotoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if m.GetError != nil {
		return database.PhotoRecord{}, m.GetError
	}
	rec, ok := m.records[filename]
	if !ok {
		return database.PhotoRecord{}, fmt.Errorf("record %s: %w", filename, database.ErrNotFound)
	}
	return rec.Clone(), nil
}

// FindFace returns the record holding faceID
func (m *MockBackend) FindFace(ctx context.Context, faceID string) (database.PhotoRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetError != nil {
		return database.PhotoRecord{}, m.GetError
	}
	for _, rec := range m.records {
		if rec.FaceIndex(faceID) >= 0 {
			return rec.Clone(), nil
		}
	}
	return database.PhotoRecord{}, fmt.Errorf("face %s: %w", faceID, database.ErrFaceNotFound)
}

// Put stores a copy of the record
func (m *MockBackend) Put(ctx context.Context, record database.PhotoRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls++
	if m.PutError != nil {
		return m.PutError
	}
	m.records[record.Filename] = record.Clone()
	return nil
}

// UpdateFaceName sets the person name of one stored face
func (m *MockBackend) UpdateFaceName(ctx context.Context, filename string, faceIndex int, faceID, personName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateFaceNameCalls++
	if m.UpdateFaceNameError != nil {
		return m.UpdateFaceNameError
	}
	rec, ok := m.records[filename]
	if !ok || faceIndex < 0 || faceIndex >= len(rec.Faces) || rec.Faces[faceIndex].FaceID != faceID {
		return fmt.Errorf("face %s in %s: %w", faceID, filename, database.ErrFaceNotFound)
	}
	name := personName
	rec.Faces[faceIndex].PersonName = &name
	m.records[filename] = rec
	return nil
}

// Delete removes a record
func (m *MockBackend) Delete(ctx context.Context, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if m.DeleteError != nil {
		return m.DeleteError
	}
	delete(m.records, filename)
	return nil
}

// Close marks the backend closed
func (m *MockBackend) Close() error {
	m.Closed = true
	return m.CloseError
}

// Ensure MockBackend implements the interface
var _ database.Backend = (*MockBackend)(nil)
