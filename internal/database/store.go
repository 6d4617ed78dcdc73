package database

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/photo-archive/internal/facematch"
)

// Store keeps every PhotoRecord in memory with secondary indices and writes
// each mutation through to an optional durable Backend. Point reads that miss
// memory fall back to the backend; listings and searches see the last Load.
//
// Each single-record mutation is atomic. Mutations of the same filename are
// serialized by a per-key lock held across the backend write; the store-wide
// mutex only guards the maps and is never held during backend I/O.
type Store struct {
	backend Backend
	log     *zap.Logger
	keys    keyLocks

	mu      sync.RWMutex
	records map[string]*PhotoRecord
	faces   map[string]string // face ID -> filename
	idx     *indices
}

// NewStore creates a store. backend may be nil for a purely in-memory archive.
func NewStore(backend Backend, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		backend: backend,
		log:     log,
		keys:    keyLocks{locks: make(map[string]*keyLock)},
		records: make(map[string]*PhotoRecord),
		faces:   make(map[string]string),
		idx:     newIndices(),
	}
}

// Load rebuilds the in-memory records and indices from a full backend scan
// and swaps them in at once. Records only in memory are dropped.
//
// A Put that lands while the scan runs may be swapped out for the version
// the scan read; the backend keeps the newer one and the next Load or a
// backend read on miss restores it.
func (s *Store) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	next := NewStore(nil, s.log)
	err := s.backend.Scan(ctx, func(rec PhotoRecord) error {
		if err := validateRecord(&rec); err != nil {
			s.log.Warn("skipping invalid stored record", zap.String("filename", rec.Filename), zap.Error(err))
			return nil
		}
		if err := next.checkFaceOwnership(&rec); err != nil {
			s.log.Warn("skipping stored record", zap.String("filename", rec.Filename), zap.Error(err))
			return nil
		}
		next.replaceLocked(rec.Clone())
		return nil
	})
	if err != nil {
		return fmt.Errorf("loading records: %w", err)
	}

	s.mu.Lock()
	s.records, s.faces, s.idx = next.records, next.faces, next.idx
	s.mu.Unlock()
	s.log.Info("record store loaded", zap.Int("records", len(next.records)))
	return nil
}

// Refresh calls Load every interval until ctx is done, so records written by
// other processes sharing the backend become searchable. Failed loads are
// logged and keep the previous state.
func (s *Store) Refresh(ctx context.Context, interval time.Duration) {
	if s.backend == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Load(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("record store refresh failed", zap.Error(err))
			}
		}
	}
}

// Close closes the backend.
func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	if err := s.backend.Close(); err != nil {
		return fmt.Errorf("closing backend: %w", err)
	}
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Put inserts or fully replaces the record keyed by its filename.
func (s *Store) Put(ctx context.Context, record PhotoRecord) error {
	if err := validateRecord(&record); err != nil {
		return err
	}
	record = record.Clone()

	unlock := s.keys.lock(record.Filename)
	defer unlock()

	s.mu.RLock()
	err := s.checkFaceOwnership(&record)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	if s.backend != nil {
		if err := s.backend.Put(ctx, record); err != nil {
			return fmt.Errorf("storing record %s: %w", record.Filename, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A concurrent Put of another file may have claimed one of our face IDs meanwhile.
	if err := s.checkFaceOwnership(&record); err != nil {
		return err
	}
	s.replaceLocked(record)
	return nil
}

// Get returns a copy of the record, or ErrNotFound. A record missing from
// memory is read from the backend and cached.
func (s *Store) Get(ctx context.Context, filename string) (PhotoRecord, error) {
	s.mu.RLock()
	rec, ok := s.records[filename]
	var cp PhotoRecord
	if ok {
		cp = rec.Clone()
	}
	s.mu.RUnlock()
	if ok {
		return cp, nil
	}
	if s.backend == nil {
		return PhotoRecord{}, fmt.Errorf("record %s: %w", filename, ErrNotFound)
	}

	unlock := s.keys.lock(filename)
	defer unlock()
	fresh, err := s.backend.Get(ctx, filename)
	if err != nil {
		return PhotoRecord{}, fmt.Errorf("record %s: %w", filename, err)
	}
	s.adopt(fresh)
	return fresh, nil
}

// UpdateFaceName sets the person name of one face. Applying the same name
// twice leaves the same state.
func (s *Store) UpdateFaceName(ctx context.Context, filename, faceID, personName string) error {
	personName = strings.TrimSpace(personName)
	if personName == "" {
		return Validationf("person name is required")
	}

	unlock := s.keys.lock(filename)
	defer unlock()

	rec, faceIndex, err := s.locateFace(ctx, filename, faceID)
	if err != nil {
		return err
	}

	if s.backend != nil {
		if err := s.backend.UpdateFaceName(ctx, filename, faceIndex, faceID, personName); err != nil {
			return fmt.Errorf("updating face %s: %w", faceID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec == nil || s.records[filename] != rec {
		// Not cached, or swapped out by Load; the backend holds the name.
		return nil
	}
	face := &rec.Faces[faceIndex]
	if face.Tagged() {
		s.idx.removePerson(face.Name(), filename)
	}
	name := personName
	face.PersonName = &name
	s.idx.addPerson(personName, filename)
	return nil
}

// locateFace finds faceID in filename, reading the record from the backend
// when memory does not have it there. rec is the cached record, or nil when
// the backend copy could not be cached. Requires the key lock for filename.
func (s *Store) locateFace(ctx context.Context, filename, faceID string) (rec *PhotoRecord, faceIndex int, err error) {
	s.mu.RLock()
	rec, found := s.records[filename]
	faceIndex = -1
	if found {
		faceIndex = rec.FaceIndex(faceID)
	}
	s.mu.RUnlock()

	if faceIndex < 0 && s.backend != nil {
		fresh, err := s.backend.Get(ctx, filename)
		switch {
		case err == nil:
			found = true
			faceIndex = fresh.FaceIndex(faceID)
			rec = s.adopt(fresh)
		case !errors.Is(err, ErrNotFound):
			return nil, -1, fmt.Errorf("reading record %s: %w", filename, err)
		}
	}

	if !found {
		return nil, -1, fmt.Errorf("record %s: %w", filename, ErrNotFound)
	}
	if faceIndex < 0 {
		return nil, -1, fmt.Errorf("face %s in %s: %w", faceID, filename, ErrFaceNotFound)
	}
	return rec, faceIndex, nil
}

// FindFaceByID returns the owning filename and a copy of the face. A face
// missing from memory is looked up in the backend.
func (s *Store) FindFaceByID(ctx context.Context, faceID string) (string, FaceObservation, error) {
	s.mu.RLock()
	filename, face, ok := s.faceLocked(faceID)
	s.mu.RUnlock()
	if ok {
		return filename, face, nil
	}
	if s.backend == nil {
		return "", FaceObservation{}, fmt.Errorf("face %s: %w", faceID, ErrFaceNotFound)
	}

	found, err := s.backend.FindFace(ctx, faceID)
	if err != nil {
		return "", FaceObservation{}, fmt.Errorf("face %s: %w", faceID, err)
	}
	unlock := s.keys.lock(found.Filename)
	defer unlock()
	// Re-read under the key lock so a concurrent Put is not overwritten with
	// the older copy.
	fresh, err := s.backend.Get(ctx, found.Filename)
	if err != nil {
		return "", FaceObservation{}, fmt.Errorf("face %s: %w", faceID, err)
	}
	i := fresh.FaceIndex(faceID)
	if i < 0 {
		return "", FaceObservation{}, fmt.Errorf("face %s: %w", faceID, ErrFaceNotFound)
	}
	s.adopt(fresh)
	return fresh.Filename, fresh.Faces[i].Clone(), nil
}

func (s *Store) faceLocked(faceID string) (string, FaceObservation, bool) {
	filename, ok := s.faces[faceID]
	if !ok {
		return "", FaceObservation{}, false
	}
	rec := s.records[filename]
	i := rec.FaceIndex(faceID)
	if i < 0 {
		return "", FaceObservation{}, false
	}
	return filename, rec.Faces[i].Clone(), true
}

// adopt caches a record read from the backend and returns the cached
// pointer. It returns nil, leaving memory unchanged, when the record is
// invalid or one of its faces is still owned by another cached record; the
// next Load settles such conflicts. Requires the key lock for rec.Filename.
func (s *Store) adopt(rec PhotoRecord) *PhotoRecord {
	if err := validateRecord(&rec); err != nil {
		s.log.Warn("not caching invalid stored record", zap.String("filename", rec.Filename), zap.Error(err))
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFaceOwnership(&rec); err != nil {
		s.log.Debug("not caching stored record", zap.String("filename", rec.Filename), zap.Error(err))
		return nil
	}
	s.replaceLocked(rec.Clone())
	return s.records[rec.Filename]
}

// Delete removes a record and its faces. Deleting a record that neither
// memory nor the backend holds returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, filename string) error {
	unlock := s.keys.lock(filename)
	defer unlock()

	s.mu.RLock()
	_, ok := s.records[filename]
	s.mu.RUnlock()

	if s.backend != nil {
		if !ok {
			if _, err := s.backend.Get(ctx, filename); err != nil {
				return fmt.Errorf("record %s: %w", filename, err)
			}
		}
		if err := s.backend.Delete(ctx, filename); err != nil {
			return fmt.Errorf("deleting record %s: %w", filename, err)
		}
	} else if !ok {
		return fmt.Errorf("record %s: %w", filename, ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(filename)
	return nil
}

// All yields a copy of every record in filename order. The set of filenames
// is fixed when iteration starts; records deleted meanwhile are skipped.
func (s *Store) All() iter.Seq[PhotoRecord] {
	return func(yield func(PhotoRecord) bool) {
		s.mu.RLock()
		names := sortedKeys(s.records)
		s.mu.RUnlock()

		for _, name := range names {
			s.mu.RLock()
			rec, ok := s.records[name]
			var cp PhotoRecord
			if ok {
				cp = rec.Clone()
			}
			s.mu.RUnlock()
			if !ok {
				continue
			}
			if !yield(cp) {
				return
			}
		}
	}
}

// FilenamesByLabel returns the files carrying a label (any confidence), case-insensitive.
func (s *Store) FilenamesByLabel(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.idx.labels[facematch.Fold(name)])
}

// FilenamesByPerson returns the files with at least one face tagged as name, case-insensitive.
func (s *Store) FilenamesByPerson(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.idx.people[facematch.Fold(name)])
}

// FilenamesByText returns candidate files whose OCR text may contain query.
// Candidates must be verified. ok is false when query is too short for the
// trigram index and the caller has to scan.
func (s *Store) FilenamesByText(query string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookupTrigrams(s.idx.text, query)
}

// FilenamesByLocation is FilenamesByText for metadata["location"].
func (s *Store) FilenamesByLocation(query string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookupTrigrams(s.idx.location, query)
}

// People lists every tagged person with face and photo counts, sorted by name.
func (s *Store) People() []Person {
	s.mu.RLock()
	defer s.mu.RUnlock()

	people := make([]Person, 0, len(s.idx.people))
	for key, files := range s.idx.people {
		p := Person{Name: s.idx.names[key], PhotoCount: len(files)}
		for _, n := range files {
			p.FaceCount += n
		}
		people = append(people, p)
	}
	slices.SortFunc(people, func(a, b Person) int { return strings.Compare(a.Name, b.Name) })
	return people
}

// UntaggedFaces returns up to limit faces without a person name, in filename
// order. A limit <= 0 returns all of them.
func (s *Store) UntaggedFaces(limit int) []FaceRef {
	var out []FaceRef
	for rec := range s.All() {
		for _, f := range rec.Faces {
			if f.Tagged() {
				continue
			}
			out = append(out, FaceRef{Filename: rec.Filename, StorageLocation: rec.StorageLocation, Face: f})
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// replaceLocked swaps in rec and its index entries. Requires s.mu.
func (s *Store) replaceLocked(rec PhotoRecord) {
	s.removeLocked(rec.Filename)
	s.records[rec.Filename] = &rec
	for i := range rec.Faces {
		s.faces[rec.Faces[i].FaceID] = rec.Filename
	}
	s.idx.add(&rec)
}

// removeLocked drops a record and its index entries. Requires s.mu.
func (s *Store) removeLocked(filename string) {
	old, ok := s.records[filename]
	if !ok {
		return
	}
	s.idx.remove(old)
	for i := range old.Faces {
		if s.faces[old.Faces[i].FaceID] == filename {
			delete(s.faces, old.Faces[i].FaceID)
		}
	}
	delete(s.records, filename)
}

// checkFaceOwnership rejects face IDs already owned by a different record.
// Requires s.mu (read or write).
func (s *Store) checkFaceOwnership(rec *PhotoRecord) error {
	for i := range rec.Faces {
		if owner, ok := s.faces[rec.Faces[i].FaceID]; ok && owner != rec.Filename {
			return Validationf("face %s already belongs to %s", rec.Faces[i].FaceID, owner)
		}
	}
	return nil
}

func validateRecord(rec *PhotoRecord) error {
	if strings.TrimSpace(rec.Filename) == "" {
		return Validationf("filename is required")
	}
	seen := make(map[string]struct{}, len(rec.Faces))
	for i := range rec.Faces {
		id := rec.Faces[i].FaceID
		if id == "" {
			return Validationf("face %d of %s has no face ID", i, rec.Filename)
		}
		if _, dup := seen[id]; dup {
			return Validationf("face %s appears twice in %s", id, rec.Filename)
		}
		seen[id] = struct{}{}
	}
	for _, l := range rec.Labels {
		if l.Confidence < 0 || l.Confidence > 100 {
			return Validationf("label %q confidence %.2f outside [0,100]", l.Name, l.Confidence)
		}
	}
	return nil
}

// keyLocks hands out one mutex per key, dropping it when unused.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
