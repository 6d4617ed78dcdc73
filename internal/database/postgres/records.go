package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/kozaktomas/photo-archive/internal/database"
)

// Backend persists photo records in the photo_records table. Nested fields
// are stored as JSONB columns.
type Backend struct {
	pool *Pool
}

// NewBackend creates a Backend on an already migrated pool.
func NewBackend(pool *Pool) *Backend {
	return &Backend{pool: pool}
}

const selectRecords = `
	SELECT filename, storage_location, uploaded_at, metadata, labels, faces, text_lines, celebrities
	FROM photo_records`

// Scan streams every record in filename order.
func (b *Backend) Scan(ctx context.Context, fn func(database.PhotoRecord) error) error {
	rows, err := b.pool.db.QueryContext(ctx, selectRecords+` ORDER BY filename`)
	if err != nil {
		return fmt.Errorf("query photo records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate photo records: %w", err)
	}
	return nil
}

// Get reads one record by filename.
func (b *Backend) Get(ctx context.Context, filename string) (database.PhotoRecord, error) {
	rec, err := b.queryOne(ctx, selectRecords+` WHERE filename = $1`, filename)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("photo record %s: %w", filename, database.ErrNotFound)
	}
	return rec, err
}

// FindFace returns the record whose faces array holds faceID. The containment
// query is served by photo_records_faces_idx.
func (b *Backend) FindFace(ctx context.Context, faceID string) (database.PhotoRecord, error) {
	rec, err := b.queryOne(ctx, selectRecords+`
		WHERE faces @> jsonb_build_array(jsonb_build_object('face_id', $1::text))
		LIMIT 1`, faceID)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("face %s: %w", faceID, database.ErrFaceNotFound)
	}
	return rec, err
}

// queryOne returns the first row of query, or sql.ErrNoRows.
func (b *Backend) queryOne(ctx context.Context, query string, args ...any) (database.PhotoRecord, error) {
	rows, err := b.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return database.PhotoRecord{}, fmt.Errorf("query photo record: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return database.PhotoRecord{}, fmt.Errorf("query photo record: %w", err)
		}
		return database.PhotoRecord{}, sql.ErrNoRows
	}
	return scanRecord(rows)
}

// Put inserts or fully replaces a record.
func (b *Backend) Put(ctx context.Context, rec database.PhotoRecord) error {
	cols, err := encodeColumns(&rec)
	if err != nil {
		return err
	}

	_, err = b.pool.db.ExecContext(ctx, `
		INSERT INTO photo_records (filename, storage_location, uploaded_at, metadata, labels, faces, text_lines, celebrities, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (filename) DO UPDATE SET
			storage_location = EXCLUDED.storage_location,
			uploaded_at = EXCLUDED.uploaded_at,
			metadata = EXCLUDED.metadata,
			labels = EXCLUDED.labels,
			faces = EXCLUDED.faces,
			text_lines = EXCLUDED.text_lines,
			celebrities = EXCLUDED.celebrities,
			updated_at = NOW()
	`, rec.Filename, rec.StorageLocation, rec.UploadedAt.UTC(),
		cols[0], cols[1], cols[2], cols[3], cols[4])
	if err != nil {
		return fmt.Errorf("upsert photo record %s: %w", rec.Filename, err)
	}
	return nil
}

// UpdateFaceName rewrites a single person_name inside the faces array. The
// face_id guard makes the write fail if the array changed since the index
// was computed.
func (b *Backend) UpdateFaceName(ctx context.Context, filename string, faceIndex int, faceID, personName string) error {
	idx := strconv.Itoa(faceIndex)
	result, err := b.pool.db.ExecContext(ctx, `
		UPDATE photo_records
		SET faces = jsonb_set(faces, ARRAY[$2::text, 'person_name'], to_jsonb($3::text)),
			updated_at = NOW()
		WHERE filename = $1 AND faces->($4::int)->>'face_id' = $5
	`, filename, idx, personName, faceIndex, faceID)
	if err != nil {
		return fmt.Errorf("update face %s: %w", faceID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("face %s at index %d of %s: %w", faceID, faceIndex, filename, database.ErrFaceNotFound)
	}
	return nil
}

// Delete removes a record. Missing records are ignored.
func (b *Backend) Delete(ctx context.Context, filename string) error {
	if _, err := b.pool.db.ExecContext(ctx, `DELETE FROM photo_records WHERE filename = $1`, filename); err != nil {
		return fmt.Errorf("delete photo record %s: %w", filename, err)
	}
	return nil
}

// Close closes the underlying pool.
func (b *Backend) Close() error {
	return b.pool.Close()
}

func scanRecord(rows *sql.Rows) (database.PhotoRecord, error) {
	var rec database.PhotoRecord
	var metadata, labels, faces, text, celebrities []byte

	if err := rows.Scan(&rec.Filename, &rec.StorageLocation, &rec.UploadedAt,
		&metadata, &labels, &faces, &text, &celebrities); err != nil {
		return rec, fmt.Errorf("scan photo record: %w", err)
	}

	targets := []struct {
		column string
		data   []byte
		dest   any
	}{
		{"metadata", metadata, &rec.Metadata},
		{"labels", labels, &rec.Labels},
		{"faces", faces, &rec.Faces},
		{"text_lines", text, &rec.TextLines},
		{"celebrities", celebrities, &rec.Celebrities},
	}
	for _, t := range targets {
		if len(t.data) == 0 {
			continue
		}
		if err := json.Unmarshal(t.data, t.dest); err != nil {
			return rec, fmt.Errorf("decode %s of %s: %w", t.column, rec.Filename, err)
		}
	}
	return rec, nil
}

// encodeColumns marshals the JSONB columns in table order. Values are sent as
// text since lib/pq encodes []byte as bytea. Nil slices become empty arrays.
func encodeColumns(rec *database.PhotoRecord) ([5]string, error) {
	var out [5]string
	values := []any{
		nonNilMap(rec.Metadata),
		nonNil(rec.Labels),
		nonNil(rec.Faces),
		nonNil(rec.TextLines),
		nonNil(rec.Celebrities),
	}
	for i, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return out, fmt.Errorf("encode record %s: %w", rec.Filename, err)
		}
		out[i] = string(data)
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
