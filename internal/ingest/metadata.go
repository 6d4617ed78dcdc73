package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// filenameColumn joins metadata rows to image files.
const filenameColumn = "filename"

// ReadMetadata parses a CSV file whose header names the metadata keys. One
// column must be "filename"; the other non-empty cells of a row become that
// file's metadata. Later rows for the same filename replace earlier ones.
func ReadMetadata(r io.Reader) (map[string]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return map[string]map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading metadata header: %w", err)
	}

	keyCol := -1
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		header[i] = h
		if strings.EqualFold(h, filenameColumn) {
			keyCol = i
		}
	}
	if keyCol < 0 {
		return nil, fmt.Errorf("metadata header has no %q column", filenameColumn)
	}

	out := make(map[string]map[string]string)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading metadata: %w", err)
		}
		if keyCol >= len(row) {
			continue
		}
		filename := strings.TrimSpace(row[keyCol])
		if filename == "" {
			continue
		}

		meta := make(map[string]string)
		for i, cell := range row {
			if i == keyCol || i >= len(header) || header[i] == "" {
				continue
			}
			if cell = strings.TrimSpace(cell); cell != "" {
				meta[header[i]] = cell
			}
		}
		out[filename] = meta
	}
	return out, nil
}
