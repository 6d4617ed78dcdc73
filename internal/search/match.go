package search

import (
	"strings"

	"github.com/kozaktomas/photo-archive/internal/constants"
	"github.com/kozaktomas/photo-archive/internal/database"
	"github.com/kozaktomas/photo-archive/internal/facematch"
)

// matcher is Criteria with every string folded once. Blank text and
// location criteria are not applied.
type matcher struct {
	c        Criteria
	labels   map[string]struct{}
	people   map[string]struct{}
	text     string
	location string
}

func compile(c Criteria) *matcher {
	m := &matcher{c: c, text: foldQuery(c.Text), location: foldQuery(c.Location)}
	if labels := nonBlank(c.Labels); len(labels) > 0 {
		m.labels = foldSet(labels)
	}
	if people := nonBlank(c.People); len(people) > 0 {
		m.people = foldSet(people)
	}
	return m
}

func foldSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[facematch.Fold(v)] = struct{}{}
	}
	return set
}

func (m *matcher) match(rec *database.PhotoRecord) bool {
	if m.labels != nil && !m.matchLabels(rec) {
		return false
	}
	if m.people != nil && !m.matchPeople(rec) {
		return false
	}
	if m.text != "" && !m.matchText(rec) {
		return false
	}
	if m.location != "" && !m.matchLocation(rec) {
		return false
	}
	if !m.c.UploadedAfter.IsZero() && rec.UploadedAt.Before(m.c.UploadedAfter) {
		return false
	}
	if !m.c.UploadedBefore.IsZero() && !rec.UploadedAt.Before(m.c.UploadedBefore) {
		return false
	}
	return true
}

func (m *matcher) matchLabels(rec *database.PhotoRecord) bool {
	for _, l := range rec.Labels {
		if _, ok := m.labels[facematch.Fold(l.Name)]; ok && l.Confidence >= m.c.MinLabelConfidence {
			return true
		}
	}
	return false
}

func (m *matcher) matchPeople(rec *database.PhotoRecord) bool {
	for i := range rec.Faces {
		if !rec.Faces[i].Tagged() {
			continue
		}
		if _, ok := m.people[facematch.Fold(rec.Faces[i].Name())]; ok {
			return true
		}
	}
	return false
}

// matchText matches within a single OCR line.
func (m *matcher) matchText(rec *database.PhotoRecord) bool {
	for _, line := range rec.TextLines {
		if containsFolded(line.Text, m.text) {
			return true
		}
	}
	return false
}

func (m *matcher) matchLocation(rec *database.PhotoRecord) bool {
	loc, ok := rec.Metadata[constants.LocationMetadataKey]
	return ok && containsFolded(loc, m.location)
}

// foldQuery folds a substring query keeping its surrounding spaces. A blank
// query folds to "" and is not applied.
func foldQuery(q string) string {
	if strings.TrimSpace(q) == "" {
		return ""
	}
	return facematch.FoldText(q)
}

func containsFolded(s, foldedSub string) bool {
	return strings.Contains(facematch.FoldText(s), foldedSub)
}
