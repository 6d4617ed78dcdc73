package database

import (
	"maps"
	"slices"

	"github.com/kozaktomas/photo-archive/internal/facematch"
)

// postings is a set of filenames.
type postings map[string]struct{}

// indices holds the secondary indices over the in-memory records.
// All methods require the Store's mutex.
type indices struct {
	labels   map[string]postings       // folded label name -> filenames
	people   map[string]map[string]int // folded person name -> filename -> tagged faces
	names    map[string]string         // folded person name -> display name
	text     map[string]postings       // OCR trigram -> filenames
	location map[string]postings       // location trigram -> filenames
}

func newIndices() *indices {
	return &indices{
		labels:   make(map[string]postings),
		people:   make(map[string]map[string]int),
		names:    make(map[string]string),
		text:     make(map[string]postings),
		location: make(map[string]postings),
	}
}

func addPosting(idx map[string]postings, key, filename string) {
	set, ok := idx[key]
	if !ok {
		set = make(postings)
		idx[key] = set
	}
	set[filename] = struct{}{}
}

func removePosting(idx map[string]postings, key, filename string) {
	set, ok := idx[key]
	if !ok {
		return
	}
	delete(set, filename)
	if len(set) == 0 {
		delete(idx, key)
	}
}

// add indexes every searchable field of rec.
func (x *indices) add(rec *PhotoRecord) {
	for _, l := range rec.Labels {
		addPosting(x.labels, facematch.Fold(l.Name), rec.Filename)
	}
	for i := range rec.Faces {
		if rec.Faces[i].Tagged() {
			x.addPerson(rec.Faces[i].Name(), rec.Filename)
		}
	}
	for _, line := range rec.TextLines {
		for _, g := range facematch.Trigrams(line.Text) {
			addPosting(x.text, g, rec.Filename)
		}
	}
	for _, g := range facematch.Trigrams(rec.Location()) {
		addPosting(x.location, g, rec.Filename)
	}
}

// remove undoes add for the same record contents.
func (x *indices) remove(rec *PhotoRecord) {
	for _, l := range rec.Labels {
		removePosting(x.labels, facematch.Fold(l.Name), rec.Filename)
	}
	for i := range rec.Faces {
		if rec.Faces[i].Tagged() {
			x.removePerson(rec.Faces[i].Name(), rec.Filename)
		}
	}
	for _, line := range rec.TextLines {
		for _, g := range facematch.Trigrams(line.Text) {
			removePosting(x.text, g, rec.Filename)
		}
	}
	for _, g := range facematch.Trigrams(rec.Location()) {
		removePosting(x.location, g, rec.Filename)
	}
}

func (x *indices) addPerson(name, filename string) {
	key := facematch.Fold(name)
	files, ok := x.people[key]
	if !ok {
		files = make(map[string]int)
		x.people[key] = files
	}
	files[filename]++
	x.names[key] = name
}

func (x *indices) removePerson(name, filename string) {
	key := facematch.Fold(name)
	files, ok := x.people[key]
	if !ok {
		return
	}
	files[filename]--
	if files[filename] <= 0 {
		delete(files, filename)
	}
	if len(files) == 0 {
		delete(x.people, key)
		delete(x.names, key)
	}
}

// lookupTrigrams intersects the posting lists of every trigram of query.
// ok is false when the query is too short to use the index.
func lookupTrigrams(idx map[string]postings, query string) (filenames []string, ok bool) {
	grams := facematch.Trigrams(query)
	if len(grams) == 0 {
		return nil, false
	}

	// Start from the smallest list to keep the intersection cheap.
	slices.SortFunc(grams, func(a, b string) int { return len(idx[a]) - len(idx[b]) })
	first, found := idx[grams[0]]
	if !found {
		return nil, true
	}
	result := maps.Clone(first)
	for _, g := range grams[1:] {
		set := idx[g]
		for f := range result {
			if _, hit := set[f]; !hit {
				delete(result, f)
			}
		}
		if len(result) == 0 {
			return nil, true
		}
	}
	return sortedKeys(result), true
}

func sortedKeys[V any](m map[string]V) []string {
	if len(m) == 0 {
		return nil
	}
	return slices.Sorted(maps.Keys(m))
}
