package core

import (
	"sort"
	"strings"
	"sync"
)

// DocumentBackend is a minimal full-text store; Search scans every
// committed document and keeps no inverted index. It is one
// of the "trivial internals, enumerated contract" backends
type DocumentBackend struct {
	mu      sync.RWMutex
	docs    map[string]Document
	pending map[string]Document // staged until Commit, per the index/commit contract
}

// NewDocumentBackend constructs an empty document backend.
func NewDocumentBackend() *DocumentBackend {
	return &DocumentBackend{docs: make(map[string]Document), pending: make(map[string]Document)}
}

// Index stages id's document for the next Commit.
func (d *DocumentBackend) Index(id string, doc Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[id] = doc
	return nil
}

// Commit flushes all staged documents into the searchable index.
func (d *DocumentBackend) Commit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, doc := range d.pending {
		d.docs[id] = doc
	}
	d.pending = make(map[string]Document)
	return nil
}

// Get returns id's committed document.
func (d *DocumentBackend) Get(id string) (Document, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.docs[id]
	return doc, ok
}

// Delete removes id's committed document.
func (d *DocumentBackend) Delete(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.docs[id]; !ok {
		return false
	}
	delete(d.docs, id)
	return true
}

// DocumentHit is a single scored full-text result.
type DocumentHit struct {
	ID    string
	Score float64
	Title string
}

// Search performs a naive term-frequency scan over title+body, returning
// hits sorted by descending score truncated to limit.
func (d *DocumentBackend) Search(query string, limit int) []DocumentHit {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var hits []DocumentHit
	for id, doc := range d.docs {
		text := strings.ToLower(doc.Title + " " + doc.Body)
		score := 0.0
		for _, term := range terms {
			score += float64(strings.Count(text, term))
		}
		if score > 0 {
			hits = append(hits, DocumentHit{ID: id, Score: score, Title: doc.Title})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
