package vecindex

import (
	"context"
	"fmt"
)

type memoryItem struct {
	row    Row
	vector []float64
}

// Memory preloads a release index and all referenced vectors, so repeated
// queries skip the per-call embedding file reads.
type Memory struct {
	Domain    string
	ReleaseID string
	items     []memoryItem
}

// LoadMemory reads <root>/<domain>/<releaseID>/index.jsonl and every
// referenced vector into memory. A missing index loads as empty.
func LoadMemory(root, domain, releaseID string) (*Memory, error) {
	if domain == "" {
		return nil, fmt.Errorf("%w: domain is required", ErrInvalid)
	}
	if releaseID == "" {
		return nil, fmt.Errorf("%w: release_id is required", ErrInvalid)
	}
	rows, err := ReadIndex(root, domain, releaseID)
	if err != nil {
		return nil, err
	}
	m := &Memory{Domain: domain, ReleaseID: releaseID}
	for _, r := range rows {
		vec, err := loadVector(r.EmbeddingRef)
		if err != nil {
			return nil, err
		}
		m.items = append(m.items, memoryItem{row: r, vector: vec})
	}
	return m, nil
}

// Len reports how many rows are loaded.
func (m *Memory) Len() int { return len(m.items) }

// Query matches the JSONL backend's contract against the preloaded rows.
func (m *Memory) Query(_ context.Context, queryVector []float64, filters map[string]string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}
	var candidates []Result
	for _, it := range m.items {
		if !matchesFilters(it.row, filters) {
			continue
		}
		candidates = append(candidates, Result{Row: it.row, Score: cosine(queryVector, it.vector)})
	}
	sortResults(candidates)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}
