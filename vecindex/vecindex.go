// Package vecindex holds the domain/release-scoped vector index. The
// default backend is one JSONL file per release; a SQLite backend backed
// by sqlite-vec is available as an adapter. Cross-domain leakage is
// prevented by construction: every release gets its own index.
package vecindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/avollmer/corpus/chunker"
	"github.com/avollmer/corpus/embed"
)

// ErrInvalid marks scope or shape violations in upsert/query input.
var ErrInvalid = errors.New("vecindex: invalid input")

// FilterKeys are the only metadata keys consulted by query filters.
var FilterKeys = []string{"concept_id", "level", "graph_id", "graph_version", "dataset_version", "index_version"}

// Row is one indexed chunk.
type Row struct {
	ChunkID      string `json:"chunk_id"`
	Domain       string `json:"domain"`
	ReleaseID    string `json:"release_id"`
	Text         string `json:"text"`
	EmbeddingRef string `json:"embedding_ref"`

	ConceptID      string `json:"concept_id,omitempty"`
	Level          string `json:"level,omitempty"`
	GraphID        string `json:"graph_id,omitempty"`
	GraphVersion   string `json:"graph_version,omitempty"`
	DatasetVersion string `json:"dataset_version,omitempty"`
	IndexVersion   string `json:"index_version,omitempty"`
}

// Result is a row with its similarity score.
type Result struct {
	Row
	Score float64 `json:"score"`
}

// Store is the vector index contract shared by all backends.
type Store interface {
	Upsert(ctx context.Context, domain, releaseID string, chunks []chunker.Chunk) error
	Query(ctx context.Context, domain, releaseID string, queryVector []float64, filters map[string]string, topK int) ([]Result, error)
}

func (r Row) filterValue(key string) string {
	switch key {
	case "concept_id":
		return r.ConceptID
	case "level":
		return r.Level
	case "graph_id":
		return r.GraphID
	case "graph_version":
		return r.GraphVersion
	case "dataset_version":
		return r.DatasetVersion
	case "index_version":
		return r.IndexVersion
	}
	return ""
}

func matchesFilters(r Row, filters map[string]string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, k := range FilterKeys {
		required := strings.TrimSpace(filters[k])
		if required == "" {
			continue
		}
		if r.filterValue(k) != required {
			return false
		}
	}
	return true
}

func rowFromChunk(domain, releaseID string, ch chunker.Chunk) Row {
	return Row{
		ChunkID:        ch.ChunkID,
		Domain:         domain,
		ReleaseID:      releaseID,
		Text:           ch.Text,
		EmbeddingRef:   ch.EmbeddingRef,
		ConceptID:      strings.TrimSpace(ch.ConceptID),
		Level:          strings.TrimSpace(ch.Level),
		GraphID:        strings.TrimSpace(ch.GraphID),
		GraphVersion:   strings.TrimSpace(ch.GraphVersion),
		DatasetVersion: strings.TrimSpace(ch.DatasetVersion),
		IndexVersion:   strings.TrimSpace(ch.IndexVersion),
	}
}

func validateUpsert(domain, releaseID string, chunks []chunker.Chunk) error {
	if domain == "" {
		return fmt.Errorf("%w: domain is required", ErrInvalid)
	}
	if releaseID == "" {
		return fmt.Errorf("%w: release_id is required", ErrInvalid)
	}
	for _, ch := range chunks {
		switch {
		case ch.Domain != domain:
			return fmt.Errorf("%w: chunk domain %q does not match upsert domain %q", ErrInvalid, ch.Domain, domain)
		case ch.ReleaseID != releaseID:
			return fmt.Errorf("%w: chunk release_id %q does not match upsert release_id %q", ErrInvalid, ch.ReleaseID, releaseID)
		case ch.ChunkID == "":
			return fmt.Errorf("%w: chunk_id is required", ErrInvalid)
		case ch.Text == "":
			return fmt.Errorf("%w: text is required", ErrInvalid)
		case ch.EmbeddingRef == "":
			return fmt.Errorf("%w: embedding_ref is required for indexing", ErrInvalid)
		}
	}
	return nil
}

// cosine returns 0 for empty or mismatched vectors rather than failing.
func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0.0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na <= 0.0 || nb <= 0.0 {
		return 0.0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// loadVector resolves an embedding_ref. Unknown schemes yield an empty
// vector (scoring 0); a missing or unreadable file is an error.
func loadVector(embeddingRef string) ([]float64, error) {
	if embeddingRef == "" {
		return nil, nil
	}
	if !strings.HasPrefix(embeddingRef, "file:") {
		return nil, nil
	}
	rec, err := embed.Load(strings.TrimPrefix(embeddingRef, "file:"))
	if err != nil {
		return nil, err
	}
	return rec.Vector, nil
}
