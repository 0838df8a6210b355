package vecindex

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/avollmer/corpus/chunker"
)

// JSONL is the default backend: one index.jsonl per domain/release with
// full-file replace on upsert. Writes to the same release are serialized
// in-process.
type JSONL struct {
	Root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewJSONL(root string) *JSONL {
	return &JSONL{Root: root, locks: make(map[string]*sync.Mutex)}
}

func (s *JSONL) indexPath(domain, releaseID string) string {
	return filepath.Join(s.Root, domain, releaseID, "index.jsonl")
}

func (s *JSONL) releaseLock(domain, releaseID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain + "/" + releaseID
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// Upsert merges rows into the release index by chunk_id and rewrites the
// whole file in chunk_id order.
func (s *JSONL) Upsert(_ context.Context, domain, releaseID string, chunks []chunker.Chunk) error {
	if err := validateUpsert(domain, releaseID, chunks); err != nil {
		return err
	}
	lock := s.releaseLock(domain, releaseID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := readRows(s.indexPath(domain, releaseID))
	if err != nil {
		return err
	}
	byID := make(map[string]Row, len(existing)+len(chunks))
	for _, r := range existing {
		if r.ChunkID != "" {
			byID[r.ChunkID] = r
		}
	}
	for _, ch := range chunks {
		byID[ch.ChunkID] = rowFromChunk(domain, releaseID, ch)
	}
	rows := make([]Row, 0, len(byID))
	for _, r := range byID {
		rows = append(rows, r)
	}
	return WriteIndex(s.Root, domain, releaseID, rows)
}

// Query scores every matching row against the query vector and returns the
// top-k ordered by descending score with chunk_id as tiebreak.
func (s *JSONL) Query(_ context.Context, domain, releaseID string, queryVector []float64, filters map[string]string, topK int) ([]Result, error) {
	if domain == "" {
		return nil, fmt.Errorf("%w: domain is required", ErrInvalid)
	}
	if releaseID == "" {
		return nil, fmt.Errorf("%w: release_id is required", ErrInvalid)
	}
	if topK <= 0 {
		return nil, nil
	}
	rows, err := readRows(s.indexPath(domain, releaseID))
	if err != nil {
		return nil, err
	}
	var candidates []Result
	for _, r := range rows {
		if !matchesFilters(r, filters) {
			continue
		}
		vec, err := loadVector(r.EmbeddingRef)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, Result{Row: r, Score: cosine(queryVector, vec)})
	}
	sortResults(candidates)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}

func readRows(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vecindex: read %s: %w", path, err)
	}
	var rows []Row
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var r Row
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			continue
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// ReadIndex loads every row of a release index; a missing index reads as
// empty.
func ReadIndex(root, domain, releaseID string) ([]Row, error) {
	return readRows(filepath.Join(root, domain, releaseID, "index.jsonl"))
}

// WriteIndex replaces a release index with the given rows: one compact
// JSON object per line, sorted by chunk_id, trailing newline when
// non-empty.
func WriteIndex(root, domain, releaseID string, rows []Row) error {
	dir := filepath.Join(root, domain, releaseID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vecindex: create dir: %w", err)
	}
	ordered := make([]Row, len(rows))
	copy(ordered, rows)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ChunkID < ordered[j].ChunkID })
	var b strings.Builder
	for _, r := range ordered {
		line, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("vecindex: encode row %s: %w", r.ChunkID, err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	path := filepath.Join(dir, "index.jsonl")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("vecindex: write %s: %w", path, err)
	}
	return nil
}
