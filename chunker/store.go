package chunker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store persists chunks under root/<domain>/<release_id>/<chunk_id>.json.
type Store struct {
	Root string
}

func NewStore(root string) *Store { return &Store{Root: root} }

func (s *Store) dir(domain, releaseID string) string {
	return filepath.Join(s.Root, domain, releaseID)
}

// Path returns where a chunk file lives, whether or not it exists.
func (s *Store) Path(domain, releaseID, chunkID string) string {
	return filepath.Join(s.dir(domain, releaseID), chunkID+".json")
}

// Put writes one chunk and returns the destination path with forward
// slashes.
func (s *Store) Put(ch Chunk) (string, error) {
	dir := s.dir(ch.Domain, ch.ReleaseID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("chunker: create dir: %w", err)
	}
	data, err := json.MarshalIndent(ch, "", "  ")
	if err != nil {
		return "", fmt.Errorf("chunker: encode %s: %w", ch.ChunkID, err)
	}
	dest := filepath.Join(dir, ch.ChunkID+".json")
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("chunker: write %s: %w", dest, err)
	}
	return filepath.ToSlash(dest), nil
}

// PutAll persists every chunk, returning written paths.
func (s *Store) PutAll(chunks []Chunk) ([]string, error) {
	paths := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		p, err := s.Put(ch)
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// Get loads one chunk by id.
func (s *Store) Get(domain, releaseID, chunkID string) (Chunk, error) {
	data, err := os.ReadFile(s.Path(domain, releaseID, chunkID))
	if err != nil {
		return Chunk{}, fmt.Errorf("chunker: read %s: %w", chunkID, err)
	}
	var ch Chunk
	if err := json.Unmarshal(data, &ch); err != nil {
		return Chunk{}, fmt.Errorf("chunker: decode %s: %w", chunkID, err)
	}
	return ch, nil
}

// List loads every chunk in a release, sorted by chunk_id.
func (s *Store) List(domain, releaseID string) ([]Chunk, error) {
	dir := s.dir(domain, releaseID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("chunker: read dir %s: %w", dir, err)
	}
	var out []Chunk
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("chunker: read %s: %w", e.Name(), err)
		}
		var ch Chunk
		if err := json.Unmarshal(data, &ch); err != nil {
			return nil, fmt.Errorf("chunker: decode %s: %w", e.Name(), err)
		}
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkID < out[j].ChunkID })
	return out, nil
}
