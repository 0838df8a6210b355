package embed

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Record is the persisted embedding payload.
type Record struct {
	ChunkID   string    `json:"chunk_id"`
	Domain    string    `json:"domain"`
	ReleaseID string    `json:"release_id"`
	Vector    []float64 `json:"vector"`
}

// FileStore writes one JSON file per vector under
// root/<domain>/<release_id>/. References use the file: scheme with an
// absolute forward-slash path.
type FileStore struct {
	Root string
}

func NewFileStore(root string) *FileStore { return &FileStore{Root: root} }

// Put stores a vector and returns its embedding_ref. The file name carries
// a digest of the compact vector JSON, so re-embedding identical text is
// idempotent.
func (s *FileStore) Put(domain, releaseID, chunkID string, vector []float64) (string, error) {
	dir := filepath.Join(s.Root, domain, releaseID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("embed: create dir: %w", err)
	}
	compact, err := json.Marshal(vector)
	if err != nil {
		return "", fmt.Errorf("embed: encode vector: %w", err)
	}
	sum := sha256.Sum256(compact)
	name := fmt.Sprintf("%s_emb_%s.json", chunkID, hex.EncodeToString(sum[:])[:24])
	dest := filepath.Join(dir, name)
	payload, err := json.MarshalIndent(Record{
		ChunkID:   chunkID,
		Domain:    domain,
		ReleaseID: releaseID,
		Vector:    vector,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("embed: encode record: %w", err)
	}
	if err := os.WriteFile(dest, payload, 0o644); err != nil {
		return "", fmt.Errorf("embed: write %s: %w", dest, err)
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return "", fmt.Errorf("embed: resolve %s: %w", dest, err)
	}
	return "file:" + filepath.ToSlash(abs), nil
}

// Load reads a Record back from an embedding file path.
func Load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("embed: read %s: %w", path, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("embed: decode %s: %w", path, err)
	}
	return rec, nil
}
