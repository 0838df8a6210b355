// Package canonical builds stable-id learning objects from distilled
// sections and persists them one JSON file per object.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/avollmer/corpus/distill"
)

// Provenance records where an object came from.
type Provenance struct {
	SourceID  string `json:"source_id"`
	ReleaseID string `json:"release_id"`
}

// Object is a canonical learning object. The optional tag fields flow
// through to chunks and index rows when present.
type Object struct {
	ID         string     `json:"id"`
	Domain     string     `json:"domain"`
	Title      string     `json:"title"`
	Body       []string   `json:"body"`
	Concepts   []string   `json:"concepts"`
	Provenance Provenance `json:"provenance"`

	ConceptID      string `json:"concept_id,omitempty"`
	Level          string `json:"level,omitempty"`
	GraphID        string `json:"graph_id,omitempty"`
	GraphVersion   string `json:"graph_version,omitempty"`
	DatasetVersion string `json:"dataset_version,omitempty"`
	IndexVersion   string `json:"index_version,omitempty"`
}

func objectID(domain, releaseID, sourceID, sectionID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s", domain, releaseID, sourceID, sectionID)))
	return "clo_" + hex.EncodeToString(sum[:])[:24]
}

func titleFor(sec distill.Section) string {
	if t := strings.TrimSpace(sec.Title); t != "" {
		return t
	}
	for _, ln := range strings.Split(strings.TrimSpace(sec.CleanText), "\n") {
		if s := strings.TrimSpace(ln); s != "" {
			if runes := []rune(s); len(runes) > 120 {
				return string(runes[:120])
			}
			return s
		}
	}
	return "Untitled"
}

func bodyFor(cleanText string) []string {
	var body []string
	for _, p := range strings.Split(cleanText, "\n\n") {
		if s := strings.TrimSpace(p); s != "" {
			body = append(body, s)
		}
	}
	return body
}

// FromSections canonicalizes sections in section_id order. Output order is
// therefore stable regardless of input order.
func FromSections(sections []distill.Section, domain, sourceID, releaseID string) []Object {
	ordered := make([]distill.Section, len(sections))
	copy(ordered, sections)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].SectionID < ordered[j].SectionID })
	out := make([]Object, 0, len(ordered))
	for _, sec := range ordered {
		out = append(out, Object{
			ID:       objectID(domain, releaseID, sourceID, sec.SectionID),
			Domain:   domain,
			Title:    titleFor(sec),
			Body:     bodyFor(sec.CleanText),
			Concepts: []string{},
			Provenance: Provenance{
				SourceID:  sourceID,
				ReleaseID: releaseID,
			},
		})
	}
	return out
}

// Store persists canonical objects under root/<domain>/<release_id>/<id>.json.
type Store struct {
	Root string
}

func NewStore(root string) *Store { return &Store{Root: root} }

func (s *Store) dir(domain, releaseID string) string {
	return filepath.Join(s.Root, domain, releaseID)
}

// Put writes one object and returns the destination path.
func (s *Store) Put(obj Object) (string, error) {
	dir := s.dir(obj.Domain, obj.Provenance.ReleaseID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("canonical: create dir: %w", err)
	}
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return "", fmt.Errorf("canonical: encode %s: %w", obj.ID, err)
	}
	dest := filepath.Join(dir, obj.ID+".json")
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("canonical: write %s: %w", dest, err)
	}
	return dest, nil
}

// PutAll persists every object, returning the written paths.
func (s *Store) PutAll(objs []Object) ([]string, error) {
	paths := make([]string, 0, len(objs))
	for _, obj := range objs {
		p, err := s.Put(obj)
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// List loads every object in a release, sorted by id.
func (s *Store) List(domain, releaseID string) ([]Object, error) {
	dir := s.dir(domain, releaseID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("canonical: read dir %s: %w", dir, err)
	}
	var out []Object
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("canonical: read %s: %w", e.Name(), err)
		}
		var obj Object
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("canonical: decode %s: %w", e.Name(), err)
		}
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
