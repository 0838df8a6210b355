// Package chunker splits canonical objects into deterministic,
// size-bounded chunks and persists them one JSON file per chunk.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/avollmer/corpus/canonical"
)

// DefaultMaxChars bounds chunk text length when no override is given.
const DefaultMaxChars = 800

// Chunk is the unit of indexing and retrieval.
type Chunk struct {
	ChunkID   string `json:"chunk_id"`
	Domain    string `json:"domain"`
	ReleaseID string `json:"release_id"`
	Text      string `json:"text"`

	ConceptID      string `json:"concept_id,omitempty"`
	Level          string `json:"level,omitempty"`
	GraphID        string `json:"graph_id,omitempty"`
	GraphVersion   string `json:"graph_version,omitempty"`
	DatasetVersion string `json:"dataset_version,omitempty"`
	IndexVersion   string `json:"index_version,omitempty"`

	// EmbeddingRef is attached after embedding; persisted chunk files are
	// written before that happens and omit it.
	EmbeddingRef string `json:"embedding_ref,omitempty"`
}

func chunkID(domain, releaseID, cloID string, index int, text string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d|%s", domain, releaseID, cloID, index, text)))
	return "chk_" + hex.EncodeToString(sum[:])[:24]
}

// splitSentences splits at whitespace runs that follow ., ! or ?. The
// terminator stays with its sentence and the separating whitespace is
// dropped.
func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	i := 0
	for i < len(runes) {
		r := runes[i]
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && isSpace(runes[i+1]) {
			out = append(out, string(runes[start:i+1]))
			i++
			for i < len(runes) && isSpace(runes[i]) {
				i++
			}
			start = i
			continue
		}
		i++
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func hardSlice(text string, maxChars int) []string {
	runes := []rune(text)
	var out []string
	for i := 0; i < len(runes); i += maxChars {
		end := i + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		if s := strings.TrimSpace(string(runes[i:end])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitLongParagraph returns size-bounded units for one paragraph: the
// paragraph itself when it fits, sentence-packed pieces otherwise, with a
// hard slice as the fallback for single run-on sentences.
func splitLongParagraph(text string, maxChars int) []string {
	t := strings.TrimSpace(text)
	if len([]rune(t)) <= maxChars {
		if t == "" {
			return nil
		}
		return []string{t}
	}
	var sentences []string
	for _, s := range splitSentences(t) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) <= 1 {
		return hardSlice(t, maxChars)
	}
	var parts []string
	var cur []string
	curLen := 0
	for _, s := range sentences {
		add := s
		if len(cur) > 0 {
			add = " " + s
		}
		if len(cur) > 0 && curLen+len([]rune(add)) > maxChars {
			parts = append(parts, strings.TrimSpace(strings.Join(cur, "")))
			cur = []string{s}
			curLen = len([]rune(s))
		} else {
			cur = append(cur, add)
			curLen += len([]rune(add))
		}
	}
	if len(cur) > 0 {
		parts = append(parts, strings.TrimSpace(strings.Join(cur, "")))
	}
	var final []string
	for _, p := range parts {
		if len([]rune(p)) <= maxChars {
			final = append(final, p)
		} else {
			final = append(final, hardSlice(p, maxChars)...)
		}
	}
	return final
}

// ChunkObject splits one canonical object. Units are greedily packed into
// chunks joined with blank lines; adding a unit to a non-empty buffer
// accounts for the two joiner characters.
func ChunkObject(obj canonical.Object, domain, releaseID string, maxChars int) []Chunk {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	var units []string
	for _, p := range obj.Body {
		units = append(units, splitLongParagraph(p, maxChars)...)
	}

	var chunks []Chunk
	var cur []string
	curLen := 0
	index := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(cur, "\n\n"))
		cur = nil
		curLen = 0
		if text == "" {
			return
		}
		chunks = append(chunks, Chunk{
			ChunkID:        chunkID(domain, releaseID, obj.ID, index, text),
			Domain:         domain,
			ReleaseID:      releaseID,
			Text:           text,
			ConceptID:      obj.ConceptID,
			Level:          obj.Level,
			GraphID:        obj.GraphID,
			GraphVersion:   obj.GraphVersion,
			DatasetVersion: obj.DatasetVersion,
			IndexVersion:   obj.IndexVersion,
		})
		index++
	}

	for _, u := range units {
		if u == "" {
			continue
		}
		addLen := len([]rune(u))
		if len(cur) > 0 {
			addLen += 2
		}
		if len(cur) > 0 && curLen+addLen > maxChars {
			flush()
		}
		cur = append(cur, u)
		curLen += addLen
	}
	flush()
	return chunks
}

// ChunkObjects chunks objects in id order so output is stable regardless of
// input order.
func ChunkObjects(objs []canonical.Object, domain, releaseID string, maxChars int) []Chunk {
	ordered := make([]canonical.Object, len(objs))
	copy(ordered, objs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	var out []Chunk
	for _, obj := range ordered {
		out = append(out, ChunkObject(obj, domain, releaseID, maxChars)...)
	}
	return out
}
