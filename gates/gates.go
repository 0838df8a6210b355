// Package gates runs deterministic integrity checks over the stored
// artifacts: release records, canonical objects, chunk files, and the
// vector index. The checks are best effort over whatever exists on
// disk; an empty tree passes.
package gates

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Issue is one failed check.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// Runner holds the artifact roots the checks walk.
type Runner struct {
	ReleasesRoot   string
	CanonicalRoot  string
	ChunksRoot     string
	EmbeddingsRoot string
	VectorRoot     string
}

// RunAll runs every check and returns the collected issues. An empty
// slice means the gates pass.
func (r *Runner) RunAll() []Issue {
	var issues []Issue
	issues = append(issues, r.CheckReleases()...)
	issues = append(issues, r.CheckCanonical()...)
	issues = append(issues, r.CheckChunks()...)
	issues = append(issues, r.CheckIndex()...)
	return issues
}

var (
	canonicalIDPattern = regexp.MustCompile(`^clo_[0-9a-f]{24}$`)
	chunkIDPattern     = regexp.MustCompile(`^chk_[0-9a-f]{24}$`)
)

// findFiles collects every file under root whose base name matches the
// glob pattern. A missing root yields nothing.
func findFiles(root, pattern string) []string {
	var paths []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			paths = append(paths, path)
		}
		return nil
	})
	return paths
}

func readJSONMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

// domainReleaseFromPath derives (domain, release_id) from a file's
// position under root: <root>/<domain>/<release_id>/.../file.
func domainReleaseFromPath(root, path string) (string, string) {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 3 {
		return "", ""
	}
	return parts[0], parts[1]
}

func pathFromEmbeddingRef(ref string) string {
	if !strings.HasPrefix(ref, "file:") {
		return ""
	}
	return strings.TrimPrefix(ref, "file:")
}

// CheckReleases validates every release.json and each domain's active
// release pointer.
func (r *Runner) CheckReleases() []Issue {
	var issues []Issue
	for _, path := range findFiles(r.ReleasesRoot, "release.json") {
		payload, err := readJSONMap(path)
		if err != nil {
			issues = append(issues, Issue{"release_json_invalid", fmt.Sprintf("Could not parse JSON: %v", err), path})
			continue
		}
		if msg := validateRelease(payload); msg != "" {
			issues = append(issues, Issue{"release_schema_invalid", "Schema validation failed: " + msg, path})
		}
		rel, err := filepath.Rel(r.ReleasesRoot, path)
		if err == nil {
			parts := strings.Split(filepath.ToSlash(rel), "/")
			if len(parts) >= 4 && parts[1] == "releases" {
				if stringField(payload, "domain") != parts[0] {
					issues = append(issues, Issue{"release_domain_mismatch", "Release record domain does not match path", path})
				}
				if stringField(payload, "release_id") != parts[2] {
					issues = append(issues, Issue{"release_id_mismatch", "Release record release_id does not match path", path})
				}
			}
		}
	}
	entries, err := os.ReadDir(r.ReleasesRoot)
	if err != nil {
		return issues
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		activePath := filepath.Join(r.ReleasesRoot, entry.Name(), "active_release.txt")
		data, err := os.ReadFile(activePath)
		if err != nil {
			continue
		}
		active := strings.TrimSpace(string(data))
		if active == "" {
			issues = append(issues, Issue{"active_release_empty", "active_release.txt is empty", activePath})
			continue
		}
		expected := filepath.Join(r.ReleasesRoot, entry.Name(), "releases", active, "release.json")
		if _, err := os.Stat(expected); err != nil {
			issues = append(issues, Issue{"active_release_missing", "active_release.txt points to a missing release.json", activePath})
		}
	}
	return issues
}

// CheckCanonical validates every stored canonical object and its
// domain/release scoping.
func (r *Runner) CheckCanonical() []Issue {
	var issues []Issue
	for _, path := range findFiles(r.CanonicalRoot, "*.json") {
		if filepath.Base(path) == "release.json" {
			continue
		}
		payload, err := readJSONMap(path)
		if err != nil {
			issues = append(issues, Issue{"canonical_json_invalid", fmt.Sprintf("Could not parse JSON: %v", err), path})
			continue
		}
		if msg := validateCanonical(payload); msg != "" {
			issues = append(issues, Issue{"canonical_schema_invalid", "Schema validation failed: " + msg, path})
		}
		domain, releaseID := domainReleaseFromPath(r.CanonicalRoot, path)
		if domain != "" && stringField(payload, "domain") != domain {
			issues = append(issues, Issue{"canonical_domain_mismatch", "Canonical domain does not match path", path})
		}
		if releaseID != "" {
			if prov, ok := payload["provenance"].(map[string]any); ok {
				if rid, ok := prov["release_id"].(string); ok && rid != releaseID {
					issues = append(issues, Issue{"canonical_release_mismatch", "Canonical provenance.release_id does not match path", path})
				}
			}
		}
	}
	return issues
}

// CheckChunks validates every stored chunk file, including that the
// filename matches the chunk id inside it.
func (r *Runner) CheckChunks() []Issue {
	var issues []Issue
	for _, path := range findFiles(r.ChunksRoot, "*.json") {
		payload, err := readJSONMap(path)
		if err != nil {
			issues = append(issues, Issue{"chunk_json_invalid", fmt.Sprintf("Could not parse JSON: %v", err), path})
			continue
		}
		if msg := validateChunk(payload); msg != "" {
			issues = append(issues, Issue{"chunk_schema_invalid", "Schema validation failed: " + msg, path})
		}
		domain, releaseID := domainReleaseFromPath(r.ChunksRoot, path)
		if domain != "" && stringField(payload, "domain") != domain {
			issues = append(issues, Issue{"chunk_domain_mismatch", "Chunk domain does not match path", path})
		}
		if releaseID != "" && stringField(payload, "release_id") != releaseID {
			issues = append(issues, Issue{"chunk_release_mismatch", "Chunk release_id does not match path", path})
		}
		stem := strings.TrimSuffix(filepath.Base(path), ".json")
		if stringField(payload, "chunk_id") != stem {
			issues = append(issues, Issue{"chunk_id_mismatch", "Chunk chunk_id does not match filename", path})
		}
	}
	return issues
}

// CheckIndex validates every index.jsonl row and the chunk and
// embedding files it references.
func (r *Runner) CheckIndex() []Issue {
	var issues []Issue
	for _, indexPath := range findFiles(r.VectorRoot, "index.jsonl") {
		domain, releaseID := domainReleaseFromPath(r.VectorRoot, indexPath)
		data, err := os.ReadFile(indexPath)
		if err != nil {
			issues = append(issues, Issue{"index_read_failed", fmt.Sprintf("Could not read index.jsonl: %v", err), indexPath})
			continue
		}
		for i, line := range strings.Split(string(data), "\n") {
			lineNo := i + 1
			if strings.TrimSpace(line) == "" {
				continue
			}
			var row map[string]any
			if err := json.Unmarshal([]byte(line), &row); err != nil {
				issues = append(issues, Issue{"index_row_invalid", fmt.Sprintf("Line %d: JSON parse failed: %v", lineNo, err), indexPath})
				continue
			}
			chunkID := stringField(row, "chunk_id")
			rowDomain := stringField(row, "domain")
			rowRelease := stringField(row, "release_id")
			if domain != "" && rowDomain != domain {
				issues = append(issues, Issue{"index_domain_mismatch", fmt.Sprintf("Line %d: domain mismatch", lineNo), indexPath})
			}
			if releaseID != "" && rowRelease != releaseID {
				issues = append(issues, Issue{"index_release_mismatch", fmt.Sprintf("Line %d: release_id mismatch", lineNo), indexPath})
			}
			if chunkID == "" {
				issues = append(issues, Issue{"index_missing_chunk_id", fmt.Sprintf("Line %d: missing chunk_id", lineNo), indexPath})
				continue
			}
			chunkPath := filepath.Join(r.ChunksRoot, rowDomain, rowRelease, chunkID+".json")
			if _, err := os.Stat(chunkPath); err != nil {
				issues = append(issues, Issue{"index_missing_chunk_file", fmt.Sprintf("Line %d: missing chunk file", lineNo), chunkPath})
			} else if payload, err := readJSONMap(chunkPath); err != nil {
				issues = append(issues, Issue{"index_chunk_invalid", fmt.Sprintf("Line %d: chunk file invalid: %v", lineNo, err), chunkPath})
			} else if msg := validateChunk(payload); msg != "" {
				issues = append(issues, Issue{"index_chunk_invalid", fmt.Sprintf("Line %d: chunk file invalid: %s", lineNo, msg), chunkPath})
			}
			issues = append(issues, r.checkIndexEmbedding(lineNo, indexPath, row, chunkID, rowDomain, rowRelease)...)
		}
	}
	return issues
}

func (r *Runner) checkIndexEmbedding(lineNo int, indexPath string, row map[string]any, chunkID, rowDomain, rowRelease string) []Issue {
	var issues []Issue
	embPath := pathFromEmbeddingRef(stringField(row, "embedding_ref"))
	if embPath == "" {
		return []Issue{{"index_embedding_ref_invalid", fmt.Sprintf("Line %d: unsupported embedding_ref", lineNo), indexPath}}
	}
	if _, err := os.Stat(embPath); err != nil {
		return []Issue{{"index_missing_embedding", fmt.Sprintf("Line %d: embedding file missing", lineNo), embPath}}
	}
	payload, err := readJSONMap(embPath)
	if err != nil {
		return []Issue{{"embedding_json_invalid", fmt.Sprintf("Line %d: embedding JSON invalid: %v", lineNo, err), embPath}}
	}
	if stringField(payload, "chunk_id") != chunkID {
		issues = append(issues, Issue{"embedding_chunk_id_mismatch", fmt.Sprintf("Line %d: embedding chunk_id mismatch", lineNo), embPath})
	}
	if stringField(payload, "domain") != rowDomain {
		issues = append(issues, Issue{"embedding_domain_mismatch", fmt.Sprintf("Line %d: embedding domain mismatch", lineNo), embPath})
	}
	if stringField(payload, "release_id") != rowRelease {
		issues = append(issues, Issue{"embedding_release_id_mismatch", fmt.Sprintf("Line %d: embedding release_id mismatch", lineNo), embPath})
	}
	if !isNumberVector(payload["vector"]) {
		issues = append(issues, Issue{"embedding_vector_invalid", fmt.Sprintf("Line %d: embedding vector invalid", lineNo), embPath})
	}
	absRoot, rootErr := filepath.Abs(r.EmbeddingsRoot)
	if rel, err := filepath.Rel(absRoot, embPath); rootErr != nil || err != nil || strings.HasPrefix(rel, "..") {
		issues = append(issues, Issue{"embedding_outside_root", fmt.Sprintf("Line %d: embedding file not under embeddings root", lineNo), embPath})
	}
	return issues
}

func isNumberVector(v any) bool {
	vec, ok := v.([]any)
	if !ok {
		return false
	}
	for _, x := range vec {
		if _, ok := x.(float64); !ok {
			return false
		}
	}
	return true
}

// ------------------------------------------------------------- schemas

func requireStrings(payload map[string]any, keys ...string) string {
	var missing []string
	for _, key := range keys {
		if stringField(payload, key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return "missing required fields: " + strings.Join(missing, ", ")
	}
	return ""
}

func validateRelease(payload map[string]any) string {
	return requireStrings(payload, "release_id", "domain", "created_at")
}

func validateCanonical(payload map[string]any) string {
	if msg := requireStrings(payload, "id", "domain", "title"); msg != "" {
		return msg
	}
	if !canonicalIDPattern.MatchString(stringField(payload, "id")) {
		return "id does not match required pattern"
	}
	if _, ok := payload["body"].([]any); !ok {
		return "body must be an array of strings"
	}
	if _, ok := payload["provenance"].(map[string]any); !ok {
		return "provenance must be an object"
	}
	return ""
}

func validateChunk(payload map[string]any) string {
	if msg := requireStrings(payload, "chunk_id", "domain", "release_id", "text"); msg != "" {
		return msg
	}
	if !chunkIDPattern.MatchString(stringField(payload, "chunk_id")) {
		return "chunk_id does not match required pattern"
	}
	return ""
}
