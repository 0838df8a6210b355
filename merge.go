package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/avollmer/corpus/release"
)

// MergeRequest combines several releases of one domain into a new one.
type MergeRequest struct {
	Domain           string   `json:"domain"`
	SourceReleaseIDs []string `json:"source_release_ids"`
	TargetReleaseID  string   `json:"target_release_id,omitempty"`
	CreatedBy        string   `json:"created_by,omitempty"`
}

// MergeSummary counts what a merge wrote.
type MergeSummary struct {
	RowsWritten       int `json:"rows_written"`
	DuplicatesSkipped int `json:"duplicates_skipped"`
	SourceReleases    int `json:"source_releases"`
}

// MergeResult is the outcome of a release merge.
type MergeResult struct {
	Domain           string         `json:"domain"`
	TargetReleaseID  string         `json:"target_release_id"`
	SourceReleaseIDs []string       `json:"source_release_ids"`
	Summary          MergeSummary   `json:"summary"`
	Release          release.Record `json:"release"`
}

// Merge copies the source releases' artifacts into a fresh target
// release and merges their index rows, first release wins per chunk id.
func (s *Service) Merge(req MergeRequest) (MergeResult, error) {
	if strings.TrimSpace(req.Domain) == "" {
		return MergeResult{}, fmt.Errorf("%w: domain is required", ErrValidation)
	}
	var sources []string
	for _, id := range req.SourceReleaseIDs {
		if id = strings.TrimSpace(id); id != "" {
			sources = append(sources, id)
		}
	}
	if len(sources) < 2 {
		return MergeResult{}, fmt.Errorf("%w: source_release_ids must include at least two releases", ErrValidation)
	}

	targetID := strings.TrimSpace(req.TargetReleaseID)
	if targetID == "" {
		targetID = release.GenerateID(req.Domain)
	}
	rec, err := s.releases.Create(release.Record{
		ReleaseID:        targetID,
		Domain:           req.Domain,
		CreatedBy:        req.CreatedBy,
		Mode:             "merge",
		SourceReleaseIDs: sources,
	})
	if err != nil {
		return MergeResult{}, err
	}

	summary, err := s.mergeArtifacts(req.Domain, sources, targetID)
	if err != nil {
		s.recordEvent(req.Domain, "release_merge", "error", map[string]any{
			"release_id":         targetID,
			"source_release_ids": sources,
			"error":              err.Error(),
		})
		return MergeResult{}, err
	}

	s.recordEvent(req.Domain, "release_merge", "success", map[string]any{
		"release_id":         targetID,
		"source_release_ids": sources,
		"rows_written":       summary.RowsWritten,
		"duplicates_skipped": summary.DuplicatesSkipped,
	})
	s.log.Info("releases merged", "domain", req.Domain, "target_release_id", targetID,
		"sources", len(sources), "rows", summary.RowsWritten, "duplicates", summary.DuplicatesSkipped)
	return MergeResult{
		Domain:           req.Domain,
		TargetReleaseID:  targetID,
		SourceReleaseIDs: sources,
		Summary:          summary,
		Release:          rec,
	}, nil
}

// copyRewriteJSON copies a JSON object file, letting patch rewrite the
// decoded object before it is written.
func copyRewriteJSON(src, dest string, patch func(map[string]any)) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode %s: %w", src, err)
	}
	patch(payload)
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, out, 0o644)
}

func (s *Service) mergeArtifacts(domain string, sources []string, targetID string) (MergeSummary, error) {
	canonicalRoot := s.cfg.CanonicalRoot()
	chunksRoot := s.cfg.ChunksRoot()
	embeddingsRoot := s.cfg.EmbeddingsRoot()
	vectorRoot := s.cfg.VectorRoot()

	targetCanonicalDir := filepath.Join(canonicalRoot, domain, targetID)
	targetChunksDir := filepath.Join(chunksRoot, domain, targetID)
	targetEmbeddingsDir := filepath.Join(embeddingsRoot, domain, targetID)
	targetIndexPath := filepath.Join(vectorRoot, domain, targetID, "index.jsonl")
	for _, dir := range []string{targetCanonicalDir, targetChunksDir, targetEmbeddingsDir, filepath.Dir(targetIndexPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return MergeSummary{}, err
		}
	}

	// Canonical artifacts are copied best effort: retrieval does not
	// need them but a merged release should stay self-contained.
	for _, srcID := range sources {
		srcDir := filepath.Join(canonicalRoot, domain, srcID)
		entries, err := os.ReadDir(srcDir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			dest := filepath.Join(targetCanonicalDir, entry.Name())
			if _, err := os.Stat(dest); err == nil {
				continue
			}
			err := copyRewriteJSON(filepath.Join(srcDir, entry.Name()), dest, func(obj map[string]any) {
				obj["domain"] = domain
				if prov, ok := obj["provenance"].(map[string]any); ok {
					prov["release_id"] = targetID
				}
			})
			if err != nil {
				return MergeSummary{}, err
			}
		}
	}

	merged := map[string]map[string]any{}
	duplicates := 0

	for _, srcID := range sources {
		indexPath := filepath.Join(vectorRoot, domain, srcID, "index.jsonl")
		data, err := os.ReadFile(indexPath)
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var row map[string]any
			if err := json.Unmarshal([]byte(line), &row); err != nil {
				continue
			}
			chunkID, _ := row["chunk_id"].(string)
			chunkID = strings.TrimSpace(chunkID)
			if chunkID == "" {
				continue
			}
			if _, ok := merged[chunkID]; ok {
				duplicates++
				continue
			}

			srcChunkPath := filepath.Join(chunksRoot, domain, srcID, chunkID+".json")
			if _, err := os.Stat(srcChunkPath); err != nil {
				return MergeSummary{}, fmt.Errorf("%w: missing chunk file for %s in release %s", ErrIntegrity, chunkID, srcID)
			}
			err := copyRewriteJSON(srcChunkPath, filepath.Join(targetChunksDir, chunkID+".json"), func(obj map[string]any) {
				obj["domain"] = domain
				obj["release_id"] = targetID
			})
			if err != nil {
				return MergeSummary{}, err
			}

			embRef, _ := row["embedding_ref"].(string)
			embRef = strings.TrimSpace(embRef)
			if !strings.HasPrefix(embRef, "file:") || embRef == "file:" {
				return MergeSummary{}, fmt.Errorf("%w: unsupported embedding_ref for %s: %s", ErrIntegrity, chunkID, embRef)
			}
			srcEmbPath := strings.TrimPrefix(embRef, "file:")
			if _, err := os.Stat(srcEmbPath); err != nil {
				return MergeSummary{}, fmt.Errorf("%w: missing embedding file for %s: %s", ErrIntegrity, chunkID, srcEmbPath)
			}
			destEmbPath := filepath.Join(targetEmbeddingsDir, filepath.Base(srcEmbPath))
			err = copyRewriteJSON(srcEmbPath, destEmbPath, func(obj map[string]any) {
				obj["domain"] = domain
				obj["release_id"] = targetID
			})
			if err != nil {
				return MergeSummary{}, err
			}
			absEmbPath, err := filepath.Abs(destEmbPath)
			if err != nil {
				return MergeSummary{}, err
			}

			newRow := make(map[string]any, len(row))
			for k, v := range row {
				newRow[k] = v
			}
			newRow["domain"] = domain
			newRow["release_id"] = targetID
			newRow["embedding_ref"] = "file:" + filepath.ToSlash(absEmbPath)
			merged[chunkID] = newRow
		}
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var b strings.Builder
	for _, id := range ids {
		line, err := json.Marshal(merged[id])
		if err != nil {
			return MergeSummary{}, err
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(targetIndexPath, []byte(b.String()), 0o644); err != nil {
		return MergeSummary{}, err
	}
	return MergeSummary{RowsWritten: len(ids), DuplicatesSkipped: duplicates, SourceReleases: len(sources)}, nil
}
