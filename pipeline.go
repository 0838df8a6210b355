package corpus

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/avollmer/corpus/canonical"
	"github.com/avollmer/corpus/chunker"
	"github.com/avollmer/corpus/distill"
	"github.com/avollmer/corpus/integrity"
	"github.com/avollmer/corpus/release"
)

// RunRequest describes one ingestion run. Raw HTML is taken from
// RawHTML, or read from RawHTMLPath, or loaded from a stored capture,
// in that order.
type RunRequest struct {
	Domain    string `json:"domain"`
	SourceID  string `json:"source_id"`
	ReleaseID string `json:"release_id"`

	RawHTML     string `json:"raw_html,omitempty"`
	RawHTMLPath string `json:"raw_html_path,omitempty"`
	CaptureID   string `json:"capture_id,omitempty"`

	CreatedBy string `json:"created_by,omitempty"`
}

// RunResult reports what one ingestion run produced.
type RunResult struct {
	Status    string          `json:"status"`
	Domain    string          `json:"domain"`
	ReleaseID string          `json:"release_id"`
	Release   *release.Record `json:"release,omitempty"`
	Counts    map[string]int  `json:"counts"`
}

// resolveRawHTML picks the raw HTML for a run request. checkUsable
// additionally rejects captures that failed or are quarantined.
func (s *Service) resolveRawHTML(req RunRequest, checkUsable bool) (string, error) {
	if strings.TrimSpace(req.RawHTML) != "" {
		return req.RawHTML, nil
	}
	if req.RawHTMLPath != "" {
		data, err := os.ReadFile(req.RawHTMLPath)
		if err != nil {
			return "", fmt.Errorf("%w: raw_html_path %s", ErrNotFound, req.RawHTMLPath)
		}
		return string(data), nil
	}
	if req.CaptureID != "" {
		meta, err := s.captures.Load(req.Domain, req.CaptureID)
		if err != nil {
			return "", fmt.Errorf("%w: capture %s/%s", ErrNotFound, req.Domain, req.CaptureID)
		}
		if checkUsable && (meta.Quarantined || !meta.CaptureOK) {
			return "", fmt.Errorf("%w (http_status=%v, quarantined=%v)", ErrCaptureUnusable, meta.HTTPStatus, meta.Quarantined)
		}
		raw, err := s.captures.RawHTML(req.Domain, req.CaptureID)
		if err != nil {
			return "", fmt.Errorf("%w: capture raw html %s/%s", ErrNotFound, req.Domain, req.CaptureID)
		}
		return raw, nil
	}
	return "", fmt.Errorf("%w: raw_html, raw_html_path, or capture_id is required", ErrValidation)
}

// RunIngestion runs the full pipeline for one document: distill,
// classify, canonicalize, chunk, embed, and index. writeRelease
// controls whether a release record is written for this run alone;
// batch runs write one shared record instead.
func (s *Service) RunIngestion(ctx context.Context, req RunRequest, rawHTML string, writeRelease bool) (RunResult, error) {
	if strings.TrimSpace(req.Domain) == "" {
		return RunResult{}, fmt.Errorf("%w: domain is required", ErrValidation)
	}
	if strings.TrimSpace(req.SourceID) == "" {
		return RunResult{}, fmt.Errorf("%w: source_id is required", ErrValidation)
	}
	if strings.TrimSpace(req.ReleaseID) == "" {
		return RunResult{}, fmt.Errorf("%w: release_id is required", ErrValidation)
	}
	if strings.TrimSpace(rawHTML) == "" {
		return RunResult{}, fmt.Errorf("%w: raw_html is required", ErrValidation)
	}

	sourceHash := integrity.HashContent(rawHTML)
	sections := distill.Sections(rawHTML, req.Domain, sourceHash)
	kept, _, _ := distill.FilterInstructional(sections)

	objects := canonical.FromSections(kept, req.Domain, req.SourceID, req.ReleaseID)
	if _, err := s.objects.PutAll(objects); err != nil {
		return RunResult{}, err
	}

	chunks := chunker.ChunkObjects(objects, req.Domain, req.ReleaseID, s.cfg.MaxChunkChars)
	if _, err := s.chunks.PutAll(chunks); err != nil {
		return RunResult{}, err
	}

	provider := s.ingestionProvider()
	for i := range chunks {
		vectors, err := provider.EmbedTexts(ctx, []string{chunks[i].Text})
		if err != nil {
			return RunResult{}, fmt.Errorf("%w: %v", ErrBackend, err)
		}
		ref, err := s.embeddings.Put(req.Domain, req.ReleaseID, chunks[i].ChunkID, vectors[0])
		if err != nil {
			return RunResult{}, err
		}
		chunks[i].EmbeddingRef = ref
	}

	if err := s.index.Upsert(ctx, req.Domain, req.ReleaseID, chunks); err != nil {
		return RunResult{}, err
	}

	result := RunResult{
		Status:    "ok",
		Domain:    req.Domain,
		ReleaseID: req.ReleaseID,
		Counts: map[string]int{
			"sections_total":    len(sections),
			"sections_kept":     len(kept),
			"canonical_objects": len(objects),
			"chunks":            len(chunks),
			"embeddings":        len(chunks),
		},
	}

	if writeRelease {
		rec, err := s.releases.Create(release.Record{
			ReleaseID:  req.ReleaseID,
			Domain:     req.Domain,
			CreatedBy:  req.CreatedBy,
			SourceID:   req.SourceID,
			SourceHash: sourceHash,
			Stats: &release.Stats{
				SectionsTotal:    len(sections),
				SectionsKept:     len(kept),
				CanonicalObjects: len(objects),
				Chunks:           len(chunks),
			},
		})
		if err != nil {
			return RunResult{}, err
		}
		result.Release = &rec
	}

	s.log.Info("ingestion run complete", "domain", req.Domain, "release_id", req.ReleaseID,
		"source_id", req.SourceID, "sections", len(sections), "kept", len(kept), "chunks", len(chunks))
	return result, nil
}

// Run resolves the raw HTML, runs the pipeline with its own release
// record, and records an ingestion_run event either way.
func (s *Service) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	rawHTML, err := s.resolveRawHTML(req, false)
	if err == nil {
		var result RunResult
		result, err = s.RunIngestion(ctx, req, rawHTML, true)
		if err == nil {
			s.recordEvent(req.Domain, "ingestion_run", "success", map[string]any{
				"release_id": req.ReleaseID,
				"source_id":  req.SourceID,
			})
			return result, nil
		}
	}
	s.recordEvent(req.Domain, "ingestion_run", "error", map[string]any{
		"release_id": req.ReleaseID,
		"source_id":  req.SourceID,
		"error":      err.Error(),
	})
	return RunResult{}, err
}
