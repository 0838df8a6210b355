package corpus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avollmer/corpus/vecindex"
)

// RetrieveRequest queries a release's vector index.
type RetrieveRequest struct {
	Domain    string            `json:"domain"`
	Query     string            `json:"query"`
	Filters   map[string]string `json:"filters,omitempty"`
	TopK      int               `json:"top_k,omitempty"`
	ReleaseID string            `json:"release_id,omitempty"`
}

// RetrieveResult holds the scored matches for a retrieval query.
type RetrieveResult struct {
	Domain    string            `json:"domain"`
	ReleaseID string            `json:"release_id"`
	Results   []vecindex.Result `json:"results"`
	Warnings  []string          `json:"warnings"`
}

// Retrieve embeds the query and searches the resolved release. With no
// explicit release id the domain's active release is used.
func (s *Service) Retrieve(ctx context.Context, req RetrieveRequest) (RetrieveResult, error) {
	if strings.TrimSpace(req.Domain) == "" {
		return RetrieveResult{}, fmt.Errorf("%w: domain is required", ErrValidation)
	}
	if strings.TrimSpace(req.Query) == "" {
		return RetrieveResult{}, fmt.Errorf("%w: query is required", ErrValidation)
	}

	releaseID := strings.TrimSpace(req.ReleaseID)
	if releaseID == "" {
		active, err := s.releases.Active(req.Domain)
		if err != nil {
			return RetrieveResult{}, err
		}
		if active == "" {
			return RetrieveResult{}, fmt.Errorf("%w: %s", ErrNoActiveRelease, req.Domain)
		}
		releaseID = active
	}

	query := strings.TrimSpace(req.Query)
	if runes := []rune(query); len(runes) > s.cfg.QueryMaxChars && s.cfg.QueryMaxChars > 0 {
		query = string(runes[:s.cfg.QueryMaxChars])
	}

	provider := s.retrievalProvider()
	vectors, err := provider.EmbedTexts(ctx, []string{query})
	if err != nil {
		return RetrieveResult{}, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = 5
	}
	results, err := s.index.Query(ctx, req.Domain, releaseID, vectors[0], req.Filters, topK)
	if err != nil {
		if errors.Is(err, vecindex.ErrInvalid) {
			return RetrieveResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return RetrieveResult{}, err
	}
	if results == nil {
		results = []vecindex.Result{}
	}

	warnings := []string{}
	ingestion := s.cfg.IngestionProviderName()
	retrieval := s.cfg.RetrievalProviderName()
	if ingestion != retrieval {
		warnings = append(warnings, fmt.Sprintf(
			"Embedding provider mismatch: ingestion uses %s, retrieval uses %s. Set RETRIEVAL_EMBED_PROVIDER to match ingestion.",
			ingestion, retrieval))
	}

	s.log.Debug("retrieval query served", "domain", req.Domain, "release_id", releaseID,
		"top_k", topK, "results", len(results))
	return RetrieveResult{
		Domain:    req.Domain,
		ReleaseID: releaseID,
		Results:   results,
		Warnings:  warnings,
	}, nil
}
