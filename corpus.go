// Package corpus ingests domain-scoped HTML into canonical objects,
// chunks, embeddings, and a per-release vector index, and serves
// retrieval over the promoted release.
package corpus

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/avollmer/corpus/canonical"
	"github.com/avollmer/corpus/capture"
	"github.com/avollmer/corpus/chunker"
	"github.com/avollmer/corpus/embed"
	"github.com/avollmer/corpus/integrity"
	"github.com/avollmer/corpus/obs"
	"github.com/avollmer/corpus/release"
	"github.com/avollmer/corpus/vecindex"
)

// Service wires the ingestion stores together behind one facade.
type Service struct {
	cfg Config
	log *slog.Logger

	captures   *capture.Store
	fetcher    *capture.Fetcher
	objects    *canonical.Store
	chunks     *chunker.Store
	embeddings *embed.FileStore
	index      vecindex.Store
	releases   *release.Manager
	events     *obs.Store
	signer     *integrity.Signer

	sqlite *vecindex.SQLite
}

// New builds a Service from the config. The vector index backend is the
// local JSONL store unless the config names the sqlite adapter.
func New(cfg Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cfg:        cfg,
		log:        logger,
		captures:   capture.NewStore(cfg.CapturesRoot()),
		fetcher:    capture.NewFetcher(),
		objects:    canonical.NewStore(cfg.CanonicalRoot()),
		chunks:     chunker.NewStore(cfg.ChunksRoot()),
		embeddings: embed.NewFileStore(cfg.EmbeddingsRoot()),
		releases:   release.NewManager(cfg.ReleasesRootDir()),
		events:     obs.NewStore(cfg.ObservabilityRootDir()),
		signer:     integrity.NewSigner(cfg.SigningSecret),
	}
	switch cfg.VectorStoreAdapter {
	case "", "local", "jsonl":
		s.index = vecindex.NewJSONL(cfg.VectorRoot())
	case "sqlite":
		db, err := vecindex.NewSQLite(cfg.VectorRoot())
		if err != nil {
			return nil, fmt.Errorf("open sqlite vector store: %w", err)
		}
		s.sqlite = db
		s.index = db
	default:
		return nil, fmt.Errorf("%w: unknown vector store adapter %q", ErrValidation, cfg.VectorStoreAdapter)
	}
	return s, nil
}

// Close releases backend resources.
func (s *Service) Close() error {
	if s.sqlite != nil {
		return s.sqlite.Close()
	}
	return nil
}

// Config returns the service configuration.
func (s *Service) Config() Config { return s.cfg }

func (s *Service) ingestionProvider() embed.Provider {
	if s.cfg.IngestionProviderName() == "ollama" {
		return embed.NewOllama(s.cfg.EmbedModel, s.cfg.OllamaURL, s.cfg.OllamaTimeout)
	}
	return embed.Deterministic{}
}

func (s *Service) retrievalProvider() embed.Provider {
	if s.cfg.RetrievalProviderName() == "ollama" {
		return embed.NewOllama(s.cfg.EmbedModel, s.cfg.OllamaURL, s.cfg.OllamaTimeout)
	}
	return embed.Deterministic{Dim: s.cfg.RetrievalDim}
}

func (s *Service) recordEvent(domain, event, status string, extra map[string]any) {
	if _, err := s.events.Record(domain, event, status, extra); err != nil {
		s.log.Warn("record event failed", "domain", domain, "event", event, "error", err)
	}
}

// Events returns the newest events recorded for a domain.
func (s *Service) Events(domain string, limit int) ([]obs.Event, error) {
	return s.events.List(domain, limit)
}

// Metrics summarizes a domain's events over a trailing window.
func (s *Service) Metrics(domain string, hours int) (obs.Summary, error) {
	return s.events.Summarize(domain, hours)
}

// Releases lists a domain's release ids and its active release.
func (s *Service) Releases(domain string) (active string, ids []string, err error) {
	active, err = s.releases.Active(domain)
	if err != nil {
		return "", nil, err
	}
	ids, err = s.releases.List(domain)
	if err != nil {
		return "", nil, err
	}
	return active, ids, nil
}

// Audit returns the newest promotion audit events for a domain.
func (s *Service) Audit(domain string, limit int) ([]release.AuditEvent, error) {
	return s.releases.Audit(domain, limit)
}

// Promote makes a release the domain's active release and records the
// change in the audit log and the event stream.
func (s *Service) Promote(domain, releaseID, promotedBy, reason string) (release.AuditEvent, error) {
	event, err := s.releases.Promote(domain, releaseID, promotedBy, reason)
	if err != nil {
		return release.AuditEvent{}, err
	}
	s.recordEvent(domain, "release_promoted", "success", map[string]any{
		"release_id":          releaseID,
		"previous_release_id": event.PreviousReleaseID,
	})
	s.log.Info("release promoted", "domain", domain, "release_id", releaseID,
		"previous_release_id", event.PreviousReleaseID)
	return event, nil
}

// Domains returns the sorted union of domains seen across every
// artifact root.
func (s *Service) Domains() []string {
	roots := []string{
		s.cfg.CapturesRoot(),
		s.cfg.CanonicalRoot(),
		s.cfg.ChunksRoot(),
		s.cfg.EmbeddingsRoot(),
		s.cfg.VectorRoot(),
		s.cfg.ReleasesRootDir(),
		s.cfg.ObservabilityRootDir(),
	}
	seen := map[string]bool{}
	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				seen[entry.Name()] = true
			}
		}
	}
	domains := make([]string, 0, len(seen))
	for d := range seen {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}
