package corpus

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the corpus service.
type Config struct {
	// DataRoot is the base directory for every artifact kind. Per-kind
	// roots below override it when set.
	DataRoot string `json:"data_root"`

	// Per-kind root overrides.
	VectorIndexRoot   string `json:"vector_index_root,omitempty"`
	ReleasesRoot      string `json:"releases_root,omitempty"`
	ObservabilityRoot string `json:"observability_root,omitempty"`

	// SigningSecret is the HMAC key for capture signatures. Empty selects
	// the insecure dev default (with a warning).
	SigningSecret string `json:"signing_secret,omitempty"`

	// EmbedModel selects the ingestion embedding provider: empty or the
	// literal "deterministic" selects the hash provider, anything else
	// selects Ollama with that model name.
	EmbedModel    string        `json:"embed_model,omitempty"`
	OllamaURL     string        `json:"ollama_url,omitempty"`
	OllamaTimeout time.Duration `json:"ollama_timeout,omitempty"`

	// RetrievalProvider overrides the retrieval-side provider ("ollama"
	// or "deterministic"). Empty falls back to the EmbedModel rule.
	RetrievalProvider string `json:"retrieval_provider,omitempty"`

	// RetrievalDim is the deterministic provider's vector length.
	RetrievalDim int `json:"retrieval_dim,omitempty"`

	// QueryMaxChars bounds the query text sent to the embedder.
	QueryMaxChars int `json:"query_max_chars,omitempty"`

	// MaxChunkChars bounds emitted chunk text length.
	MaxChunkChars int `json:"max_chunk_chars,omitempty"`

	// VectorStoreAdapter names an alternate vector index backend
	// ("sqlite"). Empty selects the local JSONL store.
	VectorStoreAdapter string `json:"vector_store_adapter,omitempty"`
}

// DefaultConfig returns a Config with local-run defaults.
func DefaultConfig() Config {
	return Config{
		DataRoot:      "data",
		OllamaURL:     "http://localhost:11434",
		OllamaTimeout: 60 * time.Second,
		RetrievalDim:  16,
		QueryMaxChars: 2000,
		MaxChunkChars: 800,
	}
}

// ConfigFromEnv builds a Config from environment variables, starting from
// the defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := strings.TrimSpace(os.Getenv("INGESTION_DATA_ROOT")); v != "" {
		cfg.DataRoot = v
	}
	if v := strings.TrimSpace(os.Getenv("VECTOR_INDEX_ROOT")); v != "" {
		cfg.VectorIndexRoot = v
	}
	if v := strings.TrimSpace(os.Getenv("RELEASES_ROOT")); v != "" {
		cfg.ReleasesRoot = v
	}
	if v := strings.TrimSpace(os.Getenv("OBSERVABILITY_ROOT")); v != "" {
		cfg.ObservabilityRoot = v
	}
	cfg.SigningSecret = strings.TrimSpace(os.Getenv("INGESTION_SIGNING_SECRET"))
	cfg.EmbedModel = strings.TrimSpace(os.Getenv("OLLAMA_EMBED_MODEL"))
	if v := strings.TrimSpace(os.Getenv("OLLAMA_URL")); v != "" {
		cfg.OllamaURL = v
	}
	if n := envInt("OLLAMA_TIMEOUT_S", 0); n > 0 {
		cfg.OllamaTimeout = time.Duration(n) * time.Second
	}
	cfg.RetrievalProvider = strings.ToLower(strings.TrimSpace(os.Getenv("RETRIEVAL_EMBED_PROVIDER")))
	if n := envInt("RETRIEVAL_EMBED_DIM", 0); n > 0 {
		cfg.RetrievalDim = n
	}
	if n := envInt("RETRIEVAL_EMBED_MAX_CHARS", 0); n > 0 {
		cfg.QueryMaxChars = n
	} else if n := envInt("OLLAMA_EMBED_MAX_CHARS", 0); n > 0 {
		cfg.QueryMaxChars = n
	}
	cfg.VectorStoreAdapter = strings.TrimSpace(os.Getenv("VECTOR_STORE_ADAPTER"))
	return cfg
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// Artifact roots. Per-kind overrides win; everything else hangs off DataRoot.

func (c Config) CapturesRoot() string {
	return filepath.Join(c.DataRoot, "captures")
}

func (c Config) CanonicalRoot() string {
	return filepath.Join(c.DataRoot, "canonical")
}

func (c Config) ChunksRoot() string {
	return filepath.Join(c.DataRoot, "chunks")
}

func (c Config) EmbeddingsRoot() string {
	return filepath.Join(c.DataRoot, "embeddings")
}

func (c Config) VectorRoot() string {
	if c.VectorIndexRoot != "" {
		return c.VectorIndexRoot
	}
	return filepath.Join(c.DataRoot, "vector_index")
}

func (c Config) ReleasesRootDir() string {
	if c.ReleasesRoot != "" {
		return c.ReleasesRoot
	}
	return filepath.Join(c.DataRoot, "releases")
}

func (c Config) ObservabilityRootDir() string {
	if c.ObservabilityRoot != "" {
		return c.ObservabilityRoot
	}
	return filepath.Join(c.DataRoot, "observability")
}

// IngestionProviderName returns "ollama" when an embedding model is
// configured and is not the literal "deterministic"; otherwise
// "deterministic".
func (c Config) IngestionProviderName() string {
	model := strings.ToLower(strings.TrimSpace(c.EmbedModel))
	if model != "" && model != "deterministic" {
		return "ollama"
	}
	return "deterministic"
}

// RetrievalProviderName returns the explicit retrieval override when set,
// falling back to the ingestion rule.
func (c Config) RetrievalProviderName() string {
	if c.RetrievalProvider != "" {
		return c.RetrievalProvider
	}
	return c.IngestionProviderName()
}
