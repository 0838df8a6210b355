package corpus

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRetrieveUsesActiveRelease(t *testing.T) {
	s := newTestService(t, nil)
	releaseID := ingestRelease(t, s, "docs", "src_1", docHTML)
	if _, err := s.Promote("docs", releaseID, "tester", ""); err != nil {
		t.Fatalf("Promote: %v", err)
	}

	result, err := s.Retrieve(context.Background(), RetrieveRequest{
		Domain: "docs", Query: "how do I install the agent",
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if result.ReleaseID != releaseID {
		t.Fatalf("release = %q, want %q", result.ReleaseID, releaseID)
	}
	if len(result.Results) == 0 {
		t.Fatal("no results")
	}
	for i := 1; i < len(result.Results); i++ {
		if result.Results[i].Score > result.Results[i-1].Score {
			t.Fatalf("results not sorted by score: %v then %v",
				result.Results[i-1].Score, result.Results[i].Score)
		}
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("warnings = %v", result.Warnings)
	}
}

func TestRetrieveExplicitRelease(t *testing.T) {
	s := newTestService(t, nil)
	rel1 := ingestRelease(t, s, "docs", "src_1", docHTML)
	rel2 := ingestRelease(t, s, "docs", "src_2", otherHTML)
	if _, err := s.Promote("docs", rel2, "tester", ""); err != nil {
		t.Fatalf("Promote: %v", err)
	}

	result, err := s.Retrieve(context.Background(), RetrieveRequest{
		Domain: "docs", Query: "install", ReleaseID: rel1,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if result.ReleaseID != rel1 {
		t.Fatalf("release = %q", result.ReleaseID)
	}
	for _, r := range result.Results {
		if r.ReleaseID != rel1 {
			t.Fatalf("result from wrong release: %+v", r)
		}
	}
}

func TestRetrieveNoActiveRelease(t *testing.T) {
	s := newTestService(t, nil)
	ingestRelease(t, s, "docs", "src_1", docHTML)
	_, err := s.Retrieve(context.Background(), RetrieveRequest{Domain: "docs", Query: "install"})
	if !errors.Is(err, ErrNoActiveRelease) {
		t.Fatalf("err = %v", err)
	}
}

func TestRetrieveValidation(t *testing.T) {
	s := newTestService(t, nil)
	if _, err := s.Retrieve(context.Background(), RetrieveRequest{Query: "x"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing domain: %v", err)
	}
	if _, err := s.Retrieve(context.Background(), RetrieveRequest{Domain: "docs", Query: "  "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank query: %v", err)
	}
}

func TestRetrieveTopKLimitsResults(t *testing.T) {
	s := newTestService(t, nil)
	releaseID := ingestRelease(t, s, "docs", "src_1", docHTML)
	result, err := s.Retrieve(context.Background(), RetrieveRequest{
		Domain: "docs", Query: "install", ReleaseID: releaseID, TopK: 1,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Results) != 1 {
		t.Fatalf("got %d results", len(result.Results))
	}
}

func TestRetrieveLongQueryTrimmed(t *testing.T) {
	s := newTestService(t, func(cfg *Config) { cfg.QueryMaxChars = 10 })
	releaseID := ingestRelease(t, s, "docs", "src_1", docHTML)
	_, err := s.Retrieve(context.Background(), RetrieveRequest{
		Domain: "docs", Query: strings.Repeat("install ", 50), ReleaseID: releaseID,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
}

func TestRetrieveProviderMismatchWarning(t *testing.T) {
	first := newTestService(t, nil)
	root := first.cfg.DataRoot
	releaseID := ingestRelease(t, first, "docs", "src_1", docHTML)
	if _, err := first.Promote("docs", releaseID, "tester", ""); err != nil {
		t.Fatalf("Promote: %v", err)
	}

	// same data root, but ingestion now claims ollama while retrieval
	// stays deterministic
	mismatched := newTestService(t, func(cfg *Config) {
		cfg.DataRoot = root
		cfg.EmbedModel = "nomic-embed-text"
		cfg.RetrievalProvider = "deterministic"
	})
	result, err := mismatched.Retrieve(context.Background(), RetrieveRequest{Domain: "docs", Query: "install"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "Embedding provider mismatch") {
		t.Fatalf("warnings = %v", result.Warnings)
	}
	if !strings.Contains(result.Warnings[0], "RETRIEVAL_EMBED_PROVIDER") {
		t.Fatalf("warnings = %v", result.Warnings)
	}
}

func TestRetrieveSQLiteAdapter(t *testing.T) {
	s := newTestService(t, func(cfg *Config) { cfg.VectorStoreAdapter = "sqlite" })
	releaseID := ingestRelease(t, s, "docs", "src_1", docHTML)
	result, err := s.Retrieve(context.Background(), RetrieveRequest{
		Domain: "docs", Query: "install the agent", ReleaseID: releaseID, TopK: 2,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Results) == 0 {
		t.Fatal("no results from sqlite store")
	}
}
