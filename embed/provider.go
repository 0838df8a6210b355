// Package embed provides embedding providers and the file-based embedding
// store. The deterministic provider exists for tests and offline runs; the
// Ollama provider talks to a local Ollama server.
package embed

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrBackend marks failures of the remote embedding backend.
var ErrBackend = errors.New("embed: backend failed")

// Provider returns one vector per input text.
type Provider interface {
	Name() string
	EmbedTexts(ctx context.Context, texts []string) ([][]float64, error)
}

// Deterministic derives vectors from sha256 of the text. The vectors carry
// no semantic meaning; scores are stable across runs, nothing more.
type Deterministic struct {
	Dim int
}

func (d Deterministic) Name() string { return "deterministic" }

func (d Deterministic) EmbedTexts(_ context.Context, texts []string) ([][]float64, error) {
	dim := d.Dim
	if dim <= 0 {
		dim = 16
	}
	out := make([][]float64, 0, len(texts))
	for _, t := range texts {
		digest := sha256.Sum256([]byte(t))
		vec := make([]float64, dim)
		for i := 0; i < dim; i++ {
			vec[i] = (float64(digest[i%len(digest)])/255.0)*2.0 - 1.0
		}
		out = append(out, vec)
	}
	return out, nil
}

// Ollama embeds via POST /api/embeddings on a local Ollama server, one
// request per text.
type Ollama struct {
	Model   string
	BaseURL string
	client  *http.Client
}

// NewOllama returns a provider for the given model. baseURL defaults to
// the local server when empty.
func NewOllama(model, baseURL string, timeout time.Duration) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Ollama{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (o *Ollama) Name() string { return "ollama" }

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (o *Ollama) embedOne(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(ollamaRequest{Model: o.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embed: encode request: %w", err)
	}
	url := o.BaseURL + "/api/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embed: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling %s: %v", ErrBackend, url, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrBackend, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrBackend, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var parsed ollamaResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrBackend, err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("%w: response missing embedding", ErrBackend)
	}
	return parsed.Embedding, nil
}

func (o *Ollama) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for _, t := range texts {
		vec, err := o.embedOne(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}
