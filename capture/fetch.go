package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultUserAgent = "corpus-ingestion/1.0"

// Fetcher retrieves URLs for capture. HTTP error responses are not
// fetch failures: the status and body are captured as-is so the caller
// can decide about quarantine.
type Fetcher struct {
	UserAgent string
	Client    *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{UserAgent: defaultUserAgent, Client: &http.Client{}}
}

// Fetch GETs a URL with the given timeout and returns the status,
// response headers, and body text. Only transport-level failures return
// an error.
func (f *Fetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (int, map[string]string, string, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, "", fmt.Errorf("capture: build request: %w", err)
	}
	ua := f.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	client := f.Client
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, "", fmt.Errorf("capture: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, "", fmt.Errorf("capture: read body of %s: %w", url, err)
	}
	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return resp.StatusCode, headers, string(body), nil
}
