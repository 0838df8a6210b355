// Package capture stores raw source captures: fetched URLs and uploaded
// files, each persisted as a raw HTML file plus a JSON metadata sidecar.
package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNotFound is returned when a capture id has no stored metadata.
var ErrNotFound = errors.New("capture: not found")

// Quarantine reasons.
const (
	ReasonCaptureFailed   = "capture_failed"
	ReasonFileParseFailed = "file_parse_failed"
	ReasonEmptyFile       = "empty_file"
	ReasonManual          = "manual_quarantine"
)

// Capture is the metadata sidecar of one captured source.
type Capture struct {
	SourceID         string            `json:"source_id"`
	Domain           string            `json:"domain"`
	URL              string            `json:"url,omitempty"`
	HTTPStatus       int               `json:"http_status"`
	Headers          map[string]string `json:"headers"`
	RawHTMLPath      string            `json:"raw_html_path"`
	ContentHash      string            `json:"content_hash"`
	ContentSignature string            `json:"content_signature"`
	RetrievedAt      string            `json:"retrieved_at"`
	CaptureOK        bool              `json:"capture_ok"`
	CleanedText      string            `json:"cleaned_text,omitempty"`
	Quarantined      bool              `json:"quarantined"`
	QuarantineReason string            `json:"quarantine_reason,omitempty"`
	QuarantinedAt    string            `json:"quarantined_at,omitempty"`
}

// Store owns the captures root. A capture's raw HTML lives at
// <root>/<domain>/<source_id>.html, its metadata next to it as .json.
type Store struct {
	Root string
}

func NewStore(root string) *Store { return &Store{Root: root} }

func (s *Store) domainDir(domain string) string {
	return filepath.Join(s.Root, domain)
}

// HTMLPath returns where a capture's raw HTML lives.
func (s *Store) HTMLPath(domain, captureID string) string {
	return filepath.Join(s.domainDir(domain), captureID+".html")
}

func (s *Store) metaPath(domain, captureID string) string {
	return filepath.Join(s.domainDir(domain), captureID+".json")
}

// Save writes the raw HTML and metadata, filling RawHTMLPath and
// RetrievedAt on the returned capture.
func (s *Store) Save(c Capture, rawHTML string) (Capture, error) {
	if c.Domain == "" {
		return Capture{}, errors.New("capture: domain is required")
	}
	if c.SourceID == "" {
		return Capture{}, errors.New("capture: source_id is required")
	}
	if err := os.MkdirAll(s.domainDir(c.Domain), 0o755); err != nil {
		return Capture{}, fmt.Errorf("capture: create dir: %w", err)
	}
	htmlPath := s.HTMLPath(c.Domain, c.SourceID)
	if err := os.WriteFile(htmlPath, []byte(rawHTML), 0o644); err != nil {
		return Capture{}, fmt.Errorf("capture: write html: %w", err)
	}
	c.RawHTMLPath = htmlPath
	if c.RetrievedAt == "" {
		c.RetrievedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if err := s.writeMeta(c); err != nil {
		return Capture{}, err
	}
	return c, nil
}

func (s *Store) writeMeta(c Capture) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("capture: encode %s: %w", c.SourceID, err)
	}
	if err := os.WriteFile(s.metaPath(c.Domain, c.SourceID), data, 0o644); err != nil {
		return fmt.Errorf("capture: write meta: %w", err)
	}
	return nil
}

// Load reads a capture's metadata.
func (s *Store) Load(domain, captureID string) (Capture, error) {
	data, err := os.ReadFile(s.metaPath(domain, captureID))
	if err != nil {
		if os.IsNotExist(err) {
			return Capture{}, fmt.Errorf("%w: %s/%s", ErrNotFound, domain, captureID)
		}
		return Capture{}, fmt.Errorf("capture: read meta: %w", err)
	}
	var c Capture
	if err := json.Unmarshal(data, &c); err != nil {
		return Capture{}, fmt.Errorf("capture: decode meta: %w", err)
	}
	return c, nil
}

// RawHTML reads the stored raw HTML referenced by a capture's metadata.
func (s *Store) RawHTML(domain, captureID string) (string, error) {
	c, err := s.Load(domain, captureID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(c.RawHTMLPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: raw html of %s/%s", ErrNotFound, domain, captureID)
		}
		return "", fmt.Errorf("capture: read html: %w", err)
	}
	return string(data), nil
}

// Quarantine marks a capture quarantined with a reason and timestamp.
func (s *Store) Quarantine(domain, captureID, reason string) (Capture, error) {
	c, err := s.Load(domain, captureID)
	if err != nil {
		return Capture{}, err
	}
	if reason == "" {
		reason = ReasonManual
	}
	c.Quarantined = true
	c.QuarantineReason = reason
	c.QuarantinedAt = time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.writeMeta(c); err != nil {
		return Capture{}, err
	}
	return c, nil
}
