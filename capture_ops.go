package corpus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avollmer/corpus/capture"
	"github.com/avollmer/corpus/cleaner"
	"github.com/avollmer/corpus/integrity"
)

// CaptureRequest fetches one URL into the capture store.
type CaptureRequest struct {
	Domain   string        `json:"domain"`
	SourceID string        `json:"source_id"`
	URL      string        `json:"url"`
	Timeout  time.Duration `json:"-"`

	// Clean stores the cleaned text alongside the raw HTML.
	Clean bool `json:"clean,omitempty"`

	// QuarantineSuspicious quarantines captures that fail or come back
	// blank instead of leaving them usable.
	QuarantineSuspicious bool `json:"quarantine_suspicious,omitempty"`
}

// CaptureURL fetches a URL and stores the capture. HTTP error statuses
// are stored as failed captures, not returned as errors.
func (s *Service) CaptureURL(ctx context.Context, req CaptureRequest) (capture.Capture, error) {
	if strings.TrimSpace(req.Domain) == "" {
		return capture.Capture{}, fmt.Errorf("%w: domain is required", ErrValidation)
	}
	if strings.TrimSpace(req.SourceID) == "" {
		return capture.Capture{}, fmt.Errorf("%w: source_id is required", ErrValidation)
	}
	if strings.TrimSpace(req.URL) == "" {
		return capture.Capture{}, fmt.Errorf("%w: url is required", ErrValidation)
	}

	status, headers, raw, err := s.fetcher.Fetch(ctx, req.URL, req.Timeout)
	if err != nil {
		s.recordEvent(req.Domain, "ingestion_raw_capture", "error", map[string]any{
			"source_id": req.SourceID,
			"url":       req.URL,
			"error":     err.Error(),
		})
		return capture.Capture{}, err
	}

	captureOK := status >= 200 && status < 300 && strings.TrimSpace(raw) != ""
	quarantined := req.QuarantineSuspicious && !captureOK
	reason := ""
	if quarantined {
		reason = capture.ReasonCaptureFailed
	}

	contentHash := integrity.HashContent(raw)
	c := capture.Capture{
		SourceID:         req.SourceID,
		Domain:           req.Domain,
		URL:              req.URL,
		HTTPStatus:       status,
		Headers:          headers,
		ContentHash:      contentHash,
		ContentSignature: s.signer.Sign(contentHash),
		CaptureOK:        captureOK,
		Quarantined:      quarantined,
		QuarantineReason: reason,
	}
	if req.Clean {
		c.CleanedText = cleaner.Text(raw)
	}
	saved, err := s.captures.Save(c, raw)
	if err != nil {
		return capture.Capture{}, err
	}

	eventStatus := "success"
	if !captureOK {
		eventStatus = "failed"
	}
	s.recordEvent(req.Domain, "ingestion_raw_capture", eventStatus, map[string]any{
		"source_id":   req.SourceID,
		"url":         req.URL,
		"http_status": status,
		"quarantined": quarantined,
	})
	return saved, nil
}

// FileCaptureRequest stores an uploaded file as a capture.
type FileCaptureRequest struct {
	Domain      string
	SourceID    string
	Filename    string
	ContentType string
	Data        []byte

	Clean                bool
	QuarantineSuspicious bool
}

// CaptureFile extracts an uploaded file to HTML and stores the capture.
// A file that cannot be parsed or extracts to nothing still produces a
// capture record, marked failed and optionally quarantined.
func (s *Service) CaptureFile(req FileCaptureRequest) (capture.Capture, error) {
	if strings.TrimSpace(req.Domain) == "" {
		return capture.Capture{}, fmt.Errorf("%w: domain is required", ErrValidation)
	}
	if strings.TrimSpace(req.SourceID) == "" {
		return capture.Capture{}, fmt.Errorf("%w: source_id is required", ErrValidation)
	}
	if strings.TrimSpace(req.Filename) == "" {
		return capture.Capture{}, fmt.Errorf("%w: file is required", ErrValidation)
	}

	filename := strings.TrimSpace(req.Filename)
	ext := ""
	if i := strings.LastIndex(filename, "."); i >= 0 {
		ext = strings.ToLower(filename[i+1:])
	}

	rawHTML, parseErr := capture.FromUpload(filename, req.Data)
	if parseErr != nil {
		rawHTML = ""
		s.recordEvent(req.Domain, "ingestion_file_capture", "error", map[string]any{
			"source_id": req.SourceID,
			"filename":  filename,
			"error":     fmt.Sprintf("Failed to parse file: %v", parseErr),
		})
	}

	captureOK := strings.TrimSpace(rawHTML) != ""
	quarantined := req.QuarantineSuspicious && !captureOK
	reason := ""
	switch {
	case !quarantined:
	case parseErr != nil:
		reason = capture.ReasonFileParseFailed
	default:
		reason = capture.ReasonEmptyFile
	}
	httpStatus := 200
	if !captureOK {
		httpStatus = 400
	}

	contentHash := integrity.HashContent(rawHTML)
	c := capture.Capture{
		SourceID:         req.SourceID,
		Domain:           req.Domain,
		HTTPStatus:       httpStatus,
		Headers:          map[string]string{"filename": filename, "content_type": req.ContentType, "ext": ext},
		ContentHash:      contentHash,
		ContentSignature: s.signer.Sign(contentHash),
		CaptureOK:        captureOK,
		Quarantined:      quarantined,
		QuarantineReason: reason,
	}
	if req.Clean {
		c.CleanedText = cleaner.Text(rawHTML)
	}
	saved, err := s.captures.Save(c, rawHTML)
	if err != nil {
		return capture.Capture{}, err
	}

	eventStatus := "success"
	if !captureOK {
		eventStatus = "failed"
	}
	s.recordEvent(req.Domain, "ingestion_file_capture", eventStatus, map[string]any{
		"source_id":   req.SourceID,
		"filename":    filename,
		"quarantined": quarantined,
	})
	return saved, nil
}

// Quarantine marks a stored capture quarantined and records the event.
func (s *Service) Quarantine(domain, captureID, reason string) (capture.Capture, error) {
	c, err := s.captures.Quarantine(domain, captureID, reason)
	if err != nil {
		if errors.Is(err, capture.ErrNotFound) {
			return capture.Capture{}, fmt.Errorf("%w: capture %s/%s", ErrNotFound, domain, captureID)
		}
		return capture.Capture{}, err
	}
	s.recordEvent(domain, "ingestion_quarantine", "success", map[string]any{
		"source_id": captureID,
		"reason":    c.QuarantineReason,
	})
	return c, nil
}

// GetCapture loads a stored capture's metadata.
func (s *Service) GetCapture(domain, captureID string) (capture.Capture, error) {
	c, err := s.captures.Load(domain, captureID)
	if err != nil {
		if errors.Is(err, capture.ErrNotFound) {
			return capture.Capture{}, fmt.Errorf("%w: capture %s/%s", ErrNotFound, domain, captureID)
		}
		return capture.Capture{}, err
	}
	return c, nil
}
