package corpus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avollmer/corpus/capture"
	"github.com/avollmer/corpus/release"
)

// BatchItem is one document of a batch ingestion run.
type BatchItem struct {
	SourceID    string `json:"source_id"`
	RawHTML     string `json:"raw_html,omitempty"`
	RawHTMLPath string `json:"raw_html_path,omitempty"`
	CaptureID   string `json:"capture_id,omitempty"`
}

// BatchRequest ingests several documents into one shared release.
type BatchRequest struct {
	Domain    string      `json:"domain"`
	ReleaseID string      `json:"release_id,omitempty"`
	CreatedBy string      `json:"created_by,omitempty"`
	Items     []BatchItem `json:"items"`

	// ContinueOnError keeps processing after a failed item instead of
	// aborting the batch.
	ContinueOnError bool `json:"continue_on_error,omitempty"`

	// Force ingests from captures even when they failed or are
	// quarantined.
	Force bool `json:"force,omitempty"`
}

// ItemResult reports one item of a batch.
type ItemResult struct {
	SourceID string           `json:"source_id"`
	OK       bool             `json:"ok"`
	Counts   map[string]int   `json:"counts,omitempty"`
	Capture  *capture.Capture `json:"capture,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// BatchSummary aggregates a batch's item outcomes.
type BatchSummary struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Counts    map[string]int `json:"counts"`
}

// BatchResult is the outcome of a batch run. On an aborted batch the
// release id and the results so far are still populated.
type BatchResult struct {
	Domain    string         `json:"domain"`
	ReleaseID string         `json:"release_id"`
	Release   release.Record `json:"release"`
	Status    string         `json:"status"`
	Summary   BatchSummary   `json:"summary"`
	Results   []ItemResult   `json:"results"`
}

func newAggCounts() map[string]int {
	return map[string]int{
		"sections_total":    0,
		"sections_kept":     0,
		"canonical_objects": 0,
		"chunks":            0,
		"embeddings":        0,
	}
}

func addCounts(agg, counts map[string]int) {
	for k, v := range counts {
		agg[k] += v
	}
}

func batchStatus(total, succeeded int) string {
	switch succeeded {
	case total:
		return "success"
	case 0:
		return "failed"
	default:
		return "partial"
	}
}

// RunBatch ingests every item into one shared release. The release
// record is written up front so even an aborted batch leaves a record.
func (s *Service) RunBatch(ctx context.Context, req BatchRequest) (BatchResult, error) {
	if strings.TrimSpace(req.Domain) == "" {
		return BatchResult{}, fmt.Errorf("%w: domain is required", ErrValidation)
	}
	if len(req.Items) == 0 {
		return BatchResult{}, fmt.Errorf("%w: items is required", ErrValidation)
	}

	releaseID := strings.TrimSpace(req.ReleaseID)
	if releaseID == "" {
		releaseID = release.GenerateID(req.Domain)
	}
	rec, err := s.releases.Create(release.Record{
		ReleaseID: releaseID,
		Domain:    req.Domain,
		CreatedBy: req.CreatedBy,
		Mode:      "batch",
	})
	if err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{Domain: req.Domain, ReleaseID: releaseID, Release: rec}
	agg := newAggCounts()
	succeeded := 0

	for _, item := range req.Items {
		runReq := RunRequest{
			Domain:      req.Domain,
			SourceID:    item.SourceID,
			ReleaseID:   releaseID,
			RawHTML:     item.RawHTML,
			RawHTMLPath: item.RawHTMLPath,
			CaptureID:   item.CaptureID,
			CreatedBy:   req.CreatedBy,
		}
		rawHTML, err := s.resolveRawHTML(runReq, !req.Force)
		var runResult RunResult
		if err == nil {
			runResult, err = s.RunIngestion(ctx, runReq, rawHTML, false)
		}
		if err != nil {
			result.Results = append(result.Results, ItemResult{SourceID: item.SourceID, Error: err.Error()})
			s.recordEvent(req.Domain, "ingestion_run_batch_item", "error", map[string]any{
				"release_id": releaseID,
				"source_id":  item.SourceID,
				"error":      err.Error(),
			})
			if !req.ContinueOnError {
				result.Summary = BatchSummary{Total: len(req.Items), Succeeded: succeeded, Failed: len(req.Items) - succeeded, Counts: agg}
				result.Status = batchStatus(len(req.Items), succeeded)
				return result, fmt.Errorf("batch ingestion failed at %s: %w", item.SourceID, err)
			}
			continue
		}
		succeeded++
		addCounts(agg, runResult.Counts)
		result.Results = append(result.Results, ItemResult{SourceID: item.SourceID, OK: true, Counts: runResult.Counts})
		s.recordEvent(req.Domain, "ingestion_run_batch_item", "success", map[string]any{
			"release_id": releaseID,
			"source_id":  item.SourceID,
		})
	}

	result.Summary = BatchSummary{Total: len(req.Items), Succeeded: succeeded, Failed: len(req.Items) - succeeded, Counts: agg}
	result.Status = batchStatus(len(req.Items), succeeded)
	s.recordEvent(req.Domain, "ingestion_run_batch", result.Status, map[string]any{
		"release_id": releaseID,
		"total":      len(req.Items),
		"succeeded":  succeeded,
		"failed":     len(req.Items) - succeeded,
	})
	return result, nil
}

// CaptureBatchItem is one URL of a batch capture.
type CaptureBatchItem struct {
	SourceID             string        `json:"source_id"`
	URL                  string        `json:"url"`
	Timeout              time.Duration `json:"-"`
	Clean                bool          `json:"clean,omitempty"`
	QuarantineSuspicious bool          `json:"quarantine_suspicious,omitempty"`
}

// CaptureBatchRequest fetches several URLs into the capture store.
type CaptureBatchRequest struct {
	Domain          string             `json:"domain"`
	Items           []CaptureBatchItem `json:"items"`
	ContinueOnError bool               `json:"continue_on_error,omitempty"`
}

// CaptureBatchSummary counts batch capture outcomes.
type CaptureBatchSummary struct {
	Total       int `json:"total"`
	CaptureOK   int `json:"capture_ok"`
	Failed      int `json:"failed"`
	Quarantined int `json:"quarantined"`
}

// CaptureBatchResult is the outcome of a batch capture.
type CaptureBatchResult struct {
	Domain  string              `json:"domain"`
	Summary CaptureBatchSummary `json:"summary"`
	Results []ItemResult        `json:"results"`
}

// CaptureBatch fetches every URL into the capture store.
func (s *Service) CaptureBatch(ctx context.Context, req CaptureBatchRequest) (CaptureBatchResult, error) {
	if strings.TrimSpace(req.Domain) == "" {
		return CaptureBatchResult{}, fmt.Errorf("%w: domain is required", ErrValidation)
	}
	if len(req.Items) == 0 {
		return CaptureBatchResult{}, fmt.Errorf("%w: items is required", ErrValidation)
	}

	result := CaptureBatchResult{Domain: req.Domain}
	result.Summary.Total = len(req.Items)

	for _, item := range req.Items {
		c, err := s.CaptureURL(ctx, CaptureRequest{
			Domain:               req.Domain,
			SourceID:             item.SourceID,
			URL:                  item.URL,
			Timeout:              item.Timeout,
			Clean:                item.Clean,
			QuarantineSuspicious: item.QuarantineSuspicious,
		})
		if err != nil {
			result.Summary.Failed++
			result.Results = append(result.Results, ItemResult{SourceID: item.SourceID, Error: err.Error()})
			if !req.ContinueOnError {
				return result, fmt.Errorf("batch capture failed at %s: %w", item.SourceID, err)
			}
			continue
		}
		if c.CaptureOK {
			result.Summary.CaptureOK++
		} else {
			result.Summary.Failed++
		}
		if c.Quarantined {
			result.Summary.Quarantined++
		}
		saved := c
		result.Results = append(result.Results, ItemResult{SourceID: item.SourceID, OK: c.CaptureOK, Capture: &saved})
	}
	return result, nil
}

// IngestBatchRequest captures several URLs and ingests the successful
// captures into one shared release.
type IngestBatchRequest struct {
	Domain          string             `json:"domain"`
	ReleaseID       string             `json:"release_id,omitempty"`
	CreatedBy       string             `json:"created_by,omitempty"`
	Items           []CaptureBatchItem `json:"items"`
	ContinueOnError bool               `json:"continue_on_error,omitempty"`
	Force           bool               `json:"force,omitempty"`
}

// CaptureIngestBatch fetches each URL and, when the capture is usable,
// runs the ingestion pipeline on it. All items share one release.
func (s *Service) CaptureIngestBatch(ctx context.Context, req IngestBatchRequest) (BatchResult, error) {
	if strings.TrimSpace(req.Domain) == "" {
		return BatchResult{}, fmt.Errorf("%w: domain is required", ErrValidation)
	}
	if len(req.Items) == 0 {
		return BatchResult{}, fmt.Errorf("%w: items is required", ErrValidation)
	}

	releaseID := strings.TrimSpace(req.ReleaseID)
	if releaseID == "" {
		releaseID = release.GenerateID(req.Domain)
	}
	rec, err := s.releases.Create(release.Record{
		ReleaseID: releaseID,
		Domain:    req.Domain,
		CreatedBy: req.CreatedBy,
		Mode:      "capture+run",
	})
	if err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{Domain: req.Domain, ReleaseID: releaseID, Release: rec}
	agg := newAggCounts()
	succeeded := 0

	for _, item := range req.Items {
		itemResult, err := s.captureAndIngest(ctx, req, releaseID, item)
		if err != nil {
			result.Results = append(result.Results, ItemResult{SourceID: item.SourceID, Error: err.Error()})
			s.recordEvent(req.Domain, "ingestion_ingest_batch_item", "error", map[string]any{
				"release_id": releaseID,
				"source_id":  item.SourceID,
				"error":      err.Error(),
			})
			if !req.ContinueOnError {
				result.Summary = BatchSummary{Total: len(req.Items), Succeeded: succeeded, Failed: len(req.Items) - succeeded, Counts: agg}
				result.Status = batchStatus(len(req.Items), succeeded)
				return result, fmt.Errorf("batch capture+ingest failed at %s: %w", item.SourceID, err)
			}
			continue
		}
		succeeded++
		addCounts(agg, itemResult.Counts)
		result.Results = append(result.Results, itemResult)
		s.recordEvent(req.Domain, "ingestion_ingest_batch_item", "success", map[string]any{
			"release_id": releaseID,
			"source_id":  item.SourceID,
		})
	}

	result.Summary = BatchSummary{Total: len(req.Items), Succeeded: succeeded, Failed: len(req.Items) - succeeded, Counts: agg}
	result.Status = batchStatus(len(req.Items), succeeded)
	s.recordEvent(req.Domain, "ingestion_ingest_batch", result.Status, map[string]any{
		"release_id": releaseID,
		"total":      len(req.Items),
		"succeeded":  succeeded,
		"failed":     len(req.Items) - succeeded,
	})
	return result, nil
}

func (s *Service) captureAndIngest(ctx context.Context, req IngestBatchRequest, releaseID string, item CaptureBatchItem) (ItemResult, error) {
	c, err := s.CaptureURL(ctx, CaptureRequest{
		Domain:               req.Domain,
		SourceID:             item.SourceID,
		URL:                  item.URL,
		Timeout:              item.Timeout,
		Clean:                item.Clean,
		QuarantineSuspicious: item.QuarantineSuspicious,
	})
	if err != nil {
		return ItemResult{}, err
	}
	if !req.Force && (!c.CaptureOK || c.Quarantined) {
		return ItemResult{}, fmt.Errorf("%w (http_status=%v, quarantined=%v)", ErrCaptureUnusable, c.HTTPStatus, c.Quarantined)
	}
	rawHTML, err := s.captures.RawHTML(req.Domain, item.SourceID)
	if err != nil {
		return ItemResult{}, err
	}
	runResult, err := s.RunIngestion(ctx, RunRequest{
		Domain:    req.Domain,
		SourceID:  item.SourceID,
		ReleaseID: releaseID,
		CreatedBy: req.CreatedBy,
	}, rawHTML, false)
	if err != nil {
		return ItemResult{}, err
	}
	saved := c
	return ItemResult{SourceID: item.SourceID, OK: true, Capture: &saved, Counts: runResult.Counts}, nil
}
