package corpus

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avollmer/corpus/integrity"
)

func TestCaptureURLSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><p>content</p></html>"))
	}))
	defer srv.Close()

	s := newTestService(t, nil)
	c, err := s.CaptureURL(context.Background(), CaptureRequest{
		Domain: "docs", SourceID: "cap_1", URL: srv.URL, Clean: true,
	})
	if err != nil {
		t.Fatalf("CaptureURL: %v", err)
	}
	if !c.CaptureOK || c.Quarantined || c.HTTPStatus != 200 {
		t.Fatalf("capture = %+v", c)
	}
	if !strings.HasPrefix(c.ContentHash, "sha256:") {
		t.Fatalf("content_hash = %q", c.ContentHash)
	}
	if !integrity.NewSigner("").Verify(c.ContentHash, c.ContentSignature) {
		t.Fatal("signature does not verify")
	}
	if c.CleanedText != "content" {
		t.Fatalf("cleaned_text = %q", c.CleanedText)
	}
	raw, err := s.captures.RawHTML("docs", "cap_1")
	if err != nil || raw != "<html><p>content</p></html>" {
		t.Fatalf("raw = %q, err %v", raw, err)
	}
}

func TestCaptureURLQuarantinesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	s := newTestService(t, nil)
	c, err := s.CaptureURL(context.Background(), CaptureRequest{
		Domain: "docs", SourceID: "cap_1", URL: srv.URL, QuarantineSuspicious: true,
	})
	if err != nil {
		t.Fatalf("CaptureURL: %v", err)
	}
	if c.CaptureOK || !c.Quarantined || c.QuarantineReason != "capture_failed" {
		t.Fatalf("capture = %+v", c)
	}
	if c.HTTPStatus != 404 {
		t.Fatalf("http_status = %d", c.HTTPStatus)
	}

	events, _ := s.Events("docs", 1)
	if len(events) != 1 || events[0].Status != "failed" {
		t.Fatalf("events = %+v", events)
	}
}

func TestCaptureURLValidation(t *testing.T) {
	s := newTestService(t, nil)
	if _, err := s.CaptureURL(context.Background(), CaptureRequest{SourceID: "x", URL: "http://x"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing domain: %v", err)
	}
	if _, err := s.CaptureURL(context.Background(), CaptureRequest{Domain: "d", SourceID: "x"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing url: %v", err)
	}
}

func TestCaptureFileHTML(t *testing.T) {
	s := newTestService(t, nil)
	c, err := s.CaptureFile(FileCaptureRequest{
		Domain: "docs", SourceID: "cap_1", Filename: "Page.HTML",
		ContentType: "text/html", Data: []byte("<h1>Title</h1>"),
	})
	if err != nil {
		t.Fatalf("CaptureFile: %v", err)
	}
	if !c.CaptureOK || c.HTTPStatus != 200 {
		t.Fatalf("capture = %+v", c)
	}
	if c.Headers["ext"] != "html" || c.Headers["filename"] != "Page.HTML" || c.Headers["content_type"] != "text/html" {
		t.Fatalf("headers = %v", c.Headers)
	}
}

func TestCaptureFileEmptyQuarantined(t *testing.T) {
	s := newTestService(t, nil)
	c, err := s.CaptureFile(FileCaptureRequest{
		Domain: "docs", SourceID: "cap_1", Filename: "empty.txt",
		Data: []byte("   \n"), QuarantineSuspicious: true,
	})
	if err != nil {
		t.Fatalf("CaptureFile: %v", err)
	}
	if c.CaptureOK || c.HTTPStatus != 400 {
		t.Fatalf("capture = %+v", c)
	}
	if !c.Quarantined || c.QuarantineReason != "empty_file" {
		t.Fatalf("capture = %+v", c)
	}
}

func TestCaptureFileParseFailure(t *testing.T) {
	s := newTestService(t, nil)
	c, err := s.CaptureFile(FileCaptureRequest{
		Domain: "docs", SourceID: "cap_1", Filename: "broken.docx",
		Data: []byte("not a zip"), QuarantineSuspicious: true,
	})
	if err != nil {
		t.Fatalf("CaptureFile: %v", err)
	}
	if c.CaptureOK || !c.Quarantined || c.QuarantineReason != "file_parse_failed" {
		t.Fatalf("capture = %+v", c)
	}
}

func TestQuarantineDefaultsReason(t *testing.T) {
	s := newTestService(t, nil)
	if _, err := s.CaptureFile(FileCaptureRequest{
		Domain: "docs", SourceID: "cap_1", Filename: "page.html", Data: []byte("<p>x</p>"),
	}); err != nil {
		t.Fatalf("CaptureFile: %v", err)
	}
	c, err := s.Quarantine("docs", "cap_1", "")
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	if !c.Quarantined || c.QuarantineReason != "manual_quarantine" || c.QuarantinedAt == "" {
		t.Fatalf("capture = %+v", c)
	}

	if _, err := s.Quarantine("docs", "missing", "suspicious"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing capture: %v", err)
	}
}
