package capture

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/xuri/excelize/v2"
)

// ------------------------------------------------------------------ store

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	saved, err := store.Save(Capture{
		SourceID:    "cap_1",
		Domain:      "d",
		URL:         "https://example.com/doc",
		HTTPStatus:  200,
		Headers:     map[string]string{"Content-Type": "text/html"},
		ContentHash: "sha256:abc",
		CaptureOK:   true,
	}, "<html>hi</html>")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.RawHTMLPath == "" || saved.RetrievedAt == "" {
		t.Fatalf("saved = %+v", saved)
	}
	got, err := store.Load("d", "cap_1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.URL != "https://example.com/doc" || !got.CaptureOK {
		t.Fatalf("got = %+v", got)
	}
	html, err := store.RawHTML("d", "cap_1")
	if err != nil {
		t.Fatalf("RawHTML: %v", err)
	}
	if html != "<html>hi</html>" {
		t.Fatalf("html = %q", html)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Load("d", "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStoreQuarantine(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.Save(Capture{SourceID: "cap_1", Domain: "d", CaptureOK: true}, "x"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Quarantine("d", "cap_1", "")
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	if !got.Quarantined || got.QuarantineReason != ReasonManual || got.QuarantinedAt == "" {
		t.Fatalf("got = %+v", got)
	}
	reloaded, _ := store.Load("d", "cap_1")
	if !reloaded.Quarantined {
		t.Fatal("quarantine not persisted")
	}
}

// ---------------------------------------------------------------- fetcher

func TestFetcherSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "corpus-ingestion") {
			t.Errorf("user agent = %q", ua)
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>page</html>"))
	}))
	defer srv.Close()
	status, headers, body, err := NewFetcher().Fetch(context.Background(), srv.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if status != 200 || body != "<html>page</html>" {
		t.Fatalf("status=%d body=%q", status, body)
	}
	if headers["Content-Type"] != "text/html" {
		t.Fatalf("headers = %v", headers)
	}
}

func TestFetcherCapturesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()
	status, _, body, err := NewFetcher().Fetch(context.Background(), srv.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("HTTP errors should not fail the fetch: %v", err)
	}
	if status != 404 || !strings.Contains(body, "gone") {
		t.Fatalf("status=%d body=%q", status, body)
	}
}

func TestFetcherTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	if _, _, _, err := NewFetcher().Fetch(context.Background(), srv.URL, time.Second); err == nil {
		t.Fatal("expected transport error for closed server")
	}
}

// ------------------------------------------------------------- extractors

func TestFromUploadHTMLPassthrough(t *testing.T) {
	got, err := FromUpload("page.html", []byte("<h1>Title</h1>"))
	if err != nil || got != "<h1>Title</h1>" {
		t.Fatalf("got %q, err %v", got, err)
	}
}

func TestFromUploadTextWrapsEscapedPre(t *testing.T) {
	got, err := FromUpload("notes.txt", []byte("a < b & c"))
	if err != nil {
		t.Fatalf("FromUpload: %v", err)
	}
	if got != "<pre>a &lt; b &amp; c</pre>" {
		t.Fatalf("got %q", got)
	}
}

func TestFromUploadUnknownExtensionWraps(t *testing.T) {
	got, err := FromUpload("data.xyz", []byte("plain payload"))
	if err != nil || !strings.HasPrefix(got, "<pre>") {
		t.Fatalf("got %q, err %v", got, err)
	}
}

func TestFromUploadEmptyText(t *testing.T) {
	got, err := FromUpload("empty.txt", []byte("   \n "))
	if err != nil {
		t.Fatalf("FromUpload: %v", err)
	}
	if got != "" {
		t.Fatalf("empty upload should extract to empty, got %q", got)
	}
}

func TestFromUploadDocx(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	w.Write([]byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body><w:p><w:r><w:t>First run</w:t></w:r><w:r><w:t>Second run</w:t></w:r></w:p></w:body>
</w:document>`))
	zw.Close()

	got, err := FromUpload("report.docx", buf.Bytes())
	if err != nil {
		t.Fatalf("FromUpload: %v", err)
	}
	if !strings.Contains(got, "First run") || !strings.Contains(got, "Second run") {
		t.Fatalf("got %q", got)
	}
}

func TestFromUploadDocxCorrupt(t *testing.T) {
	if _, err := FromUpload("broken.docx", []byte("not a zip")); err == nil {
		t.Fatal("expected parse error for corrupt docx")
	}
}

func TestFromUploadDocUTF16(t *testing.T) {
	encoded := utf16.Encode([]rune("legacy document text"))
	data := make([]byte, 0, len(encoded)*2)
	for _, u := range encoded {
		data = append(data, byte(u), byte(u>>8))
	}
	got, err := FromUpload("old.doc", data)
	if err != nil {
		t.Fatalf("FromUpload: %v", err)
	}
	if !strings.Contains(got, "legacy document text") {
		t.Fatalf("got %q", got)
	}
}

func TestFromUploadXLSX(t *testing.T) {
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "name")
	f.SetCellValue("Sheet1", "B1", "value")
	f.SetCellValue("Sheet1", "A2", "alpha")
	f.SetCellValue("Sheet1", "B2", "1")
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	got, err := FromUpload("table.xlsx", buf.Bytes())
	if err != nil {
		t.Fatalf("FromUpload: %v", err)
	}
	if !strings.Contains(got, "| name | value |") || !strings.Contains(got, "| alpha | 1 |") {
		t.Fatalf("got %q", got)
	}
}

func TestFromUploadXLSXCorrupt(t *testing.T) {
	if _, err := FromUpload("broken.xlsx", []byte("nope")); err == nil {
		t.Fatal("expected parse error for corrupt xlsx")
	}
}

func TestFromUploadPDFCorrupt(t *testing.T) {
	if _, err := FromUpload("broken.pdf", []byte("nope")); err == nil {
		t.Fatal("expected parse error for corrupt pdf")
	}
}
