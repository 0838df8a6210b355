package capture

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// FromUpload turns an uploaded file into raw HTML by extension. html/htm
// pass through; everything else is extracted to text and wrapped as an
// escaped <pre> block. An error means the file could not be parsed at
// all; an empty result with nil error means the file parsed but held no
// text.
func FromUpload(filename string, data []byte) (string, error) {
	ext := ""
	if i := strings.LastIndex(filename, "."); i >= 0 {
		ext = strings.ToLower(filename[i+1:])
	}
	switch ext {
	case "html", "htm":
		return string(data), nil
	case "txt", "md":
		return wrapText(string(data)), nil
	case "docx":
		text, err := docxText(data)
		if err != nil {
			return "", err
		}
		return wrapText(text), nil
	case "doc":
		return wrapText(bestEffortDocText(data)), nil
	case "xlsx":
		text, err := xlsxText(data)
		if err != nil {
			return "", err
		}
		return wrapText(text), nil
	case "pdf":
		text, err := pdfText(data)
		if err != nil {
			return "", err
		}
		return wrapText(text), nil
	default:
		return wrapText(string(data)), nil
	}
}

func wrapText(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return "<pre>" + html.EscapeString(text) + "</pre>"
}

// docxText extracts the text runs of word/document.xml.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("capture: open docx: %w", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("capture: docx missing word/document.xml")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("capture: read docx document: %w", err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var parts []string
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("capture: parse docx document: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
			}
		case xml.CharData:
			if inText && len(t) > 0 {
				parts = append(parts, string(t))
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

// bestEffortDocText tries utf-16le, utf-8, then latin-1 for legacy .doc
// uploads and returns the first decoding that yields any text.
func bestEffortDocText(data []byte) string {
	if t := decodeUTF16LE(data); strings.TrimSpace(t) != "" {
		return t
	}
	if t := strings.ReplaceAll(strings.ToValidUTF8(string(data), ""), "\x00", ""); strings.TrimSpace(t) != "" {
		return t
	}
	runes := make([]rune, 0, len(data))
	for _, b := range data {
		if b != 0 {
			runes = append(runes, rune(b))
		}
	}
	return string(runes)
}

func decodeUTF16LE(data []byte) string {
	if len(data) < 2 {
		return ""
	}
	u16 := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		u16 = append(u16, uint16(data[i])|uint16(data[i+1])<<8)
	}
	var b strings.Builder
	for _, r := range utf16.Decode(u16) {
		if r == 0 || r == 0xFFFD {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// xlsxText renders each sheet's rows as pipe-joined lines.
func xlsxText(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("capture: open xlsx: %w", err)
	}
	defer f.Close()
	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(sheet + "\n")
		for _, row := range rows {
			b.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// pdfText concatenates the plain text of every page.
func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("capture: open pdf: %w", err)
	}
	var parts []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
