package distill

import (
	"strings"
	"testing"
)

const docHTML = `<html><body>
<nav><ul><li>Home</li><li>Docs</li></ul></nav>
<h1>How to install the widget</h1>
<p>Run the installer and configure the output directory before you deploy.</p>
<p>Use the default settings unless you need a custom install location today.</p>
<h2>Example usage</h2>
<pre>widget --init --apply</pre>
<footer><p>Copyright 2026. All rights reserved.</p></footer>
</body></html>`

func TestSectionsGroupsBlocksUnderHeadings(t *testing.T) {
	secs := Sections(docHTML, "docs.example.com", "sha256:abc")
	if len(secs) != 2 {
		t.Fatalf("got %d sections, want 2", len(secs))
	}
	first := secs[0]
	if first.Title != "How to install the widget" {
		t.Fatalf("title = %q", first.Title)
	}
	if first.Kind != "howto" {
		t.Fatalf("kind = %q, want howto", first.Kind)
	}
	if !strings.Contains(first.CleanText, "Run the installer") {
		t.Fatalf("clean_text missing paragraph: %q", first.CleanText)
	}
	// heading + two paragraphs
	if len(first.Evidence) != 3 {
		t.Fatalf("evidence count = %d, want 3", len(first.Evidence))
	}
	if secs[1].Kind != "example" {
		t.Fatalf("second kind = %q, want example", secs[1].Kind)
	}
	if !strings.HasPrefix(first.SectionID, "sec_") || len(first.SectionID) != len("sec_")+24 {
		t.Fatalf("bad section id %q", first.SectionID)
	}
}

func TestSectionsMasksContainers(t *testing.T) {
	secs := Sections(docHTML, "docs.example.com", "sha256:abc")
	for _, s := range secs {
		if strings.Contains(s.CleanText, "Copyright") {
			t.Fatalf("footer content leaked into %q", s.CleanText)
		}
	}
}

func TestSectionsEvidenceOffsetsPointAtRawHTML(t *testing.T) {
	secs := Sections(docHTML, "docs.example.com", "sha256:abc")
	for _, s := range secs {
		for _, ev := range s.Evidence {
			if ev.SourceHash != "sha256:abc" {
				t.Fatalf("source_hash = %q", ev.SourceHash)
			}
			start, end := ev.Offset[0], ev.Offset[1]
			if start < 0 || end > len(docHTML) || start >= end {
				t.Fatalf("bad offset [%d,%d]", start, end)
			}
			if docHTML[start] != '<' {
				t.Fatalf("offset %d does not start a tag: %q", start, docHTML[start:end])
			}
		}
	}
}

func TestSectionsDeterministicIDs(t *testing.T) {
	a := Sections(docHTML, "docs.example.com", "sha256:abc")
	b := Sections(docHTML, "docs.example.com", "sha256:abc")
	for i := range a {
		if a[i].SectionID != b[i].SectionID {
			t.Fatalf("section ids differ: %q vs %q", a[i].SectionID, b[i].SectionID)
		}
	}
	c := Sections(docHTML, "docs.example.com", "sha256:other")
	if a[0].SectionID == c[0].SectionID {
		t.Fatal("section id should change with source hash")
	}
}

func TestSectionsHeadingsOnlyCollapse(t *testing.T) {
	html := "<h1>Setup guide overview</h1><h2>Install everything now</h2>"
	secs := Sections(html, "d", "sha256:x")
	if len(secs) != 1 {
		t.Fatalf("got %d sections, want 1", len(secs))
	}
	if secs[0].Title != "" {
		t.Fatalf("collapsed section should be untitled, got %q", secs[0].Title)
	}
	if !strings.Contains(secs[0].CleanText, "Setup guide overview") {
		t.Fatalf("clean_text = %q", secs[0].CleanText)
	}
}

func TestSectionsEmptyInput(t *testing.T) {
	if secs := Sections("", "d", "sha256:x"); len(secs) != 0 {
		t.Fatalf("got %d sections for empty html", len(secs))
	}
}

func TestExtractBlocksDropsBoilerplateAndDuplicates(t *testing.T) {
	html := "<p>Home</p><p>real content stays here</p><p>real content stays here</p><p>ok</p>"
	blocks := extractBlocks(html)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	if blocks[0].text != "real content stays here" {
		t.Fatalf("text = %q", blocks[0].text)
	}
}

func TestExtractBlocksSkipsNested(t *testing.T) {
	html := "<pre>first snippet <code>inner</code> tail</pre><code>standalone snippet</code>"
	blocks := extractBlocks(html)
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2: %+v", len(blocks), blocks)
	}
	if blocks[0].tag != "pre" || blocks[1].tag != "code" {
		t.Fatalf("tags = %q, %q", blocks[0].tag, blocks[1].tag)
	}
}

func TestClassifyKeepsInstructional(t *testing.T) {
	sec := Section{
		Kind:      "howto",
		Title:     "How to install",
		CleanText: "Run the installer, then configure and deploy the service to your cluster.",
	}
	cls := Classify(sec)
	if !cls.Instructional {
		t.Fatalf("score %.1f reasons %v", cls.Score, cls.Reasons)
	}
	if !containsReason(cls.Reasons, "kind:howto") {
		t.Fatalf("missing kind reason: %v", cls.Reasons)
	}
	if !containsReason(cls.Reasons, "verb_hits:3") {
		t.Fatalf("missing verb reason: %v", cls.Reasons)
	}
}

func TestClassifyDropsBoilerplate(t *testing.T) {
	cases := []struct {
		name   string
		sec    Section
		reason string
	}{
		{
			"empty",
			Section{Kind: "explanation"},
			"empty_text",
		},
		{
			"toc",
			Section{Kind: "explanation", CleanText: "Table of contents for the whole site and every chapter within it"},
			"toc",
		},
		{
			"legal footer",
			Section{Kind: "explanation", CleanText: "Copyright 2026 Example Corp. All rights reserved worldwide."},
			"non_instr_phrase:copyright",
		},
		{
			"too short",
			Section{Kind: "explanation", CleanText: "A tiny note."},
			"too_short",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cls := Classify(tc.sec)
			if cls.Instructional {
				t.Fatalf("kept with score %.1f reasons %v", cls.Score, cls.Reasons)
			}
			if !containsReason(cls.Reasons, tc.reason) {
				t.Fatalf("missing %q in %v", tc.reason, cls.Reasons)
			}
		})
	}
}

func TestFilterInstructionalPreservesOrder(t *testing.T) {
	sections := []Section{
		{SectionID: "sec_a", Kind: "howto", CleanText: "Run and configure the deployment pipeline before you apply changes."},
		{SectionID: "sec_b", Kind: "explanation", CleanText: ""},
		{SectionID: "sec_c", Kind: "example", CleanText: "Example: create the config file and install dependencies for the demo."},
	}
	kept, dropped, verdicts := FilterInstructional(sections)
	if len(kept) != 2 || kept[0].SectionID != "sec_a" || kept[1].SectionID != "sec_c" {
		t.Fatalf("kept = %+v", kept)
	}
	if len(dropped) != 1 || dropped[0].SectionID != "sec_b" {
		t.Fatalf("dropped = %+v", dropped)
	}
	if len(verdicts) != 1 || verdicts[0].Score != -10.0 {
		t.Fatalf("verdicts = %+v", verdicts)
	}
}

func containsReason(reasons []string, want string) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}
