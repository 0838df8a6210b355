// Package distill turns raw HTML into section candidates with evidence
// offsets into the original bytes, then classifies them as instructional
// or not. No DOM parser is involved: offsets must survive, so everything
// works on the raw string.
package distill

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/avollmer/corpus/cleaner"
)

// Evidence points at the byte range of raw HTML a section was built from.
type Evidence struct {
	SourceHash string `json:"source_hash"`
	Offset     [2]int `json:"offset"`
}

// Section is a distilled candidate prior to canonicalization.
type Section struct {
	SectionID string     `json:"section_id"`
	Domain    string     `json:"domain"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title,omitempty"`
	CleanText string     `json:"clean_text"`
	Evidence  []Evidence `json:"evidence"`
}

var containerTags = []string{"nav", "footer", "header", "aside"}

var containerRes = func() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(containerTags))
	for i, tag := range containerTags {
		res[i] = regexp.MustCompile(`(?is)<\s*` + tag + `[^>]*>[\s\S]*?<\s*/\s*` + tag + `\s*>`)
	}
	return res
}()

var blockTags = []string{"h1", "h2", "h3", "h4", "h5", "h6", "p", "li", "pre", "code", "blockquote"}

// One pattern per tag; RE2 has no backreferences, so the close tag is
// spelled out instead of captured.
var blockRes = func() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(blockTags))
	for i, tag := range blockTags {
		res[i] = regexp.MustCompile(`(?is)<\s*` + tag + `\b[^>]*>([\s\S]*?)<\s*/\s*` + tag + `\s*>`)
	}
	return res
}()

type span struct{ start, end int }

// containerRanges finds nav/footer/header/aside extents, merged when they
// touch or overlap.
func containerRanges(rawHTML string) []span {
	var ranges []span
	for _, re := range containerRes {
		for _, loc := range re.FindAllStringIndex(rawHTML, -1) {
			ranges = append(ranges, span{loc[0], loc[1]})
		}
	}
	if len(ranges) == 0 {
		return nil
	}
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].start != ranges[j].start {
			return ranges[i].start < ranges[j].start
		}
		return ranges[i].end < ranges[j].end
	})
	merged := ranges[:1]
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if r.start <= last.end {
			if r.end > last.end {
				last.end = r.end
			}
		} else {
			merged = append(merged, r)
		}
	}
	return merged
}

// maskRanges blanks the given ranges with spaces, keeping newlines so byte
// offsets stay aligned with the original.
func maskRanges(rawHTML string, ranges []span) string {
	if len(ranges) == 0 {
		return rawHTML
	}
	b := []byte(rawHTML)
	for _, r := range ranges {
		start, end := r.start, r.end
		if start < 0 {
			start = 0
		}
		if end > len(b) {
			end = len(b)
		}
		for i := start; i < end; i++ {
			if b[i] != '\n' {
				b[i] = ' '
			}
		}
	}
	return string(b)
}

type block struct {
	tag        string
	start, end int
	text       string
}

var boilerplate = map[string]bool{
	"home":           true,
	"docs":           true,
	"edit this page": true,
	"last updated":   true,
}

func isBoilerplate(cleanText string) bool {
	s := strings.ToLower(strings.TrimSpace(cleanText))
	if s == "" || boilerplate[s] || len(s) < 3 {
		return true
	}
	return false
}

// extractBlocks returns non-boilerplate blocks in document order, skipping
// any block nested inside an earlier one, deduplicated by clean text.
func extractBlocks(rawHTML string) []block {
	if rawHTML == "" {
		return nil
	}
	masked := maskRanges(rawHTML, containerRanges(rawHTML))
	var candidates []block
	for i, re := range blockRes {
		for _, loc := range re.FindAllStringSubmatchIndex(masked, -1) {
			inner := ""
			if loc[2] >= 0 {
				inner = masked[loc[2]:loc[3]]
			}
			candidates = append(candidates, block{
				tag:   blockTags[i],
				start: loc[0],
				end:   loc[1],
				text:  cleaner.Text(inner),
			})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].start < candidates[j].start })
	seen := make(map[string]bool)
	var blocks []block
	prevEnd := 0
	for _, b := range candidates {
		if b.start < prevEnd {
			continue
		}
		prevEnd = b.end
		if isBoilerplate(b.text) || seen[b.text] {
			continue
		}
		seen[b.text] = true
		blocks = append(blocks, b)
	}
	return blocks
}

func guessKind(title, text string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	switch {
	case strings.Contains(t, "example"):
		return "example"
	case strings.HasPrefix(t, "how to") || strings.Contains(t, "how-to") || strings.Contains(t, "howto"):
		return "howto"
	case strings.HasPrefix(t, "note") || strings.HasPrefix(t, "warning") || strings.HasPrefix(t, "caution"):
		return "note"
	case strings.Contains(t, "definition"):
		return "definition"
	case strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "example:"):
		return "example"
	}
	return "explanation"
}

func sectionID(domain, sourceHash, kind, title, cleanText string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%s", domain, sourceHash, kind, title, cleanText)))
	return "sec_" + hex.EncodeToString(sum[:])[:24]
}

// Sections distills raw HTML into section candidates. Headings open a new
// section titled by the heading text; body blocks accumulate under the
// current title. When nothing but headings survived, all blocks collapse
// into a single untitled section.
func Sections(rawHTML, domain, sourceHash string) []Section {
	blocks := extractBlocks(rawHTML)
	var sections []Section
	var title string
	var evidence []Evidence
	var parts []string

	flush := func() {
		defer func() {
			title = ""
			evidence = nil
			parts = nil
		}()
		if len(parts) == 0 {
			return
		}
		cleanText := strings.TrimSpace(strings.Join(parts, "\n\n"))
		if cleanText == "" {
			return
		}
		kind := guessKind(title, cleanText)
		sections = append(sections, Section{
			SectionID: sectionID(domain, sourceHash, kind, title, cleanText),
			Domain:    domain,
			Kind:      kind,
			Title:     title,
			CleanText: cleanText,
			Evidence:  evidence,
		})
	}

	for _, b := range blocks {
		if strings.HasPrefix(b.tag, "h") {
			flush()
			title = b.text
			evidence = append(evidence, Evidence{SourceHash: sourceHash, Offset: [2]int{b.start, b.end}})
			continue
		}
		parts = append(parts, b.text)
		evidence = append(evidence, Evidence{SourceHash: sourceHash, Offset: [2]int{b.start, b.end}})
	}
	flush()

	if len(sections) == 0 && len(blocks) > 0 {
		var texts []string
		var ev []Evidence
		for _, b := range blocks {
			texts = append(texts, b.text)
			ev = append(ev, Evidence{SourceHash: sourceHash, Offset: [2]int{b.start, b.end}})
		}
		cleanText := strings.TrimSpace(strings.Join(texts, "\n\n"))
		kind := guessKind("", cleanText)
		sections = []Section{{
			SectionID: sectionID(domain, sourceHash, kind, "", cleanText),
			Domain:    domain,
			Kind:      kind,
			CleanText: cleanText,
			Evidence:  ev,
		}}
	}
	return sections
}
