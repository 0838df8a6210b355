package distill

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Classification is the scored verdict for one section.
type Classification struct {
	Instructional bool
	Score         float64
	Reasons       []string
}

var wordRe = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_-]*`)

var nonInstructionalPhrases = []string{
	"table of contents",
	"toc",
	"subscribe",
	"sign in",
	"log in",
	"login",
	"cookie policy",
	"privacy policy",
	"terms of service",
	"copyright",
	"all rights reserved",
	"newsletter",
	"advertisement",
	"sponsored",
	"share this",
	"edit this page",
	"last updated",
}

var nonInstructionalHints = []string{
	"next",
	"previous",
	"page",
	"breadcrumbs",
	"cookie",
	"consent",
	"tracking",
	"analytics",
	"github",
	"twitter",
	"linkedin",
}

var instructionalVerbs = map[string]bool{
	"run":        true,
	"use":        true,
	"create":     true,
	"configure":  true,
	"deploy":     true,
	"install":    true,
	"set":        true,
	"enable":     true,
	"disable":    true,
	"define":     true,
	"apply":      true,
	"initialize": true,
	"init":       true,
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Classify scores a section; score >= 0.5 keeps it.
func Classify(sec Section) Classification {
	kind := normalize(sec.Kind)
	title := normalize(sec.Title)
	text := normalize(sec.CleanText)
	if text == "" {
		return Classification{Instructional: false, Score: -10.0, Reasons: []string{"empty_text"}}
	}
	var reasons []string
	score := 0.0
	switch kind {
	case "howto", "example", "definition":
		score += 3.0
		reasons = append(reasons, "kind:"+kind)
	case "note", "explanation":
		score += 1.0
		reasons = append(reasons, "kind:"+kind)
	}
	for _, phrase := range nonInstructionalPhrases {
		if strings.Contains(title, phrase) || strings.Contains(text, phrase) {
			score -= 6.0
			reasons = append(reasons, "non_instr_phrase:"+phrase)
		}
	}
	for _, hint := range nonInstructionalHints {
		if strings.Contains(title, hint) || strings.Contains(text, hint) {
			score -= 1.0
			reasons = append(reasons, "non_instr_hint:"+hint)
		}
	}
	if strings.Contains(title, "table of contents") || strings.HasPrefix(text, "table of contents") {
		score -= 8.0
		reasons = append(reasons, "toc")
	}
	words := wordRe.FindAllString(text, -1)
	verbHits := 0
	for _, w := range words {
		if instructionalVerbs[strings.ToLower(w)] {
			verbHits++
		}
	}
	if verbHits > 0 {
		bonus := 0.5 * float64(verbHits)
		if bonus > 2.0 {
			bonus = 2.0
		}
		score += bonus
		reasons = append(reasons, fmt.Sprintf("verb_hits:%d", verbHits))
	}
	if len(words) >= 12 {
		short := 0
		for _, w := range words {
			if len(w) <= 3 {
				short++
			}
		}
		if float64(short)/float64(len(words)) > 0.55 {
			score -= 2.0
			reasons = append(reasons, "nav_like_short_word_ratio")
		}
	}
	if utf8.RuneCountInString(text) < 40 {
		score -= 1.5
		reasons = append(reasons, "too_short")
	}
	return Classification{Instructional: score >= 0.5, Score: score, Reasons: reasons}
}

// FilterInstructional splits sections into kept and dropped, preserving
// input order.
func FilterInstructional(sections []Section) (kept []Section, dropped []Section, verdicts []Classification) {
	for _, sec := range sections {
		cls := Classify(sec)
		if cls.Instructional {
			kept = append(kept, sec)
		} else {
			dropped = append(dropped, sec)
			verdicts = append(verdicts, cls)
		}
	}
	return kept, dropped, verdicts
}
