// Package cleaner normalizes raw HTML into plain text for downstream
// distillation. It is deterministic and does no I/O.
package cleaner

import (
	"html"
	"regexp"
	"strings"
)

var (
	reScript          = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	reStyle           = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	reTags            = regexp.MustCompile(`<[^>]+>`)
	// Go's \s is ASCII-only; entity unescaping runs first, so NBSP and
	// other Unicode spaces must collapse too.
	reWhitespace      = regexp.MustCompile(`[\s\p{Zs}\x{0085}\x{2028}\x{2029}]+`)
	reSpaceBeforePunc = regexp.MustCompile(`[\s\p{Zs}\x{0085}\x{2028}\x{2029}]+([.,!?:;])`)
)

// Text strips script/style blocks and all remaining tags, unescapes HTML
// entities, collapses whitespace runs to single spaces, removes whitespace
// before closing punctuation, and trims. Empty input returns "".
func Text(htmlText string) string {
	if htmlText == "" {
		return ""
	}
	t := reScript.ReplaceAllString(htmlText, " ")
	t = reStyle.ReplaceAllString(t, " ")
	t = reTags.ReplaceAllString(t, " ")
	t = html.UnescapeString(t)
	t = reWhitespace.ReplaceAllString(t, " ")
	t = reSpaceBeforePunc.ReplaceAllString(t, "$1")
	return strings.TrimSpace(t)
}
