package cleaner

import "testing"

func TestText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"entities and punctuation", "<p>Hello&nbsp;<b>World</b> !</p>", "Hello World!"},
		{"nbsp collapsed", "a&nbsp;&nbsp;b c", "a b c"},
		{"unicode spaces collapsed", "a\u00a0\u2003b\u00a0.", "a b."},
		{"script stripped", "<script>var x = '<p>hi</p>';</script><p>kept</p>", "kept"},
		{"style stripped", "<style>p { color: red; }</style>text", "text"},
		{"case insensitive blocks", "<SCRIPT>x</SCRIPT><STYLE>y</STYLE>ok", "ok"},
		{"whitespace collapse", "a\n\n\t  b", "a b"},
		{"space before colon", "note :  done .", "note: done."},
		{"unclosed tag dropped", "before <img src='x'> after", "before after"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Text(tc.in); got != tc.want {
				t.Fatalf("Text(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
