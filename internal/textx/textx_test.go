package textx_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"pserver-scout/internal/textx"
)

func TestClean(t *testing.T) {
	cases := map[string]string{
		"":                                "",
		"  a \n\t b  ":                    "a b",
		"<p>Hello <b>world</b></p>":       "Hello world",
		"Fish &amp; Chips":                "Fish & Chips",
		"ﬁx now":                          "fix now",
		"<div>one</div><div>two</div>":    "one two",
		"<script>x()</script><p>kept</p>": "kept",
	}
	for in, want := range cases {
		if got := textx.Clean(in); got != want {
			t.Errorf("Clean(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLinesAndFirstLine(t *testing.T) {
	in := "<p>First  line</p><p></p><br>  <div>Second</div>"
	if diff := cmp.Diff([]string{"First line", "Second"}, textx.Lines(in)); diff != "" {
		t.Fatalf("lines (-want +got):\n%s", diff)
	}
	if got := textx.FirstLine("\n \nhello\nworld"); got != "hello" {
		t.Fatalf("first line = %q", got)
	}
	if got := textx.FirstLine("   "); got != "" {
		t.Fatalf("blank first line = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := textx.Truncate("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := textx.Truncate("abcdefghij", 8); got != "abcde..." {
		t.Fatalf("got %q", got)
	}
	if got := textx.Truncate("héllo wörld", 7); got != "héll..." {
		t.Fatalf("rune aware: %q", got)
	}
}

func TestAbsURL(t *testing.T) {
	cases := []struct{ base, ref, want string }{
		{"https://a.test/news/", "item/1", "https://a.test/news/item/1"},
		{"https://a.test/news/", "/x", "https://a.test/x"},
		{"https://a.test/", "https://b.test/y", "https://b.test/y"},
		{"https://a.test/", "  ", ""},
	}
	for _, c := range cases {
		if got := textx.AbsURL(c.base, c.ref); got != c.want {
			t.Errorf("AbsURL(%q,%q) = %q, want %q", c.base, c.ref, got, c.want)
		}
	}
}
