package shared

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short", in: "hello", max: 10, want: "hello"},
		{name: "exact", in: "hello", max: 5, want: "hello"},
		{name: "ascii", in: "hello world", max: 5, want: "hello... (truncated)"},
		{name: "inside rune", in: "héllo", max: 2, want: "h... (truncated)"},
		{name: "rune boundary", in: "héllo", max: 3, want: "hé... (truncated)"},
		{name: "four byte rune", in: "a😀b", max: 3, want: "a... (truncated)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Truncate(tc.in, tc.max)
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("truncated output is not valid utf-8: %q", got)
			}
		})
	}
}

func TestTruncate_LongMultibyteBody(t *testing.T) {
	t.Parallel()

	got := Truncate(strings.Repeat("é", 600), 1000)
	if !utf8.ValidString(got) || !strings.HasSuffix(got, "... (truncated)") {
		t.Fatalf("unexpected truncation %q", got)
	}
}
