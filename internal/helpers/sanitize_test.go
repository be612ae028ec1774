package helpers

import "testing"

func TestPlainText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "drops scripts and styles",
			in:   `<html><head><style>body{}</style><script>alert(1)</script></head><body><p>Hello</p></body></html>`,
			want: "Hello",
		},
		{
			name: "decodes entities",
			in:   `<p>Fish &amp; Chips&nbsp;&#39;22</p>`,
			want: "Fish & Chips '22",
		},
		{
			name: "separates adjacent blocks",
			in:   `<div>one</div><div>two</div>`,
			want: "one two",
		},
		{
			name: "empty",
			in:   "   ",
			want: "",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := PlainText(tt.in); got != tt.want {
				t.Fatalf("PlainText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	t.Parallel()
	in := "  a   b\t c \n\n\n\n d\r\ne  "
	want := "a b c\n\nd\ne"
	if got := NormalizeWhitespace(in); got != want {
		t.Fatalf("NormalizeWhitespace() = %q, want %q", got, want)
	}
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()
	if got := TruncateRunes("héllo", 2); got != "hé" {
		t.Fatalf("TruncateRunes() = %q", got)
	}
	if got := TruncateRunes("abc", 0); got != "abc" {
		t.Fatalf("TruncateRunes() with 0 = %q", got)
	}
	if got := TruncateRunes("abc", 10); got != "abc" {
		t.Fatalf("TruncateRunes() longer = %q", got)
	}
}
