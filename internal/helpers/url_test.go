package helpers

import (
	"net"
	"testing"
)

func TestCanonicalURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "defaults https and cleans path",
			in:   "Example.com/news/../tech/latest",
			want: "https://example.com/tech/latest",
		},
		{
			name: "removes default port and tracking params",
			in:   "http://news.example.com:80/article?id=123&utm_source=rss#section",
			want: "http://news.example.com/article?id=123",
		},
		{
			name: "sorts query parameters and preserves trailing slash",
			in:   "https://example.com/path/?b=2&a=1&fbclid=xyz",
			want: "https://example.com/path/?a=1&b=2",
		},
		{
			name: "handles schemeless url with double slash",
			in:   "//blog.example.com/post/42?utm_medium=email",
			want: "https://blog.example.com/post/42",
		},
		{
			name: "keeps non default port",
			in:   "https://Example.com:8443",
			want: "https://example.com:8443/",
		},
		{
			name: "normalises repeated slashes",
			in:   "https://example.com//a//b///c",
			want: "https://example.com/a/b/c",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := CanonicalURL(tt.in)
			if err != nil {
				t.Fatalf("CanonicalURL() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("CanonicalURL() got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalURLErrors(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "   ", ":///invalid", "ftp://example.com/file", "https://"} {
		if _, err := CanonicalURL(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestIsPrivateIP(t *testing.T) {
	t.Parallel()
	private := []string{"127.0.0.1", "10.1.2.3", "192.168.0.10", "172.16.5.4", "169.254.1.1", "100.64.0.1", "::1", "fd00::1", "fe80::1", "::ffff:127.0.0.1", "0.0.0.0"}
	for _, s := range private {
		if !IsPrivateIP(net.ParseIP(s)) {
			t.Fatalf("expected %s to be private", s)
		}
	}
	public := []string{"93.184.216.34", "8.8.8.8", "2606:4700::1111"}
	for _, s := range public {
		if IsPrivateIP(net.ParseIP(s)) {
			t.Fatalf("expected %s to be public", s)
		}
	}
}

func TestCheckPublicHost(t *testing.T) {
	t.Parallel()
	blocked := []string{"http://localhost:8080/", "https://printer.local/", "http://10.0.0.1/x", "http://[::1]/"}
	for _, u := range blocked {
		if err := CheckPublicHost(u); err == nil {
			t.Fatalf("expected %s to be blocked", u)
		}
	}
	if err := CheckPublicHost("https://example.com/"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
