package web_extract

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mohammad-safakhou/pagechat/config"
	"github.com/mohammad-safakhou/pagechat/internal/apperr"
	"github.com/mohammad-safakhou/pagechat/models"
)

type stubFetcher struct {
	html  string
	err   error
	calls int
}

func (s *stubFetcher) Exec(_ context.Context, url string) (models.Page, error) {
	s.calls++
	if s.err != nil {
		return models.Page{}, s.err
	}
	return models.Page{URL: url, FinalURL: url, Status: 200, HTML: s.html}, nil
}

type stubStrategy struct {
	name string
	text string
	err  error
}

func (s stubStrategy) Name() string { return s.name }

func (s stubStrategy) Extract(models.Page) (string, string, error) { return s.text, "", s.err }

var quietLogger = log.New(io.Discard, "", 0)

func articleHTML() string {
	para := "<p>The lighthouse keeper climbed the spiral stairs every evening, trimming the wick, polishing the lens, and writing the weather into a worn leather logbook that had belonged to his grandfather.</p>"
	return "<html><head><title>Keeper</title></head><body><nav><a href=\"/\">Home</a></nav><article><h1>Keeper</h1>" +
		strings.Repeat(para, 6) + "</article><footer>copyright</footer></body></html>"
}

func TestExtractReadability(t *testing.T) {
	t.Parallel()
	f := &stubFetcher{html: articleHTML()}
	ex := NewExtractor(f, config.ExtractConfig{}, quietLogger)

	segs, err := ex.Extract(context.Background(), "https://example.com/keeper")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("expected one segment, got %d", len(segs))
	}
	if segs[0].Strategy != "readability" {
		t.Fatalf("expected readability, got %q", segs[0].Strategy)
	}
	if !strings.Contains(segs[0].Text, "lighthouse keeper") || segs[0].Source != "https://example.com/keeper" {
		t.Fatalf("unexpected segment: %+v", segs[0])
	}
	if f.calls != 1 {
		t.Fatalf("expected a single fetch, got %d", f.calls)
	}
}

func TestExtractShortPageFallsBackToRawText(t *testing.T) {
	t.Parallel()
	f := &stubFetcher{html: "<html><body><p>Example Domain.</p><p>This domain is for illustrative examples.</p></body></html>"}
	ex := NewExtractor(f, config.ExtractConfig{}, quietLogger)

	segs, err := ex.Extract(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if segs[0].Strategy != "rawtext" {
		t.Fatalf("expected rawtext, got %q", segs[0].Strategy)
	}
	if segs[0].Text != "Example Domain. This domain is for illustrative examples." {
		t.Fatalf("unexpected text %q", segs[0].Text)
	}
}

func TestExtractNoContent(t *testing.T) {
	t.Parallel()
	f := &stubFetcher{html: "<html><body><script>var x = 1;</script><style>p{}</style></body></html>"}
	ex := NewExtractor(f, config.ExtractConfig{}, quietLogger)

	_, err := ex.Extract(context.Background(), "https://example.com/empty")
	if !errors.Is(err, apperr.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
}

func TestExtractFetchErrorPropagates(t *testing.T) {
	t.Parallel()
	f := &stubFetcher{err: apperr.New(apperr.KindFetch, "fetch", "HTTP 404: Not Found")}
	ex := NewExtractor(f, config.ExtractConfig{}, quietLogger)

	_, err := ex.Extract(context.Background(), "https://example.com/missing")
	if !errors.Is(err, apperr.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestExtractStrategyOrder(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("word ", 30)
	tests := []struct {
		name       string
		strategies []Strategy
		want       string
		wantErr    bool
	}{
		{
			name:       "first long enough wins",
			strategies: []Strategy{stubStrategy{name: "a", text: long}, stubStrategy{name: "b", text: long}},
			want:       "a",
		},
		{
			name:       "short first is skipped",
			strategies: []Strategy{stubStrategy{name: "a", text: "short"}, stubStrategy{name: "b", text: long}, stubStrategy{name: "c", text: "x"}},
			want:       "b",
		},
		{
			name:       "failing first is skipped",
			strategies: []Strategy{stubStrategy{name: "a", err: errors.New("boom")}, stubStrategy{name: "b", text: long}},
			want:       "b",
		},
		{
			name:       "last accepts short text",
			strategies: []Strategy{stubStrategy{name: "a", text: "short"}, stubStrategy{name: "b", text: "tiny"}},
			want:       "b",
		},
		{
			name:       "all empty",
			strategies: []Strategy{stubStrategy{name: "a"}, stubStrategy{name: "b", text: "  \n "}},
			wantErr:    true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ex := NewExtractorWithStrategies(&stubFetcher{html: "<p></p>"}, config.ExtractConfig{MinTextLength: 100}, quietLogger, tt.strategies...)
			segs, err := ex.Extract(context.Background(), "https://example.com")
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrExtraction) {
					t.Fatalf("expected extraction error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if segs[0].Strategy != tt.want {
				t.Fatalf("expected strategy %q, got %q", tt.want, segs[0].Strategy)
			}
		})
	}
}

func TestExtractTruncatesToMaxChars(t *testing.T) {
	t.Parallel()
	ex := NewExtractorWithStrategies(&stubFetcher{html: "<p></p>"}, config.ExtractConfig{MinTextLength: 10, MaxChars: 50}, quietLogger,
		stubStrategy{name: "a", text: strings.Repeat("héllo ", 40)})
	segs, err := ex.Extract(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if n := utf8.RuneCountInString(segs[0].Text); n != 50 {
		t.Fatalf("expected 50 runes, got %d", n)
	}
}

func TestExtractCancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ex := NewExtractor(&stubFetcher{html: articleHTML()}, config.ExtractConfig{}, quietLogger)
	if _, err := ex.Extract(ctx, "https://example.com"); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}

func TestRawTextSkipsInvisible(t *testing.T) {
	t.Parallel()
	page := models.Page{HTML: "<html><head><title>T</title><style>.a{}</style></head><body>Hello <script>alert(1)</script><noscript>enable js</noscript><b>world</b></body></html>"}
	text, title, err := RawText{}.Extract(page)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "Hello world" {
		t.Fatalf("unexpected text %q", text)
	}
	if title != "T" {
		t.Fatalf("unexpected title %q", title)
	}
}

func TestMarkdownPrefersMain(t *testing.T) {
	t.Parallel()
	page := models.Page{HTML: "<html><body><nav>Menu</nav><main><h1>Guide</h1><p>Install the tool.</p></main><footer>Legal</footer></body></html>"}
	text, title, err := NewMarkdown().Extract(page)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(text, "# Guide") || !strings.Contains(text, "Install the tool.") {
		t.Fatalf("unexpected markdown %q", text)
	}
	if strings.Contains(text, "Menu") || strings.Contains(text, "Legal") {
		t.Fatalf("boilerplate leaked into %q", text)
	}
	if title != "Guide" {
		t.Fatalf("unexpected title %q", title)
	}
}

func TestMarkdownPrunesBodyBoilerplate(t *testing.T) {
	t.Parallel()
	page := models.Page{HTML: "<html><body><div class=\"sidebar\">Links</div><div><p>Body text here.</p></div><aside>Ads</aside></body></html>"}
	text, _, err := NewMarkdown().Extract(page)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(text, "Body text here.") || strings.Contains(text, "Links") || strings.Contains(text, "Ads") {
		t.Fatalf("unexpected markdown %q", text)
	}
}
