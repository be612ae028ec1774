package httpfetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/pagechat/internal/apperr"
)

func newTestFetch(timeout time.Duration, maxBytes int64) *Fetch {
	return New(Options{Timeout: timeout, UserAgent: "pagechat-test", MaxBytes: maxBytes, AllowPrivate: true})
}

func TestExecSuccess(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "pagechat-test" {
			t.Errorf("unexpected user agent %q", got)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body><p>hello</p></body></html>"))
	}))
	defer srv.Close()

	page, err := newTestFetch(time.Second, 1<<20).Exec(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if page.Status != http.StatusOK || !strings.Contains(page.HTML, "hello") {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestExecNon2xxIsFetchError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestFetch(time.Second, 1<<20).Exec(context.Background(), srv.URL)
	if !errors.Is(err, apperr.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestExecRejectsOversizeBody(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 2048)))
	}))
	defer srv.Close()

	_, err := newTestFetch(time.Second, 1024).Exec(context.Background(), srv.URL)
	if !errors.Is(err, apperr.ErrFetch) || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestExecRejectsBinaryContent(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 0x50})
	}))
	defer srv.Close()

	_, err := newTestFetch(time.Second, 1024).Exec(context.Background(), srv.URL)
	if !errors.Is(err, apperr.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestExecTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestFetch(50*time.Millisecond, 1024).Exec(context.Background(), srv.URL)
	if !errors.Is(err, apperr.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if apperr.KindOf(err) != apperr.KindTimeout {
		t.Fatalf("expected timeout kind, got %q", apperr.KindOf(err))
	}
}

func TestExecBlocksPrivateTargets(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("private target should not be reached")
	}))
	defer srv.Close()

	f := New(Options{Timeout: time.Second, MaxBytes: 1024})
	_, err := f.Exec(context.Background(), srv.URL)
	if !errors.Is(err, apperr.ErrFetch) {
		t.Fatalf("expected fetch error for loopback target, got %v", err)
	}
}
