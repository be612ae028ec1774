// Package storetest holds behaviour tests shared by every session.Store implementation.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/pagechat/internal/apperr"
	"github.com/mohammad-safakhou/pagechat/models"
	"github.com/mohammad-safakhou/pagechat/session"
	"github.com/mohammad-safakhou/pagechat/tools/search"
)

// Harness is a store under test plus a way to move its clock forward.
type Harness struct {
	Store   session.Store
	Now     func() time.Time
	Advance func(time.Duration)
}

// Factory builds a fresh, empty store whose sessions expire after ttl.
type Factory func(t *testing.T, ttl time.Duration) Harness

// FakeClock is a manually advanced clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// NewIndex builds a small lexical index that needs no embedder.
func NewIndex(t testing.TB, texts ...string) *search.Index {
	t.Helper()
	if len(texts) == 0 {
		texts = []string{"Example Domain. This domain is for illustrative examples."}
	}
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{Text: text, Source: "https://example.com", Index: i}
	}
	ix, err := search.Build(context.Background(), chunks, nil, search.Options{Mode: search.ModeLexical})
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	return ix
}

// Run exercises the full Store contract.
func Run(t *testing.T, newHarness Factory) {
	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, newHarness) })
	t.Run("UnknownID", func(t *testing.T) { testUnknownID(t, newHarness) })
	t.Run("AppendTurn", func(t *testing.T) { testAppendTurn(t, newHarness) })
	t.Run("HistoryIsCopy", func(t *testing.T) { testHistoryIsCopy(t, newHarness) })
	t.Run("Expiry", func(t *testing.T) { testExpiry(t, newHarness) })
	t.Run("SweepExpired", func(t *testing.T) { testSweep(t, newHarness) })
	t.Run("SameURLTwice", func(t *testing.T) { testSameURLTwice(t, newHarness) })
	t.Run("Clear", func(t *testing.T) { testClear(t, newHarness) })
	t.Run("Lock", func(t *testing.T) { testLock(t, newHarness) })
}

func testCreateGet(t *testing.T, newHarness Factory) {
	h := newHarness(t, time.Hour)
	ctx := context.Background()
	id, err := h.Store.Create(ctx, "https://example.com", NewIndex(t))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" {
		t.Fatalf("empty session id")
	}
	sess, err := h.Store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.ID != id || sess.URL != "https://example.com" || len(sess.History) != 0 {
		t.Fatalf("unexpected session %+v", sess)
	}
	if sess.Index == nil || sess.Index.Len() != 1 {
		t.Fatalf("expected usable index")
	}
	if !sess.CreatedAt.Equal(h.Now()) {
		t.Fatalf("expected created at %v, got %v", h.Now(), sess.CreatedAt)
	}
}

func testUnknownID(t *testing.T, newHarness Factory) {
	h := newHarness(t, time.Hour)
	ctx := context.Background()
	if _, err := h.Store.Get(ctx, "nonexistent"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := h.Store.AppendTurn(ctx, "nonexistent", "q", "a"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found on append, got %v", err)
	}
	if _, err := h.Store.Lock(ctx, "nonexistent"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found on lock, got %v", err)
	}
}

func testAppendTurn(t *testing.T, newHarness Factory) {
	h := newHarness(t, time.Hour)
	ctx := context.Background()
	id, err := h.Store.Create(ctx, "https://example.com", NewIndex(t))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := h.Store.AppendTurn(ctx, id, "What is this page?", "An example."); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if err := h.Store.AppendTurn(ctx, id, "Anything else?", "No."); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	sess, err := h.Store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := []models.Turn{
		{Role: models.RoleUser, Text: "What is this page?"},
		{Role: models.RoleAssistant, Text: "An example."},
		{Role: models.RoleUser, Text: "Anything else?"},
		{Role: models.RoleAssistant, Text: "No."},
	}
	if len(sess.History) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(sess.History))
	}
	for i := range want {
		if sess.History[i] != want[i] {
			t.Fatalf("turn %d: got %+v, want %+v", i, sess.History[i], want[i])
		}
	}
}

func testHistoryIsCopy(t *testing.T, newHarness Factory) {
	h := newHarness(t, time.Hour)
	ctx := context.Background()
	id, _ := h.Store.Create(ctx, "https://example.com", NewIndex(t))
	if err := h.Store.AppendTurn(ctx, id, "q", "a"); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	sess, _ := h.Store.Get(ctx, id)
	sess.History[0].Text = "mutated"
	again, _ := h.Store.Get(ctx, id)
	if again.History[0].Text != "q" {
		t.Fatalf("history was mutated through a returned copy")
	}
}

func testExpiry(t *testing.T, newHarness Factory) {
	h := newHarness(t, time.Minute)
	ctx := context.Background()
	id, _ := h.Store.Create(ctx, "https://example.com", NewIndex(t))
	h.Advance(30 * time.Second)
	if _, err := h.Store.Get(ctx, id); err != nil {
		t.Fatalf("session should still be live: %v", err)
	}
	if err := h.Store.AppendTurn(ctx, id, "q", "a"); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	h.Advance(31 * time.Second)
	if _, err := h.Store.Get(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected expired session to be not found, got %v", err)
	}
}

func testSweep(t *testing.T, newHarness Factory) {
	h := newHarness(t, time.Hour)
	ctx := context.Background()

	if n, err := h.Store.SweepExpired(ctx, h.Now(), time.Hour); err != nil || n != 0 {
		t.Fatalf("sweep on empty store: n=%d err=%v", n, err)
	}

	old, _ := h.Store.Create(ctx, "https://example.com/old", NewIndex(t))
	h.Advance(40 * time.Minute)
	fresh, _ := h.Store.Create(ctx, "https://example.com/new", NewIndex(t))
	h.Advance(30 * time.Minute)

	n, err := h.Store.SweepExpired(ctx, h.Now(), time.Hour)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 swept session, got %d", n)
	}
	if _, err := h.Store.Get(ctx, old); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("old session should be gone, got %v", err)
	}
	if _, err := h.Store.Get(ctx, fresh); err != nil {
		t.Fatalf("fresh session should survive: %v", err)
	}
	if n, err := h.Store.SweepExpired(ctx, h.Now(), time.Hour); err != nil || n != 0 {
		t.Fatalf("second sweep should remove nothing: n=%d err=%v", n, err)
	}
}

func testSameURLTwice(t *testing.T, newHarness Factory) {
	h := newHarness(t, time.Hour)
	ctx := context.Background()
	a, err := h.Store.Create(ctx, "https://example.com", NewIndex(t))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b, err := h.Store.Create(ctx, "https://example.com", NewIndex(t))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct ids")
	}
	for _, id := range []string{a, b} {
		if _, err := h.Store.Get(ctx, id); err != nil {
			t.Fatalf("session %s should be retrievable: %v", id, err)
		}
	}
	if n, _ := h.Store.Len(ctx); n != 2 {
		t.Fatalf("expected 2 sessions, got %d", n)
	}
}

func testClear(t *testing.T, newHarness Factory) {
	h := newHarness(t, time.Hour)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := h.Store.Create(ctx, "https://example.com", NewIndex(t)); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	n, err := h.Store.Clear(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Clear: n=%d err=%v", n, err)
	}
	if n, _ := h.Store.Len(ctx); n != 0 {
		t.Fatalf("expected empty store, got %d", n)
	}
}

func testLock(t *testing.T, newHarness Factory) {
	h := newHarness(t, time.Hour)
	ctx := context.Background()
	id, _ := h.Store.Create(ctx, "https://example.com", NewIndex(t))

	unlock, err := h.Store.Lock(ctx, id)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if _, err := h.Store.Lock(waitCtx, id); err == nil {
		t.Fatalf("second lock should wait until the context expires")
	}

	unlock()
	unlock()
	again, err := h.Store.Lock(ctx, id)
	if err != nil {
		t.Fatalf("Lock after unlock: %v", err)
	}
	again()
}
