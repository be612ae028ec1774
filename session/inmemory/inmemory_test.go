package inmemory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/pagechat/session/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, ttl time.Duration) storetest.Harness {
		clock := storetest.NewFakeClock()
		return storetest.Harness{
			Store:   NewInMemorySessionStore(ttl, WithClock(clock.Now)),
			Now:     clock.Now,
			Advance: clock.Advance,
		}
	})
}

func TestCreateUniqueIDs(t *testing.T) {
	t.Parallel()
	s := NewInMemorySessionStore(time.Hour)
	ix := storetest.NewIndex(t)
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id, err := s.Create(context.Background(), "https://example.com", ix)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s after %d creates", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestCreateRegeneratesOnCollision(t *testing.T) {
	t.Parallel()
	ids := []string{"fixed", "fixed", "fixed", "other"}
	var mu sync.Mutex
	next := func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[0]
		ids = ids[1:]
		return id
	}
	s := NewInMemorySessionStore(time.Hour, WithIDGenerator(next))
	ix := storetest.NewIndex(t)
	first, _ := s.Create(context.Background(), "https://example.com", ix)
	second, _ := s.Create(context.Background(), "https://example.com", ix)
	if first != "fixed" || second != "other" {
		t.Fatalf("expected regeneration on collision, got %q and %q", first, second)
	}
}

func TestCreateRejectsNilIndex(t *testing.T) {
	t.Parallel()
	s := NewInMemorySessionStore(time.Hour)
	if _, err := s.Create(context.Background(), "https://example.com", nil); err == nil {
		t.Fatalf("expected error for nil index")
	}
	if n, _ := s.Len(context.Background()); n != 0 {
		t.Fatalf("no session should be registered, got %d", n)
	}
}

func TestConcurrentAppend(t *testing.T) {
	t.Parallel()
	s := NewInMemorySessionStore(time.Hour)
	ctx := context.Background()
	id, _ := s.Create(ctx, "https://example.com", storetest.NewIndex(t))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := s.Lock(ctx, id)
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			defer unlock()
			if err := s.AppendTurn(ctx, id, "q", "a"); err != nil {
				t.Errorf("AppendTurn: %v", err)
			}
		}()
	}
	wg.Wait()
	sess, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.History) != 100 {
		t.Fatalf("expected 100 turns, got %d", len(sess.History))
	}
	for i := 0; i < len(sess.History); i += 2 {
		if sess.History[i].Text != "q" || sess.History[i+1].Text != "a" {
			t.Fatalf("turns interleaved at %d", i)
		}
	}
}
