package session_test

import (
	"context"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammad-safakhou/pagechat/session"
	"github.com/mohammad-safakhou/pagechat/session/inmemory"
	"github.com/mohammad-safakhou/pagechat/session/storetest"
)

var quiet = log.New(io.Discard, "", 0)

func TestNewSweeperRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	if _, err := session.NewSweeper(inmemory.NewInMemorySessionStore(time.Hour), time.Hour, "not a cron", quiet); err == nil {
		t.Fatalf("expected schedule parse error")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	t.Parallel()
	clock := storetest.NewFakeClock()
	store := inmemory.NewInMemorySessionStore(time.Hour, inmemory.WithClock(clock.Now))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := store.Create(ctx, "https://example.com", storetest.NewIndex(t)); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	clock.Advance(2 * time.Hour)
	keep, _ := store.Create(ctx, "https://example.com/keep", storetest.NewIndex(t))

	var hooked int
	sw, err := session.NewSweeper(store, time.Hour, "", quiet,
		session.WithSweepClock(clock.Now),
		session.WithSweepHook(func(n int) { hooked += n }))
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	n, err := sw.Sweep(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Sweep: n=%d err=%v", n, err)
	}
	if hooked != 3 {
		t.Fatalf("expected hook to see 3, got %d", hooked)
	}
	if _, err := store.Get(ctx, keep); err != nil {
		t.Fatalf("fresh session removed: %v", err)
	}
	if n, _ := sw.Sweep(ctx); n != 0 {
		t.Fatalf("second sweep should be a no-op, removed %d", n)
	}
}

func TestSweeperRunsOnSchedule(t *testing.T) {
	t.Parallel()
	store := inmemory.NewInMemorySessionStore(time.Hour)
	var runs atomic.Int32
	sw, err := session.NewSweeper(store, time.Hour, "* * * * * * *", quiet,
		session.WithSweepHook(func(int) { runs.Add(1) }))
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	sw.Start()
	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	sw.Stop()
	sw.Stop()
	if runs.Load() == 0 {
		t.Fatalf("sweeper never ran")
	}
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()
	sw, err := session.NewSweeper(inmemory.NewInMemorySessionStore(time.Hour), time.Hour, "", quiet)
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	done := make(chan struct{})
	go func() { sw.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Stop blocked without Start")
	}
}
