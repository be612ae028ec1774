package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
)

const DefaultSweepSchedule = "* * * * *"

// Sweeper removes expired sessions on a cron schedule.
type Sweeper struct {
	store   Store
	ttl     time.Duration
	expr    *cronexpr.Expression
	logger  *log.Logger
	clock   Clock
	onSweep func(removed int)

	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

type SweeperOption func(*Sweeper)

func WithSweepClock(c Clock) SweeperOption { return func(s *Sweeper) { s.clock = c } }

// WithSweepHook is called after every sweep with the number of removed sessions.
func WithSweepHook(f func(removed int)) SweeperOption { return func(s *Sweeper) { s.onSweep = f } }

func NewSweeper(store Store, ttl time.Duration, schedule string, logger *log.Logger, opts ...SweeperOption) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[SWEEP] ", log.LstdFlags)
	}
	s := &Sweeper{
		store:  store,
		ttl:    ttl,
		expr:   expr,
		logger: logger,
		clock:  time.Now,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start runs the sweep loop in the background until Stop.
func (s *Sweeper) Start() {
	s.startOnce.Do(func() {
		go s.loop()
	})
}

func (s *Sweeper) loop() {
	defer close(s.done)
	for {
		now := time.Now()
		next := s.expr.Next(now)
		if next.IsZero() {
			s.logger.Printf("schedule has no future runs, stopping")
			return
		}
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
			_, _ = s.Sweep(context.Background())
		}
	}
}

// Stop ends the loop and waits for an in-flight sweep. Safe to call more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.startOnce.Do(func() { close(s.done) })
	<-s.done
}

// Sweep runs one pass immediately.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	removed, err := s.store.SweepExpired(ctx, s.clock(), s.ttl)
	if err != nil {
		s.logger.Printf("sweep failed: %v", err)
		return removed, err
	}
	if removed > 0 {
		s.logger.Printf("removed %d expired sessions", removed)
	}
	if s.onSweep != nil {
		s.onSweep(removed)
	}
	return removed, nil
}
