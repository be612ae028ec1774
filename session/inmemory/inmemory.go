package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/pagechat/internal/apperr"
	"github.com/mohammad-safakhou/pagechat/models"
	"github.com/mohammad-safakhou/pagechat/session"
	"github.com/mohammad-safakhou/pagechat/tools/search"
)

type entry struct {
	url       string
	createdAt time.Time
	history   []models.Turn
	index     *search.Index
	sem       chan struct{}
}

// Store is a process-local session store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	ttl      time.Duration
	clock    session.Clock
	newID    func() string
}

type Option func(*Store)

func WithClock(c session.Clock) Option { return func(s *Store) { s.clock = c } }

// WithIDGenerator replaces uuid.NewString, e.g. to force collisions in tests.
func WithIDGenerator(f func() string) Option { return func(s *Store) { s.newID = f } }

func NewInMemorySessionStore(ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	s := &Store{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		clock:    time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ session.Store = (*Store)(nil)

func (s *Store) Create(_ context.Context, url string, index *search.Index) (string, error) {
	if index == nil {
		return "", apperr.New(apperr.KindIndex, "create session", "index is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID()
	for {
		if _, taken := s.sessions[id]; !taken {
			break
		}
		id = s.newID()
	}
	s.sessions[id] = &entry{
		url:       url,
		createdAt: s.clock(),
		index:     index,
		sem:       make(chan struct{}, 1),
	}
	return id, nil
}

// live returns the entry for id unless it is missing or expired. Callers hold mu.
func (s *Store) live(id string) (*entry, error) {
	e, ok := s.sessions[id]
	if !ok || session.Expired(e.createdAt, s.clock(), s.ttl) {
		return nil, apperr.New(apperr.KindNotFound, "get session", "session not found or expired")
	}
	return e, nil
}

func (s *Store) Get(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.live(id)
	if err != nil {
		return nil, err
	}
	return &session.Session{
		ID:        id,
		URL:       e.url,
		CreatedAt: e.createdAt,
		History:   append([]models.Turn(nil), e.history...),
		Index:     e.index,
	}, nil
}

func (s *Store) AppendTurn(_ context.Context, id, question, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.live(id)
	if err != nil {
		return err
	}
	e.history = append(e.history, session.TurnPair(question, answer)...)
	return nil
}

func (s *Store) SweepExpired(_ context.Context, now time.Time, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.sessions {
		if session.Expired(e.createdAt, now, ttl) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) Clear(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.sessions)
	s.sessions = make(map[string]*entry)
	return n, nil
}

func (s *Store) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}

func (s *Store) Lock(ctx context.Context, id string) (func(), error) {
	s.mu.RLock()
	e, err := s.live(id)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-e.sem }) }, nil
	case <-ctx.Done():
		return nil, apperr.Wrap(apperr.KindTimeout, "lock session", ctx.Err())
	}
}
