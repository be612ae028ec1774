package redis_session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/pagechat/config"
	"github.com/mohammad-safakhou/pagechat/internal/apperr"
	"github.com/mohammad-safakhou/pagechat/models"
	"github.com/mohammad-safakhou/pagechat/session"
	"github.com/mohammad-safakhou/pagechat/tools/search"
)

const (
	DefaultKeyPrefix  = "pagechat"
	defaultLockTTL    = 2 * time.Minute
	lockPollInterval  = 25 * time.Millisecond
	maxAppendAttempts = 5
)

// releaseLock deletes the lock only if it still holds our token.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type Options struct {
	KeyPrefix      string
	TTL            time.Duration
	Embedder       search.Embedder // used to restore vector indexes
	IndexCacheSize int
	Clock          session.Clock
	LockTTL        time.Duration
}

// Store keeps sessions in Redis. Restored indexes are cached locally.
type Store struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	embedder search.Embedder
	clock    session.Clock
	lockTTL  time.Duration
	indexes  *lru.Cache[string, *search.Index]
}

type meta struct {
	URL       string          `json:"url"`
	CreatedAt time.Time       `json:"created_at"`
	Index     search.Snapshot `json:"index"`
}

// NewClient builds a go-redis client from config.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
}

func NewRedisSessionStore(client *redis.Client, opts Options) (*Store, error) {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = session.DefaultTTL
	}
	if opts.IndexCacheSize <= 0 {
		opts.IndexCacheSize = 256
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	cache, err := lru.New[string, *search.Index](opts.IndexCacheSize)
	if err != nil {
		return nil, fmt.Errorf("init index cache: %w", err)
	}
	return &Store{
		client:   client,
		prefix:   opts.KeyPrefix,
		ttl:      opts.TTL,
		embedder: opts.Embedder,
		clock:    opts.Clock,
		lockTTL:  opts.LockTTL,
		indexes:  cache,
	}, nil
}

var _ session.Store = (*Store)(nil)

func (s *Store) metaKey(id string) string    { return s.prefix + ":session:" + id }
func (s *Store) historyKey(id string) string { return s.metaKey(id) + ":history" }
func (s *Store) lockKey(id string) string    { return s.metaKey(id) + ":lock" }

func notFound(op string) error {
	return apperr.New(apperr.KindNotFound, op, "session not found or expired")
}

func (s *Store) Create(ctx context.Context, url string, index *search.Index) (string, error) {
	const op = "create session"
	if index == nil {
		return "", apperr.New(apperr.KindIndex, op, "index is nil")
	}
	data, err := json.Marshal(meta{URL: url, CreatedAt: s.clock(), Index: index.Snapshot()})
	if err != nil {
		return "", fmt.Errorf("%s: marshal: %w", op, err)
	}
	for {
		id := uuid.NewString()
		ok, err := s.client.SetNX(ctx, s.metaKey(id), data, s.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			s.indexes.Add(id, index)
			return id, nil
		}
	}
}

func (s *Store) loadMeta(ctx context.Context, id, op string) (*meta, error) {
	raw, err := s.client.Get(ctx, s.metaKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(op)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var m meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}
	if session.Expired(m.CreatedAt, s.clock(), s.ttl) {
		return nil, notFound(op)
	}
	return &m, nil
}

func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	const op = "get session"
	m, err := s.loadMeta(ctx, id, op)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.LRange(ctx, s.historyKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: history: %w", op, err)
	}
	history := make([]models.Turn, 0, len(raw))
	for _, item := range raw {
		var turn models.Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("%s: decode turn: %w", op, err)
		}
		history = append(history, turn)
	}

	index, ok := s.indexes.Get(id)
	if !ok {
		index, err = search.Restore(m.Index, s.embedder)
		if err != nil {
			return nil, err
		}
		s.indexes.Add(id, index)
	}
	return &session.Session{
		ID:        id,
		URL:       m.URL,
		CreatedAt: m.CreatedAt,
		History:   history,
		Index:     index,
	}, nil
}

// AppendTurn pushes both turns with one RPUSH while watching the session key, so
// a session that expires mid-call is never given an orphaned history list.
func (s *Store) AppendTurn(ctx context.Context, id, question, answer string) error {
	const op = "append turn"
	values := make([]interface{}, 0, 2)
	for _, turn := range session.TurnPair(question, answer) {
		b, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("%s: marshal: %w", op, err)
		}
		values = append(values, b)
	}

	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			if _, err := s.loadMetaTx(ctx, tx, id, op); err != nil {
				return err
			}
			// The history list expires with the meta key, measured on the server's clock.
			remaining, err := tx.PTTL(ctx, s.metaKey(id)).Result()
			if err != nil {
				return err
			}
			if remaining <= 0 {
				remaining = s.ttl
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.RPush(ctx, s.historyKey(id), values...)
				pipe.PExpire(ctx, s.historyKey(id), remaining)
				return nil
			})
			return err
		}, s.metaKey(id))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && apperr.KindOf(err) == "" {
			return fmt.Errorf("%s: %w", op, err)
		}
		return err
	}
	return fmt.Errorf("%s: too much contention on session %s", op, id)
}

func (s *Store) loadMetaTx(ctx context.Context, tx *redis.Tx, id, op string) (*meta, error) {
	raw, err := tx.Get(ctx, s.metaKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(op)
	}
	if err != nil {
		return nil, err
	}
	var m meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if session.Expired(m.CreatedAt, s.clock(), s.ttl) {
		return nil, notFound(op)
	}
	return &m, nil
}

// sessionIDs scans for session keys, skipping history and lock keys.
func (s *Store) sessionIDs(ctx context.Context) ([]string, error) {
	prefix := s.prefix + ":session:"
	var ids []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		id := strings.TrimPrefix(iter.Val(), prefix)
		if id == "" || strings.Contains(id, ":") {
			continue
		}
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	return ids, nil
}

func (s *Store) remove(ctx context.Context, id string) error {
	s.indexes.Remove(id)
	return s.client.Del(ctx, s.metaKey(id), s.historyKey(id), s.lockKey(id)).Err()
}

// SweepExpired drops sessions whose age exceeds ttl. Redis key expiry usually gets
// there first; this catches sessions created under a longer ttl.
func (s *Store) SweepExpired(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	ids, err := s.sessionIDs(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		raw, err := s.client.Get(ctx, s.metaKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			s.indexes.Remove(id)
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("sweep %s: %w", id, err)
		}
		var m meta
		if err := json.Unmarshal(raw, &m); err != nil || session.Expired(m.CreatedAt, now, ttl) {
			if err := s.remove(ctx, id); err != nil {
				return removed, fmt.Errorf("sweep %s: %w", id, err)
			}
			removed++
		}
	}
	return removed, nil
}

func (s *Store) Clear(ctx context.Context) (int, error) {
	ids, err := s.sessionIDs(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := s.remove(ctx, id); err != nil {
			return 0, fmt.Errorf("clear %s: %w", id, err)
		}
	}
	s.indexes.Purge()
	return len(ids), nil
}

func (s *Store) Len(ctx context.Context) (int, error) {
	ids, err := s.sessionIDs(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// renewLock extends the lock only if it still holds our token.
var renewLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Lock takes a SET NX lock with a random token, polling until ctx is done. The lock
// is renewed every LockTTL/3 until released.
func (s *Store) Lock(ctx context.Context, id string) (func(), error) {
	const op = "lock session"
	if _, err := s.loadMeta(ctx, id, op); err != nil {
		return nil, err
	}
	token := uuid.NewString()
	key := s.lockKey(id)
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		ok, err := s.client.SetNX(ctx, key, token, s.lockTTL).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			done := make(chan struct{})
			go s.keepLock(key, token, done)
			var once sync.Once
			return func() {
				once.Do(func() {
					close(done)
					_ = releaseLock.Run(context.Background(), s.client, []string{key}, token).Err()
				})
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, apperr.Wrap(apperr.KindTimeout, op, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Store) keepLock(key, token string, done <-chan struct{}) {
	ticker := time.NewTicker(s.lockTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			kept, err := renewLock.Run(context.Background(), s.client, []string{key}, token, s.lockTTL.Milliseconds()).Int()
			if err == nil && kept == 0 {
				return
			}
		}
	}
}
