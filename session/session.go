package session

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/pagechat/models"
	"github.com/mohammad-safakhou/pagechat/tools/search"
)

const DefaultTTL = time.Hour

// Session is one scraped page plus its conversation.
type Session struct {
	ID        string
	URL       string
	CreatedAt time.Time
	History   []models.Turn
	Index     *search.Index
}

// Store keeps sessions addressable by id until they expire.
type Store interface {
	// Create registers a fully built index under a fresh id.
	Create(ctx context.Context, url string, index *search.Index) (string, error)
	// Get returns the session or apperr.ErrNotFound if it is unknown or expired.
	// The returned history is a copy.
	Get(ctx context.Context, id string) (*Session, error)
	// AppendTurn appends the user question and the assistant answer as one step.
	AppendTurn(ctx context.Context, id, question, answer string) error
	// SweepExpired removes sessions older than ttl at now and returns how many.
	SweepExpired(ctx context.Context, now time.Time, ttl time.Duration) (int, error)
	Clear(ctx context.Context) (int, error)
	Len(ctx context.Context) (int, error)
	// Lock serialises chat turns on one session. The returned func releases it.
	Lock(ctx context.Context, id string) (func(), error)
}

// Clock returns the current time. Stores take one so expiry can be tested.
type Clock func() time.Time

// Expired reports whether a session created at createdAt is past ttl at now.
func Expired(createdAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(createdAt) > ttl
}

// TurnPair builds the two history entries a chat step appends.
func TurnPair(question, answer string) []models.Turn {
	return []models.Turn{
		{Role: models.RoleUser, Text: question},
		{Role: models.RoleAssistant, Text: answer},
	}
}

type StoreType string

const (
	InMemoryStore StoreType = "inmemory"
	RedisStore    StoreType = "redis"
)
