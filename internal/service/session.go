package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	redispkg "github.com/theluxar/auth-service/pkg/redis"
)

// SessionView is the denormalized account snapshot cached per subject to
// avoid a database round-trip on every authenticated request. The cache is
// an optimization only; the view is always rebuildable from the account and
// permission records.
type SessionView struct {
	SubjectID   string     `json:"subject_id"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	Permissions []string   `json:"permissions"`
}

// SessionIdentity is the typed request identity the access guard attaches to
// the request context. Handlers receive it explicitly; it is never mutated
// after the guard produces it.
type SessionIdentity struct {
	SubjectID   string   `json:"subject_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// HasPermission reports whether the identity carries the permission string.
func (i SessionIdentity) HasPermission(permission string) bool {
	for _, p := range i.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// SessionStore is the narrow cache capability handed to the lifecycle
// manager and the access guard. Get returns (nil, nil) on a miss; a miss is
// never an error because the cache is not the source of truth.
type SessionStore interface {
	Get(ctx context.Context, subjectID string) (*SessionView, error)
	// Put stores the view for at most ttl. A non-positive ttl is a no-op:
	// the entry would already have outlived its access token.
	Put(ctx context.Context, subjectID string, view *SessionView, ttl time.Duration) error
	Invalidate(ctx context.Context, subjectID string) error
}

const sessionKeyPrefix = "session:"

// RedisSessionStore keeps session views in Redis as JSON values with a TTL.
type RedisSessionStore struct {
	client *redispkg.Client
}

func NewRedisSessionStore(client *redispkg.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) Get(ctx context.Context, subjectID string) (*SessionView, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+subjectID)
	if err != nil {
		if redispkg.IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}

	var view SessionView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		// Treat undecodable entries as a miss; the guard rebuilds.
		return nil, nil
	}
	return &view, nil
}

func (s *RedisSessionStore) Put(ctx context.Context, subjectID string, view *SessionView, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to encode session view: %w", err)
	}
	return s.client.Set(ctx, sessionKeyPrefix+subjectID, data, ttl)
}

func (s *RedisSessionStore) Invalidate(ctx context.Context, subjectID string) error {
	return s.client.Del(ctx, sessionKeyPrefix+subjectID)
}

type memoryEntry struct {
	view      SessionView
	expiresAt time.Time
}

// MemorySessionStore is a map-backed SessionStore for tests and cache-less
// deployments.
type MemorySessionStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemorySessionStore) Get(ctx context.Context, subjectID string) (*SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[subjectID]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, subjectID)
		return nil, nil
	}
	view := entry.view
	return &view, nil
}

func (s *MemorySessionStore) Put(ctx context.Context, subjectID string, view *SessionView, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[subjectID] = memoryEntry{
		view:      *view,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *MemorySessionStore) Invalidate(ctx context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, subjectID)
	return nil
}
