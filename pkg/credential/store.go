package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mahaj/taskchat/pkg/apierr"
	"github.com/mahaj/taskchat/pkg/auth"
)

// TokenKey is the cache key the access token lives under.
const TokenKey = "access_token"

var ErrNoToken = errors.New("no access token cached")

// Store is the local token cache every network call reads first.
type Store interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Require fetches the cached token and rejects missing or expired ones with
// an authentication error. A store that cannot be read yields a network or
// timeout error instead. Tokens that are not JWTs are passed through.
func Require(ctx context.Context, s Store) (string, error) {
	if s == nil {
		return "", apierr.New(apierr.KindAuthentication, ErrNoToken)
	}
	tok, err := s.Token(ctx)
	if errors.Is(err, ErrNoToken) {
		return "", apierr.New(apierr.KindAuthentication, err)
	}
	if err != nil {
		// The cache itself is unreachable; the login may still be good.
		return "", apierr.FromTransport(err)
	}
	if tok == "" {
		return "", apierr.New(apierr.KindAuthentication, ErrNoToken)
	}
	if claims, err := auth.Inspect(tok); err == nil && claims.Expired(time.Now()) {
		return "", apierr.New(apierr.KindAuthentication, fmt.Errorf("token for %s expired", claims.Subject()))
	}
	return tok, nil
}

type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (m *MemoryStore) Token(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" {
		return "", ErrNoToken
	}
	return m.token, nil
}

func (m *MemoryStore) SetToken(_ context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}

// Open picks a store by name: "memory" (the default) or "redis".
func Open(kind string, opt RedisOptions) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(""), nil
	case "redis":
		return NewRedisStore(opt), nil
	}
	return nil, fmt.Errorf("unknown credential store %q", kind)
}
