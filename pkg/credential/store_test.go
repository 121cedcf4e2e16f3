package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/mahaj/taskchat/pkg/apierr"
	"github.com/mahaj/taskchat/pkg/auth"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("")
	if _, err := s.Token(ctx); !errors.Is(err, ErrNoToken) {
		t.Fatalf("empty store: %v", err)
	}
	_ = s.SetToken(ctx, "abc")
	if tok, err := s.Token(ctx); err != nil || tok != "abc" {
		t.Fatalf("token = %q, %v", tok, err)
	}
	_ = s.Clear(ctx)
	if _, err := s.Token(ctx); !errors.Is(err, ErrNoToken) {
		t.Fatalf("cleared store: %v", err)
	}
}

func TestRequire(t *testing.T) {
	ctx := context.Background()
	signer := auth.Signer{Key: []byte("k")}

	if _, err := Require(ctx, NewMemoryStore("")); !errors.Is(err, apierr.ErrAuthentication) {
		t.Errorf("missing token: %v", err)
	}
	if _, err := Require(ctx, nil); !errors.Is(err, apierr.ErrAuthentication) {
		t.Errorf("nil store: %v", err)
	}

	expired, _ := signer.Generate("u1", -time.Minute)
	if _, err := Require(ctx, NewMemoryStore(expired)); !errors.Is(err, apierr.ErrAuthentication) {
		t.Errorf("expired token: %v", err)
	}

	valid, _ := signer.Generate("u1", time.Hour)
	if tok, err := Require(ctx, NewMemoryStore(valid)); err != nil || tok != valid {
		t.Errorf("valid token: %q, %v", tok, err)
	}

	if tok, err := Require(ctx, NewMemoryStore("opaque")); err != nil || tok != "opaque" {
		t.Errorf("opaque token: %q, %v", tok, err)
	}
}

type failingStore struct {
	err error
}

func (f failingStore) Token(context.Context) (string, error) { return "", f.err }
func (f failingStore) SetToken(context.Context, string) error { return f.err }
func (f failingStore) Clear(context.Context) error { return f.err }

func TestRequireStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	refused := errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

	_, err := Require(ctx, failingStore{err: refused})
	if errors.Is(err, apierr.ErrAuthentication) {
		t.Fatalf("unreachable store reported as authentication: %v", err)
	}
	if !errors.Is(err, apierr.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if !errors.Is(err, refused) {
		t.Errorf("cause not wrapped: %v", err)
	}

	_, err = Require(ctx, failingStore{err: context.DeadlineExceeded})
	if !errors.Is(err, apierr.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}

	_, err = Require(ctx, failingStore{err: fmt.Errorf("redis: %w", ErrNoToken)})
	if !errors.Is(err, apierr.ErrAuthentication) {
		t.Fatalf("wrapped missing token: %v", err)
	}
}

func TestOpen(t *testing.T) {
	s, err := Open("", RedisOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("default store = %T", s)
	}
	if _, err := Open("sqlite", RedisOptions{}); err == nil {
		t.Errorf("unknown kind should fail")
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	s := NewRedisStore(RedisOptions{Addr: addr, Prefix: "taskchat-test:", TTL: time.Minute})
	defer s.Close()

	_ = s.Clear(ctx)
	if _, err := s.Token(ctx); !errors.Is(err, ErrNoToken) {
		t.Fatalf("empty: %v", err)
	}
	if err := s.SetToken(ctx, "tok"); err != nil {
		t.Fatal(err)
	}
	if tok, err := s.Token(ctx); err != nil || tok != "tok" {
		t.Fatalf("token = %q, %v", tok, err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
}
