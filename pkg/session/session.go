// Package session resolves the principal on whose behalf a request runs.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CookieName is the cookie carrying the session id.
const CookieName = "session_id"

// ErrNoSession indicates a missing or expired session.
var ErrNoSession = errors.New("no session")

// Resolver returns the principal of a request.
type Resolver interface {
	Principal(r *http.Request) (string, error)
}

// Static resolves every request to the same principal. It stands in for
// authentication in local runs.
type Static string

// Principal implements Resolver.
func (s Static) Principal(*http.Request) (string, error) {
	return string(s), nil
}

// RedisStore keeps sessions in redis under "session:<id>".
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisStore creates a session store. A non-positive ttl defaults to an hour.
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

// TTL returns the session lifetime.
func (s *RedisStore) TTL() time.Duration { return s.ttl }

// Create opens a session for user and returns its id.
func (s *RedisStore) Create(ctx context.Context, user string) (string, error) {
	sid := uuid.NewString()
	if err := s.client.Set(ctx, key(sid), user, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return sid, nil
}

// Lookup returns the user of session sid.
func (s *RedisStore) Lookup(ctx context.Context, sid string) (string, error) {
	user, err := s.client.Get(ctx, key(sid)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && user == "") {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	return user, nil
}

// Principal implements Resolver using the session cookie.
func (s *RedisStore) Principal(r *http.Request) (string, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", ErrNoSession
	}
	return s.Lookup(r.Context(), c.Value)
}

func key(sid string) string {
	return "session:" + sid
}

type principalKey struct{}

// WithPrincipal stores the principal in ctx.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFrom returns the principal stored in ctx.
func PrincipalFrom(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(principalKey{}).(string)
	return p, ok && p != ""
}
