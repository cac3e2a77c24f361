package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements the two commands RedisStore uses.
type fakeRedis struct {
	redis.Cmdable
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	fake := newFakeRedis()
	store := NewRedisStore(fake, 0)
	ctx := context.Background()

	sid, err := store.Create(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, fake.ttls["session:"+sid])

	user, err := store.Lookup(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	_, err = store.Lookup(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRedisStoreBackendError(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	store := NewRedisStore(fake, time.Minute)

	_, err := store.Create(context.Background(), "alice")
	require.Error(t, err)

	_, err = store.Lookup(context.Background(), "sid")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSession)
}

func TestRedisStorePrincipalFromCookie(t *testing.T) {
	store := NewRedisStore(newFakeRedis(), time.Minute)
	sid, err := store.Create(context.Background(), "bob")
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/orders", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: sid})
	user, err := store.Principal(r)
	require.NoError(t, err)
	assert.Equal(t, "bob", user)

	_, err = store.Principal(httptest.NewRequest(http.MethodGet, "/orders", nil))
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestStaticAndContext(t *testing.T) {
	p, err := Static("dev-user").Principal(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "dev-user", p)

	ctx := WithPrincipal(context.Background(), p)
	got, ok := PrincipalFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "dev-user", got)

	_, ok = PrincipalFrom(context.Background())
	assert.False(t, ok)
}
