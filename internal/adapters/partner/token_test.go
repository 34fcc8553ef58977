package partner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthServer(t *testing.T, calls *atomic.Int64, status int, token string, expiresIn int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		require.Equal(t, "beapp-test", r.PostForm.Get("client_id"))
		require.Equal(t, "secret", r.PostForm.Get("client_secret"))
		require.Equal(t, "tracking:write", r.PostForm.Get("scope"))

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"` + token + `","token_type":"Bearer","expires_in":` +
			strconv.Itoa(expiresIn) + `}`))
	}))
}

func newTestCache(t *testing.T, authURL string) *TokenCache {
	t.Helper()
	cache, err := NewTokenCache(TokenConfig{
		AuthURL:      authURL,
		ClientID:     "beapp-test",
		ClientSecret: "secret",
		Scope:        "tracking:write",
	})
	require.NoError(t, err)
	return cache
}

func TestTokenCacheFetchesAndCaches(t *testing.T) {
	var calls atomic.Int64
	srv := newAuthServer(t, &calls, http.StatusOK, "tok-1", 3600)
	defer srv.Close()

	cache := newTestCache(t, srv.URL)

	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	// Second call inside the validity window reuses the cached token.
	tok, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int64(1), calls.Load())
}

func TestTokenRefreshSurvivesCallerCancellation(t *testing.T) {
	var calls atomic.Int64
	srv := newAuthServer(t, &calls, http.StatusOK, "tok-detached", 3600)
	defer srv.Close()

	cache := newTestCache(t, srv.URL)

	// The shared refresh must not ride the triggering caller's context:
	// coalesced waiters would all inherit its cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tok, err := cache.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-detached", tok)
	assert.Equal(t, int64(1), calls.Load())
}

func TestTokenCacheSingleFlight(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond) // hold the refresh open so callers pile up
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-sf","expires_in":3600}`))
	}))
	defer srv.Close()

	cache := newTestCache(t, srv.URL)

	const concurrency = 8
	var wg sync.WaitGroup
	tokens := make([]string, concurrency)
	errs := make([]error, concurrency)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = cache.Token(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < concurrency; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok-sf", tokens[i])
	}
	assert.Equal(t, int64(1), calls.Load(), "concurrent callers must share one refresh")
}

func TestTokenCacheRefreshNearExpiry(t *testing.T) {
	var calls atomic.Int64
	srv := newAuthServer(t, &calls, http.StatusOK, "tok-short", 3600)
	defer srv.Close()

	cache := newTestCache(t, srv.URL)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	_, err := cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), calls.Load())

	// Jump to inside the safety margin: the cached token is no longer
	// trusted and a refresh happens.
	now = now.Add(3600*time.Second - 10*time.Second)
	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestTokenCacheKeepsStaleTokenOnRefreshFailure(t *testing.T) {
	var calls atomic.Int64
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-good","expires_in":3600}`))
	}))
	defer srv.Close()

	cache := newTestCache(t, srv.URL)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	// Refresh attempt fails while the token is still valid: the error
	// surfaces only once the validity window has lapsed, and the stored
	// token is not evicted by the failure itself.
	failing.Store(true)
	now = now.Add(3599 * time.Second)
	_, err = cache.Token(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusServiceUnavailable, authErr.StatusCode)

	// The endpoint recovers; the next call re-authenticates normally.
	failing.Store(false)
	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-good", tok)
}

func TestTokenCacheInvalidate(t *testing.T) {
	var calls atomic.Int64
	srv := newAuthServer(t, &calls, http.StatusOK, "tok-1", 3600)
	defer srv.Close()

	cache := newTestCache(t, srv.URL)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)
	cache.Invalidate()

	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestTokenCacheRejectsMissingCredentials(t *testing.T) {
	_, err := NewTokenCache(TokenConfig{AuthURL: "http://localhost"})
	require.Error(t, err)
}
