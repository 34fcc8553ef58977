package partner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/ports"
)

// defaultSafetyMargin renews tokens this long before their advertised expiry
// so a token never dies mid-request.
const defaultSafetyMargin = 30 * time.Second

// AuthError is a non-2xx reply from the token endpoint. 4xx means the client
// credentials are wrong and retrying is pointless; 5xx is transient.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.StatusCode, e.Body)
}

// TokenConfig configures the OAuth2 client-credentials exchange.
type TokenConfig struct {
	AuthURL      string
	ClientID     string
	ClientSecret string
	Scope        string
	Timeout      time.Duration
	SafetyMargin time.Duration
}

// TokenCache holds one access token and refreshes it near expiry. Concurrent
// callers during a refresh are coalesced into a single HTTP call via
// singleflight; every waiter receives the same token or the same error.
// A failed refresh never evicts a token that is still inside its validity
// window.
type TokenCache struct {
	cfg        TokenConfig
	httpClient *http.Client
	now        func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

func NewTokenCache(cfg TokenConfig) (*TokenCache, error) {
	if cfg.AuthURL == "" {
		return nil, errors.New("partner: auth url is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("partner: client credentials are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = defaultSafetyMargin
	}
	return &TokenCache{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}, nil
}

// Token returns the cached token while it is valid, otherwise refreshes.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}

	v, err, _ := c.group.Do("token", func() (any, error) {
		// A waiter queued behind the refresh that just completed can use
		// its result without another round trip.
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		// The refresh is shared across coalesced waiters, so it must not die
		// with the first caller's context. Detach it and bound it by the
		// configured timeout instead.
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
		defer cancel()
		return c.refresh(refreshCtx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next caller re-authenticates.
// Used when the partner API rejects a bearer that should still be valid.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return "", false
	}
	if !c.now().Before(c.expiresAt.Add(-c.cfg.SafetyMargin)) {
		return "", false
	}
	return c.token, true
}

func (c *TokenCache) refresh(ctx context.Context) (string, error) {
	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"grant_type":    {"client_credentials"},
	}
	if c.cfg.Scope != "" {
		form.Set("scope", c.cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}

	c.mu.Lock()
	c.token = tr.AccessToken
	c.expiresAt = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	c.mu.Unlock()

	return tr.AccessToken, nil
}

var _ ports.TokenSource = (*TokenCache)(nil)
