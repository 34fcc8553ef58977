package partner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
	"github.com/adiarra14/fleetsdkapp-sub001/internal/ports"
	"github.com/adiarra14/fleetsdkapp-sub001/pkg/retry"
)

// ClientConfig configures the relay HTTP client.
type ClientConfig struct {
	BaseURL        string
	OriginatorName string
	PartnerName    string
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// Client posts event batches to the partner coordinates endpoint. Transient
// failures (5xx, timeouts) are retried with doubling backoff inside one Relay
// call; 4xx is surfaced immediately without retry. The batch is never marked
// delivered here: that is the caller's decision on RelaySuccess only, which
// keeps delivery at-least-once under ambiguous outcomes.
type Client struct {
	cfg        ClientConfig
	tokens     ports.TokenSource
	httpClient *http.Client
}

// statusError carries the HTTP status of a failed relay attempt through the
// retry loop.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("partner API returned %d: %s", e.code, e.body)
}

func NewClient(cfg ClientConfig, tokens ports.TokenSource) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("partner: base url is required")
	}
	if tokens == nil {
		return nil, errors.New("partner: token source is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 5 * time.Second
	}
	return &Client{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Relay serializes the batch and posts it once per attempt.
func (c *Client) Relay(ctx context.Context, batch []*domain.DeviceEvent) ports.RelayResult {
	corrID := uuid.NewString()
	result := ports.RelayResult{Outcome: ports.RelaySuccess, CorrelationID: corrID}
	if len(batch) == 0 {
		return result
	}

	coords := make([]Coordinate, len(batch))
	for i, event := range batch {
		coords[i] = CoordinateFromEvent(event, c.cfg.OriginatorName, c.cfg.PartnerName)
	}
	payload, err := json.Marshal(coords)
	if err != nil {
		result.Outcome = ports.RelayClientError
		result.Err = fmt.Errorf("serialize batch: %w", err)
		return result
	}

	var lastStatus int
	retryCfg := retry.Config{
		MaxAttempts:  c.cfg.RetryAttempts,
		InitialDelay: c.cfg.RetryBaseDelay,
		MaxDelay:     8 * c.cfg.RetryBaseDelay,
		Multiplier:   2.0,
		AddJitter:    true,
	}

	err = retry.Do(ctx, retryCfg, func() error {
		status, attemptErr := c.post(ctx, payload, corrID)
		lastStatus = status
		if attemptErr == nil {
			return nil
		}
		if status >= 400 && status < 500 {
			return retry.NonRetryable(attemptErr)
		}
		var authErr *AuthError
		if errors.As(attemptErr, &authErr) && authErr.StatusCode >= 400 && authErr.StatusCode < 500 {
			// Credentials are wrong; backing off will not fix them.
			return retry.NonRetryable(attemptErr)
		}
		return attemptErr
	})
	if err == nil {
		return result
	}

	result.Err = err
	result.StatusCode = lastStatus
	var authErr *AuthError
	if lastStatus == 0 && errors.As(err, &authErr) {
		lastStatus = authErr.StatusCode
		result.StatusCode = lastStatus
	}
	switch {
	case lastStatus >= 400 && lastStatus < 500:
		result.Outcome = ports.RelayClientError
	case lastStatus >= 500:
		result.Outcome = ports.RelayServerError
	default:
		result.Outcome = ports.RelayTransportError
	}
	return result
}

// post performs one POST to the coordinates endpoint. The returned status is
// zero when the request never produced an HTTP response.
func (c *Client) post(ctx context.Context, payload []byte, corrID string) (int, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/coordinates", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Correlation-ID", corrID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, nil
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// The bearer was rejected before its advertised expiry; force a
		// fresh exchange on the next cycle.
		if invalidator, ok := c.tokens.(interface{ Invalidate() }); ok {
			invalidator.Invalidate()
		}
	}
	return resp.StatusCode, &statusError{code: resp.StatusCode, body: truncate(string(body), 512)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ ports.Relay = (*Client)(nil)
