package esim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fenuasim/portal/internal/clock"
	"github.com/fenuasim/portal/internal/config"
	"go.uber.org/zap"
)

// Refresh this long before the upstream expiry so in-flight requests
// never carry a token that dies mid-call.
const tokenSafetyMargin = 60 * time.Second

// TokenProvider hands out a valid bearer token for upstream calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// TokenSource caches a client-credentials token and refreshes it lazily.
// The mutex guarantees a single refresh under concurrent callers.
type TokenSource struct {
	log        *zap.Logger
	httpClient *http.Client
	clock      clock.Clock

	apiURL       string
	clientID     string
	clientSecret string

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenSource(log *zap.Logger, cfg config.Config, clk clock.Clock) *TokenSource {
	return &TokenSource{
		log:          log.Named("esim.token"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		clock:        clk,
		apiURL:       strings.TrimRight(cfg.Esim.APIURL, "/"),
		clientID:     cfg.Esim.ClientID,
		clientSecret: cfg.Esim.ClientSecret,
	}
}

// NewTokenSourceForTesting wires an explicit base URL, HTTP client and
// clock. Production code goes through NewTokenSource.
func NewTokenSourceForTesting(apiURL string, httpClient *http.Client, clk clock.Clock) *TokenSource {
	return &TokenSource{
		log:          zap.NewNop(),
		httpClient:   httpClient,
		clock:        clk,
		apiURL:       strings.TrimRight(apiURL, "/"),
		clientID:     "test-client",
		clientSecret: "test-secret",
	}
}

// Token returns the cached token, refreshing it when missing or within
// the safety margin of its expiry.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.clock.Now().Before(ts.expiresAt) {
		return ts.token, nil
	}

	token, ttl, err := ts.fetch(ctx)
	if err != nil {
		return "", err
	}

	ts.token = token
	ts.expiresAt = ts.clock.Now().Add(ttl - tokenSafetyMargin)
	ts.log.Debug("token refreshed", zap.Duration("ttl", ttl))
	return ts.token, nil
}

// Invalidate drops the cached token so the next call fetches a fresh one.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token = ""
	ts.expiresAt = time.Time{}
	ts.mu.Unlock()
}

func (ts *TokenSource) fetch(ctx context.Context) (string, time.Duration, error) {
	// The upstream token endpoint speaks form encoding, not JSON.
	form := url.Values{}
	form.Set("client_id", ts.clientID)
	form.Set("client_secret", ts.clientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.apiURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrUpstreamAuth, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrUpstreamAuth, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("%w: token endpoint returned %d", ErrUpstreamAuth, resp.StatusCode)
	}

	var parsed struct {
		Data struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int64  `json:"expires_in"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrUpstreamAuth, err)
	}
	if strings.TrimSpace(parsed.Data.AccessToken) == "" || parsed.Data.ExpiresIn <= 0 {
		return "", 0, fmt.Errorf("%w: incomplete token response", ErrUpstreamAuth)
	}

	return parsed.Data.AccessToken, time.Duration(parsed.Data.ExpiresIn) * time.Second, nil
}
