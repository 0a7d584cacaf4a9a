package esim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fenuasim/portal/internal/config"
	"go.uber.org/zap"
)

// Client provisions orders and lists packages on the upstream platform.
type Client struct {
	log        *zap.Logger
	httpClient *http.Client
	tokens     TokenProvider
	apiURL     string
}

func NewClient(log *zap.Logger, cfg config.Config, tokens *TokenSource) *Client {
	return &Client{
		log:        log.Named("esim.client"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		tokens:     tokens,
		apiURL:     strings.TrimRight(cfg.Esim.APIURL, "/"),
	}
}

// NewClientForTesting wires an explicit base URL, HTTP client and token
// provider. Production code goes through NewClient.
func NewClientForTesting(apiURL string, httpClient *http.Client, tokens TokenProvider) *Client {
	return &Client{
		log:        zap.NewNop(),
		httpClient: httpClient,
		tokens:     tokens,
		apiURL:     strings.TrimRight(apiURL, "/"),
	}
}

// CreateOrder provisions a SIM for the given package. A 401 triggers a
// single token refresh and retry.
func (c *Client) CreateOrder(ctx context.Context, packageID string, quantity int) (*ProvisionedSim, error) {
	if strings.TrimSpace(packageID) == "" {
		return nil, fmt.Errorf("%w: package id is required", ErrProvisioning)
	}
	if quantity <= 0 {
		quantity = 1
	}

	payload, err := json.Marshal(map[string]any{
		"package_id": packageID,
		"quantity":   quantity,
	})
	if err != nil {
		return nil, err
	}

	status, body, err := c.doAuthorized(ctx, http.MethodPost, "/orders", payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: order endpoint returned %d: %s", ErrProvisioning, status, truncate(body, 512))
	}

	var parsed struct {
		Data struct {
			ID   json.Number `json:"id"`
			Data string      `json:"data"`
			Sims []struct {
				ICCID                      string `json:"iccid"`
				QRCodeURL                  string `json:"qrcode_url"`
				DirectAppleInstallationURL string `json:"direct_apple_installation_url"`
			} `json:"sims"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioning, err)
	}
	if len(parsed.Data.Sims) == 0 {
		return nil, fmt.Errorf("%w: order response contained no sims", ErrProvisioning)
	}

	sim := parsed.Data.Sims[0]
	return &ProvisionedSim{
		ProviderOrderID: parsed.Data.ID.String(),
		ICCID:           sim.ICCID,
		QRCodeURL:       sim.QRCodeURL,
		AppleInstallURL: sim.DirectAppleInstallationURL,
		DataBalance:     parsed.Data.Data,
	}, nil
}

// ListPackages returns the purchasable bundles.
func (c *Client) ListPackages(ctx context.Context) ([]Package, error) {
	status, body, err := c.doAuthorized(ctx, http.MethodGet, "/packages", nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: packages endpoint returned %d", ErrProvisioning, status)
	}

	var parsed struct {
		Data []Package `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioning, err)
	}
	return parsed.Data, nil
}

// doAuthorized performs a bearer-authenticated request, refreshing the
// token once when the upstream rejects it.
func (c *Client) doAuthorized(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return 0, nil, err
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reqBody)
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrProvisioning, err)
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()
		if readErr != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrProvisioning, readErr)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.log.Warn("upstream rejected token, refreshing once")
			c.tokens.Invalidate()
			continue
		}

		return resp.StatusCode, body, nil
	}
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n]
	}
	return s
}
