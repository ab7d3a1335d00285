// Package payhip wraps the Payhip software-license HTTP API. The
// client is stateless request/response mapping; single-use accounting
// lives on the Payhip side.
package payhip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"keyverify/lib/sl"
)

const defaultBaseURL = "https://payhip.com/api/v2"

// License is the verify-endpoint payload. Uses counts prior
// redemptions; a fresh single-use key reports 0.
type License struct {
	Enabled bool `json:"enabled"`
	Uses    int  `json:"uses"`
}

type envelope struct {
	Data License `json:"data"`
}

type Client struct {
	hc      *http.Client
	baseURL string
	apiKey  string
	log     *slog.Logger
}

// NewClient builds a client. apiKey is the account-level key used by
// the reset and disable endpoints; verify and increment authenticate
// with per-product secrets instead.
func NewClient(apiKey string, logger *slog.Logger) *Client {
	return &Client{
		hc:      &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		log:     logger.With(sl.Module("payhip")),
	}
}

// request sends one API call and returns the response body on HTTP 200.
func (c *Client) request(ctx context.Context, method, path string, headers map[string]string, body url.Values) ([]byte, error) {
	log := c.log.With(
		slog.String("method", method),
		slog.String("path", path),
	)

	status := "ERROR"
	t1 := time.Now()
	defer func() {
		log.Debug("payhip API request completed",
			slog.String("duration", fmt.Sprintf("%.3fms", float64(time.Since(t1))/float64(time.Millisecond))),
			slog.String("status", status))
	}()

	var reader io.Reader
	if body != nil {
		reader = strings.NewReader(body.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		log.Error("request failed", sl.Err(err))
		return nil, fmt.Errorf("payhip request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	status = resp.Status
	if resp.StatusCode != http.StatusOK {
		log.Error("payhip API returned error",
			slog.String("status", resp.Status),
			slog.String("body", string(respBody)))
		return nil, fmt.Errorf("payhip %s: %s", resp.Status, respBody)
	}
	return respBody, nil
}

// Verify checks a license key against the product identified by its
// secret. It reports the license state without consuming a use.
func (c *Client) Verify(ctx context.Context, productSecret, licenseKey string) (*License, error) {
	q := url.Values{}
	q.Set("license_key", licenseKey)
	body, err := c.request(ctx, http.MethodGet, "/license/verify?"+q.Encode(),
		map[string]string{"product-secret-key": productSecret}, nil)
	if err != nil {
		return nil, err
	}
	var resp envelope
	if err = json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse verify response: %w", err)
	}
	return &resp.Data, nil
}

// IncrementUsage consumes one use of the key. This is the commit point
// of the verification flow: success here means the key is spent.
func (c *Client) IncrementUsage(ctx context.Context, productSecret, licenseKey string) error {
	form := url.Values{}
	form.Set("license_key", licenseKey)
	_, err := c.request(ctx, http.MethodPut, "/license/usage",
		map[string]string{"product-secret-key": productSecret}, form)
	return err
}

// DecreaseUsage is the admin reset path, authenticated with the
// account key.
func (c *Client) DecreaseUsage(ctx context.Context, licenseKey string) error {
	form := url.Values{}
	form.Set("license_key", licenseKey)
	_, err := c.request(ctx, http.MethodPut, "/license/usage/decrease",
		map[string]string{"payhip-api-key": c.apiKey}, form)
	return err
}

// Disable permanently deactivates a key, used when blacklisting a user.
func (c *Client) Disable(ctx context.Context, productSecret, licenseKey string) error {
	form := url.Values{}
	form.Set("license_key", licenseKey)
	_, err := c.request(ctx, http.MethodPut, "/license/disable",
		map[string]string{
			"product-secret-key": productSecret,
			"payhip-api-key":     c.apiKey,
		}, form)
	return err
}
