package turnstile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// Client performs the server-side token exchange with the Cloudflare
// Turnstile verification endpoint.
type Client struct {
	secretKey string
	verifyURL string
	http      *http.Client
	logger    *zap.Logger
}

// NewClient builds a verification client for the given secret key.
func NewClient(secretKey string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		secretKey: secretKey,
		verifyURL: defaultVerifyURL,
		http:      &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
	}
}

// WithVerifyURL overrides the verification endpoint, used in tests.
func (c *Client) WithVerifyURL(url string) *Client {
	if url != "" {
		c.verifyURL = url
	}
	return c
}

type verifyRequest struct {
	Secret   string `json:"secret"`
	Response string `json:"response"`
}

type verifyResponse struct {
	Success bool `json:"success"`
}

// Verify exchanges a client-submitted response token with the provider and
// reports whether the CAPTCHA passed. A missing secret key is a hard no.
func (c *Client) Verify(ctx context.Context, responseToken string) (bool, error) {
	if c.secretKey == "" {
		return false, fmt.Errorf("turnstile secret key not configured")
	}

	body, err := json.Marshal(verifyRequest{
		Secret:   c.secretKey,
		Response: responseToken,
	})
	if err != nil {
		return false, fmt.Errorf("marshal turnstile request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build turnstile request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("turnstile verify: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read turnstile response: %w", err)
	}

	var out verifyResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return false, fmt.Errorf("decode turnstile response: %w", err)
	}

	return out.Success, nil
}
