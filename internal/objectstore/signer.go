// Package objectstore is the client for the platform's object store. The
// only capability this service needs from it is minting short-lived signed
// read URLs; upload and lifecycle belong to other subsystems.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SignedURLTTL is the fixed lifetime of every signed URL this service
// issues. Callers never supply their own TTL on this path.
const SignedURLTTL = 600 * time.Second

// Config holds object-store connection settings.
type Config struct {
	URL        string        `json:"url" yaml:"url"`
	ServiceKey string        `json:"service_key" yaml:"service_key"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

// Client requests signed URLs from the object store. It carries no
// authorization logic: it trusts that it is only invoked after a grant.
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type signRequest struct {
	ExpiresIn int `json:"expiresIn"`
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

// SignURL mints a signed read URL for the object at (bucket, path). Any
// store-side error, including a success response with an empty URL, is
// surfaced to the caller.
func (c *Client) SignURL(ctx context.Context, bucket, path string) (string, error) {
	body, err := json.Marshal(signRequest{ExpiresIn: int(SignedURLTTL.Seconds())})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/object/sign/%s/%s", strings.TrimSuffix(c.cfg.URL, "/"), bucket, strings.TrimPrefix(path, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.ServiceKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.ServiceKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("object store error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("object store returned %d", resp.StatusCode)
	}

	var signed signResponse
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return "", fmt.Errorf("object store invalid response: %w", err)
	}
	if signed.SignedURL == "" {
		return "", fmt.Errorf("object store returned empty signed URL")
	}

	// Stores commonly answer with a URL relative to their own base.
	if strings.HasPrefix(signed.SignedURL, "/") {
		return strings.TrimSuffix(c.cfg.URL, "/") + signed.SignedURL, nil
	}
	return signed.SignedURL, nil
}
