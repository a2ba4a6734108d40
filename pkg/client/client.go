// Package client is a small Go client for the translation serving API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	baseURL string
	hc      *http.Client
}

// New builds a client for a running server, e.g. "http://localhost:6060".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 60 * time.Second},
	}
}

type translateResponse struct {
	Source      []string `json:"source"`
	Translation []string `json:"translation"`
}

// Translate sends sources to the server and returns one translation per
// source, in order.
func (c *Client) Translate(ctx context.Context, sources []string) ([]string, error) {
	body, err := json.Marshal(map[string]any{"source": sources})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("translate: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Translation) != len(sources) {
		return nil, fmt.Errorf("translate: sent %d sources, got %d translations", len(sources), len(out.Translation))
	}
	return out.Translation, nil
}

// Health checks the server's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health: server returned %d", resp.StatusCode)
	}
	return nil
}
