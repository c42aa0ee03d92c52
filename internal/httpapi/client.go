package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"

	"github.com/dreamware/tensorkv/internal/keyspace"
	"github.com/dreamware/tensorkv/internal/tensor"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %s %s: %d %s", e.Method, e.URL, e.Code, e.Body)
}

// Client talks to the HTTP API of a tensorkv server.
type Client struct {
	base string
	hc   *http.Client
}

// NewClient returns a client for the server at base, e.g.
// "http://127.0.0.1:3000". A nil hc uses a pooled go-cleanhttp client
// with a 5 second timeout.
func NewClient(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = cleanhttp.DefaultPooledClient()
		hc.Timeout = 5 * time.Second
	}
	return &Client{base: strings.TrimRight(base, "/"), hc: hc}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	url := c.base + path
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Method: method, URL: url, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Put stores m under key
func (c *Client) Put(ctx context.Context, key uuid.UUID, m tensor.Matrix) (*StoreResponse, error) {
	var out StoreResponse
	if err := c.do(ctx, http.MethodPost, "/store/"+key.String(), StoreRequest{Matrix: m}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches the matrix under key. The bool reports presence.
func (c *Client) Get(ctx context.Context, key uuid.UUID) (tensor.Matrix, bool, error) {
	var out GetResponse
	if err := c.do(ctx, http.MethodGet, "/store/"+key.String(), nil, &out); err != nil {
		return tensor.Matrix{}, false, err
	}
	if !out.Success || out.Matrix == nil {
		return tensor.Matrix{}, false, nil
	}
	return *out.Matrix, true, nil
}

// Delete removes key and reports whether it was present
func (c *Client) Delete(ctx context.Context, key uuid.UUID) (bool, error) {
	var out StoreResponse
	if err := c.do(ctx, http.MethodDelete, "/store/"+key.String(), nil, &out); err != nil {
		return false, err
	}
	return out.Success, nil
}

// List returns every key in ascending byte order
func (c *Client) List(ctx context.Context) ([]uuid.UUID, error) {
	var out ListResponse
	if err := c.do(ctx, http.MethodGet, "/store", nil, &out); err != nil {
		return nil, err
	}
	keys := make([]uuid.UUID, 0, len(out.Keys))
	for _, s := range out.Keys {
		k, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("server listed invalid key %q: %w", s, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Health calls GET /health
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats calls GET /stats
func (c *Client) Stats(ctx context.Context) (*keyspace.Info, error) {
	var out keyspace.Info
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
