// Package apiclient talks to the experiment API: it discovers videos and
// posts trial log records.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/pairwise/internal/domain/model"
	"github.com/okian/pairwise/internal/domain/sequence"
	"github.com/okian/pairwise/internal/domain/stimulus"
)

// ErrStatus is returned for non-2xx responses.
var ErrStatus = errors.New("unexpected response status")

const maxErrorBody = 4 << 10

// Client calls a running experiment server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.http.Timeout = d
		}
	}
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List implements stimulus.Lister against GET /api/videos.
func (c *Client) List(ctx context.Context) ([]stimulus.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/videos", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var items []stimulus.Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode videos: %w", err)
	}
	return items, nil
}

// Log posts one record to POST /api/log. It implements session.Sink.
func (c *Client) Log(ctx context.Context, rec model.LogRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/log", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Sequence fetches a server-generated sequence from GET /api/sequence. A nil
// seed lets the server draw one.
func (c *Client) Sequence(ctx context.Context, variant string, seed *int64) (sequence.Sequence, error) {
	q := url.Values{"variant": {variant}}
	if seed != nil {
		q.Set("seed", strconv.FormatInt(*seed, 10))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sequence?"+q.Encode(), nil)
	if err != nil {
		return sequence.Sequence{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return sequence.Sequence{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return sequence.Sequence{}, statusError(resp)
	}
	var seq sequence.Sequence
	if err := json.NewDecoder(resp.Body).Decode(&seq); err != nil {
		return sequence.Sequence{}, fmt.Errorf("decode sequence: %w", err)
	}
	return seq, nil
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(b)))
}
