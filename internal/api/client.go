// Package api is the REST client for the ordering service. Authorized calls
// go through the session coordinator, which transparently repairs a 401 with
// a single refresh-and-replay.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bunstack/internal/cache"
	"bunstack/internal/catalog"
	"bunstack/internal/order"
	"bunstack/internal/session"
	"bunstack/internal/storage"
)

// Client is the REST client. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	session *session.Coordinator
	store   *storage.Store

	// The part catalog is effectively static, so one fetch covers a whole
	// CLI invocation and then some. Order lookups are cached briefly.
	catalogCache *cache.LRU[string, *catalog.Catalog]
	orderCache   *cache.LRU[int, order.Order]
}

// NewClient creates a REST client rooted at baseURL.
func NewClient(baseURL string, httpClient *http.Client, sess *session.Coordinator, store *storage.Store) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         httpClient,
		session:      sess,
		store:        store,
		catalogCache: cache.NewLRU[string, *catalog.Catalog](1, 10*time.Minute),
		orderCache:   cache.NewLRU[int, order.Order](64, 30*time.Second),
	}
}

// envelope is the common part of every API response body.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// do sends the request, authorized through the coordinator when asked, and
// decodes the JSON body into out. A non-2xx status or success:false becomes
// a typed *Error.
func (c *Client) do(req *http.Request, out any, authorized bool) error {
	req.Header.Set("Content-Type", "application/json")

	var (
		resp *http.Response
		err  error
	)
	if authorized {
		resp, err = c.session.Do(req)
	} else {
		resp, err = c.http.Do(req)
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &Error{StatusCode: resp.StatusCode}
		}
		return fmt.Errorf("failed to parse response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Success {
		return &Error{StatusCode: resp.StatusCode, Message: env.Message}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response body: %w", err)
		}
	}
	return nil
}

// get issues a GET request against the API.
func (c *Client) get(ctx context.Context, path string, out any, authorized bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out, authorized)
}

// send issues a request with a JSON body. bytes.Reader bodies are rewindable,
// so the coordinator can replay the request after a refresh.
func (c *Client) send(ctx context.Context, method, path string, payload, out any, authorized bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	return c.do(req, out, authorized)
}
