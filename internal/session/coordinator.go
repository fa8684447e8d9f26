// Package session owns the access/refresh token pair and the transparent
// repair of expired credentials: one refresh and one replay per request,
// with concurrent refreshes collapsed into a single in-flight attempt.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"bunstack/internal/logging"
	"bunstack/internal/storage"
)

var (
	// ErrNotAuthenticated is returned when an operation requires a session
	// and no token pair is stored.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionExpired is the terminal authorization failure: the refresh
	// path was exhausted and the session has been cleared.
	ErrSessionExpired = errors.New("session expired, login required")
)

// retryKey marks a request context as already replayed once. Keeping the
// budget in the context enforces the at-most-one-retry rule structurally
// instead of relying on caller convention.
type retryKey struct{}

func withRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, retryKey{}, true)
}

func wasRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retryKey{}).(bool)
	return v
}

// refreshCall is a single in-flight refresh shared by all concurrent callers.
type refreshCall struct {
	done chan struct{}
	pair TokenPair
	err  error
}

// Coordinator owns the token pair. It authorizes outbound requests, repairs
// a 401 with exactly one refresh-and-replay, and clears all session state on
// irrecoverable failure.
type Coordinator struct {
	store      *storage.Store
	client     *http.Client
	refreshURL string

	mu       sync.Mutex
	state    State
	pair     TokenPair
	inflight *refreshCall
	subs     []chan Event
}

// New creates a coordinator backed by the given store, adopting any
// persisted token pair.
func New(store *storage.Store, client *http.Client, refreshURL string) *Coordinator {
	if client == nil {
		client = http.DefaultClient
	}
	c := &Coordinator{
		store:      store,
		client:     client,
		refreshURL: refreshURL,
		state:      Anonymous,
	}
	access, refresh := store.LoadTokens()
	c.pair = TokenPair{AccessToken: access, RefreshToken: refresh}
	if c.pair.Valid() {
		c.state = Authenticated
	}
	return c
}

// CurrentState returns the session state.
func (c *Coordinator) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Authenticated reports whether a complete token pair is held.
func (c *Coordinator) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pair.Valid()
}

// AccessToken returns the current access token, which may be empty.
func (c *Coordinator) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pair.AccessToken
}

// RefreshToken returns the current refresh token, which may be empty.
func (c *Coordinator) RefreshToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pair.RefreshToken
}

// BeginAuth marks the start of a login or registration exchange.
func (c *Coordinator) BeginAuth() {
	c.mu.Lock()
	c.state = Authenticating
	c.mu.Unlock()
}

// CompleteAuth installs and persists a fresh token pair.
func (c *Coordinator) CompleteAuth(pair TokenPair) error {
	c.mu.Lock()
	c.pair = pair
	c.state = Authenticated
	c.mu.Unlock()
	if err := c.store.SaveTokens(pair.AccessToken, pair.RefreshToken); err != nil {
		return err
	}
	return nil
}

// AbortAuth returns to Anonymous after a failed login or registration.
func (c *Coordinator) AbortAuth() {
	c.mu.Lock()
	if c.state == Authenticating {
		c.state = Anonymous
	}
	c.mu.Unlock()
}

// Clear drops the token pair and all session flags. It is used both by
// explicit logout and by the terminal branch of the refresh path.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	c.pair = TokenPair{}
	c.state = Anonymous
	c.mu.Unlock()
	c.store.ClearTokens()
}

// Authorize attaches the current access token to the request, if present.
func (c *Coordinator) Authorize(req *http.Request) {
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// Do sends an authorized request. On a 401 for a request that carried a
// token, it refreshes once and replays the request once with the new token.
// A 401 on the replay, or a failed refresh, is terminal: the session is
// cleared and ErrSessionExpired is returned.
func (c *Coordinator) Do(req *http.Request) (*http.Response, error) {
	token := c.AccessToken()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || token == "" {
		return resp, nil
	}
	drain(resp)

	if wasRetried(req.Context()) {
		c.Clear()
		c.emit(Event{Kind: RefreshFailed, Err: ErrSessionExpired})
		return nil, ErrSessionExpired
	}

	pair, err := c.ForceRefresh(req.Context())
	if err != nil {
		return nil, err
	}

	retry, err := replayable(req)
	if err != nil {
		return nil, err
	}
	retry.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	resp, err = c.client.Do(retry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		c.Clear()
		c.emit(Event{Kind: RefreshFailed, Err: ErrSessionExpired})
		return nil, ErrSessionExpired
	}
	return resp, nil
}

// ForceRefresh exchanges the refresh token for a new pair. Concurrent
// callers share a single in-flight refresh. Any failure is terminal: the
// session is cleared before the error is returned.
func (c *Coordinator) ForceRefresh(ctx context.Context) (TokenPair, error) {
	c.mu.Lock()
	if call := c.inflight; call != nil {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.pair, call.err
		case <-ctx.Done():
			return TokenPair{}, ctx.Err()
		}
	}

	refresh := c.pair.RefreshToken
	if refresh == "" {
		c.pair = TokenPair{}
		c.state = Anonymous
		c.mu.Unlock()
		c.store.ClearTokens()
		c.emit(Event{Kind: RefreshFailed, Err: ErrNotAuthenticated})
		return TokenPair{}, ErrNotAuthenticated
	}

	call := &refreshCall{done: make(chan struct{})}
	c.inflight = call
	c.state = Refreshing
	c.mu.Unlock()

	pair, err := c.requestRefresh(ctx, refresh)

	c.mu.Lock()
	c.inflight = nil
	if err != nil {
		c.pair = TokenPair{}
		c.state = Anonymous
	} else {
		c.pair = pair
		c.state = Authenticated
	}
	c.mu.Unlock()

	if err != nil {
		logging.Warn("token refresh failed", "error", err)
		c.store.ClearTokens()
		call.err = fmt.Errorf("%w: %v", ErrSessionExpired, err)
		close(call.done)
		c.emit(Event{Kind: RefreshFailed, Err: call.err})
		return TokenPair{}, call.err
	}

	if err := c.store.SaveTokens(pair.AccessToken, pair.RefreshToken); err != nil {
		logging.Warn("failed to persist refreshed tokens", "error", err)
	}
	logging.Debug("token refresh completed")
	call.pair = pair
	close(call.done)
	c.emit(Event{Kind: RefreshOK})
	return pair, nil
}

// refreshResponse is the JSON envelope of the token endpoint.
type refreshResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Message      string `json:"message"`
}

// requestRefresh calls the refresh endpoint with the stored refresh token.
func (c *Coordinator) requestRefresh(ctx context.Context, refresh string) (TokenPair, error) {
	body, err := json.Marshal(map[string]string{"token": refresh})
	if err != nil {
		return TokenPair{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.refreshURL, bytes.NewReader(body))
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return TokenPair{}, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to read refresh response: %w", err)
	}

	var parsed refreshResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return TokenPair{}, fmt.Errorf("failed to parse refresh response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !parsed.Success {
		msg := parsed.Message
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return TokenPair{}, fmt.Errorf("refresh rejected: %s", msg)
	}

	pair := TokenPair{
		AccessToken:  strings.TrimPrefix(parsed.AccessToken, "Bearer "),
		RefreshToken: parsed.RefreshToken,
	}
	if !pair.Valid() {
		return TokenPair{}, errors.New("refresh response missing tokens")
	}
	return pair, nil
}

// replayable clones the request for the single retry, rewinding the body
// when one is present, and marks the context so a second 401 is terminal.
func replayable(req *http.Request) (*http.Request, error) {
	clone := req.Clone(withRetry(req.Context()))
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body for retry: %w", err)
		}
		clone.Body = body
	}
	return clone, nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
