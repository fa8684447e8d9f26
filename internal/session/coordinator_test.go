package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bunstack/internal/storage"
)

// authServer simulates the API: /protected accepts only the current access
// token, /auth/token rotates the pair.
type authServer struct {
	*httptest.Server

	mu           sync.Mutex
	validAccess  string
	validRefresh string
	refreshCalls int32
	refreshDelay time.Duration
	refreshFails bool
	rejectAll    bool
}

func newAuthServer(t *testing.T) *authServer {
	t.Helper()
	s := &authServer{validAccess: "access-1", validRefresh: "refresh-1"}

	mux := http.NewServeMux()
	mux.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		valid := "Bearer " + s.validAccess
		reject := s.rejectAll
		s.mu.Unlock()
		if reject || r.Header.Get("Authorization") != valid {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "jwt expired"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.refreshCalls, 1)
		if s.refreshDelay > 0 {
			time.Sleep(s.refreshDelay)
		}

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.refreshFails || body["token"] != s.validRefresh {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "Token is invalid"})
			return
		}
		s.validAccess = "access-2"
		s.validRefresh = "refresh-2"
		json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"accessToken":  "Bearer " + s.validAccess,
			"refreshToken": s.validRefresh,
		})
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *authServer) refreshCount() int {
	return int(atomic.LoadInt32(&s.refreshCalls))
}

func newTestCoordinator(t *testing.T, s *authServer, access, refresh string) (*Coordinator, *storage.Store) {
	t.Helper()
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	if access != "" || refresh != "" {
		require.NoError(t, store.SaveTokens(access, refresh))
	}
	return New(store, s.Client(), s.URL+"/auth/token"), store
}

func TestAdoptsPersistedPair(t *testing.T) {
	s := newAuthServer(t)

	c, _ := newTestCoordinator(t, s, "access-1", "refresh-1")
	assert.True(t, c.Authenticated())
	assert.Equal(t, Authenticated, c.CurrentState())

	anon, _ := newTestCoordinator(t, s, "", "")
	assert.False(t, anon.Authenticated())
	assert.Equal(t, Anonymous, anon.CurrentState())
}

func TestExpiredTokenIsRepairedWithOneRefresh(t *testing.T) {
	s := newAuthServer(t)
	// The stored access token is stale; only the refresh token is good.
	c, store := newTestCoordinator(t, s, "stale-access", "refresh-1")

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, s.URL+"/protected", nil)
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, s.refreshCount())
	assert.Equal(t, Authenticated, c.CurrentState())

	access, refresh := store.LoadTokens()
	assert.Equal(t, "access-2", access)
	assert.Equal(t, "refresh-2", refresh)

	// The retried request's own success must not trigger another refresh.
	req2, err := http.NewRequestWithContext(context.Background(), http.MethodGet, s.URL+"/protected", nil)
	require.NoError(t, err)
	resp2, err := c.Do(req2)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, 1, s.refreshCount())
}

func TestTerminalRefreshClearsSession(t *testing.T) {
	s := newAuthServer(t)
	c, store := newTestCoordinator(t, s, "stale-access", "bad-refresh")
	events := c.Subscribe()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, s.URL+"/protected", nil)
	require.NoError(t, err)

	_, err = c.Do(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionExpired)

	assert.False(t, c.Authenticated())
	assert.Equal(t, Anonymous, c.CurrentState())
	access, refresh := store.LoadTokens()
	assert.Empty(t, access)
	assert.Empty(t, refresh)

	select {
	case ev := <-events:
		assert.Equal(t, RefreshFailed, ev.Kind)
		assert.Error(t, ev.Err)
	case <-time.After(time.Second):
		t.Fatal("expected a RefreshFailed event")
	}
}

func TestMissingRefreshTokenIsTerminal(t *testing.T) {
	s := newAuthServer(t)
	c, _ := newTestCoordinator(t, s, "", "")

	_, err := c.ForceRefresh(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, 0, s.refreshCount())
}

func TestRetryBudgetIsOnePerRequest(t *testing.T) {
	s := newAuthServer(t)
	c, _ := newTestCoordinator(t, s, "stale-access", "refresh-1")

	// The server keeps rejecting even the refreshed token.
	s.mu.Lock()
	s.rejectAll = true
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, s.URL+"/protected", nil)
	require.NoError(t, err)

	_, err = c.Do(req)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 1, s.refreshCount())
	assert.False(t, c.Authenticated())
}

func TestConcurrentRefreshesAreSingleFlight(t *testing.T) {
	s := newAuthServer(t)
	s.refreshDelay = 50 * time.Millisecond
	c, _ := newTestCoordinator(t, s, "stale-access", "refresh-1")

	const callers = 8
	var wg sync.WaitGroup
	pairs := make([]TokenPair, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pairs[i], errs[i] = c.ForceRefresh(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, s.refreshCount())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "access-2", pairs[i].AccessToken)
		assert.Equal(t, "refresh-2", pairs[i].RefreshToken)
	}
}

func TestRefreshEmitsOK(t *testing.T) {
	s := newAuthServer(t)
	c, _ := newTestCoordinator(t, s, "stale-access", "refresh-1")
	events := c.Subscribe()

	_, err := c.ForceRefresh(context.Background())
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, RefreshOK, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected a RefreshOK event")
	}
}

func TestAuthLifecycle(t *testing.T) {
	s := newAuthServer(t)
	c, store := newTestCoordinator(t, s, "", "")

	c.BeginAuth()
	assert.Equal(t, Authenticating, c.CurrentState())

	c.AbortAuth()
	assert.Equal(t, Anonymous, c.CurrentState())

	c.BeginAuth()
	require.NoError(t, c.CompleteAuth(TokenPair{AccessToken: "a", RefreshToken: "r"}))
	assert.Equal(t, Authenticated, c.CurrentState())
	access, refresh := store.LoadTokens()
	assert.Equal(t, "a", access)
	assert.Equal(t, "r", refresh)

	c.Clear()
	assert.Equal(t, Anonymous, c.CurrentState())
	access, refresh = store.LoadTokens()
	assert.Empty(t, access)
	assert.Empty(t, refresh)
}
