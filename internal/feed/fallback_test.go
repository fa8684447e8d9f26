package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedPayload = `{
	"success": true,
	"orders": [{
		"_id": "aaa",
		"number": 101,
		"status": "done",
		"name": "Fluorescent bun burger",
		"ingredients": ["i1", "i2"],
		"createdAt": "2026-08-30T10:00:00.000Z",
		"updatedAt": "2026-08-30T10:05:00.000Z"
	}],
	"total": 500,
	"totalToday": 12
}`

func TestLoaderLoadsWholesaleBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedPayload))
	}))
	defer srv.Close()

	l := NewLoader(srv.URL, nil)
	batch, err := l.Load(context.Background())
	require.NoError(t, err)

	assert.Len(t, batch.Orders, 1)
	assert.Equal(t, 101, batch.Orders[0].Number)
	assert.Equal(t, 500, batch.Total)
	assert.Equal(t, 12, batch.TotalToday)
}

func TestLoaderWrapsAllFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	l := NewLoader(srv.URL, nil)
	_, err := l.Load(context.Background())
	assert.ErrorIs(t, err, ErrDataUnavailable)

	// Unreachable endpoint.
	dead := NewLoader("http://127.0.0.1:1", nil)
	_, err = dead.Load(context.Background())
	assert.ErrorIs(t, err, ErrDataUnavailable)

	// Unparseable payload.
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer bad.Close()
	_, err = NewLoader(bad.URL, nil).Load(context.Background())
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestLoaderUsesCustomDo(t *testing.T) {
	var sawAuth atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth.Store(r.Header.Get("Authorization") == "Bearer t")
		w.Write([]byte(feedPayload))
	}))
	defer srv.Close()

	l := NewLoader(srv.URL, func(req *http.Request) (*http.Response, error) {
		req.Header.Set("Authorization", "Bearer t")
		return http.DefaultClient.Do(req)
	})
	_, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, sawAuth.Load())
}

func TestPollerDeliversImmediatelyThenOnInterval(t *testing.T) {
	var loads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loads.Add(1)
		w.Write([]byte(feedPayload))
	}))
	defer srv.Close()

	batches := make(chan Batch, 16)
	p := newPoller(NewLoader(srv.URL, nil), 30*time.Millisecond,
		func(b Batch) { batches <- b },
		func(err error) { t.Errorf("unexpected terminal failure: %v", err) })
	p.Start()
	defer p.Stop()

	// The first load happens before the first tick.
	select {
	case b := <-batches:
		assert.Equal(t, 500, b.Total)
	case <-time.After(time.Second):
		t.Fatal("no immediate load")
	}

	select {
	case <-batches:
	case <-time.After(time.Second):
		t.Fatal("no interval load")
	}
	assert.GreaterOrEqual(t, loads.Load(), int32(2))
}

func TestPollerStopsTerminallyOnFirstFailure(t *testing.T) {
	var loads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loads.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	failed := make(chan error, 1)
	p := newPoller(NewLoader(srv.URL, nil), 10*time.Millisecond,
		func(Batch) { t.Error("unexpected delivery") },
		func(err error) { failed <- err })
	p.Start()

	select {
	case err := <-failed:
		assert.ErrorIs(t, err, ErrDataUnavailable)
	case <-time.After(time.Second):
		t.Fatal("poller never reported the failure")
	}

	// No retries after the terminal failure.
	seen := loads.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, seen, loads.Load())
}

func TestRestartWhileLoadInFlightKeepsDelivering(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedPayload))
	}))
	defer srv.Close()

	// The first load blocks mid-flight so the first run loop is still alive
	// when the poller is stopped and restarted.
	release := make(chan struct{})
	var first atomic.Bool
	do := func(req *http.Request) (*http.Response, error) {
		if first.CompareAndSwap(false, true) {
			<-release
		}
		return http.DefaultClient.Do(req)
	}

	batches := make(chan Batch, 16)
	p := newPoller(NewLoader(srv.URL, do), 20*time.Millisecond,
		func(b Batch) { batches <- b },
		func(err error) { t.Errorf("unexpected terminal failure: %v", err) })

	p.Start()
	time.Sleep(20 * time.Millisecond)
	p.Stop()
	p.Start()
	close(release)

	// The restarted loop, not the cancelled one, keeps delivering.
	for i := 0; i < 3; i++ {
		select {
		case <-batches:
		case <-time.After(time.Second):
			t.Fatalf("restarted poller stopped delivering after %d batches", i)
		}
	}
	p.Stop()
}

func TestPollerStartIsIdempotentAndStopIsSafe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedPayload))
	}))
	defer srv.Close()

	batches := make(chan Batch, 16)
	p := newPoller(NewLoader(srv.URL, nil), time.Hour,
		func(b Batch) { batches <- b }, func(error) {})

	p.Stop() // never started

	p.Start()
	p.Start()
	select {
	case <-batches:
	case <-time.After(time.Second):
		t.Fatal("no load after start")
	}
	// A single loop ran: one immediate load, the hour-long interval blocks
	// any second delivery.
	select {
	case <-batches:
		t.Fatal("duplicate poll loop")
	case <-time.After(50 * time.Millisecond):
	}

	p.Stop()
	p.Stop()
}
