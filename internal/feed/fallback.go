package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"bunstack/internal/logging"
)

// ErrDataUnavailable is the terminal fallback failure: neither the stream
// nor the HTTP path can produce the data set.
var ErrDataUnavailable = errors.New("order data unavailable")

// Loader fetches the same logical data set as a stream via a plain HTTP
// request. Every load is a full replace through the validator, so repeated
// invocations can never produce duplicate or out-of-order state.
type Loader struct {
	url string

	// do sends the request: a plain http.Client.Do for the public feed, or
	// the session coordinator's Do for the credentialed history.
	do func(*http.Request) (*http.Response, error)
}

// NewLoader creates a fallback loader for url. do defaults to
// http.DefaultClient.Do when nil.
func NewLoader(url string, do func(*http.Request) (*http.Response, error)) *Loader {
	if do == nil {
		do = http.DefaultClient.Do
	}
	return &Loader{url: url, do: do}
}

// Load fetches and validates one wholesale batch. Network and validation
// failures are reported as ErrDataUnavailable.
func (l *Loader) Load(ctx context.Context) (Batch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}

	resp, err := l.do(req)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Batch{}, fmt.Errorf("%w: status %d", ErrDataUnavailable, resp.StatusCode)
	}

	batch, err := Parse(data)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	return batch, nil
}

// poller drives the fallback loader while a stream is down: one immediate
// load, then one per interval. A failed load is terminal and stops the
// poller; there is no automatic retry.
type poller struct {
	loader   *Loader
	interval time.Duration

	// deliver receives each successful batch; fail receives the terminal
	// error. Both are supplied by the owning connection manager.
	deliver func(Batch)
	fail    func(error)

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool

	// gen identifies the current run loop, so a finished loop can never
	// tear down a successor started while its last load was in flight.
	gen int
}

func newPoller(loader *Loader, interval time.Duration, deliver func(Batch), fail func(error)) *poller {
	return &poller{
		loader:   loader,
		interval: interval,
		deliver:  deliver,
		fail:     fail,
	}
}

// Start begins polling. It is a no-op while a poll loop is already running,
// which makes repeated fallback delegation idempotent.
func (p *poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	go p.run(ctx, gen)
}

// Stop cancels the poll loop. Repeated calls are safe no-ops.
func (p *poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.cancel()
	p.cancel = nil
	p.running = false
}

// finish releases the poller state, but only when the loop of generation
// gen still owns it.
func (p *poller) finish(gen int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running || p.gen != gen {
		return
	}
	p.cancel()
	p.cancel = nil
	p.running = false
}

func (p *poller) run(ctx context.Context, gen int) {
	defer p.finish(gen)

	if !p.loadOnce(ctx) {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.loadOnce(ctx) {
				return
			}
		}
	}
}

// loadOnce performs one load. It reports false when polling must stop.
func (p *poller) loadOnce(ctx context.Context) bool {
	batch, err := p.loader.Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		logging.Warn("fallback load failed", "url", p.loader.url, "error", err)
		p.fail(err)
		return false
	}
	p.deliver(batch)
	return true
}
