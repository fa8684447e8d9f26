package feed

import (
	"context"
	"sync"

	"bunstack/internal/logging"
	"bunstack/internal/session"
)

// Registry owns the connection managers and is the only place stream
// lifecycle and session lifecycle touch: it re-arms token-closed streams
// after a successful refresh and closes credentialed streams for good when
// the refresh path ends terminally.
type Registry struct {
	sess   *session.Coordinator
	events chan Event

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewRegistry creates a registry bound to the session coordinator.
func NewRegistry(sess *session.Coordinator) *Registry {
	return &Registry{
		sess:     sess,
		events:   make(chan Event, 64),
		managers: make(map[string]*Manager),
	}
}

// Register creates a manager for the stream and adds it to the registry.
func (r *Registry) Register(cfg ManagerConfig) *Manager {
	m := NewManager(cfg, r.events)
	m.onAuthError = func(err error) {
		// A token-rejected stream means the access token is stale. Kick off
		// a refresh; Run reconnects the stream when it succeeds.
		logging.Info("stream token rejected, refreshing session", "stream", cfg.Name)
		go r.sess.ForceRefresh(context.Background())
	}

	r.mu.Lock()
	r.managers[cfg.Name] = m
	r.mu.Unlock()
	return m
}

// Get returns the manager for a stream name.
func (r *Registry) Get(name string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[name]
	return m, ok
}

// Events returns the shared typed event channel of all managed streams.
func (r *Registry) Events() <-chan Event {
	return r.events
}

// ConnectAll connects every registered stream.
func (r *Registry) ConnectAll(ctx context.Context) {
	for _, m := range r.snapshot() {
		m.Connect(ctx)
	}
}

// DisconnectAll tears every registered stream down.
func (r *Registry) DisconnectAll() {
	for _, m := range r.snapshot() {
		m.Disconnect()
	}
}

// Run reacts to session refresh outcomes until the context ends. On a
// successful refresh, every stream that closed because of a token error is
// reconnected; on terminal failure, credentialed streams are closed with the
// error preserved.
func (r *Registry) Run(ctx context.Context) {
	sub := r.sess.Subscribe()
	for {
		select {
		case <-ctx.Done():
			r.DisconnectAll()
			return
		case ev := <-sub:
			switch ev.Kind {
			case session.RefreshOK:
				for _, m := range r.snapshot() {
					if m.ClosedByAuth() {
						logging.Info("re-arming stream after refresh", "stream", m.Name())
						m.Connect(ctx)
					}
				}
			case session.RefreshFailed:
				for _, m := range r.snapshot() {
					if m.RequiresAuth() {
						m.MarkLoginRequired(ev.Err)
					}
				}
			}
		}
	}
}

func (r *Registry) snapshot() []*Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		out = append(out, m)
	}
	return out
}
