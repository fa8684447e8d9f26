package session

// EventKind tags a refresh outcome event.
type EventKind int

const (
	// RefreshOK means a refresh completed and a fresh token pair is in place.
	RefreshOK EventKind = iota
	// RefreshFailed means the refresh path ended terminally: the session is
	// cleared and re-authentication is required.
	RefreshFailed
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case RefreshOK:
		return "refresh_ok"
	case RefreshFailed:
		return "refresh_failed"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers whenever the refresh path completes,
// successfully or terminally. The reconnection trigger is the intended
// consumer.
type Event struct {
	Kind EventKind
	Err  error // set for RefreshFailed
}

// Subscribe registers a new event channel. Events are delivered best-effort:
// a subscriber that stops draining loses events rather than blocking the
// coordinator.
func (c *Coordinator) Subscribe() <-chan Event {
	ch := make(chan Event, 8)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}

// emit delivers an event to all subscribers without blocking.
func (c *Coordinator) emit(ev Event) {
	c.mu.Lock()
	subs := make([]chan Event, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
