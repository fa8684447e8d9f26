package feed

// Status is the connection state of a stream.
type Status int

const (
	StatusClosed Status = iota
	StatusConnecting
	StatusOpen
	StatusClosing
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusClosed:
		return "closed"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// EventKind tags a stream event.
type EventKind int

const (
	// StatusChanged reports a stream status transition.
	StatusChanged EventKind = iota
	// OrdersReplaced carries a validated batch that wholesale-replaces the
	// order collection for the stream.
	OrdersReplaced
	// StreamError reports a stream failure. Auth marks token-related
	// failures, which follow the refresh path rather than the fallback.
	StreamError
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case StatusChanged:
		return "status_changed"
	case OrdersReplaced:
		return "orders_replaced"
	case StreamError:
		return "stream_error"
	default:
		return "unknown"
	}
}

// Event is the single typed event stream of a connection manager. All
// managers of a registry share one channel, so consumers observe transitions
// in delivery order.
type Event struct {
	Stream string
	Kind   EventKind

	// Status is set for StatusChanged events.
	Status Status

	// Batch is set for OrdersReplaced events.
	Batch *Batch

	// Err and Auth are set for StreamError events.
	Err  error
	Auth bool
}
