// Package builder implements the state engine for a composed item: a base
// part plus an ordered list of fillings, with per-part usage bookkeeping.
package builder

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"bunstack/internal/catalog"
)

var (
	// ErrNoBase is returned when an operation requires a base part.
	ErrNoBase = errors.New("builder has no base part")
	// ErrNoFillings is returned when an operation requires at least one filling.
	ErrNoFillings = errors.New("builder has no fillings")
	// ErrIndexOutOfRange is returned for an invalid filling index.
	ErrIndexOutOfRange = errors.New("filling index out of range")
)

// Filling is a single filling instance. The same catalog part may appear
// multiple times, each occurrence carrying its own instance id so it can be
// addressed, removed and reordered individually.
type Filling struct {
	Part       catalog.Part `json:"part"`
	InstanceID string       `json:"instanceId"`
}

// Snapshot is a serializable, timestamped copy of the builder state. It
// carries the usage counters alongside the contents so a restore never has
// to re-derive (and never double-counts) them.
type Snapshot struct {
	Base          *catalog.Part  `json:"base"`
	Fillings      []Filling      `json:"fillings"`
	UsageCounters map[string]int `json:"usageCounters"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Builder owns the composed item and its usage counters. All mutations are
// synchronous; a mutex makes the engine safe to share with the stream
// goroutines that read totals for display.
type Builder struct {
	mu       sync.Mutex
	base     *catalog.Part
	fillings []Filling
	counters map[string]int
	total    int

	newID func() string

	// OnChange, when set, is invoked with a fresh snapshot after every
	// successful mutation. The composition root wires it to the persistence
	// adapter while the session is authenticated.
	OnChange func(Snapshot)

	// OnWipe, when set, is invoked by Clear(true) so the persisted snapshot
	// can be erased together with the in-memory state.
	OnWipe func()
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{
		counters: make(map[string]int),
		newID:    uuid.NewString,
	}
}

// SetBase replaces the base part. The base counts twice against the part's
// usage (top and bottom), so the previous base, if any, gives back two.
func (b *Builder) SetBase(p catalog.Part) {
	b.mu.Lock()
	if b.base != nil {
		b.decrement(b.base.ID, 2)
		b.total -= b.base.Price * 2
	}
	base := p
	b.base = &base
	b.counters[p.ID] += 2
	b.total += p.Price * 2
	snap := b.snapshotLocked()
	b.mu.Unlock()

	b.changed(snap)
}

// AddFilling appends a new instance of the part to the filling list.
func (b *Builder) AddFilling(p catalog.Part) Filling {
	b.mu.Lock()
	f := Filling{Part: p, InstanceID: b.newID()}
	b.fillings = append(b.fillings, f)
	b.counters[p.ID]++
	b.total += p.Price
	snap := b.snapshotLocked()
	b.mu.Unlock()

	b.changed(snap)
	return f
}

// RemoveFilling removes the filling at index.
func (b *Builder) RemoveFilling(index int) error {
	b.mu.Lock()
	if index < 0 || index >= len(b.fillings) {
		b.mu.Unlock()
		return ErrIndexOutOfRange
	}
	f := b.fillings[index]
	b.fillings = append(b.fillings[:index], b.fillings[index+1:]...)
	b.decrement(f.Part.ID, 1)
	b.total -= f.Part.Price
	snap := b.snapshotLocked()
	b.mu.Unlock()

	b.changed(snap)
	return nil
}

// MoveFilling relocates the filling at from to position to. Reordering never
// affects usage counters or the total.
func (b *Builder) MoveFilling(from, to int) error {
	b.mu.Lock()
	n := len(b.fillings)
	if from < 0 || from >= n || to < 0 || to >= n {
		b.mu.Unlock()
		return ErrIndexOutOfRange
	}
	if from == to {
		b.mu.Unlock()
		return nil
	}
	f := b.fillings[from]
	rest := append(b.fillings[:from], b.fillings[from+1:]...)
	b.fillings = append(rest[:to], append([]Filling{f}, rest[to:]...)...)
	snap := b.snapshotLocked()
	b.mu.Unlock()

	b.changed(snap)
	return nil
}

// Clear empties the builder and releases every usage count. With wipePersisted
// set, the OnWipe hook is invoked so the persisted snapshot is erased too.
func (b *Builder) Clear(wipePersisted bool) {
	b.mu.Lock()
	if b.base != nil {
		b.decrement(b.base.ID, 2)
		b.base = nil
	}
	for _, f := range b.fillings {
		b.decrement(f.Part.ID, 1)
	}
	b.fillings = nil
	b.total = 0
	snap := b.snapshotLocked()
	b.mu.Unlock()

	if wipePersisted {
		if fn := b.OnWipe; fn != nil {
			fn()
		}
		return
	}
	b.changed(snap)
}

// decrement lowers the usage count for a part, clearing the entry instead of
// letting it go negative. Callers hold the mutex.
func (b *Builder) decrement(partID string, n int) {
	c := b.counters[partID] - n
	if c <= 0 {
		delete(b.counters, partID)
		return
	}
	b.counters[partID] = c
}

// Base returns the current base part, or nil.
func (b *Builder) Base() *catalog.Part {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.base == nil {
		return nil
	}
	base := *b.base
	return &base
}

// Fillings returns a copy of the filling list in order.
func (b *Builder) Fillings() []Filling {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Filling, len(b.fillings))
	copy(out, b.fillings)
	return out
}

// UsageCount returns how many times the part currently appears in the
// builder (the base counts twice).
func (b *Builder) UsageCount(partID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counters[partID]
}

// UsageCounts returns a copy of all non-zero usage counters.
func (b *Builder) UsageCounts() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(b.counters))
	for id, c := range b.counters {
		out[id] = c
	}
	return out
}

// Total returns the incrementally maintained total price.
func (b *Builder) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// RecomputeTotal derives the total price from scratch. It always equals
// Total(); tests rely on the equivalence.
func (b *Builder) RecomputeTotal() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	if b.base != nil {
		total += b.base.Price * 2
	}
	for _, f := range b.fillings {
		total += f.Part.Price
	}
	return total
}

// SubmissionIDs returns the ingredient id sequence for order submission:
// the base id at both ends with the fillings in between.
func (b *Builder) SubmissionIDs() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.base == nil {
		return nil, ErrNoBase
	}
	if len(b.fillings) == 0 {
		return nil, ErrNoFillings
	}
	ids := make([]string, 0, len(b.fillings)+2)
	ids = append(ids, b.base.ID)
	for _, f := range b.fillings {
		ids = append(ids, f.Part.ID)
	}
	ids = append(ids, b.base.ID)
	return ids, nil
}

// Snapshot returns a timestamped copy of the current state.
func (b *Builder) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// ApplySnapshot restores base, fillings and counters atomically. Counters
// come from the snapshot itself and are not re-derived, so restoring against
// a freshly loaded catalog cannot double-count.
func (b *Builder) ApplySnapshot(s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.base = nil
	if s.Base != nil {
		base := *s.Base
		b.base = &base
	}
	b.fillings = make([]Filling, len(s.Fillings))
	copy(b.fillings, s.Fillings)
	b.counters = make(map[string]int, len(s.UsageCounters))
	for id, c := range s.UsageCounters {
		if c > 0 {
			b.counters[id] = c
		}
	}

	total := 0
	if b.base != nil {
		total += b.base.Price * 2
	}
	for _, f := range b.fillings {
		total += f.Part.Price
	}
	b.total = total
}

// snapshotLocked builds a snapshot. Callers hold the mutex.
func (b *Builder) snapshotLocked() Snapshot {
	s := Snapshot{
		Fillings:      make([]Filling, len(b.fillings)),
		UsageCounters: make(map[string]int, len(b.counters)),
		Timestamp:     time.Now(),
	}
	if b.base != nil {
		base := *b.base
		s.Base = &base
	}
	copy(s.Fillings, b.fillings)
	for id, c := range b.counters {
		s.UsageCounters[id] = c
	}
	return s
}

func (b *Builder) changed(s Snapshot) {
	if fn := b.OnChange; fn != nil {
		fn(s)
	}
}
