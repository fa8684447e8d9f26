// Package order defines the order records delivered by the streams and the
// REST fallback.
package order

import "time"

// Status is the lifecycle state of an order.
type Status string

const (
	StatusCreated   Status = "created"
	StatusPending   Status = "pending"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether the status is one of the four known values.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusPending, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// Order is a single order record. Orders are created server-side and are
// never mutated client-side except wholesale replacement on each stream
// message.
type Order struct {
	ID            string    `json:"_id"`
	Number        int       `json:"number"`
	Status        Status    `json:"status"`
	Name          string    `json:"name"`
	IngredientIDs []string  `json:"ingredients"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
