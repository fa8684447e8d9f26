package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bunstack/internal/logging"
	"bunstack/internal/order"
)

var (
	// ErrTokenRejected marks an authorization-failure payload. It is
	// distinct from generic malformed data so the caller can trigger the
	// refresh path instead of dropping the message.
	ErrTokenRejected = errors.New("stream rejected token")
	// ErrMalformed marks a payload that is not a valid message envelope.
	ErrMalformed = errors.New("malformed stream payload")
)

// Batch is a validated, wholesale replacement for the order collection.
type Batch struct {
	Orders     []order.Order
	Total      int
	TotalToday int
}

// wireMessage is the raw stream/fallback envelope. Orders are kept raw so
// each record can be validated and dropped individually.
type wireMessage struct {
	Success    *bool             `json:"success"`
	Orders     []json.RawMessage `json:"orders"`
	Total      int               `json:"total"`
	TotalToday int               `json:"totalToday"`
	Message    string            `json:"message"`
}

// Parse validates a raw inbound payload. Individually malformed order
// records are dropped silently; well-formed ones are preserved in their
// original relative order. An all-malformed batch is still a valid, empty
// batch.
func Parse(raw []byte) (Batch, error) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Success == nil {
		return Batch{}, fmt.Errorf("%w: missing success field", ErrMalformed)
	}

	if !*msg.Success {
		if isTokenMessage(msg.Message) {
			return Batch{}, fmt.Errorf("%w: %s", ErrTokenRejected, msg.Message)
		}
		return Batch{}, fmt.Errorf("%w: server reported failure: %s", ErrMalformed, msg.Message)
	}

	batch := Batch{
		Orders:     make([]order.Order, 0, len(msg.Orders)),
		Total:      msg.Total,
		TotalToday: msg.TotalToday,
	}
	dropped := 0
	for _, raw := range msg.Orders {
		o, ok := validateOrder(raw)
		if !ok {
			dropped++
			continue
		}
		batch.Orders = append(batch.Orders, o)
	}
	if dropped > 0 {
		logging.Debug("dropped malformed order records", "count", dropped)
	}
	return batch, nil
}

// isTokenMessage recognizes the authorization-failure phrasing of the
// server, e.g. "Invalid or missing token" or "jwt expired".
func isTokenMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "token") || strings.Contains(lower, "jwt")
}

// rawOrder mirrors an order record with pointer fields, so missing keys are
// distinguishable from zero values.
type rawOrder struct {
	ID          *string   `json:"_id"`
	Number      *int      `json:"number"`
	Status      *string   `json:"status"`
	Name        *string   `json:"name"`
	Ingredients *[]string `json:"ingredients"`
	CreatedAt   *string   `json:"createdAt"`
	UpdatedAt   *string   `json:"updatedAt"`
}

// validateOrder checks a single candidate record against the strict schema.
func validateOrder(raw json.RawMessage) (order.Order, bool) {
	var rec rawOrder
	if err := json.Unmarshal(bytes.TrimSpace(raw), &rec); err != nil {
		return order.Order{}, false
	}
	if rec.ID == nil || rec.Number == nil || rec.Status == nil || rec.Name == nil ||
		rec.Ingredients == nil || rec.CreatedAt == nil || rec.UpdatedAt == nil {
		return order.Order{}, false
	}

	status := order.Status(*rec.Status)
	if !status.Valid() {
		return order.Order{}, false
	}

	createdAt, err := time.Parse(time.RFC3339, *rec.CreatedAt)
	if err != nil {
		return order.Order{}, false
	}
	updatedAt, err := time.Parse(time.RFC3339, *rec.UpdatedAt)
	if err != nil {
		return order.Order{}, false
	}

	return order.Order{
		ID:            *rec.ID,
		Number:        *rec.Number,
		Status:        status,
		Name:          *rec.Name,
		IngredientIDs: *rec.Ingredients,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}, true
}
