package feed

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bunstack/internal/order"
)

func validOrderJSON(id string, number int) string {
	return fmt.Sprintf(`{
		"_id": %q,
		"number": %d,
		"status": "done",
		"name": "Test burger",
		"ingredients": ["bun-1", "meat-1", "bun-1"],
		"createdAt": "2026-08-30T12:00:00.000Z",
		"updatedAt": "2026-08-30T12:05:00.000Z"
	}`, id, number)
}

func TestParseValidBatch(t *testing.T) {
	raw := fmt.Sprintf(`{"success": true, "orders": [%s, %s], "total": 120, "totalToday": 12}`,
		validOrderJSON("a", 1), validOrderJSON("b", 2))

	batch, err := Parse([]byte(raw))
	require.NoError(t, err)

	require.Len(t, batch.Orders, 2)
	assert.Equal(t, "a", batch.Orders[0].ID)
	assert.Equal(t, "b", batch.Orders[1].ID)
	assert.Equal(t, order.StatusDone, batch.Orders[0].Status)
	assert.Equal(t, []string{"bun-1", "meat-1", "bun-1"}, batch.Orders[0].IngredientIDs)
	assert.Equal(t, 120, batch.Total)
	assert.Equal(t, 12, batch.TotalToday)
}

func TestParseDropsMalformedRecordsKeepsOrder(t *testing.T) {
	bad := []string{
		`{"number": 3}`, // missing almost everything
		`{"_id": "x", "number": "not-a-number", "status": "done", "name": "n", "ingredients": [], "createdAt": "2026-08-30T12:00:00Z", "updatedAt": "2026-08-30T12:00:00Z"}`,
		`{"_id": "y", "number": 4, "status": "burnt", "name": "n", "ingredients": [], "createdAt": "2026-08-30T12:00:00Z", "updatedAt": "2026-08-30T12:00:00Z"}`,
		`{"_id": "z", "number": 5, "status": "done", "name": "n", "ingredients": "not-a-list", "createdAt": "2026-08-30T12:00:00Z", "updatedAt": "2026-08-30T12:00:00Z"}`,
		`{"_id": "w", "number": 6, "status": "done", "name": "n", "ingredients": [], "createdAt": "yesterday", "updatedAt": "2026-08-30T12:00:00Z"}`,
	}

	records := []string{validOrderJSON("keep-1", 1)}
	records = append(records, bad...)
	records = append(records, validOrderJSON("keep-2", 2))

	raw := fmt.Sprintf(`{"success": true, "orders": [%s]}`, join(records))
	batch, err := Parse([]byte(raw))
	require.NoError(t, err)

	require.Len(t, batch.Orders, 2)
	assert.Equal(t, "keep-1", batch.Orders[0].ID)
	assert.Equal(t, "keep-2", batch.Orders[1].ID)
}

func TestParseAllMalformedYieldsEmptyOkBatch(t *testing.T) {
	raw := `{"success": true, "orders": [{"bogus": 1}, 42, "nope"]}`

	batch, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Empty(t, batch.Orders)
}

func TestParseEmptyOrderList(t *testing.T) {
	batch, err := Parse([]byte(`{"success": true, "orders": []}`))
	require.NoError(t, err)
	assert.Empty(t, batch.Orders)
}

func TestParseTokenRejection(t *testing.T) {
	cases := []string{
		`{"success": false, "message": "Invalid or missing token"}`,
		`{"success": false, "message": "jwt expired"}`,
	}
	for _, raw := range cases {
		_, err := Parse([]byte(raw))
		assert.ErrorIs(t, err, ErrTokenRejected, raw)
	}
}

func TestParseGenericFailureIsNotTokenRejection(t *testing.T) {
	_, err := Parse([]byte(`{"success": false, "message": "internal error"}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenRejected)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseRejectsNonObjectPayloads(t *testing.T) {
	for _, raw := range []string{
		`not json at all`,
		`[1, 2, 3]`,
		`"a string"`,
		`null`,
		`{}`, // object without a success field
	} {
		_, err := Parse([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}
}

func join(records []string) string {
	return strings.Join(records, ",")
}
