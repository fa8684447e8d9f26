package api

import (
	"context"
	"fmt"

	"bunstack/internal/catalog"
	"bunstack/internal/order"
)

// ingredientsResponse is the envelope of the catalog endpoint.
type ingredientsResponse struct {
	envelope
	Data []catalog.Part `json:"data"`
}

// Ingredients fetches the part catalog. The catalog is cached, so repeated
// calls within an invocation do not hit the wire.
func (c *Client) Ingredients(ctx context.Context) (*catalog.Catalog, error) {
	if cat, ok := c.catalogCache.Get("catalog"); ok {
		return cat, nil
	}

	var resp ingredientsResponse
	if err := c.get(ctx, "/ingredients", &resp, false); err != nil {
		return nil, err
	}
	cat := catalog.New(resp.Data)
	c.catalogCache.Set("catalog", cat)
	return cat, nil
}

// SubmittedOrder describes the outcome of an order submission.
type SubmittedOrder struct {
	Number int
	Name   string
}

// submitResponse is the envelope of the order submission endpoint.
type submitResponse struct {
	envelope
	Name  string `json:"name"`
	Order struct {
		Number int `json:"number"`
	} `json:"order"`
}

// SubmitOrder submits an ingredient id sequence as a new order. Requires an
// authenticated session.
func (c *Client) SubmitOrder(ctx context.Context, ingredientIDs []string) (SubmittedOrder, error) {
	var resp submitResponse
	payload := map[string][]string{"ingredients": ingredientIDs}
	if err := c.send(ctx, "POST", "/orders", payload, &resp, true); err != nil {
		return SubmittedOrder{}, err
	}
	return SubmittedOrder{Number: resp.Order.Number, Name: resp.Name}, nil
}

// ordersResponse is the envelope of the order lookup endpoint.
type ordersResponse struct {
	envelope
	Orders []order.Order `json:"orders"`
}

// OrderByNumber fetches a single order by its public number. Results are
// cached for a short window.
func (c *Client) OrderByNumber(ctx context.Context, number int) (order.Order, error) {
	if ord, ok := c.orderCache.Get(number); ok {
		return ord, nil
	}

	var resp ordersResponse
	if err := c.get(ctx, fmt.Sprintf("/orders/%d", number), &resp, false); err != nil {
		return order.Order{}, err
	}
	if len(resp.Orders) == 0 {
		return order.Order{}, &Error{StatusCode: 404, Message: "order not found"}
	}
	c.orderCache.Set(number, resp.Orders[0])
	return resp.Orders[0], nil
}
