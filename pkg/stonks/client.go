// Package stonks provides a Go client for the stonks-server API.
package stonks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"stonks/internal/broker"
	"stonks/internal/domain"
	"stonks/internal/session"
)

// Client talks to a running stonks-server instance.
type Client struct {
	baseURL    string
	passphrase string
	httpClient *http.Client
}

// NewClient creates an API client. passphrase is only needed for SendSignal.
func NewClient(baseURL, passphrase string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		passphrase: passphrase,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Session retrieves the current session snapshot.
func (c *Client) Session(ctx context.Context) (*session.Info, error) {
	var info session.Info
	if err := c.get(ctx, "/api/session", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Orders retrieves all orders. Pass activeOnly to filter to working orders.
func (c *Client) Orders(ctx context.Context, activeOnly bool) ([]*domain.Order, error) {
	path := "/api/orders"
	if activeOnly {
		path += "?active=true"
	}
	var out []*domain.Order
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Order retrieves one order by id.
func (c *Client) Order(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	if err := c.get(ctx, "/api/orders/"+id, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// ApproveResult reports how far an approved order got.
type ApproveResult struct {
	Status string        `json:"status"`
	Note   string        `json:"note,omitempty"`
	Order  *domain.Order `json:"order"`
}

// ApproveOrder approves a pending order. The server submits it to the broker
// unless autoSubmit is false.
func (c *Client) ApproveOrder(ctx context.Context, id string, autoSubmit bool) (*ApproveResult, error) {
	var res ApproveResult
	body := map[string]bool{"auto_submit": autoSubmit}
	if err := c.post(ctx, "/api/orders/"+id+"/approve", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RejectOrder cancels a non-terminal order.
func (c *Client) RejectOrder(ctx context.Context, id, reason string) (*domain.Order, error) {
	var o domain.Order
	body := map[string]string{"reason": reason}
	if err := c.post(ctx, "/api/orders/"+id+"/reject", body, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Positions retrieves all positions. Pass openOnly to filter to live ones.
func (c *Client) Positions(ctx context.Context, openOnly bool) ([]*domain.Position, error) {
	path := "/api/positions"
	if openOnly {
		path += "?open=true"
	}
	var out []*domain.Position
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CloseResult reports the exit order created for a position.
type CloseResult struct {
	Status    string           `json:"status"`
	Note      string           `json:"note,omitempty"`
	Position  *domain.Position `json:"position"`
	ExitOrder *domain.Order    `json:"exit_order"`
}

// ClosePosition requests a market exit for an open position.
func (c *Client) ClosePosition(ctx context.Context, id string) (*CloseResult, error) {
	var res CloseResult
	if err := c.post(ctx, "/api/positions/"+id+"/close", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// OrderAdvice asks the server's advisor whether a pending order should be
// approved. Fails when the server has no advisor configured.
func (c *Client) OrderAdvice(ctx context.Context, id string) (*domain.Analysis, error) {
	var a domain.Analysis
	if err := c.post(ctx, "/api/orders/"+id+"/advice", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// PositionAdvice asks the server's advisor whether to exit a position at the
// given mark. Pass 0 to evaluate at the entry price.
func (c *Client) PositionAdvice(ctx context.Context, id string, currentPrice float64) (*domain.Analysis, error) {
	var a domain.Analysis
	body := map[string]float64{"current_price": currentPrice}
	if err := c.post(ctx, "/api/positions/"+id+"/advice", body, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Summary is the daily summary endpoint's payload.
type Summary struct {
	Summary         domain.DailySummary   `json:"summary"`
	OpenPositions   int                   `json:"open_positions"`
	ActiveOrders    int                   `json:"active_orders"`
	Account         *domain.AccountInfo   `json:"account,omitempty"`
	BrokerPositions []broker.HeldPosition `json:"broker_positions,omitempty"`
}

// DailySummary retrieves today's realized results and book counts.
func (c *Client) DailySummary(ctx context.Context) (*Summary, error) {
	var s Summary
	if err := c.get(ctx, "/api/summary", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SendSignal posts a trade signal to the webhook, filling in the client's
// passphrase.
func (c *Client) SendSignal(ctx context.Context, sig *domain.Signal) (map[string]any, error) {
	send := *sig
	send.Passphrase = c.passphrase
	var res map[string]any
	if err := c.post(ctx, "/webhook/signal", &send, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// ---------------------------------------------------------------------------
// HTTP plumbing
// ---------------------------------------------------------------------------

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if derr := json.NewDecoder(resp.Body).Decode(&apiErr); derr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", req.Method, req.URL.Path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
