// Package broker defines the execution port to a brokerage and its
// implementations: the live Alpaca adapter and an in-process simulator for
// dry runs and tests.
package broker

import (
	"context"
	"time"

	"stonks/internal/domain"
)

// OrderUpdate is a point-in-time view of a broker-side order, including its
// fill state.
type OrderUpdate struct {
	BrokerOrderID  string
	Status         domain.OrderStatus
	FilledQuantity int
	AvgFillPrice   float64
	FilledAt       time.Time
}

// HeldPosition is a broker-side holding, used for reconciliation views. The
// engine's own position store stays authoritative.
type HeldPosition struct {
	Symbol        string  `json:"symbol"`
	Quantity      int     `json:"quantity"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	MarketValue   float64 `json:"market_value,omitempty"`
}

// Broker is the execution port. Implementations must be safe for concurrent
// use; callers never hold locks across these calls.
type Broker interface {
	// Name identifies the implementation in logs and API responses.
	Name() string

	// SubmitOrder sends the order to the broker and returns the broker-side
	// order id. The caller owns status transitions; SubmitOrder does not
	// mutate the order.
	SubmitOrder(ctx context.Context, o *domain.Order) (string, error)

	// CancelOrder requests cancellation of a working broker-side order.
	CancelOrder(ctx context.Context, brokerOrderID string) error

	// GetOrderStatus fetches the current broker-side state of an order,
	// fill quantity and average price included.
	GetOrderStatus(ctx context.Context, brokerOrderID string) (*OrderUpdate, error)

	// GetPositions fetches the broker-side holdings.
	GetPositions(ctx context.Context) ([]HeldPosition, error)

	// GetAccount fetches the account's financial snapshot.
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)
}
