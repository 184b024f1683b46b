package broker

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"stonks/internal/domain"
)

// AlpacaBroker executes option orders through the Alpaca trading API.
type AlpacaBroker struct {
	client *alpaca.Client
}

var _ Broker = (*AlpacaBroker)(nil)

// NewAlpacaBroker creates a broker against the given Alpaca environment.
// Use the paper trading base URL unless you mean it.
func NewAlpacaBroker(apiKey, apiSecret, baseURL string) *AlpacaBroker {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return &AlpacaBroker{client: client}
}

func (b *AlpacaBroker) Name() string { return "alpaca" }

// SubmitOrder places a day order for the option contract and returns the
// Alpaca order id.
func (b *AlpacaBroker) SubmitOrder(ctx context.Context, o *domain.Order) (string, error) {
	qty := decimal.NewFromInt(int64(o.Quantity))
	req := alpaca.PlaceOrderRequest{
		Symbol:      o.OptionCode,
		Qty:         &qty,
		Side:        alpacaSide(o.Side),
		Type:        alpacaType(o.Type),
		TimeInForce: alpaca.Day,
	}
	if o.Type == domain.OrderTypeLimit {
		limit := decimal.NewFromFloat(o.LimitPrice)
		req.LimitPrice = &limit
	}

	placed, err := b.client.PlaceOrder(req)
	if err != nil {
		return "", fmt.Errorf("placing order for %s: %w", o.OptionCode, err)
	}
	return placed.ID, nil
}

func (b *AlpacaBroker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	if err := b.client.CancelOrder(brokerOrderID); err != nil {
		return fmt.Errorf("cancelling order %s: %w", brokerOrderID, err)
	}
	return nil
}

func (b *AlpacaBroker) GetOrderStatus(ctx context.Context, brokerOrderID string) (*OrderUpdate, error) {
	ord, err := b.client.GetOrder(brokerOrderID)
	if err != nil {
		return nil, fmt.Errorf("fetching order %s: %w", brokerOrderID, err)
	}

	update := &OrderUpdate{
		BrokerOrderID:  ord.ID,
		Status:         mapAlpacaStatus(ord.Status),
		FilledQuantity: int(ord.FilledQty.IntPart()),
	}
	if ord.FilledAvgPrice != nil {
		update.AvgFillPrice = ord.FilledAvgPrice.InexactFloat64()
	}
	if ord.FilledAt != nil {
		update.FilledAt = *ord.FilledAt
	}
	return update, nil
}

func (b *AlpacaBroker) GetPositions(ctx context.Context) ([]HeldPosition, error) {
	positions, err := b.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("fetching positions: %w", err)
	}
	held := make([]HeldPosition, 0, len(positions))
	for _, p := range positions {
		h := HeldPosition{
			Symbol:        p.Symbol,
			Quantity:      int(p.Qty.IntPart()),
			AvgEntryPrice: p.AvgEntryPrice.InexactFloat64(),
		}
		if p.MarketValue != nil {
			h.MarketValue = p.MarketValue.InexactFloat64()
		}
		held = append(held, h)
	}
	return held, nil
}

func (b *AlpacaBroker) GetAccount(ctx context.Context) (*domain.AccountInfo, error) {
	acct, err := b.client.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("fetching account: %w", err)
	}
	return &domain.AccountInfo{
		Equity:      acct.Equity.InexactFloat64(),
		Cash:        acct.Cash.InexactFloat64(),
		BuyingPower: acct.BuyingPower.InexactFloat64(),
	}, nil
}

func alpacaSide(s domain.OrderSide) alpaca.Side {
	if s == domain.OrderSideSell {
		return alpaca.Sell
	}
	return alpaca.Buy
}

func alpacaType(t domain.OrderType) alpaca.OrderType {
	switch t {
	case domain.OrderTypeMarket:
		return alpaca.Market
	case domain.OrderTypeStop:
		return alpaca.Stop
	case domain.OrderTypeStopLimit:
		return alpaca.StopLimit
	default:
		return alpaca.Limit
	}
}

// mapAlpacaStatus translates Alpaca order states into the local lifecycle.
// Working states that predate a fill all map to submitted.
func mapAlpacaStatus(s string) domain.OrderStatus {
	switch s {
	case "filled":
		return domain.OrderStatusFilled
	case "partially_filled":
		return domain.OrderStatusPartialFill
	case "canceled", "pending_cancel", "done_for_day":
		return domain.OrderStatusCancelled
	case "rejected":
		return domain.OrderStatusRejected
	case "expired":
		return domain.OrderStatusExpired
	default:
		return domain.OrderStatusSubmitted
	}
}
