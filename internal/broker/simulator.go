package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stonks/internal/domain"
)

// Simulator is an in-process broker for dry runs and tests. By default it
// fills every order immediately and completely at the working price; set
// AutoFill to false to drive fills by hand with MarkFilled.
type Simulator struct {
	mu      sync.Mutex
	orders  map[string]*OrderUpdate
	sides   map[string]orderIntent
	prices  map[string]float64
	held    map[string]*HeldPosition
	account domain.AccountInfo

	// AutoFill fills orders on submission. Set before use.
	AutoFill bool
	// SubmitErr, when set, makes every SubmitOrder call fail with it.
	SubmitErr error
}

// orderIntent remembers what an order was for, so later fills can move the
// simulated holdings.
type orderIntent struct {
	symbol string
	side   domain.OrderSide
}

var _ Broker = (*Simulator)(nil)

// NewSimulator creates a simulator with a default paper account.
func NewSimulator() *Simulator {
	return &Simulator{
		orders: make(map[string]*OrderUpdate),
		sides:  make(map[string]orderIntent),
		prices: make(map[string]float64),
		held:   make(map[string]*HeldPosition),
		account: domain.AccountInfo{
			Equity:      25000,
			Cash:        25000,
			BuyingPower: 25000,
		},
		AutoFill: true,
	}
}

func (s *Simulator) Name() string { return "simulator" }

// SetPrice sets the fill price used for market orders on an option code.
func (s *Simulator) SetPrice(optionCode string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[optionCode] = price
}

// SetAccount replaces the simulated account snapshot.
func (s *Simulator) SetAccount(a domain.AccountInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = a
}

func (s *Simulator) SubmitOrder(ctx context.Context, o *domain.Order) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SubmitErr != nil {
		return "", s.SubmitErr
	}

	id := "sim-" + domain.NewID()
	update := &OrderUpdate{
		BrokerOrderID: id,
		Status:        domain.OrderStatusSubmitted,
	}
	s.sides[id] = orderIntent{symbol: o.OptionCode, side: o.Side}
	if s.AutoFill {
		update.Status = domain.OrderStatusFilled
		update.FilledQuantity = o.Quantity
		update.AvgFillPrice = s.fillPriceLocked(o)
		update.FilledAt = time.Now().UTC()
		s.applyFillLocked(id, o.Quantity, update.AvgFillPrice)
	}
	s.orders[id] = update
	return id, nil
}

// applyFillLocked moves the simulated holdings for a fill of quantity
// contracts at price.
func (s *Simulator) applyFillLocked(brokerOrderID string, quantity int, price float64) {
	intent, ok := s.sides[brokerOrderID]
	if !ok {
		return
	}
	h := s.held[intent.symbol]
	if intent.side == domain.OrderSideSell {
		if h == nil {
			return
		}
		h.Quantity -= quantity
		if h.Quantity <= 0 {
			delete(s.held, intent.symbol)
		}
		return
	}
	if h == nil {
		s.held[intent.symbol] = &HeldPosition{
			Symbol:        intent.symbol,
			Quantity:      quantity,
			AvgEntryPrice: price,
		}
		return
	}
	total := h.Quantity + quantity
	h.AvgEntryPrice = (h.AvgEntryPrice*float64(h.Quantity) + price*float64(quantity)) / float64(total)
	h.Quantity = total
}

// fillPriceLocked prefers a posted price, falling back to the limit price.
func (s *Simulator) fillPriceLocked(o *domain.Order) float64 {
	if px, ok := s.prices[o.OptionCode]; ok {
		return px
	}
	return o.LimitPrice
}

func (s *Simulator) CancelOrder(ctx context.Context, brokerOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	update, ok := s.orders[brokerOrderID]
	if !ok {
		return fmt.Errorf("unknown order %s", brokerOrderID)
	}
	if update.Status == domain.OrderStatusFilled {
		return fmt.Errorf("order %s already filled", brokerOrderID)
	}
	update.Status = domain.OrderStatusCancelled
	return nil
}

func (s *Simulator) GetOrderStatus(ctx context.Context, brokerOrderID string) (*OrderUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	update, ok := s.orders[brokerOrderID]
	if !ok {
		return nil, fmt.Errorf("unknown order %s", brokerOrderID)
	}
	copied := *update
	return &copied, nil
}

func (s *Simulator) GetPositions(ctx context.Context) ([]HeldPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held := make([]HeldPosition, 0, len(s.held))
	for _, h := range s.held {
		held = append(held, *h)
	}
	return held, nil
}

func (s *Simulator) GetAccount(ctx context.Context) (*domain.AccountInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.account
	return &acct, nil
}

// MarkFilled records a broker-side fill for manual-fill test scenarios.
func (s *Simulator) MarkFilled(brokerOrderID string, quantity int, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	update, ok := s.orders[brokerOrderID]
	if !ok {
		return
	}
	delta := quantity - update.FilledQuantity
	update.FilledQuantity = quantity
	update.AvgFillPrice = price
	update.Status = domain.OrderStatusFilled
	update.FilledAt = time.Now().UTC()
	if delta > 0 {
		s.applyFillLocked(brokerOrderID, delta, price)
	}
}

// MarkStatus forces a broker-side status for manual test scenarios.
func (s *Simulator) MarkStatus(brokerOrderID string, status domain.OrderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update, ok := s.orders[brokerOrderID]; ok {
		update.Status = status
	}
}
