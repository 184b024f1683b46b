package domain

import (
	"testing"
	"time"
)

func TestAddFillVWAP(t *testing.T) {
	o := &Order{
		ID:       "ord-1",
		Side:     OrderSideBuy,
		Quantity: 3,
		Status:   OrderStatusSubmitted,
	}

	o.AddFill(Fill{Quantity: 1, Price: 1.00, Timestamp: time.Now()})
	if o.Status != OrderStatusPartialFill {
		t.Errorf("Status after first fill = %q, want %q", o.Status, OrderStatusPartialFill)
	}
	if o.FilledQuantity != 1 {
		t.Errorf("FilledQuantity = %d, want 1", o.FilledQuantity)
	}
	if o.AvgFillPrice != 1.00 {
		t.Errorf("AvgFillPrice = %v, want 1.00", o.AvgFillPrice)
	}

	o.AddFill(Fill{Quantity: 2, Price: 1.30, Timestamp: time.Now()})
	if o.Status != OrderStatusFilled {
		t.Errorf("Status after full fill = %q, want %q", o.Status, OrderStatusFilled)
	}
	if o.FilledQuantity != 3 {
		t.Errorf("FilledQuantity = %d, want 3", o.FilledQuantity)
	}
	// VWAP: (1*1.00 + 2*1.30) / 3 = 1.20
	if diff := o.AvgFillPrice - 1.20; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("AvgFillPrice = %v, want 1.20", o.AvgFillPrice)
	}
}

func TestOrderIsActive(t *testing.T) {
	active := []OrderStatus{
		OrderStatusPendingApproval, OrderStatusApproved,
		OrderStatusSubmitted, OrderStatusPartialFill,
	}
	terminal := []OrderStatus{
		OrderStatusFilled, OrderStatusCancelled,
		OrderStatusRejected, OrderStatusExpired,
	}

	for _, s := range active {
		o := &Order{Status: s}
		if !o.IsActive() {
			t.Errorf("IsActive() = false for status %q, want true", s)
		}
		if s.IsTerminal() {
			t.Errorf("IsTerminal() = true for status %q, want false", s)
		}
	}
	for _, s := range terminal {
		o := &Order{Status: s}
		if o.IsActive() {
			t.Errorf("IsActive() = true for status %q, want false", s)
		}
		if !s.IsTerminal() {
			t.Errorf("IsTerminal() = false for status %q, want true", s)
		}
	}
}

func TestNewPositionFromOrder(t *testing.T) {
	o := &Order{
		ID:            "ord-2",
		OptionCode:    "SPXW250825C05450000",
		Underlying:    "SPX",
		Strike:        5450,
		OptionType:    OptionTypeCall,
		TradeType:     TradeTypeLongCall,
		Side:          OrderSideBuy,
		Quantity:      2,
		TargetPrice:   14.5,
		StopLossPrice: 7.3,
	}
	o.AddFill(Fill{Quantity: 2, Price: 10.0, Timestamp: time.Now()})

	p := NewPositionFromOrder(o)
	if p.OrderID != "ord-2" {
		t.Errorf("OrderID = %q, want %q", p.OrderID, "ord-2")
	}
	if p.Quantity != 2 {
		t.Errorf("Quantity = %d, want 2", p.Quantity)
	}
	if p.EntryPrice != 10.0 {
		t.Errorf("EntryPrice = %v, want 10.0", p.EntryPrice)
	}
	if p.Status != PositionStatusOpen {
		t.Errorf("Status = %q, want %q", p.Status, PositionStatusOpen)
	}
	if p.ID == "" || p.ID == o.ID {
		t.Errorf("position ID %q should be non-empty and distinct from order ID", p.ID)
	}
}

func TestRealizedPnL(t *testing.T) {
	p := &Position{
		Quantity:   2,
		EntryPrice: 10.0,
		Status:     PositionStatusClosed,
		ExitPrice:  14.5,
	}
	// (14.5 - 10.0) * 2 * 100 = 900
	if got := p.RealizedPnL(); got != 900 {
		t.Errorf("RealizedPnL() = %v, want 900", got)
	}
	if got := p.RealizedPnLPercent(); got != 45 {
		t.Errorf("RealizedPnLPercent() = %v, want 45", got)
	}

	open := &Position{Quantity: 2, EntryPrice: 10.0, Status: PositionStatusOpen}
	if got := open.RealizedPnL(); got != 0 {
		t.Errorf("RealizedPnL() on open position = %v, want 0", got)
	}
}

func TestChainFindByDelta(t *testing.T) {
	ch := &OptionsChain{
		Underlying:      "SPX",
		UnderlyingPrice: 5450,
		Contracts: []OptionContract{
			{Code: "C1", Type: OptionTypeCall, Strike: 5440, Greeks: &Greeks{Delta: 0.62}},
			{Code: "C2", Type: OptionTypeCall, Strike: 5450, Greeks: &Greeks{Delta: 0.53}},
			{Code: "C3", Type: OptionTypeCall, Strike: 5460, Greeks: &Greeks{Delta: 0.41}},
			{Code: "P1", Type: OptionTypePut, Strike: 5450, Greeks: &Greeks{Delta: -0.47}},
			{Code: "C4", Type: OptionTypeCall, Strike: 5470}, // no greeks
		},
	}

	got := ch.FindByDelta(0.55, OptionTypeCall, 0.10)
	if got == nil || got.Code != "C2" {
		t.Fatalf("FindByDelta(0.55, call) = %+v, want C2", got)
	}

	// Puts match on absolute delta.
	got = ch.FindByDelta(0.45, OptionTypePut, 0.10)
	if got == nil || got.Code != "P1" {
		t.Fatalf("FindByDelta(0.45, put) = %+v, want P1", got)
	}

	// Best match outside tolerance returns nil.
	if got := ch.FindByDelta(0.10, OptionTypeCall, 0.05); got != nil {
		t.Errorf("FindByDelta outside tolerance = %+v, want nil", got)
	}
}

func TestChainFindATM(t *testing.T) {
	ch := &OptionsChain{
		UnderlyingPrice: 5453,
		Contracts: []OptionContract{
			{Code: "C1", Type: OptionTypeCall, Strike: 5440},
			{Code: "C2", Type: OptionTypeCall, Strike: 5455},
			{Code: "C3", Type: OptionTypeCall, Strike: 5470},
		},
	}
	got := ch.FindATM(OptionTypeCall)
	if got == nil || got.Code != "C2" {
		t.Fatalf("FindATM = %+v, want C2", got)
	}

	empty := &OptionsChain{}
	if got := empty.FindATM(OptionTypeCall); got != nil {
		t.Errorf("FindATM on empty chain = %+v, want nil", got)
	}
}

func TestContractMid(t *testing.T) {
	c := &OptionContract{Bid: 9.8, Ask: 10.2}
	if got := c.Mid(); got != 10.0 {
		t.Errorf("Mid() = %v, want 10.0", got)
	}
	oneSided := &OptionContract{Ask: 10.2}
	if got := oneSided.Mid(); got != 0 {
		t.Errorf("Mid() with missing bid = %v, want 0", got)
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if len(a) != 8 {
		t.Errorf("NewID() length = %d, want 8", len(a))
	}
	if a == b {
		t.Errorf("NewID() returned duplicate id %q", a)
	}
}
