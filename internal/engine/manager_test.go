package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"stonks/internal/broker"
	"stonks/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSuggestion() *domain.TradeSuggestion {
	return &domain.TradeSuggestion{
		ID:         domain.NewID(),
		SignalType: domain.SignalRSIOversoldLong,
		TradeType:  domain.TradeTypeLongCall,
		Contract: domain.OptionContract{
			Code:       "SPXW250825C05450000",
			Underlying: "SPX",
			Strike:     5450,
			Type:       domain.OptionTypeCall,
		},
		Quantity:    1,
		EntryPrice:  10.0,
		TargetPrice: 14.5,
		StopLoss:    7.3,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestOrderHappyPath(t *testing.T) {
	sim := broker.NewSimulator()
	sim.AutoFill = false
	m := NewManager(sim, nil, nil, DefaultLimits, testLogger())
	ctx := context.Background()

	o, err := m.CreateOrderFromSuggestion(testSuggestion())
	if err != nil {
		t.Fatalf("CreateOrderFromSuggestion: %v", err)
	}
	if o.Status != domain.OrderStatusPendingApproval {
		t.Fatalf("Status = %q, want pending_approval", o.Status)
	}
	if o.Side != domain.OrderSideBuy || o.Type != domain.OrderTypeLimit {
		t.Errorf("order shape = %s/%s, want buy/limit", o.Side, o.Type)
	}
	if got := m.PendingApproval(); len(got) != 1 || got[0].ID != o.ID {
		t.Errorf("PendingApproval = %v, want just the new order", got)
	}

	if _, err := m.ApproveOrder(o.ID); err != nil {
		t.Fatalf("ApproveOrder: %v", err)
	}
	if got := m.PendingApproval(); len(got) != 0 {
		t.Errorf("PendingApproval after approve = %v, want empty", got)
	}

	submitted, err := m.SubmitOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if submitted.Status != domain.OrderStatusSubmitted {
		t.Fatalf("Status = %q, want submitted", submitted.Status)
	}
	if submitted.BrokerOrderID == "" {
		t.Fatal("BrokerOrderID empty after submission")
	}

	filled, pos, err := m.RecordFill(o.ID, domain.Fill{Quantity: 1, Price: 10.0, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("RecordFill: %v", err)
	}
	if filled.Status != domain.OrderStatusFilled {
		t.Errorf("Status = %q, want filled", filled.Status)
	}
	if pos == nil {
		t.Fatal("RecordFill on a fully-filled BUY should create a position")
	}
	if pos.OrderID != o.ID || pos.Status != domain.PositionStatusOpen {
		t.Errorf("position = %+v, want open position for order %s", pos, o.ID)
	}
}

func TestApproveWrongState(t *testing.T) {
	m := NewManager(nil, nil, nil, DefaultLimits, testLogger())
	o, _ := m.CreateOrderFromSuggestion(testSuggestion())
	if _, err := m.ApproveOrder(o.ID); err != nil {
		t.Fatalf("ApproveOrder: %v", err)
	}
	if _, err := m.ApproveOrder(o.ID); !errors.Is(err, ErrStateConflict) {
		t.Errorf("second approve error = %v, want ErrStateConflict", err)
	}
	if _, err := m.ApproveOrder("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("approve missing error = %v, want ErrNotFound", err)
	}
}

func TestRejectFromAnyNonTerminalState(t *testing.T) {
	sim := broker.NewSimulator()
	sim.AutoFill = false
	m := NewManager(sim, nil, nil, DefaultLimits, testLogger())
	ctx := context.Background()

	// Reject a submitted order: allowed, and cancels broker side.
	o, _ := m.CreateOrderFromSuggestion(testSuggestion())
	m.ApproveOrder(o.ID)
	m.SubmitOrder(ctx, o.ID)

	rejected, err := m.RejectOrder(ctx, o.ID, "changed my mind")
	if err != nil {
		t.Fatalf("RejectOrder(submitted): %v", err)
	}
	if rejected.Status != domain.OrderStatusCancelled {
		t.Errorf("Status = %q, want cancelled", rejected.Status)
	}
	if rejected.StatusReason != "changed my mind" {
		t.Errorf("StatusReason = %q", rejected.StatusReason)
	}

	// Terminal orders stay put.
	if _, err := m.RejectOrder(ctx, o.ID, "again"); !errors.Is(err, ErrStateConflict) {
		t.Errorf("reject of cancelled order = %v, want ErrStateConflict", err)
	}
}

func TestSubmitWithoutExecutor(t *testing.T) {
	m := NewManager(nil, nil, nil, DefaultLimits, testLogger())
	o, _ := m.CreateOrderFromSuggestion(testSuggestion())
	m.ApproveOrder(o.ID)

	_, err := m.SubmitOrder(context.Background(), o.ID)
	if !errors.Is(err, ErrNoExecutor) {
		t.Fatalf("SubmitOrder error = %v, want ErrNoExecutor", err)
	}

	got, _ := m.GetOrder(o.ID)
	if got.Status != domain.OrderStatusRejected {
		t.Errorf("Status = %q, want rejected", got.Status)
	}
	if got.StatusReason != "no executor configured" {
		t.Errorf("StatusReason = %q", got.StatusReason)
	}
}

func TestSubmitBrokerFailureIsTerminal(t *testing.T) {
	sim := broker.NewSimulator()
	sim.SubmitErr = errors.New("exchange down")
	m := NewManager(sim, nil, nil, DefaultLimits, testLogger())

	o, _ := m.CreateOrderFromSuggestion(testSuggestion())
	m.ApproveOrder(o.ID)

	_, err := m.SubmitOrder(context.Background(), o.ID)
	if !errors.Is(err, ErrBrokerFailure) {
		t.Fatalf("SubmitOrder error = %v, want ErrBrokerFailure", err)
	}

	got, _ := m.GetOrder(o.ID)
	if got.Status != domain.OrderStatusRejected {
		t.Errorf("Status = %q, want rejected after broker failure", got.Status)
	}

	// No auto-retry: the order is terminal and submit now conflicts.
	if _, err := m.SubmitOrder(context.Background(), o.ID); !errors.Is(err, ErrStateConflict) {
		t.Errorf("resubmit error = %v, want ErrStateConflict", err)
	}
}

func TestCapacityGate(t *testing.T) {
	m := NewManager(nil, nil, nil, Limits{MaxOpenPositions: 2}, testLogger())

	if _, err := m.CreateOrderFromSuggestion(testSuggestion()); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := m.CreateOrderFromSuggestion(testSuggestion()); err != nil {
		t.Fatalf("second create: %v", err)
	}
	if _, err := m.CreateOrderFromSuggestion(testSuggestion()); !errors.Is(err, ErrCapacity) {
		t.Errorf("third create error = %v, want ErrCapacity", err)
	}
	if m.CanOpenPosition() {
		t.Error("CanOpenPosition() = true at capacity")
	}
}

func TestRecordFillWrongState(t *testing.T) {
	m := NewManager(nil, nil, nil, DefaultLimits, testLogger())
	o, _ := m.CreateOrderFromSuggestion(testSuggestion())

	_, _, err := m.RecordFill(o.ID, domain.Fill{Quantity: 1, Price: 10})
	if !errors.Is(err, ErrStateConflict) {
		t.Errorf("RecordFill on pending order = %v, want ErrStateConflict", err)
	}
}

func TestPartialFillCreatesNoPosition(t *testing.T) {
	sim := broker.NewSimulator()
	sim.AutoFill = false
	m := NewManager(sim, nil, nil, DefaultLimits, testLogger())
	ctx := context.Background()

	s := testSuggestion()
	s.Quantity = 3
	o, _ := m.CreateOrderFromSuggestion(s)
	m.ApproveOrder(o.ID)
	m.SubmitOrder(ctx, o.ID)

	got, pos, err := m.RecordFill(o.ID, domain.Fill{Quantity: 1, Price: 10})
	if err != nil {
		t.Fatalf("RecordFill: %v", err)
	}
	if got.Status != domain.OrderStatusPartialFill {
		t.Errorf("Status = %q, want partial_fill", got.Status)
	}
	if pos != nil {
		t.Error("partial fill must not create a position")
	}

	_, pos, err = m.RecordFill(o.ID, domain.Fill{Quantity: 2, Price: 10.3})
	if err != nil {
		t.Fatalf("RecordFill(rest): %v", err)
	}
	if pos == nil {
		t.Fatal("completing fill should create the position")
	}
	// VWAP: (1*10 + 2*10.3)/3 = 10.2
	if pos.EntryPrice < 10.199 || pos.EntryPrice > 10.201 {
		t.Errorf("EntryPrice = %v, want 10.2", pos.EntryPrice)
	}
}

func openTestPosition(t *testing.T, m *Manager, sim *broker.Simulator) *domain.Position {
	t.Helper()
	o, err := m.CreateOrderFromSuggestion(testSuggestion())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	m.ApproveOrder(o.ID)
	if _, err := m.SubmitOrder(context.Background(), o.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, pos, err := m.RecordFill(o.ID, domain.Fill{Quantity: 1, Price: 10.0, Timestamp: time.Now()})
	if err != nil || pos == nil {
		t.Fatalf("fill: pos=%v err=%v", pos, err)
	}
	return pos
}

func TestExitOrderLifecycle(t *testing.T) {
	sim := broker.NewSimulator()
	sim.AutoFill = false
	m := NewManager(sim, nil, nil, DefaultLimits, testLogger())

	pos := openTestPosition(t, m, sim)

	exit, err := m.CreateExitOrder(pos.ID, "manual close")
	if err != nil {
		t.Fatalf("CreateExitOrder: %v", err)
	}
	if exit.Side != domain.OrderSideSell || exit.Type != domain.OrderTypeMarket {
		t.Errorf("exit order = %s/%s, want sell/market", exit.Side, exit.Type)
	}
	if exit.Status != domain.OrderStatusApproved {
		t.Errorf("exit Status = %q, want approved without an approval queue", exit.Status)
	}

	got, _ := m.GetPosition(pos.ID)
	if got.Status != domain.PositionStatusClosing {
		t.Errorf("position Status = %q, want closing", got.Status)
	}
	if got.ExitOrderID != exit.ID {
		t.Errorf("ExitOrderID = %q, want %q", got.ExitOrderID, exit.ID)
	}

	if back := m.PositionByExitOrder(exit.ID); back == nil || back.ID != pos.ID {
		t.Errorf("PositionByExitOrder = %+v, want position %s", back, pos.ID)
	}

	// A closing position cannot get a second exit order.
	if _, err := m.CreateExitOrder(pos.ID, "again"); !errors.Is(err, ErrStateConflict) {
		t.Errorf("second exit order error = %v, want ErrStateConflict", err)
	}
}

func TestClosePositionUpdatesSummary(t *testing.T) {
	sim := broker.NewSimulator()
	sim.AutoFill = false
	m := NewManager(sim, nil, nil, DefaultLimits, testLogger())

	pos := openTestPosition(t, m, sim)

	closed, err := m.ClosePosition(pos.ID, 14.5)
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if closed.Status != domain.PositionStatusClosed {
		t.Errorf("Status = %q, want closed", closed.Status)
	}
	// (14.5-10)*1*100 = 450
	if pnl := closed.RealizedPnL(); pnl != 450 {
		t.Errorf("RealizedPnL = %v, want 450", pnl)
	}

	sum := m.DailySummary("2025-08-25")
	if sum.Trades != 1 || sum.Wins != 1 || sum.Losses != 0 {
		t.Errorf("summary = %+v, want 1 trade, 1 win", sum)
	}
	if sum.PnL != 450 {
		t.Errorf("summary PnL = %v, want 450", sum.PnL)
	}
	if sum.WinRate != 1 {
		t.Errorf("WinRate = %v, want 1", sum.WinRate)
	}

	if _, err := m.ClosePosition(pos.ID, 14.5); !errors.Is(err, ErrStateConflict) {
		t.Errorf("double close error = %v, want ErrStateConflict", err)
	}
}

func TestReopenPosition(t *testing.T) {
	sim := broker.NewSimulator()
	sim.AutoFill = false
	m := NewManager(sim, nil, nil, DefaultLimits, testLogger())

	pos := openTestPosition(t, m, sim)
	if _, err := m.CreateExitOrder(pos.ID, "flatten"); err != nil {
		t.Fatalf("CreateExitOrder: %v", err)
	}

	if err := m.ReopenPosition(pos.ID); err != nil {
		t.Fatalf("ReopenPosition: %v", err)
	}
	got, _ := m.GetPosition(pos.ID)
	if got.Status != domain.PositionStatusOpen || got.ExitOrderID != "" {
		t.Errorf("position = %+v, want open with cleared exit order", got)
	}

	if err := m.ReopenPosition(pos.ID); !errors.Is(err, ErrStateConflict) {
		t.Errorf("reopen of open position = %v, want ErrStateConflict", err)
	}
}

func TestFindPositionByOption(t *testing.T) {
	sim := broker.NewSimulator()
	sim.AutoFill = false
	m := NewManager(sim, nil, nil, DefaultLimits, testLogger())

	pos := openTestPosition(t, m, sim)
	if got := m.FindPositionByOption(pos.OptionCode); got == nil || got.ID != pos.ID {
		t.Errorf("FindPositionByOption = %+v, want %s", got, pos.ID)
	}
	if got := m.FindPositionByOption("SPXW250825P00001000"); got != nil {
		t.Errorf("FindPositionByOption(unknown) = %+v, want nil", got)
	}

	m.ClosePosition(pos.ID, 9.0)
	if got := m.FindPositionByOption(pos.OptionCode); got != nil {
		t.Errorf("FindPositionByOption after close = %+v, want nil", got)
	}
}

func TestResetDailyStats(t *testing.T) {
	sim := broker.NewSimulator()
	sim.AutoFill = false
	m := NewManager(sim, nil, nil, DefaultLimits, testLogger())

	pos := openTestPosition(t, m, sim)
	m.ClosePosition(pos.ID, 8.0)

	m.ResetDailyStats()
	sum := m.DailySummary("2025-08-26")
	if sum.Trades != 0 || sum.PnL != 0 {
		t.Errorf("summary after reset = %+v, want zeroes", sum)
	}
}
