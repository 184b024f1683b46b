package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"stonks/internal/broker"
	"stonks/internal/domain"
)

// Event topics published by the manager.
const (
	TopicOrderCreated    = "order.created"
	TopicOrderApproved   = "order.approved"
	TopicOrderRejected   = "order.rejected"
	TopicOrderSubmitted  = "order.submitted"
	TopicOrderFilled     = "order.filled"
	TopicOrderFailed     = "order.failed"
	TopicPositionOpened  = "position.opened"
	TopicPositionClosing = "position.closing"
	TopicPositionClosed  = "position.closed"
)

// Limits bounds the manager's working set.
type Limits struct {
	MaxOpenPositions int
}

// DefaultLimits matches a cautious single-account 0DTE setup.
var DefaultLimits = Limits{MaxOpenPositions: 3}

// Manager owns the order and position lifecycle. All state lives behind one
// mutex; broker I/O always happens with the lock released.
type Manager struct {
	mu    sync.Mutex
	state *state

	exec    broker.Broker // nil in advisory-only mode
	journal Journal       // nil disables persistence
	events  EventSink     // nil disables notifications
	limits  Limits
	log     *slog.Logger
}

// NewManager creates a lifecycle manager. exec, journal, and events may each
// be nil; the manager degrades rather than failing.
func NewManager(exec broker.Broker, journal Journal, events EventSink, limits Limits, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if limits.MaxOpenPositions <= 0 {
		limits.MaxOpenPositions = DefaultLimits.MaxOpenPositions
	}
	return &Manager{
		state:   newState(),
		exec:    exec,
		journal: journal,
		events:  events,
		limits:  limits,
		log:     log,
	}
}

// HasExecutor reports whether a broker is wired in.
func (m *Manager) HasExecutor() bool { return m.exec != nil }

// ---------------------------------------------------------------------------
// Suggestions
// ---------------------------------------------------------------------------

// SaveSuggestion stores a suggestion for later approval by id.
func (m *Manager) SaveSuggestion(s *domain.TradeSuggestion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.suggestions[s.ID] = s
}

// GetSuggestion returns a stored suggestion.
func (m *Manager) GetSuggestion(id string) (*domain.TradeSuggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.state.suggestions[id]
	if !ok {
		return nil, fmt.Errorf("suggestion %s: %w", id, ErrNotFound)
	}
	return s, nil
}

// ---------------------------------------------------------------------------
// Order lifecycle
// ---------------------------------------------------------------------------

// CreateOrderFromSuggestion creates a pending-approval BUY order, gated on
// position capacity. Working BUY orders count against capacity so a burst of
// signals cannot queue up more entries than the limit allows.
func (m *Manager) CreateOrderFromSuggestion(s *domain.TradeSuggestion) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inFlight := m.state.openPositionCount() + m.state.activeBuyOrderCount()
	if inFlight >= m.limits.MaxOpenPositions {
		return nil, fmt.Errorf("at %d open positions or working entries: %w", inFlight, ErrCapacity)
	}

	o := domain.NewOrderFromSuggestion(s)
	m.state.orders[o.ID] = o
	m.persistOrder(o)
	m.publish(TopicOrderCreated, cloneOrder(o))

	m.log.Info("order created",
		"order_id", o.ID,
		"option", o.OptionCode,
		"qty", o.Quantity,
		"limit", o.LimitPrice)
	return cloneOrder(o), nil
}

// ApproveOrder moves a pending order to approved.
func (m *Manager) ApproveOrder(id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.state.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if o.Status != domain.OrderStatusPendingApproval {
		return nil, fmt.Errorf("order %s is %s, not pending approval: %w", id, o.Status, ErrStateConflict)
	}

	o.Status = domain.OrderStatusApproved
	o.UpdatedAt = time.Now().UTC()
	m.persistOrder(o)
	m.publish(TopicOrderApproved, cloneOrder(o))

	m.log.Info("order approved", "order_id", id)
	return cloneOrder(o), nil
}

// RejectOrder cancels an order from any non-terminal state. This is the
// operator's escape hatch, so it deliberately accepts more states than the
// forward path does. A working broker-side order is cancelled best effort.
func (m *Manager) RejectOrder(ctx context.Context, id, reason string) (*domain.Order, error) {
	m.mu.Lock()
	o, ok := m.state.orders[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if o.Status.IsTerminal() {
		status := o.Status
		m.mu.Unlock()
		return nil, fmt.Errorf("order %s already %s: %w", id, status, ErrStateConflict)
	}

	brokerID := ""
	if o.Status == domain.OrderStatusSubmitted || o.Status == domain.OrderStatusPartialFill {
		brokerID = o.BrokerOrderID
	}
	o.Status = domain.OrderStatusCancelled
	o.StatusReason = reason
	o.UpdatedAt = time.Now().UTC()
	m.persistOrder(o)
	m.publish(TopicOrderRejected, cloneOrder(o))
	out := cloneOrder(o)
	m.mu.Unlock()

	if brokerID != "" && m.exec != nil {
		if err := m.exec.CancelOrder(ctx, brokerID); err != nil {
			m.log.Warn("broker cancel failed", "order_id", id, "broker_order_id", brokerID, "error", err)
		}
	}

	m.log.Info("order rejected", "order_id", id, "reason", reason)
	return out, nil
}

// SubmitOrder sends an approved order to the broker. The lock is released
// around the broker call; the order state is re-checked on return. A broker
// failure is terminal: the order goes to rejected and is never auto-retried.
func (m *Manager) SubmitOrder(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	o, ok := m.state.orders[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if o.Status != domain.OrderStatusApproved {
		status := o.Status
		m.mu.Unlock()
		return nil, fmt.Errorf("order %s is %s, not approved: %w", id, status, ErrStateConflict)
	}
	if m.exec == nil {
		o.Status = domain.OrderStatusRejected
		o.StatusReason = "no executor configured"
		o.UpdatedAt = time.Now().UTC()
		m.persistOrder(o)
		m.publish(TopicOrderFailed, cloneOrder(o))
		m.mu.Unlock()
		return nil, fmt.Errorf("order %s: %w", id, ErrNoExecutor)
	}
	snapshot := cloneOrder(o)
	m.mu.Unlock()

	brokerID, err := m.exec.SubmitOrder(ctx, snapshot)

	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok = m.state.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	// Someone rejected the order while the broker call was in flight. The
	// broker-side order, if any, is orphaned; the monitor will not track it.
	if o.Status != domain.OrderStatusApproved {
		return nil, fmt.Errorf("order %s became %s during submission: %w", id, o.Status, ErrStateConflict)
	}

	if err != nil {
		o.Status = domain.OrderStatusRejected
		o.StatusReason = err.Error()
		o.UpdatedAt = time.Now().UTC()
		m.persistOrder(o)
		m.publish(TopicOrderFailed, cloneOrder(o))
		m.log.Error("order submission failed", "order_id", id, "error", err)
		return nil, fmt.Errorf("submitting order %s: %w: %w", id, ErrBrokerFailure, err)
	}

	o.Status = domain.OrderStatusSubmitted
	o.BrokerOrderID = brokerID
	o.UpdatedAt = time.Now().UTC()
	m.persistOrder(o)
	m.publish(TopicOrderSubmitted, cloneOrder(o))

	m.log.Info("order submitted", "order_id", id, "broker_order_id", brokerID)
	return cloneOrder(o), nil
}

// RecordFill applies a fill to a submitted order. When a BUY order becomes
// fully filled its position is created in the same critical section, so
// there is never a window where a filled entry has no position.
func (m *Manager) RecordFill(id string, f domain.Fill) (*domain.Order, *domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.state.orders[id]
	if !ok {
		return nil, nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if o.Status != domain.OrderStatusSubmitted && o.Status != domain.OrderStatusPartialFill {
		return nil, nil, fmt.Errorf("order %s is %s, not working: %w", id, o.Status, ErrStateConflict)
	}

	o.AddFill(f)
	m.persistOrder(o)

	var pos *domain.Position
	if o.Status == domain.OrderStatusFilled {
		m.publish(TopicOrderFilled, cloneOrder(o))
		if o.Side == domain.OrderSideBuy {
			pos = domain.NewPositionFromOrder(o)
			m.state.positions[pos.ID] = pos
			m.persistPosition(pos)
			m.publish(TopicPositionOpened, clonePosition(pos))
			m.log.Info("position opened",
				"position_id", pos.ID,
				"option", pos.OptionCode,
				"qty", pos.Quantity,
				"entry", pos.EntryPrice)
		}
	}

	var posOut *domain.Position
	if pos != nil {
		posOut = clonePosition(pos)
	}
	return cloneOrder(o), posOut, nil
}

// MarkOrderTerminal records a broker-reported terminal status on a working
// order. Used by the monitor when the broker cancels, rejects, or expires an
// order out from under us.
func (m *Manager) MarkOrderTerminal(id string, status domain.OrderStatus, reason string) (*domain.Order, error) {
	if !status.IsTerminal() {
		return nil, fmt.Errorf("status %s is not terminal: %w", status, ErrStateConflict)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.state.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if o.Status.IsTerminal() {
		return nil, fmt.Errorf("order %s already %s: %w", id, o.Status, ErrStateConflict)
	}

	o.Status = status
	o.StatusReason = reason
	o.UpdatedAt = time.Now().UTC()
	m.persistOrder(o)
	m.publish(TopicOrderFailed, cloneOrder(o))

	m.log.Warn("order terminated by broker", "order_id", id, "status", status, "reason", reason)
	return cloneOrder(o), nil
}

// AttachAnalysis appends an advisory analysis to an order. Advisory output
// never gates the lifecycle, so an unknown order id is only logged.
func (m *Manager) AttachAnalysis(orderID string, a domain.Analysis) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.state.orders[orderID]
	if !ok {
		m.log.Warn("analysis for unknown order", "order_id", orderID, "type", a.Type)
		return
	}
	o.Analyses = append(o.Analyses, a)
	o.UpdatedAt = time.Now().UTC()
	m.persistOrder(o)
	if m.journal != nil {
		if err := m.journal.SaveAnalysis(&a); err != nil {
			m.log.Warn("journal save analysis failed", "error", err)
		}
	}
}

// ---------------------------------------------------------------------------
// Position lifecycle
// ---------------------------------------------------------------------------

// CreateExitOrder builds a SELL market order for an open position, links it,
// and marks the position closing. The exit order is born approved: it exists
// to flatten risk and must not wait in an approval queue.
func (m *Manager) CreateExitOrder(positionID, reason string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.state.positions[positionID]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", positionID, ErrNotFound)
	}
	if p.Status != domain.PositionStatusOpen {
		return nil, fmt.Errorf("position %s is %s, not open: %w", positionID, p.Status, ErrStateConflict)
	}

	now := time.Now().UTC()
	o := &domain.Order{
		ID:           domain.NewID(),
		OptionCode:   p.OptionCode,
		Underlying:   p.Underlying,
		Strike:       p.Strike,
		OptionType:   p.OptionType,
		TradeType:    p.TradeType,
		Side:         domain.OrderSideSell,
		Quantity:     p.Quantity,
		Type:         domain.OrderTypeMarket,
		Status:       domain.OrderStatusApproved,
		StatusReason: reason,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.state.orders[o.ID] = o
	p.Status = domain.PositionStatusClosing
	p.ExitOrderID = o.ID

	m.persistOrder(o)
	m.persistPosition(p)
	m.publish(TopicPositionClosing, clonePosition(p))

	m.log.Info("exit order created",
		"position_id", positionID,
		"order_id", o.ID,
		"reason", reason)
	return cloneOrder(o), nil
}

// ClosePosition finalizes a position at the given exit price and folds the
// realized result into the daily summary.
func (m *Manager) ClosePosition(positionID string, exitPrice float64) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.state.positions[positionID]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", positionID, ErrNotFound)
	}
	if p.Status == domain.PositionStatusClosed {
		return nil, fmt.Errorf("position %s already closed: %w", positionID, ErrStateConflict)
	}

	p.Status = domain.PositionStatusClosed
	p.ExitPrice = exitPrice
	p.ClosedAt = time.Now().UTC()

	pnl := p.RealizedPnL()
	m.state.summary.PnL += pnl
	m.state.summary.Trades++
	if pnl > 0 {
		m.state.summary.Wins++
	} else {
		m.state.summary.Losses++
	}

	m.persistPosition(p)
	m.publish(TopicPositionClosed, clonePosition(p))

	m.log.Info("position closed",
		"position_id", positionID,
		"exit", exitPrice,
		"pnl", pnl)
	return clonePosition(p), nil
}

// ReopenPosition re-arms a closing position whose exit order failed
// terminally, so the monitor can try flattening it again.
func (m *Manager) ReopenPosition(positionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.state.positions[positionID]
	if !ok {
		return fmt.Errorf("position %s: %w", positionID, ErrNotFound)
	}
	if p.Status != domain.PositionStatusClosing {
		return fmt.Errorf("position %s is %s, not closing: %w", positionID, p.Status, ErrStateConflict)
	}

	p.Status = domain.PositionStatusOpen
	p.ExitOrderID = ""
	m.persistPosition(p)

	m.log.Warn("position re-armed after failed exit", "position_id", positionID)
	return nil
}

// ---------------------------------------------------------------------------
// Views
// ---------------------------------------------------------------------------

// GetOrder returns a copy of an order.
func (m *Manager) GetOrder(id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return cloneOrder(o), nil
}

// GetPosition returns a copy of a position.
func (m *Manager) GetPosition(id string) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.positions[id]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", id, ErrNotFound)
	}
	return clonePosition(p), nil
}

// Orders returns copies of all orders, oldest first.
func (m *Manager) Orders() []*domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Order, 0, len(m.state.orders))
	for _, o := range m.state.orders {
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ActiveOrders returns copies of orders in non-terminal states, oldest first.
func (m *Manager) ActiveOrders() []*domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Order
	for _, o := range m.state.orders {
		if o.IsActive() {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// PendingApproval returns copies of orders awaiting operator approval,
// oldest first.
func (m *Manager) PendingApproval() []*domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Order
	for _, o := range m.state.orders {
		if o.Status == domain.OrderStatusPendingApproval {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Positions returns copies of all positions, oldest first.
func (m *Manager) Positions() []*domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Position, 0, len(m.state.positions))
	for _, p := range m.state.positions {
		out = append(out, clonePosition(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// OpenPositions returns copies of positions that still hold contracts,
// oldest first. Closing positions are included: their risk is still on.
func (m *Manager) OpenPositions() []*domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Position
	for _, p := range m.state.positions {
		if p.Status != domain.PositionStatusClosed {
			out = append(out, clonePosition(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// FindPositionByOption returns the non-closed position holding the given
// option code, or nil.
func (m *Manager) FindPositionByOption(optionCode string) *domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.state.positions {
		if p.OptionCode == optionCode && p.Status != domain.PositionStatusClosed {
			return clonePosition(p)
		}
	}
	return nil
}

// PositionByExitOrder returns the position whose exit order has the given
// id, or nil.
func (m *Manager) PositionByExitOrder(orderID string) *domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.state.positions {
		if p.ExitOrderID == orderID {
			return clonePosition(p)
		}
	}
	return nil
}

// CanOpenPosition reports whether capacity remains for a new entry.
func (m *Manager) CanOpenPosition() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.openPositionCount()+m.state.activeBuyOrderCount() < m.limits.MaxOpenPositions
}

// DailySummary returns the running summary for the current trading day.
func (m *Manager) DailySummary(date string) domain.DailySummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state.summary
	s.Date = date
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}
	return s
}

// ResetDailyStats zeroes the daily summary at the turn of a trading date.
func (m *Manager) ResetDailyStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.summary = domain.DailySummary{}
	m.log.Info("daily stats reset")
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

// persistOrder journals an order. Called with mu held.
func (m *Manager) persistOrder(o *domain.Order) {
	if m.journal == nil {
		return
	}
	if err := m.journal.SaveOrder(cloneOrder(o)); err != nil {
		m.log.Warn("journal save order failed", "order_id", o.ID, "error", err)
	}
}

// persistPosition journals a position. Called with mu held.
func (m *Manager) persistPosition(p *domain.Position) {
	if m.journal == nil {
		return
	}
	if err := m.journal.SavePosition(clonePosition(p)); err != nil {
		m.log.Warn("journal save position failed", "position_id", p.ID, "error", err)
	}
}

// publish sends a lifecycle event. Called with mu held; sinks must not block.
func (m *Manager) publish(topic string, data any) {
	if m.events != nil {
		m.events.Publish(topic, data)
	}
}
