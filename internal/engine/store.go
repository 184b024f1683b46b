package engine

import (
	"errors"

	"stonks/internal/domain"
)

// Sentinel errors for lifecycle operations. Callers match with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrStateConflict = errors.New("state conflict")
	ErrCapacity      = errors.New("capacity exceeded")
	ErrNoExecutor    = errors.New("no executor configured")
	ErrBrokerFailure = errors.New("broker failure")
	ErrDegenerate    = errors.New("degenerate input")
)

// Journal persists lifecycle records as they change. Implementations must
// tolerate repeated saves of the same id (upsert semantics). Persistence is
// best effort: the manager logs journal errors and keeps going.
type Journal interface {
	SaveOrder(o *domain.Order) error
	SavePosition(p *domain.Position) error
	SaveAnalysis(a *domain.Analysis) error
}

// EventSink receives lifecycle notifications. Publishing must never block.
type EventSink interface {
	Publish(topic string, data any)
}

// state is the in-memory working set of the manager, guarded by Manager.mu.
// Maps hold the canonical copies; views hand out clones.
type state struct {
	orders      map[string]*domain.Order
	positions   map[string]*domain.Position
	suggestions map[string]*domain.TradeSuggestion

	summary domain.DailySummary
}

func newState() *state {
	return &state{
		orders:      make(map[string]*domain.Order),
		positions:   make(map[string]*domain.Position),
		suggestions: make(map[string]*domain.TradeSuggestion),
	}
}

// openPositionCount counts positions that still hold contracts.
func (s *state) openPositionCount() int {
	n := 0
	for _, p := range s.positions {
		if p.Status != domain.PositionStatusClosed {
			n++
		}
	}
	return n
}

// activeBuyOrderCount counts working BUY orders that could still become
// positions.
func (s *state) activeBuyOrderCount() int {
	n := 0
	for _, o := range s.orders {
		if o.Side == domain.OrderSideBuy && o.IsActive() {
			n++
		}
	}
	return n
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	if o.Fills != nil {
		c.Fills = append([]domain.Fill(nil), o.Fills...)
	}
	if o.Analyses != nil {
		c.Analyses = append([]domain.Analysis(nil), o.Analyses...)
	}
	return &c
}

func clonePosition(p *domain.Position) *domain.Position {
	c := *p
	return &c
}
