package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stonks/internal/domain"
	"stonks/internal/session"
)

// MarketData supplies the live options chain, with the underlying price
// already resolved into the chain.
type MarketData interface {
	Chain(ctx context.Context, expiration time.Time) (*domain.OptionsChain, error)
}

// Advisor produces a non-binding second opinion on a fresh signal. A nil
// Advisor or a failed call never affects the pipeline.
type Advisor interface {
	AnalyzeSignal(ctx context.Context, sig *domain.Signal, sug *domain.TradeSuggestion) (*domain.Analysis, error)
}

const advisoryTimeout = 30 * time.Second

// ProcessResult is the outcome of one inbound signal.
type ProcessResult struct {
	Accepted   bool                    `json:"accepted"`
	Reason     string                  `json:"reason"`
	Suggestion *domain.TradeSuggestion `json:"suggestion,omitempty"`
	Order      *domain.Order           `json:"order,omitempty"`
}

// Processor runs the signal pipeline: session gate, chain fetch, suggestion,
// order creation, then a fire-and-forget advisory pass.
type Processor struct {
	clock   *session.Clock
	data    MarketData
	suggest *Suggester
	mgr     *Manager
	advisor Advisor // nil disables advisories
	log     *slog.Logger
}

// NewProcessor creates a Processor. advisor may be nil.
func NewProcessor(clock *session.Clock, data MarketData, suggest *Suggester, mgr *Manager, advisor Advisor, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		clock:   clock,
		data:    data,
		suggest: suggest,
		mgr:     mgr,
		advisor: advisor,
		log:     log,
	}
}

// ProcessSignal handles one inbound signal at now. A session gate rejection
// is a normal outcome, not an error; errors mean the pipeline itself failed.
func (p *Processor) ProcessSignal(ctx context.Context, sig *domain.Signal, now time.Time) (*ProcessResult, error) {
	p.log.Info("signal received", "type", sig.Type, "ticker", sig.Ticker, "price", sig.Price)

	if allowed, reason := p.clock.TradingAllowed(now); !allowed {
		p.log.Info("signal rejected by session gate", "type", sig.Type, "reason", reason)
		return &ProcessResult{Accepted: false, Reason: reason}, nil
	}

	chain, err := p.data.Chain(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("fetching options chain: %w", err)
	}

	sug, err := p.suggest.Suggest(sig, chain, now)
	if err != nil {
		return nil, fmt.Errorf("building suggestion: %w", err)
	}
	p.mgr.SaveSuggestion(sug)

	order, err := p.mgr.CreateOrderFromSuggestion(sug)
	if err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}

	if p.advisor != nil {
		go p.runAdvisory(sig, sug, order.ID)
	}

	_, reason := p.clock.TradingAllowed(now)
	return &ProcessResult{
		Accepted:   true,
		Reason:     reason,
		Suggestion: sug,
		Order:      order,
	}, nil
}

// runAdvisory asks the advisor for an opinion and attaches it to the order.
// Detached from the request context: the caller should not wait on it.
func (p *Processor) runAdvisory(sig *domain.Signal, sug *domain.TradeSuggestion, orderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), advisoryTimeout)
	defer cancel()

	analysis, err := p.advisor.AnalyzeSignal(ctx, sig, sug)
	if err != nil {
		p.log.Warn("advisory failed", "order_id", orderID, "error", err)
		return
	}
	if analysis == nil {
		return
	}
	analysis.OrderID = orderID
	p.mgr.AttachAnalysis(orderID, *analysis)
	p.log.Info("advisory attached",
		"order_id", orderID,
		"recommendation", analysis.Recommendation,
		"confidence", analysis.Confidence)
}
