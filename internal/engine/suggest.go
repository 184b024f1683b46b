package engine

import (
	"fmt"
	"time"

	"stonks/internal/domain"
	"stonks/internal/session"
)

// Contract selection: aim for a slightly in-the-money strike, fall back to
// at-the-money when the chain has no greeks near the target.
const (
	targetDelta    = 0.55
	deltaTolerance = 0.10
)

// bullishSignals map to long calls; everything else recognized maps to long
// puts.
var bullishSignals = map[domain.SignalType]bool{
	domain.SignalRSIOversoldLong: true,
	domain.SignalRubberbandLong:  true,
	domain.SignalVDipLong:        true,
	domain.SignalPivotSupport:    true,
	domain.SignalVWAPBounce:      true,
}

var bearishSignals = map[domain.SignalType]bool{
	domain.SignalRSIOverboughtShort: true,
	domain.SignalRubberbandShort:    true,
	domain.SignalShootingStar:       true,
}

// Suggester turns an inbound signal and the live options chain into a fully
// risk-checked trade suggestion.
type Suggester struct {
	risk  *RiskEngine
	clock *session.Clock
}

// NewSuggester creates a Suggester.
func NewSuggester(risk *RiskEngine, clock *session.Clock) *Suggester {
	return &Suggester{risk: risk, clock: clock}
}

// Suggest builds a trade suggestion for the signal at now. Unknown signal
// types and chains without a priceable contract are degenerate inputs.
func (s *Suggester) Suggest(sig *domain.Signal, chain *domain.OptionsChain, now time.Time) (*domain.TradeSuggestion, error) {
	var optType domain.OptionType
	var tradeType domain.TradeType
	switch {
	case bullishSignals[sig.Type]:
		optType = domain.OptionTypeCall
		tradeType = domain.TradeTypeLongCall
	case bearishSignals[sig.Type]:
		optType = domain.OptionTypePut
		tradeType = domain.TradeTypeLongPut
	default:
		return nil, fmt.Errorf("signal type %q: %w", sig.Type, ErrDegenerate)
	}

	contract := chain.FindByDelta(targetDelta, optType, deltaTolerance)
	if contract == nil {
		contract = chain.FindATM(optType)
	}
	if contract == nil {
		return nil, fmt.Errorf("no %s contract in chain for %s: %w", optType, chain.Underlying, ErrDegenerate)
	}

	entry, err := entryPrice(contract)
	if err != nil {
		return nil, err
	}

	target, stop := s.risk.Targets(entry, false, 0)
	rr := s.risk.RiskReward(entry, target, stop)

	// Worst case for a long option is the full premium, not the stop: a 0DTE
	// gap through the stop can take the whole debit.
	maxLoss := entry * 100
	maxProfit := (target - entry) * 100
	qty := s.risk.PositionSize(maxLoss)
	accountRisk := s.risk.AccountRiskPercent(maxLoss, qty)

	phase := s.clock.Phase(now)
	minsToClose := s.clock.MinutesToClose(now)
	confidence := s.risk.Confidence(sig, phase, rr)
	warnings := s.risk.Warnings(phase, minsToClose, rr, accountRisk)

	sug := &domain.TradeSuggestion{
		ID:         domain.NewID(),
		SignalType: sig.Type,
		TradeType:  tradeType,
		Contract:   *contract,

		Quantity:    qty,
		EntryPrice:  entry,
		TargetPrice: target,
		StopLoss:    stop,
		RiskReward:  rr,

		MaxLossPerContract:   maxLoss,
		MaxProfitPerContract: maxProfit,
		AccountRiskPercent:   accountRisk,

		Confidence:     confidence,
		SessionPhase:   phase,
		MinutesToClose: minsToClose,
		IsHighRisk:     highRisk(phase, minsToClose, confidence, warnings),
		Warnings:       warnings,
		Reasoning:      reasoning(sig, contract, entry, target, stop),

		CreatedAt: now.UTC(),
	}
	return sug, nil
}

// highRisk flags suggestions the operator should treat with extra caution.
func highRisk(phase domain.SessionPhase, minsToClose int, confidence domain.Confidence, warnings []string) bool {
	return phase == domain.PhaseDangerZone ||
		minsToClose < 30 ||
		confidence == domain.ConfidenceLow ||
		len(warnings) > 2
}

// entryPrice picks the best available price: midpoint, then ask, then last.
func entryPrice(c *domain.OptionContract) (float64, error) {
	if mid := c.Mid(); mid > 0 {
		return mid, nil
	}
	if c.Ask > 0 {
		return c.Ask, nil
	}
	if c.Last > 0 {
		return c.Last, nil
	}
	return 0, fmt.Errorf("contract %s has no usable price: %w", c.Code, ErrDegenerate)
}

func reasoning(sig *domain.Signal, c *domain.OptionContract, entry, target, stop float64) string {
	delta := 0.0
	if c.Greeks != nil {
		delta = c.Greeks.Delta
	}
	return fmt.Sprintf("%s signal on %s at %.2f. Selected %s (strike %.0f, delta %.2f). Enter near %.2f, target %.2f, stop %.2f.",
		sig.Type, sig.Ticker, sig.Price, c.Code, c.Strike, delta, entry, target, stop)
}
