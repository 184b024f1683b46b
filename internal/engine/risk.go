package engine

import (
	"fmt"
	"math"

	"stonks/internal/domain"
)

// Fixed exit policy for long options: target +45%, stop -27%.
const (
	longTargetMult = 1.45
	longStopMult   = 0.73
)

// Credit spreads: take profit at 55% of the credit, stop at 125%.
const (
	creditTargetMult = 0.55
	creditStopMult   = 1.25
)

// RiskEngine computes position sizing, exit targets, confidence grading, and
// risk warnings from explicit inputs. It never returns errors: degenerate
// inputs degrade to safe defaults.
type RiskEngine struct {
	accountSize     float64
	maxRiskPerTrade float64 // fraction of account, e.g. 0.02
	maxDailyRisk    float64 // fraction of account, e.g. 0.06
}

// NewRiskEngine creates a RiskEngine with the given account size and risk
// fractions.
func NewRiskEngine(accountSize, maxRiskPerTrade, maxDailyRisk float64) *RiskEngine {
	return &RiskEngine{
		accountSize:     accountSize,
		maxRiskPerTrade: maxRiskPerTrade,
		maxDailyRisk:    maxDailyRisk,
	}
}

// AccountSize returns the configured account size.
func (r *RiskEngine) AccountSize() float64 { return r.accountSize }

// MaxRiskPerTrade returns the configured per-trade risk fraction.
func (r *RiskEngine) MaxRiskPerTrade() float64 { return r.maxRiskPerTrade }

// DailyLossLimit returns the dollar loss at which trading should stop for
// the day.
func (r *RiskEngine) DailyLossLimit() float64 {
	return r.accountSize * r.maxDailyRisk
}

// PositionSize returns the contract count for a trade with the given maximum
// loss per contract. Always at least one contract; a non-positive max loss
// is a degenerate input, not an error.
func (r *RiskEngine) PositionSize(maxLossPerContract float64) int {
	if maxLossPerContract <= 0 {
		return 1
	}
	qty := int(math.Floor(r.accountSize * r.maxRiskPerTrade / maxLossPerContract))
	if qty < 1 {
		return 1
	}
	return qty
}

// AccountRiskPercent returns the fraction of the account at risk for the
// given max loss and quantity. Zero when the account size is non-positive.
func (r *RiskEngine) AccountRiskPercent(maxLoss float64, quantity int) float64 {
	if r.accountSize <= 0 {
		return 0
	}
	return maxLoss * float64(quantity) / r.accountSize
}

// RiskReward returns |target-entry| / |entry-stop|, or zero when entry and
// stop coincide.
func (r *RiskEngine) RiskReward(entry, target, stop float64) float64 {
	risk := math.Abs(entry - stop)
	if risk <= 0 {
		return 0
	}
	return math.Abs(target-entry) / risk
}

// Targets returns the (target, stop) prices for an entry. For a long option
// the fixed 45%/-27% policy applies; for a credit spread the targets key off
// the credit received.
func (r *RiskEngine) Targets(entry float64, isCreditSpread bool, credit float64) (float64, float64) {
	if isCreditSpread {
		return entry - credit*creditTargetMult, entry + credit*creditStopMult
	}
	return entry * longTargetMult, entry * longStopMult
}

// oversoldSignals are the bounce-type setups whose RSI reading strengthens
// the score when deeply oversold.
var oversoldSignals = map[domain.SignalType]bool{
	domain.SignalRSIOversoldLong: true,
	domain.SignalVDipLong:        true,
}

// Confidence grades a signal with an additive score over session phase,
// risk/reward, RSI extremity, pivot presence, and VWAP proximity.
// Score >= 7 is high, >= 4 medium, else low.
func (r *RiskEngine) Confidence(sig *domain.Signal, phase domain.SessionPhase, riskReward float64) domain.Confidence {
	score := 0

	switch phase {
	case domain.PhasePrimeTime:
		score += 3
	case domain.PhaseMidSession:
		score += 2
	}

	switch {
	case riskReward >= 2.0:
		score += 3
	case riskReward >= 1.5:
		score += 2
	case riskReward >= 1.2:
		score += 1
	}

	if sig.RSI != nil {
		rsi := *sig.RSI
		if oversoldSignals[sig.Type] {
			switch {
			case rsi <= 20:
				score += 2
			case rsi <= 30:
				score += 1
			}
		}
		if sig.Type == domain.SignalRSIOverboughtShort {
			switch {
			case rsi >= 80:
				score += 2
			case rsi >= 70:
				score += 1
			}
		}
	}

	if sig.PivotLevel != "" {
		score++
	}
	if sig.VWAPDistance != nil && math.Abs(*sig.VWAPDistance) <= 0.5 {
		score++
	}

	switch {
	case score >= 7:
		return domain.ConfidenceHigh
	case score >= 4:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// Warnings returns the ordered risk warnings for a prospective trade:
// time-to-close, session, risk/reward, then account risk.
func (r *RiskEngine) Warnings(phase domain.SessionPhase, minutesToClose int, riskReward, accountRiskPct float64) []string {
	var warnings []string

	if minutesToClose <= 30 {
		warnings = append(warnings, fmt.Sprintf("Only %d minutes to close - extreme gamma risk", minutesToClose))
	} else if minutesToClose <= 60 {
		warnings = append(warnings, fmt.Sprintf("%d minutes to close - elevated gamma risk", minutesToClose))
	}

	if phase == domain.PhaseLunchDoldrums {
		warnings = append(warnings, "Lunch doldrums - low volume, choppy price action")
	}

	if riskReward > 0 && riskReward < 1.5 {
		warnings = append(warnings, fmt.Sprintf("Risk/reward %.2f below 1.5", riskReward))
	}

	if accountRiskPct > r.maxRiskPerTrade {
		warnings = append(warnings, fmt.Sprintf("Position risks %.1f%% of account, above the %.1f%% per-trade limit",
			accountRiskPct*100, r.maxRiskPerTrade*100))
	}

	return warnings
}
