package advisor

import (
	"fmt"
	"strings"

	"stonks/internal/domain"
	"stonks/internal/session"
)

const adviceFormat = `Reply with JSON only, no prose outside the object:
{"recommendation": "<take|skip|hold|exit>", "confidence": <1-10>, "reasoning": "<two sentences max>"}`

const signalSystemPrompt = `You are a risk-focused 0DTE SPX options reviewer. You see a chart signal
and the trade suggested from it. Judge whether the setup is worth taking
today. Weigh session timing, risk/reward, and how extended the underlying
is. Recommend "take" or "skip".

` + adviceFormat

const approvalSystemPrompt = `You are a risk-focused 0DTE SPX options reviewer. An order is waiting for
the operator's approval. Judge whether approving it now still makes sense.
Recommend "take" or "skip".

` + adviceFormat

const exitSystemPrompt = `You are a risk-focused 0DTE SPX options reviewer. A position is open and
time decay is working against it. Judge whether to keep holding toward the
target or exit now. Recommend "hold" or "exit".

` + adviceFormat

func signalUserPrompt(sig *domain.Signal, sug *domain.TradeSuggestion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Signal: %s on %s at %.2f\n", sig.Type, sig.Ticker, sig.Price)
	if sig.RSI != nil {
		fmt.Fprintf(&b, "RSI: %.1f\n", *sig.RSI)
	}
	if sig.RSIHTF != nil {
		fmt.Fprintf(&b, "RSI (higher timeframe): %.1f\n", *sig.RSIHTF)
	}
	if sig.VWAPDistance != nil {
		fmt.Fprintf(&b, "Distance from VWAP: %.2f%%\n", *sig.VWAPDistance)
	}
	if sig.PivotLevel != "" {
		fmt.Fprintf(&b, "Pivot level: %s\n", sig.PivotLevel)
	}

	fmt.Fprintf(&b, "\nSuggested trade: %s %d x %s\n", sug.TradeType, sug.Quantity, sug.Contract.Code)
	fmt.Fprintf(&b, "Entry %.2f, target %.2f, stop %.2f (R/R %.2f)\n",
		sug.EntryPrice, sug.TargetPrice, sug.StopLoss, sug.RiskReward)
	fmt.Fprintf(&b, "Session: %s, %d minutes to close\n",
		session.Describe(sug.SessionPhase), sug.MinutesToClose)
	if len(sug.Warnings) > 0 {
		fmt.Fprintf(&b, "Warnings: %s\n", strings.Join(sug.Warnings, "; "))
	}
	return b.String()
}

func approvalUserPrompt(o *domain.Order, phase domain.SessionPhase, minutesToClose int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pending order: %s %d x %s (%s)\n", o.Side, o.Quantity, o.OptionCode, o.TradeType)
	fmt.Fprintf(&b, "Limit %.2f, target %.2f, stop %.2f\n", o.LimitPrice, o.TargetPrice, o.StopLossPrice)
	fmt.Fprintf(&b, "Created at %s UTC\n", o.CreatedAt.Format("15:04:05"))
	fmt.Fprintf(&b, "Session now: %s, %d minutes to close\n", session.Describe(phase), minutesToClose)
	return b.String()
}

func exitUserPrompt(p *domain.Position, currentPrice float64, minutesToDeadline int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Open position: %d x %s (%s)\n", p.Quantity, p.OptionCode, p.TradeType)
	fmt.Fprintf(&b, "Entry %.2f, current %.2f, target %.2f, stop %.2f\n",
		p.EntryPrice, currentPrice, p.TargetPrice, p.StopLossPrice)
	if p.EntryPrice > 0 {
		fmt.Fprintf(&b, "Unrealized: %+.1f%%\n", (currentPrice-p.EntryPrice)/p.EntryPrice*100)
	}
	fmt.Fprintf(&b, "%d minutes until the exit deadline\n", minutesToDeadline)
	return b.String()
}
