package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stonks/internal/broker"
	"stonks/internal/domain"
	"stonks/internal/session"
)

const (
	defaultSweepInterval = 30 * time.Second
	errorBackoff         = 5 * time.Second

	// A closing position with a live exit order older than this draws a
	// warning every sweep.
	stuckClosingAfter = 5 * time.Minute
)

// TradeArchiver receives closed positions for long-term storage.
type TradeArchiver interface {
	ArchiveTrade(p *domain.Position) error
}

// Monitor is the background sweep that reconciles broker-side order state,
// closes filled exits, enforces the end-of-day flatten, and raises
// time-based warnings. It mutates state only through the Manager.
type Monitor struct {
	mgr      *Manager
	exec     broker.Broker
	clock    *session.Clock
	risk     *RiskEngine
	archiver TradeArchiver // nil disables archiving
	log      *slog.Logger

	interval time.Duration
	autoExit bool

	// sweep-local bookkeeping, touched only by the Run goroutine
	tradingDate    string
	warnedDeadline bool
	warnedLoss     bool
}

// NewMonitor creates a monitor. exec and archiver may be nil.
func NewMonitor(mgr *Manager, exec broker.Broker, clock *session.Clock, risk *RiskEngine, archiver TradeArchiver, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		mgr:      mgr,
		exec:     exec,
		clock:    clock,
		risk:     risk,
		archiver: archiver,
		log:      log,
		interval: defaultSweepInterval,
		autoExit: true,
	}
}

// SetInterval overrides the sweep interval. Intended for tests.
func (mo *Monitor) SetInterval(d time.Duration) { mo.interval = d }

// SetAutoExit toggles the danger-zone flatten. With auto-exit off the
// monitor still warns about the deadline but leaves positions to the
// operator.
func (mo *Monitor) SetAutoExit(enabled bool) { mo.autoExit = enabled }

// Run sweeps until ctx is cancelled. A failed sweep backs off briefly
// instead of waiting out the full interval, so transient broker errors
// resolve quickly.
func (mo *Monitor) Run(ctx context.Context) {
	mo.log.Info("monitor started", "interval", mo.interval)
	for {
		wait := mo.interval
		if err := mo.Sweep(ctx, time.Now()); err != nil {
			mo.log.Error("sweep failed", "error", err)
			wait = errorBackoff
		}
		select {
		case <-ctx.Done():
			mo.log.Info("monitor stopped")
			return
		case <-time.After(wait):
		}
	}
}

// Sweep runs one reconciliation pass at now.
func (mo *Monitor) Sweep(ctx context.Context, now time.Time) error {
	mo.rolloverIfNewDay(now)

	var firstErr error
	if err := mo.syncBrokerOrders(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	mo.rearmFailedExits()
	mo.flattenInDangerZone(ctx, now)
	mo.warnDeadline(now)
	mo.warnDailyLoss(now)
	mo.warnStuckClosing(now)
	return firstErr
}

// rolloverIfNewDay resets daily bookkeeping at the turn of the trading date.
func (mo *Monitor) rolloverIfNewDay(now time.Time) {
	date := mo.clock.TradingDate(now)
	if mo.tradingDate == "" {
		mo.tradingDate = date
		return
	}
	if date != mo.tradingDate {
		mo.tradingDate = date
		mo.warnedDeadline = false
		mo.warnedLoss = false
		mo.mgr.ResetDailyStats()
	}
}

// syncBrokerOrders polls every working order with a broker-side id and folds
// the broker's view into local state: new fills, terminal statuses, and
// position finalization for filled exits.
func (mo *Monitor) syncBrokerOrders(ctx context.Context) error {
	if mo.exec == nil {
		return nil
	}

	var firstErr error
	for _, o := range mo.mgr.ActiveOrders() {
		if o.BrokerOrderID == "" {
			continue
		}

		update, err := mo.exec.GetOrderStatus(ctx, o.BrokerOrderID)
		if err != nil {
			mo.log.Warn("order status poll failed", "order_id", o.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if update.FilledQuantity > o.FilledQuantity {
			delta := update.FilledQuantity - o.FilledQuantity
			// The broker reports a cumulative average, so back out the
			// price of just the new prints to keep the local VWAP honest.
			price := update.AvgFillPrice
			if o.FilledQuantity > 0 {
				price = (update.AvgFillPrice*float64(update.FilledQuantity) -
					o.AvgFillPrice*float64(o.FilledQuantity)) / float64(delta)
			}
			filled, pos, err := mo.mgr.RecordFill(o.ID, domain.Fill{
				Quantity:  delta,
				Price:     price,
				Timestamp: update.FilledAt,
			})
			if err != nil {
				mo.log.Warn("recording broker fill failed", "order_id", o.ID, "error", err)
				continue
			}
			if pos != nil {
				mo.log.Info("entry filled", "order_id", o.ID, "position_id", pos.ID)
			}
			if filled.Status == domain.OrderStatusFilled && filled.Side == domain.OrderSideSell {
				mo.finalizeExit(filled)
			}
			continue
		}

		if update.Status.IsTerminal() && update.Status != domain.OrderStatusFilled {
			if _, err := mo.mgr.MarkOrderTerminal(o.ID, update.Status, "broker reported "+string(update.Status)); err != nil {
				if !errors.Is(err, ErrStateConflict) {
					mo.log.Warn("marking order terminal failed", "order_id", o.ID, "error", err)
				}
			}
		}
	}
	return firstErr
}

// rearmFailedExits moves every closing position whose exit order died
// unfilled back to open, whether the order was rejected locally or killed
// broker-side. The next sweep retries the exit if the flatten still applies.
func (mo *Monitor) rearmFailedExits() {
	for _, p := range mo.mgr.Positions() {
		if p.Status != domain.PositionStatusClosing || p.ExitOrderID == "" {
			continue
		}
		exit, err := mo.mgr.GetOrder(p.ExitOrderID)
		if err != nil {
			continue
		}
		if !exit.Status.IsTerminal() || exit.Status == domain.OrderStatusFilled {
			continue
		}
		if err := mo.mgr.ReopenPosition(p.ID); err != nil {
			mo.log.Warn("re-arming position failed", "position_id", p.ID, "error", err)
			continue
		}
		mo.log.Warn("exit order died, position re-armed",
			"position_id", p.ID, "order_id", exit.ID, "order_status", exit.Status)
	}
}

// finalizeExit closes the position behind a filled SELL order and hands the
// result to the archiver.
func (mo *Monitor) finalizeExit(exit *domain.Order) {
	pos := mo.mgr.PositionByExitOrder(exit.ID)
	if pos == nil {
		mo.log.Warn("filled sell order has no position", "order_id", exit.ID)
		return
	}

	closed, err := mo.mgr.ClosePosition(pos.ID, exit.AvgFillPrice)
	if err != nil {
		mo.log.Warn("closing position failed", "position_id", pos.ID, "error", err)
		return
	}

	if mo.archiver != nil {
		if err := mo.archiver.ArchiveTrade(closed); err != nil {
			mo.log.Warn("archiving trade failed", "position_id", closed.ID, "error", err)
		}
	}
}

// flattenInDangerZone force-exits every open position once the danger zone
// begins. Exit orders are created approved and submitted in the same sweep.
func (mo *Monitor) flattenInDangerZone(ctx context.Context, now time.Time) {
	if !mo.autoExit || mo.clock.Phase(now) != domain.PhaseDangerZone {
		return
	}

	for _, p := range mo.mgr.OpenPositions() {
		if p.Status != domain.PositionStatusOpen {
			continue
		}
		exit, err := mo.mgr.CreateExitOrder(p.ID, "danger zone flatten")
		if err != nil {
			mo.log.Warn("creating flatten order failed", "position_id", p.ID, "error", err)
			continue
		}
		mo.log.Warn("danger zone: flattening position", "position_id", p.ID, "order_id", exit.ID)

		// Without an executor the order stays approved for the operator to
		// work by hand.
		if mo.exec == nil {
			mo.log.Warn("no executor: exit position manually", "position_id", p.ID, "option", p.OptionCode)
			continue
		}
		if _, err := mo.mgr.SubmitOrder(ctx, exit.ID); err != nil {
			// The submit marked the exit rejected; the next sweep re-arms
			// the position and this loop tries again.
			mo.log.Error("submitting flatten order failed", "position_id", p.ID, "error", err)
		}
	}
}

// warnDeadline logs once per day when the exit deadline is five minutes out
// and positions are still on.
func (mo *Monitor) warnDeadline(now time.Time) {
	if mo.warnedDeadline {
		return
	}
	mins := mo.clock.MinutesToExitDeadline(now)
	if mins > 5 || mo.clock.Phase(now) == domain.PhaseAfterHours {
		return
	}
	if open := mo.mgr.OpenPositions(); len(open) > 0 {
		mo.warnedDeadline = true
		mo.log.Warn("exit deadline approaching", "minutes_left", mins, "open_positions", len(open))
	}
}

// warnDailyLoss logs once per day when realized losses cross the daily
// limit. Enforcement stays with the operator.
func (mo *Monitor) warnDailyLoss(now time.Time) {
	if mo.warnedLoss || mo.risk == nil {
		return
	}
	sum := mo.mgr.DailySummary(mo.clock.TradingDate(now))
	if limit := mo.risk.DailyLossLimit(); limit > 0 && sum.PnL <= -limit {
		mo.warnedLoss = true
		mo.log.Warn("daily loss limit hit", "pnl", sum.PnL, "limit", limit)
	}
}

// warnStuckClosing flags positions that have been closing for too long with
// a live exit order.
func (mo *Monitor) warnStuckClosing(now time.Time) {
	for _, p := range mo.mgr.Positions() {
		if p.Status != domain.PositionStatusClosing || p.ExitOrderID == "" {
			continue
		}
		exit, err := mo.mgr.GetOrder(p.ExitOrderID)
		if err != nil || !exit.IsActive() {
			continue
		}
		if now.Sub(exit.CreatedAt) > stuckClosingAfter {
			mo.log.Warn("position stuck in closing",
				"position_id", p.ID,
				"order_id", exit.ID,
				"age", now.Sub(exit.CreatedAt).Round(time.Second))
		}
	}
}
