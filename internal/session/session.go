// Package session maps wall-clock time to the trading-session phase of a
// 0DTE SPX trading day and provides the deadline countdowns that drive the
// position monitor.
package session

import (
	"fmt"
	"time"

	"stonks/internal/domain"
)

// Phase boundaries in minutes since midnight, Eastern time. Intervals are
// half-open [start, end): an instant equal to a boundary belongs to the
// phase that starts there.
const (
	marketOpenMin   = 9*60 + 30  // 09:30
	primeEndMin     = 11 * 60    // 11:00
	lunchEndMin     = 13*60 + 30 // 13:30
	dangerStartMin  = 15*60 + 30 // 15:30
	marketCloseMin  = 16 * 60    // 16:00
	exitDeadlineMin = 15*60 + 45 // 15:45
)

// Clock resolves session phases against a fixed market timezone.
type Clock struct {
	loc *time.Location
}

// NewClock creates a Clock in the US equity market timezone.
func NewClock() (*Clock, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("loading market timezone: %w", err)
	}
	return &Clock{loc: loc}, nil
}

// NewClockIn creates a Clock in an explicit timezone. Intended for tests.
func NewClockIn(loc *time.Location) *Clock {
	return &Clock{loc: loc}
}

// minuteOfDay returns now's minutes since midnight in the market timezone.
func (c *Clock) minuteOfDay(now time.Time) int {
	t := now.In(c.loc)
	return t.Hour()*60 + t.Minute()
}

// Phase returns the session phase containing now.
func (c *Clock) Phase(now time.Time) domain.SessionPhase {
	m := c.minuteOfDay(now)
	switch {
	case m < marketOpenMin:
		return domain.PhasePreMarket
	case m < primeEndMin:
		return domain.PhasePrimeTime
	case m < lunchEndMin:
		return domain.PhaseLunchDoldrums
	case m < dangerStartMin:
		return domain.PhaseMidSession
	case m < marketCloseMin:
		return domain.PhaseDangerZone
	default:
		return domain.PhaseAfterHours
	}
}

// TradingAllowed reports whether new trades may be opened at now, with a
// human-readable reason. The lunch phase is allowed but carries an advisory
// reason rather than a rejection.
func (c *Clock) TradingAllowed(now time.Time) (bool, string) {
	phase := c.Phase(now)
	switch phase {
	case domain.PhasePreMarket:
		return false, "Market not open yet"
	case domain.PhaseAfterHours:
		return false, "Market closed"
	case domain.PhaseDangerZone:
		return false, "DANGER ZONE - exit positions only, no new trades"
	case domain.PhaseLunchDoldrums:
		return true, "Lunch doldrums - low volatility, consider waiting"
	default:
		return true, fmt.Sprintf("Trading allowed (%s)", phase)
	}
}

// MinutesToClose returns whole minutes until the 16:00 close, clamped to
// zero once the close has passed.
func (c *Clock) MinutesToClose(now time.Time) int {
	return c.minutesUntil(now, marketCloseMin)
}

// MinutesToExitDeadline returns whole minutes until the 15:45 exit deadline,
// clamped to zero once the deadline has passed.
func (c *Clock) MinutesToExitDeadline(now time.Time) int {
	return c.minutesUntil(now, exitDeadlineMin)
}

func (c *Clock) minutesUntil(now time.Time, boundaryMin int) int {
	t := now.In(c.loc)
	boundary := time.Date(t.Year(), t.Month(), t.Day(), boundaryMin/60, boundaryMin%60, 0, 0, c.loc)
	mins := int(boundary.Sub(t).Minutes())
	if mins < 0 {
		return 0
	}
	return mins
}

// IsExpirationDay reports whether now falls on an SPX 0DTE expiration
// weekday (Monday, Wednesday, Friday).
func (c *Clock) IsExpirationDay(now time.Time) bool {
	switch now.In(c.loc).Weekday() {
	case time.Monday, time.Wednesday, time.Friday:
		return true
	}
	return false
}

// TradingDate returns the market-local calendar date for now.
func (c *Clock) TradingDate(now time.Time) string {
	return now.In(c.loc).Format("2006-01-02")
}

// Info is a point-in-time snapshot of the session state, as served by the
// API and CLI.
type Info struct {
	CurrentTimeET         string              `json:"current_time_et"`
	Phase                 domain.SessionPhase `json:"session_phase"`
	PhaseDescription      string              `json:"phase_description"`
	TradingAllowed        bool                `json:"trading_allowed"`
	Reason                string              `json:"reason"`
	MinutesToClose        int                 `json:"minutes_to_close"`
	MinutesToExitDeadline int                 `json:"minutes_to_exit_deadline"`
	IsExpirationDay       bool                `json:"is_expiration_day"`
	Weekday               string              `json:"weekday"`
}

// Snapshot assembles the full session Info for now.
func (c *Clock) Snapshot(now time.Time) Info {
	phase := c.Phase(now)
	allowed, reason := c.TradingAllowed(now)
	return Info{
		CurrentTimeET:         now.In(c.loc).Format("15:04:05"),
		Phase:                 phase,
		PhaseDescription:      Describe(phase),
		TradingAllowed:        allowed,
		Reason:                reason,
		MinutesToClose:        c.MinutesToClose(now),
		MinutesToExitDeadline: c.MinutesToExitDeadline(now),
		IsExpirationDay:       c.IsExpirationDay(now),
		Weekday:               now.In(c.loc).Weekday().String(),
	}
}

// Describe returns a one-line description of a session phase.
func Describe(p domain.SessionPhase) string {
	switch p {
	case domain.PhasePreMarket:
		return "Pre-market, no trading"
	case domain.PhasePrimeTime:
		return "Prime time - best setups, high volatility"
	case domain.PhaseLunchDoldrums:
		return "Lunch doldrums - low volume, choppy"
	case domain.PhaseMidSession:
		return "Mid-session - post-lunch, moderate volume"
	case domain.PhaseDangerZone:
		return "Danger zone - extreme gamma, exit only"
	case domain.PhaseAfterHours:
		return "After hours, market closed"
	default:
		return "Unknown"
	}
}
