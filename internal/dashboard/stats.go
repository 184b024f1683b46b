// Package dashboard aggregates archived trades into per-day performance
// summaries for the history views.
package dashboard

import (
	"sort"
	"time"

	"stonks/internal/store"
)

// DayStats is one trading day's realized performance.
type DayStats struct {
	Date       string  `json:"date"`
	Trades     int     `json:"trades"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	WinRate    float64 `json:"win_rate"`
	PnL        float64 `json:"pnl"`
	BestTrade  float64 `json:"best_trade"`
	WorstTrade float64 `json:"worst_trade"`
}

// AggregateByDay folds archived trades into per-day stats, oldest day first.
func AggregateByDay(records []store.ClosedTradeRecord) []DayStats {
	byDay := make(map[string]*DayStats)
	for _, r := range records {
		date := time.UnixMilli(r.ClosedAt).UTC().Format("2006-01-02")
		day, ok := byDay[date]
		if !ok {
			day = &DayStats{Date: date}
			byDay[date] = day
		}

		day.Trades++
		day.PnL += r.PnL
		if r.PnL > 0 {
			day.Wins++
		} else {
			day.Losses++
		}
		if day.Trades == 1 || r.PnL > day.BestTrade {
			day.BestTrade = r.PnL
		}
		if day.Trades == 1 || r.PnL < day.WorstTrade {
			day.WorstTrade = r.PnL
		}
	}

	out := make([]DayStats, 0, len(byDay))
	for _, day := range byDay {
		if day.Trades > 0 {
			day.WinRate = float64(day.Wins) / float64(day.Trades)
		}
		out = append(out, *day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Totals collapses day stats into one overall summary with the date range
// spanned.
func Totals(days []DayStats) DayStats {
	var total DayStats
	for i, d := range days {
		if i == 0 {
			total.Date = d.Date
			total.BestTrade = d.BestTrade
			total.WorstTrade = d.WorstTrade
		} else {
			total.Date = days[0].Date + ".." + d.Date
		}
		total.Trades += d.Trades
		total.Wins += d.Wins
		total.Losses += d.Losses
		total.PnL += d.PnL
		if d.BestTrade > total.BestTrade {
			total.BestTrade = d.BestTrade
		}
		if d.WorstTrade < total.WorstTrade {
			total.WorstTrade = d.WorstTrade
		}
	}
	if total.Trades > 0 {
		total.WinRate = float64(total.Wins) / float64(total.Trades)
	}
	return total
}
