package domain

import (
	"math"
	"time"
)

// Greeks holds the option price sensitivities reported by the data provider.
type Greeks struct {
	Delta             float64 `json:"delta"`
	Gamma             float64 `json:"gamma"`
	Theta             float64 `json:"theta"`
	Vega              float64 `json:"vega"`
	Rho               float64 `json:"rho,omitempty"`
	ImpliedVolatility float64 `json:"implied_volatility"`
}

// OptionContract is a single listed option with its latest quote and greeks.
// Greeks is nil when the provider did not report them.
type OptionContract struct {
	Code       string     `json:"code"`
	Underlying string     `json:"underlying"`
	Strike     float64    `json:"strike"`
	Type       OptionType `json:"type"`
	Expiration time.Time  `json:"expiration"`

	Greeks *Greeks `json:"greeks,omitempty"`

	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Last         float64 `json:"last"`
	Volume       int64   `json:"volume"`
	OpenInterest int64   `json:"open_interest"`
}

// Mid returns the bid/ask midpoint, or zero when either side is missing.
func (c *OptionContract) Mid() float64 {
	if c.Bid <= 0 || c.Ask <= 0 {
		return 0
	}
	return (c.Bid + c.Ask) / 2
}

// OptionsChain is one expiration's worth of contracts for an underlying.
type OptionsChain struct {
	Underlying      string           `json:"underlying"`
	UnderlyingPrice float64          `json:"underlying_price"`
	Expiration      time.Time        `json:"expiration"`
	Contracts       []OptionContract `json:"contracts"`
	FetchedAt       time.Time        `json:"fetched_at"`
}

// Calls returns the call contracts in the chain.
func (ch *OptionsChain) Calls() []OptionContract {
	return ch.filter(OptionTypeCall)
}

// Puts returns the put contracts in the chain.
func (ch *OptionsChain) Puts() []OptionContract {
	return ch.filter(OptionTypePut)
}

func (ch *OptionsChain) filter(t OptionType) []OptionContract {
	var out []OptionContract
	for i := range ch.Contracts {
		if ch.Contracts[i].Type == t {
			out = append(out, ch.Contracts[i])
		}
	}
	return out
}

// FindByDelta returns the contract of the given type whose absolute delta is
// closest to target, provided the best match lies within tolerance. Contracts
// without greeks are skipped. Returns nil when nothing qualifies.
func (ch *OptionsChain) FindByDelta(target float64, t OptionType, tolerance float64) *OptionContract {
	var best *OptionContract
	bestDiff := math.MaxFloat64

	for i := range ch.Contracts {
		c := &ch.Contracts[i]
		if c.Type != t || c.Greeks == nil {
			continue
		}
		diff := math.Abs(math.Abs(c.Greeks.Delta) - target)
		if diff < bestDiff {
			bestDiff = diff
			best = c
		}
	}

	if best == nil || bestDiff > tolerance {
		return nil
	}
	return best
}

// FindATM returns the contract of the given type whose strike is nearest the
// underlying price, or nil for an empty chain.
func (ch *OptionsChain) FindATM(t OptionType) *OptionContract {
	var best *OptionContract
	bestDiff := math.MaxFloat64

	for i := range ch.Contracts {
		c := &ch.Contracts[i]
		if c.Type != t {
			continue
		}
		diff := math.Abs(c.Strike - ch.UnderlyingPrice)
		if diff < bestDiff {
			bestDiff = diff
			best = c
		}
	}
	return best
}
