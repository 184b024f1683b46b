package marketdata

import (
	"context"
	"fmt"
	"time"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"cloud.google.com/go/civil"

	"stonks/internal/domain"
	"stonks/internal/util"
)

const (
	chainFetchAttempts = 3
	chainFetchBackoff  = 500 * time.Millisecond
	chainTotalLimit    = 1000
)

// Config selects the underlying and its price proxy. SPX itself has no
// tradeable feed on Alpaca, so the index price is derived from a proxy ETF
// times a fixed multiplier (SPY x10 by default).
type Config struct {
	Underlying      string  // index symbol, e.g. SPX
	OptionRoot      string  // option root, e.g. SPXW
	ProxySymbol     string  // price proxy, e.g. SPY
	ProxyMultiplier float64 // proxy-to-index scale, e.g. 10
	RequestsPerMin  int
}

// AlpacaProvider fetches quotes and options chains from the Alpaca market
// data API, rate limited and retried.
type AlpacaProvider struct {
	client  *alpacamd.Client
	cfg     Config
	limiter *util.RateLimiter
}

// NewAlpacaProvider creates a provider against the Alpaca data API.
func NewAlpacaProvider(apiKey, apiSecret, baseURL string, cfg Config) *AlpacaProvider {
	if cfg.ProxyMultiplier <= 0 {
		cfg.ProxyMultiplier = 1
	}
	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = 200
	}
	client := alpacamd.NewClient(alpacamd.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return &AlpacaProvider{
		client:  client,
		cfg:     cfg,
		limiter: util.NewRateLimiter(cfg.RequestsPerMin),
	}
}

// UnderlyingPrice returns the current index level, derived from the latest
// proxy trade.
func (p *AlpacaProvider) UnderlyingPrice(ctx context.Context) (float64, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	trade, err := p.client.GetLatestTrade(p.cfg.ProxySymbol, alpacamd.GetLatestTradeRequest{})
	if err != nil {
		return 0, fmt.Errorf("fetching latest %s trade: %w", p.cfg.ProxySymbol, err)
	}
	return trade.Price * p.cfg.ProxyMultiplier, nil
}

// Chain fetches the option chain expiring on the given day, with the
// underlying price resolved into the result.
func (p *AlpacaProvider) Chain(ctx context.Context, expiration time.Time) (*domain.OptionsChain, error) {
	price, err := p.UnderlyingPrice(ctx)
	if err != nil {
		return nil, err
	}

	var snapshots map[string]alpacamd.OptionSnapshot
	err = util.Retry(ctx, chainFetchAttempts, chainFetchBackoff, func() error {
		if werr := p.limiter.Wait(ctx); werr != nil {
			return werr
		}
		var ferr error
		snapshots, ferr = p.client.GetOptionChain(p.cfg.OptionRoot, alpacamd.GetOptionChainRequest{
			ExpirationDate: civil.DateOf(expiration),
			TotalLimit:     chainTotalLimit,
		})
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s chain: %w", p.cfg.OptionRoot, err)
	}

	chain := &domain.OptionsChain{
		Underlying:      p.cfg.Underlying,
		UnderlyingPrice: price,
		Expiration:      expiration,
		FetchedAt:       time.Now().UTC(),
	}
	for code, snap := range snapshots {
		c, perr := contractFromSnapshot(code, snap)
		if perr != nil {
			continue
		}
		c.Underlying = p.cfg.Underlying
		chain.Contracts = append(chain.Contracts, *c)
	}
	return chain, nil
}

// contractFromSnapshot maps one Alpaca option snapshot into the local model.
func contractFromSnapshot(code string, snap alpacamd.OptionSnapshot) (*domain.OptionContract, error) {
	_, expiration, optType, strike, err := ParseOCC(code)
	if err != nil {
		return nil, err
	}

	c := &domain.OptionContract{
		Code:       code,
		Strike:     strike,
		Type:       optType,
		Expiration: expiration,
	}
	if snap.LatestQuote != nil {
		c.Bid = snap.LatestQuote.BidPrice
		c.Ask = snap.LatestQuote.AskPrice
	}
	if snap.LatestTrade != nil {
		c.Last = snap.LatestTrade.Price
	}
	if snap.Greeks != nil {
		c.Greeks = &domain.Greeks{
			Delta:             snap.Greeks.Delta,
			Gamma:             snap.Greeks.Gamma,
			Theta:             snap.Greeks.Theta,
			Vega:              snap.Greeks.Vega,
			Rho:               snap.Greeks.Rho,
			ImpliedVolatility: snap.ImpliedVolatility,
		}
	}
	return c, nil
}
