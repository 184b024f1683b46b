package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/joho/godotenv"

	"stonks/internal/domain"
	"stonks/internal/news"
	"stonks/pkg/stonks"
)

const version = "0.1.0"

func main() {
	godotenv.Load()

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: stonks-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version              Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  session              Show the current trading session\n")
		fmt.Fprintf(os.Stderr, "  orders [-active]     List orders\n")
		fmt.Fprintf(os.Stderr, "  approve <id>         Approve a pending order\n")
		fmt.Fprintf(os.Stderr, "  reject <id>          Reject an order\n")
		fmt.Fprintf(os.Stderr, "  positions [-open]    List positions\n")
		fmt.Fprintf(os.Stderr, "  close <id>           Close an open position\n")
		fmt.Fprintf(os.Stderr, "  summary              Show today's results\n")
		fmt.Fprintf(os.Stderr, "  signal               Send a test signal to the webhook\n")
		fmt.Fprintf(os.Stderr, "  news                 Show recent market headlines\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment: STONKS_URL (default http://localhost:8090), WEBHOOK_PASSPHRASE\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("STONKS_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}
	client := stonks.NewClient(baseURL, os.Getenv("WEBHOOK_PASSPHRASE"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("stonks-cli %s\n", version)

	case "session":
		err = showSession(ctx, client)

	case "orders":
		fs := flag.NewFlagSet("orders", flag.ExitOnError)
		active := fs.Bool("active", false, "only working orders")
		fs.Parse(os.Args[2:])
		err = listOrders(ctx, client, *active)

	case "approve":
		fs := flag.NewFlagSet("approve", flag.ExitOnError)
		noSubmit := fs.Bool("no-submit", false, "approve without submitting to the broker")
		fs.Parse(os.Args[2:])
		if fs.NArg() < 1 {
			err = fmt.Errorf("usage: stonks-cli approve [-no-submit] <order-id>")
			break
		}
		err = approveOrder(ctx, client, fs.Arg(0), !*noSubmit)

	case "reject":
		fs := flag.NewFlagSet("reject", flag.ExitOnError)
		reason := fs.String("reason", "rejected by operator", "rejection reason")
		fs.Parse(os.Args[2:])
		if fs.NArg() < 1 {
			err = fmt.Errorf("usage: stonks-cli reject [-reason ...] <order-id>")
			break
		}
		err = rejectOrder(ctx, client, fs.Arg(0), *reason)

	case "positions":
		fs := flag.NewFlagSet("positions", flag.ExitOnError)
		open := fs.Bool("open", false, "only open positions")
		fs.Parse(os.Args[2:])
		err = listPositions(ctx, client, *open)

	case "close":
		if len(os.Args) < 3 {
			err = fmt.Errorf("usage: stonks-cli close <position-id>")
			break
		}
		err = closePosition(ctx, client, os.Args[2])

	case "summary":
		err = showSummary(ctx, client)

	case "signal":
		fs := flag.NewFlagSet("signal", flag.ExitOnError)
		sigType := fs.String("type", "rsi_oversold_long", "signal type")
		ticker := fs.String("ticker", "SPX", "underlying ticker")
		price := fs.Float64("price", 0, "underlying price")
		rsi := fs.Float64("rsi", 0, "RSI value")
		fs.Parse(os.Args[2:])
		err = sendSignal(ctx, client, *sigType, *ticker, *price, *rsi)

	case "news":
		fs := flag.NewFlagSet("news", flag.ExitOnError)
		symbol := fs.String("symbol", "SPY", "symbol for Alpaca news")
		limit := fs.Int("limit", 15, "max headlines")
		fs.Parse(os.Args[2:])
		err = showNews(*symbol, *limit)

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func showSession(ctx context.Context, c *stonks.Client) error {
	info, err := c.Session(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s ET  %s (%s)\n", info.CurrentTimeET, info.Phase, info.Weekday)
	fmt.Printf("  %s\n", info.PhaseDescription)
	if info.TradingAllowed {
		fmt.Println("  trading: allowed")
	} else {
		fmt.Printf("  trading: blocked (%s)\n", info.Reason)
	}
	fmt.Printf("  minutes to close: %d, to exit deadline: %d\n",
		info.MinutesToClose, info.MinutesToExitDeadline)
	return nil
}

func listOrders(ctx context.Context, c *stonks.Client, activeOnly bool) error {
	orders, err := c.Orders(ctx, activeOnly)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Println("no orders")
		return nil
	}
	for _, o := range orders {
		fmt.Printf("%s  %-18s %-4s x%d  %-16s", o.ID, o.OptionCode, o.Side, o.Quantity, o.Status)
		if o.FilledQuantity > 0 {
			fmt.Printf("  filled %d @ %.2f", o.FilledQuantity, o.AvgFillPrice)
		}
		if o.StatusReason != "" {
			fmt.Printf("  (%s)", o.StatusReason)
		}
		fmt.Println()
	}
	return nil
}

func approveOrder(ctx context.Context, c *stonks.Client, id string, autoSubmit bool) error {
	res, err := c.ApproveOrder(ctx, id, autoSubmit)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", res.Order.ID, res.Status)
	if res.Note != "" {
		fmt.Printf("  %s\n", res.Note)
	}
	return nil
}

func rejectOrder(ctx context.Context, c *stonks.Client, id, reason string) error {
	o, err := c.RejectOrder(ctx, id, reason)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s (%s)\n", o.ID, o.Status, o.StatusReason)
	return nil
}

func listPositions(ctx context.Context, c *stonks.Client, openOnly bool) error {
	positions, err := c.Positions(ctx, openOnly)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		fmt.Println("no positions")
		return nil
	}
	for _, p := range positions {
		fmt.Printf("%s  %-18s x%d  entry %.2f  %-8s", p.ID, p.OptionCode, p.Quantity, p.EntryPrice, p.Status)
		if p.Status == domain.PositionStatusClosed {
			pnl := (p.ExitPrice - p.EntryPrice) * float64(p.Quantity) * 100
			fmt.Printf("  exit %.2f  pnl %+.2f", p.ExitPrice, pnl)
		}
		fmt.Println()
	}
	return nil
}

func closePosition(ctx context.Context, c *stonks.Client, id string) error {
	res, err := c.ClosePosition(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", res.Position.ID, res.Status)
	if res.Note != "" {
		fmt.Printf("  %s\n", res.Note)
	}
	return nil
}

func showSummary(ctx context.Context, c *stonks.Client) error {
	s, err := c.DailySummary(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s  trades: %d  wins: %d  losses: %d  win rate: %.0f%%  pnl: %+.2f\n",
		s.Summary.Date, s.Summary.Trades, s.Summary.Wins, s.Summary.Losses,
		s.Summary.WinRate*100, s.Summary.PnL)
	fmt.Printf("open positions: %d  active orders: %d\n", s.OpenPositions, s.ActiveOrders)
	if s.Account != nil {
		fmt.Printf("account: equity %.2f  buying power %.2f\n", s.Account.Equity, s.Account.BuyingPower)
	}
	for _, h := range s.BrokerPositions {
		fmt.Printf("broker holding: %s x%d @ %.2f\n", h.Symbol, h.Quantity, h.AvgEntryPrice)
	}
	return nil
}

func sendSignal(ctx context.Context, c *stonks.Client, sigType, ticker string, price, rsi float64) error {
	sig := &domain.Signal{
		Type:   domain.SignalType(sigType),
		Ticker: ticker,
		Price:  price,
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	if rsi > 0 {
		sig.RSI = &rsi
	}
	res, err := c.SendSignal(ctx, sig)
	if err != nil {
		return err
	}
	fmt.Printf("accepted: %v  reason: %v\n", res["accepted"], res["reason"])
	return nil
}

func showNews(symbol string, limit int) error {
	end := time.Now()
	start := end.Add(-24 * time.Hour)

	var alpacaNews []news.Article
	if apiKey := os.Getenv("APCA_API_KEY_ID"); apiKey != "" {
		mdc := marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: os.Getenv("APCA_API_SECRET_KEY"),
		})
		articles, err := news.FetchAlpacaNews(mdc, symbol, start, end)
		if err != nil {
			fmt.Fprintf(os.Stderr, "alpaca news: %v\n", err)
		} else {
			alpacaNews = articles
		}
	}

	googleNews, err := news.FetchGoogleNews("S&P 500 market", start, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "google news: %v\n", err)
	}

	lines := news.Headlines(limit, alpacaNews, googleNews)
	if len(lines) == 0 {
		fmt.Println("no headlines")
		return nil
	}
	for _, l := range lines {
		fmt.Println(l)
	}
	return nil
}
