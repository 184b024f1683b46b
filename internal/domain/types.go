// Package domain defines the core value types shared across the trading
// system: orders, fills, positions, signals, suggestions, and the options
// chain model.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPendingApproval OrderStatus = "pending_approval"
	OrderStatusApproved        OrderStatus = "approved"
	OrderStatusSubmitted       OrderStatus = "submitted"
	OrderStatusPartialFill     OrderStatus = "partial_fill"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
)

// IsTerminal reports whether the status admits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution type of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// OptionType distinguishes calls from puts.
type OptionType string

const (
	OptionTypeCall OptionType = "call"
	OptionTypePut  OptionType = "put"
)

// TradeType is the option strategy shape of a trade.
type TradeType string

const (
	TradeTypeLongCall         TradeType = "long_call"
	TradeTypeLongPut          TradeType = "long_put"
	TradeTypeCallDebitSpread  TradeType = "call_debit_spread"
	TradeTypePutDebitSpread   TradeType = "put_debit_spread"
	TradeTypeCallCreditSpread TradeType = "call_credit_spread"
	TradeTypePutCreditSpread  TradeType = "put_credit_spread"
)

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionStatusOpen    PositionStatus = "open"
	PositionStatusClosing PositionStatus = "closing"
	PositionStatusClosed  PositionStatus = "closed"
)

// SessionPhase partitions the trading day into named windows, Eastern time.
type SessionPhase string

const (
	PhasePreMarket     SessionPhase = "pre_market"
	PhasePrimeTime     SessionPhase = "prime_time"
	PhaseLunchDoldrums SessionPhase = "lunch_doldrums"
	PhaseMidSession    SessionPhase = "mid_session"
	PhaseDangerZone    SessionPhase = "danger_zone"
	PhaseAfterHours    SessionPhase = "after_hours"
)

// SignalType identifies the chart setup that produced a webhook signal.
type SignalType string

const (
	SignalRSIOversoldLong    SignalType = "rsi_oversold_long"
	SignalRSIOverboughtShort SignalType = "rsi_overbought_short"
	SignalRubberbandLong     SignalType = "rubberband_long"
	SignalRubberbandShort    SignalType = "rubberband_short"
	SignalVDipLong           SignalType = "v_dip_long"
	SignalShootingStar       SignalType = "shooting_star"
	SignalPivotSupport       SignalType = "pivot_support"
	SignalVWAPBounce         SignalType = "vwap_bounce"
)

// Confidence grades a trade suggestion.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// AnalysisType identifies which advisory produced an analysis record.
type AnalysisType string

const (
	AnalysisTypeSignal   AnalysisType = "signal"
	AnalysisTypeApproval AnalysisType = "approval"
	AnalysisTypeExit     AnalysisType = "exit"
)

// NewID returns a short unique identifier. Eight hex characters of a UUID
// are plenty for a single-account, single-day working set.
func NewID() string {
	return uuid.NewString()[:8]
}

// ---------------------------------------------------------------------------
// Orders and fills
// ---------------------------------------------------------------------------

// Fill is an immutable record of a partial or complete execution. Fills are
// append-only and owned exclusively by their order.
type Fill struct {
	Quantity     int       `json:"quantity"`
	Price        float64   `json:"price"`
	Timestamp    time.Time `json:"timestamp"`
	BrokerFillID string    `json:"broker_fill_id,omitempty"`
	Commission   float64   `json:"commission,omitempty"`
}

// Order is a single option order moving through the approval and execution
// lifecycle. The trade-intent fields are set at creation and never change;
// only the lifecycle fields mutate.
type Order struct {
	ID         string     `json:"id"`
	OptionCode string     `json:"option_code"`
	Underlying string     `json:"underlying"`
	Strike     float64    `json:"strike"`
	OptionType OptionType `json:"option_type"`
	TradeType  TradeType  `json:"trade_type"`
	Side       OrderSide  `json:"side"`
	Quantity   int        `json:"quantity"`
	Type       OrderType  `json:"order_type"`

	LimitPrice    float64 `json:"limit_price,omitempty"`
	TargetPrice   float64 `json:"target_price,omitempty"`
	StopLossPrice float64 `json:"stop_loss_price,omitempty"`

	Status         OrderStatus `json:"status"`
	StatusReason   string      `json:"status_reason,omitempty"`
	FilledQuantity int         `json:"filled_quantity"`
	AvgFillPrice   float64     `json:"avg_fill_price"`
	Fills          []Fill      `json:"fills,omitempty"`
	BrokerOrderID  string      `json:"broker_order_id,omitempty"`

	Analyses []Analysis `json:"analyses,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewOrderFromSuggestion derives a BUY limit order from a trade suggestion.
func NewOrderFromSuggestion(s *TradeSuggestion) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:            NewID(),
		OptionCode:    s.Contract.Code,
		Underlying:    s.Contract.Underlying,
		Strike:        s.Contract.Strike,
		OptionType:    s.Contract.Type,
		TradeType:     s.TradeType,
		Side:          OrderSideBuy,
		Quantity:      s.Quantity,
		Type:          OrderTypeLimit,
		LimitPrice:    s.EntryPrice,
		TargetPrice:   s.TargetPrice,
		StopLossPrice: s.StopLoss,
		Status:        OrderStatusPendingApproval,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsActive reports whether the order is in a non-terminal working state.
func (o *Order) IsActive() bool {
	switch o.Status {
	case OrderStatusPendingApproval, OrderStatusApproved, OrderStatusSubmitted, OrderStatusPartialFill:
		return true
	}
	return false
}

// AddFill appends a fill, recomputes the volume-weighted average fill price
// over all recorded fills, and advances the status to partial_fill or filled.
func (o *Order) AddFill(f Fill) {
	o.Fills = append(o.Fills, f)

	totalQty := 0
	totalCost := 0.0
	for _, fill := range o.Fills {
		totalQty += fill.Quantity
		totalCost += fill.Price * float64(fill.Quantity)
	}
	o.FilledQuantity = totalQty
	if totalQty > 0 {
		o.AvgFillPrice = totalCost / float64(totalQty)
	}

	if o.FilledQuantity >= o.Quantity {
		o.Status = OrderStatusFilled
	} else if o.FilledQuantity > 0 {
		o.Status = OrderStatusPartialFill
	}
	o.UpdatedAt = time.Now().UTC()
}

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

// Position is an open option holding created from a fully-filled BUY order.
// It back-references the originating order by id only.
type Position struct {
	ID         string     `json:"id"`
	OrderID    string     `json:"order_id"`
	OptionCode string     `json:"option_code"`
	Underlying string     `json:"underlying"`
	Strike     float64    `json:"strike"`
	OptionType OptionType `json:"option_type"`
	TradeType  TradeType  `json:"trade_type"`

	Quantity      int     `json:"quantity"`
	EntryPrice    float64 `json:"entry_price"`
	TargetPrice   float64 `json:"target_price,omitempty"`
	StopLossPrice float64 `json:"stop_loss_price,omitempty"`

	Status      PositionStatus `json:"status"`
	ExitPrice   float64        `json:"exit_price,omitempty"`
	ExitOrderID string         `json:"exit_order_id,omitempty"`

	OpenedAt time.Time `json:"opened_at"`
	ClosedAt time.Time `json:"closed_at,omitempty"`
}

// NewPositionFromOrder creates a position from a fully-filled BUY order.
// Quantity is the filled quantity and entry is the average fill price.
func NewPositionFromOrder(o *Order) *Position {
	return &Position{
		ID:            NewID(),
		OrderID:       o.ID,
		OptionCode:    o.OptionCode,
		Underlying:    o.Underlying,
		Strike:        o.Strike,
		OptionType:    o.OptionType,
		TradeType:     o.TradeType,
		Quantity:      o.FilledQuantity,
		EntryPrice:    o.AvgFillPrice,
		TargetPrice:   o.TargetPrice,
		StopLossPrice: o.StopLossPrice,
		Status:        PositionStatusOpen,
		OpenedAt:      time.Now().UTC(),
	}
}

// RealizedPnL returns the realized profit and loss in dollars, using the
// standard 100-share option multiplier. Zero unless the position is closed.
func (p *Position) RealizedPnL() float64 {
	if p.Status != PositionStatusClosed {
		return 0
	}
	return (p.ExitPrice - p.EntryPrice) * float64(p.Quantity) * 100
}

// RealizedPnLPercent returns the realized return relative to the entry cost.
func (p *Position) RealizedPnLPercent() float64 {
	if p.Status != PositionStatusClosed || p.EntryPrice <= 0 {
		return 0
	}
	return (p.ExitPrice - p.EntryPrice) / p.EntryPrice * 100
}

// ---------------------------------------------------------------------------
// Signals and suggestions
// ---------------------------------------------------------------------------

// Signal is an inbound webhook trade signal in TradingView alert shape.
// Indicator fields are pointers because alerts include them selectively.
type Signal struct {
	Passphrase string     `json:"passphrase"`
	Type       SignalType `json:"signal_type"`
	Action     string     `json:"action"`
	Price      float64    `json:"price"`
	Ticker     string     `json:"ticker"`
	Time       string     `json:"time,omitempty"`
	Interval   string     `json:"interval,omitempty"`

	RSI            *float64 `json:"rsi,omitempty"`
	RSIHTF         *float64 `json:"rsi_htf,omitempty"`
	Volume         *float64 `json:"volume,omitempty"`
	PivotLevel     string   `json:"pivot_level,omitempty"`
	VWAPDistance   *float64 `json:"vwap_distance,omitempty"`
	SMA200Distance *float64 `json:"sma200_distance,omitempty"`
}

// TradeSuggestion is a fully risk-checked trade recommendation derived from
// a signal and the current options chain.
type TradeSuggestion struct {
	ID         string         `json:"id"`
	SignalType SignalType     `json:"signal_type"`
	TradeType  TradeType      `json:"trade_type"`
	Contract   OptionContract `json:"contract"`

	Quantity    int     `json:"quantity"`
	EntryPrice  float64 `json:"entry_price"`
	TargetPrice float64 `json:"target_price"`
	StopLoss    float64 `json:"stop_loss"`
	RiskReward  float64 `json:"risk_reward"`

	MaxLossPerContract   float64 `json:"max_loss_per_contract"`
	MaxProfitPerContract float64 `json:"max_profit_per_contract"`
	AccountRiskPercent   float64 `json:"account_risk_percent"`

	Confidence     Confidence   `json:"confidence"`
	SessionPhase   SessionPhase `json:"session_phase"`
	MinutesToClose int          `json:"minutes_to_close"`
	IsHighRisk     bool         `json:"is_high_risk"`
	Warnings       []string     `json:"warnings,omitempty"`
	Reasoning      string       `json:"reasoning,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ---------------------------------------------------------------------------
// Account and statistics
// ---------------------------------------------------------------------------

// AccountInfo is a snapshot of the brokerage account's financial metrics.
type AccountInfo struct {
	Equity      float64 `json:"equity"`
	Cash        float64 `json:"cash"`
	BuyingPower float64 `json:"buying_power"`
}

// DailySummary aggregates realized results for the current trading day.
type DailySummary struct {
	Date    string  `json:"date"`
	PnL     float64 `json:"pnl"`
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	WinRate float64 `json:"win_rate"`
}

// Analysis is one advisory opinion attached to an order or position. It is
// strictly non-binding: the lifecycle never waits on or gates against it.
type Analysis struct {
	ID         string       `json:"id"`
	OrderID    string       `json:"order_id,omitempty"`
	PositionID string       `json:"position_id,omitempty"`
	Type       AnalysisType `json:"type"`
	Model      string       `json:"model"`

	PromptTokens     int   `json:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens"`
	LatencyMS        int64 `json:"latency_ms"`

	Recommendation string `json:"recommendation,omitempty"`
	Confidence     int    `json:"confidence"`
	Reasoning      string `json:"reasoning"`
	Raw            string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}
