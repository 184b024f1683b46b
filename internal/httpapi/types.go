package httpapi

import (
	"stonks/internal/broker"
	"stonks/internal/domain"
)

// approveRequest is the optional body for the approve endpoint.
type approveRequest struct {
	// AutoSubmit sends the order to the broker right after approval.
	// Defaults to true.
	AutoSubmit *bool `json:"auto_submit,omitempty"`
}

// approveResponse reports how far the order got.
type approveResponse struct {
	Status string        `json:"status"` // approved | approved_and_submitted
	Note   string        `json:"note,omitempty"`
	Order  *domain.Order `json:"order"`
}

// rejectRequest is the body for the reject endpoint.
type rejectRequest struct {
	Reason string `json:"reason"`
}

// positionAdviceRequest carries the mark used for exit advice. When the
// price is omitted the entry price is used as the mark.
type positionAdviceRequest struct {
	CurrentPrice float64 `json:"current_price"`
}

// closeResponse reports the exit order created for a position.
type closeResponse struct {
	Status    string           `json:"status"` // closing | close_pending_manual
	Note      string           `json:"note,omitempty"`
	Position  *domain.Position `json:"position"`
	ExitOrder *domain.Order    `json:"exit_order"`
}

// summaryResponse is the daily summary plus broker state when available.
type summaryResponse struct {
	Summary         domain.DailySummary   `json:"summary"`
	OpenPositions   int                   `json:"open_positions"`
	ActiveOrders    int                   `json:"active_orders"`
	Account         *domain.AccountInfo   `json:"account,omitempty"`
	BrokerPositions []broker.HeldPosition `json:"broker_positions,omitempty"`
}

// healthResponse reports liveness and wiring.
type healthResponse struct {
	Status   string `json:"status"`
	Executor string `json:"executor"`
	Advisor  bool   `json:"advisor"`
}
