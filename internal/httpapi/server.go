// Package httpapi serves the webhook and operator API over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"stonks/internal/advisor"
	"stonks/internal/broker"
	"stonks/internal/dashboard"
	"stonks/internal/domain"
	"stonks/internal/engine"
	"stonks/internal/events"
	"stonks/internal/session"
	"stonks/internal/store"
)

// Server wires the HTTP surface to the trading engine.
type Server struct {
	clock      *session.Clock
	processor  *engine.Processor
	mgr        *engine.Manager
	bus        *events.Bus
	exec       broker.Broker         // nil in advisory-only mode
	archive    *store.ParquetArchive // nil disables history
	advisor    *advisor.Client       // nil disables advice endpoints
	passphrase string
	log        *slog.Logger
}

// NewServer creates the API server. bus, exec, archive, and adv may be nil.
func NewServer(
	clock *session.Clock,
	processor *engine.Processor,
	mgr *engine.Manager,
	bus *events.Bus,
	exec broker.Broker,
	archive *store.ParquetArchive,
	adv *advisor.Client,
	passphrase string,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		clock:      clock,
		processor:  processor,
		mgr:        mgr,
		bus:        bus,
		exec:       exec,
		archive:    archive,
		advisor:    adv,
		passphrase: passphrase,
		log:        log,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook/signal", s.handleSignal)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("GET /api/orders", s.handleListOrders)
	mux.HandleFunc("GET /api/orders/{id}", s.handleGetOrder)
	mux.HandleFunc("POST /api/orders/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /api/orders/{id}/reject", s.handleReject)
	mux.HandleFunc("POST /api/orders/{id}/advice", s.handleOrderAdvice)
	mux.HandleFunc("POST /api/positions/{id}/advice", s.handlePositionAdvice)
	mux.HandleFunc("GET /api/positions", s.handleListPositions)
	mux.HandleFunc("GET /api/positions/{id}", s.handleGetPosition)
	mux.HandleFunc("POST /api/positions/{id}/close", s.handleClosePosition)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/events", s.handleEvents)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

// ---------------------------------------------------------------------------
// Webhook
// ---------------------------------------------------------------------------

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var sig domain.Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		writeError(w, http.StatusBadRequest, "invalid signal payload")
		return
	}
	if s.passphrase != "" && sig.Passphrase != s.passphrase {
		writeError(w, http.StatusUnauthorized, "bad passphrase")
		return
	}
	sig.Passphrase = ""

	result, err := s.processor.ProcessSignal(r.Context(), &sig, time.Now())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, result)
}

// ---------------------------------------------------------------------------
// Session and health
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	executor := "none"
	if s.exec != nil {
		executor = s.exec.Name()
	}
	writeJSON(w, healthResponse{Status: "ok", Executor: executor, Advisor: s.advisor != nil})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.clock.Snapshot(time.Now()))
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Query().Get("pending") == "true":
		writeJSON(w, s.mgr.PendingApproval())
	case r.URL.Query().Get("active") == "true":
		writeJSON(w, s.mgr.ActiveOrders())
	default:
		writeJSON(w, s.mgr.Orders())
	}
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.mgr.GetOrder(r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, o)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req approveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	autoSubmit := req.AutoSubmit == nil || *req.AutoSubmit

	approved, err := s.mgr.ApproveOrder(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if !autoSubmit {
		writeJSON(w, approveResponse{Status: "approved", Order: approved})
		return
	}

	submitted, err := s.mgr.SubmitOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, engine.ErrNoExecutor) {
			writeJSON(w, approveResponse{
				Status: "approved",
				Note:   "no executor configured, execute manually",
				Order:  approved,
			})
			return
		}
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, approveResponse{Status: "approved_and_submitted", Order: submitted})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "rejected by operator"
	}

	o, err := s.mgr.RejectOrder(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, o)
}

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("open") == "true" {
		writeJSON(w, s.mgr.OpenPositions())
		return
	}
	writeJSON(w, s.mgr.Positions())
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	p, err := s.mgr.GetPosition(r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, p)
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	exit, err := s.mgr.CreateExitOrder(id, "closed by operator")
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	submitted, err := s.mgr.SubmitOrder(r.Context(), exit.ID)
	if err != nil {
		if errors.Is(err, engine.ErrNoExecutor) {
			p, _ := s.mgr.GetPosition(id)
			writeJSON(w, closeResponse{
				Status:    "close_pending_manual",
				Note:      "no executor configured, exit manually",
				Position:  p,
				ExitOrder: exit,
			})
			return
		}
		s.writeEngineError(w, err)
		return
	}

	p, _ := s.mgr.GetPosition(id)
	writeJSON(w, closeResponse{Status: "closing", Position: p, ExitOrder: submitted})
}

// ---------------------------------------------------------------------------
// Advisory
// ---------------------------------------------------------------------------

func (s *Server) handleOrderAdvice(w http.ResponseWriter, r *http.Request) {
	if s.advisor == nil {
		writeError(w, http.StatusServiceUnavailable, "advisor not configured")
		return
	}

	o, err := s.mgr.GetOrder(r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	now := time.Now()
	a, err := s.advisor.AdviseApproval(r.Context(), o, s.clock.Phase(now), s.clock.MinutesToClose(now))
	if err != nil {
		s.log.Error("approval advice", "order_id", o.ID, "error", err)
		writeError(w, http.StatusBadGateway, "advisor request failed")
		return
	}
	s.mgr.AttachAnalysis(o.ID, *a)
	writeJSON(w, a)
}

func (s *Server) handlePositionAdvice(w http.ResponseWriter, r *http.Request) {
	if s.advisor == nil {
		writeError(w, http.StatusServiceUnavailable, "advisor not configured")
		return
	}

	var req positionAdviceRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	p, err := s.mgr.GetPosition(r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	price := req.CurrentPrice
	if price <= 0 {
		price = p.EntryPrice
	}

	a, err := s.advisor.EvaluateExit(r.Context(), p, price, s.clock.MinutesToExitDeadline(time.Now()))
	if err != nil {
		s.log.Error("exit advice", "position_id", p.ID, "error", err)
		writeError(w, http.StatusBadGateway, "advisor request failed")
		return
	}
	s.mgr.AttachAnalysis(p.OrderID, *a)
	writeJSON(w, a)
}

// ---------------------------------------------------------------------------
// Summary and history
// ---------------------------------------------------------------------------

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	resp := summaryResponse{
		Summary:       s.mgr.DailySummary(s.clock.TradingDate(time.Now())),
		OpenPositions: len(s.mgr.OpenPositions()),
		ActiveOrders:  len(s.mgr.ActiveOrders()),
	}
	if s.exec != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if acct, err := s.exec.GetAccount(ctx); err == nil {
			resp.Account = acct
		} else {
			s.log.Warn("fetching account for summary", "error", err)
		}
		if held, err := s.exec.GetPositions(ctx); err == nil {
			resp.BrokerPositions = held
		} else {
			s.log.Warn("fetching broker positions for summary", "error", err)
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "history archive not configured")
		return
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad start date")
			return
		}
		start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad end date")
			return
		}
		end = t
	}

	records, err := s.archive.ReadRange(start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reading trade archive")
		return
	}
	days := dashboard.AggregateByDay(records)
	writeJSON(w, map[string]any{
		"days":   days,
		"totals": dashboard.Totals(days),
	})
}

// ---------------------------------------------------------------------------
// Events (SSE)
// ---------------------------------------------------------------------------

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusNotFound, "event bus not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch, cancel := s.bus.Subscribe()
	defer cancel()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Topic, data)
			flusher.Flush()
		}
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// writeEngineError maps engine sentinels onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrStateConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrCapacity):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, engine.ErrDegenerate):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, engine.ErrNoExecutor):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, engine.ErrBrokerFailure):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
