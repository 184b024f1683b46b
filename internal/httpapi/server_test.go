package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stonks/internal/broker"
	"stonks/internal/domain"
	"stonks/internal/engine"
	"stonks/internal/events"
	"stonks/internal/session"
)

type stubMarketData struct {
	chain *domain.OptionsChain
}

func (f *stubMarketData) Chain(ctx context.Context, expiration time.Time) (*domain.OptionsChain, error) {
	return f.chain, nil
}

type fixture struct {
	server *Server
	mgr    *engine.Manager
	sim    *broker.Simulator
	bus    *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock, err := session.NewClock()
	if err != nil {
		t.Fatalf("NewClock: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	sim := broker.NewSimulator()
	sim.AutoFill = false
	bus := events.NewBus()
	mgr := engine.NewManager(sim, nil, bus, engine.DefaultLimits, log)
	risk := engine.NewRiskEngine(25000, 0.02, 0.06)

	chain := &domain.OptionsChain{
		Underlying:      "SPX",
		UnderlyingPrice: 5450,
		Contracts: []domain.OptionContract{
			{Code: "SPXW250825C05450000", Type: domain.OptionTypeCall, Strike: 5450, Bid: 9.8, Ask: 10.2,
				Greeks: &domain.Greeks{Delta: 0.55}},
		},
	}
	proc := engine.NewProcessor(clock, &stubMarketData{chain: chain}, engine.NewSuggester(risk, clock), mgr, nil, log)

	srv := NewServer(clock, proc, mgr, bus, sim, nil, nil, "letmein", log)
	return &fixture{server: srv, mgr: mgr, sim: sim, bus: bus}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding request: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v\nbody: %s", err, rec.Body.String())
	}
	return v
}

func pendingOrder(t *testing.T, f *fixture) *domain.Order {
	t.Helper()
	o, err := f.mgr.CreateOrderFromSuggestion(&domain.TradeSuggestion{
		ID:          domain.NewID(),
		TradeType:   domain.TradeTypeLongCall,
		Contract:    domain.OptionContract{Code: "SPXW250825C05450000", Strike: 5450, Type: domain.OptionTypeCall},
		Quantity:    1,
		EntryPrice:  10.0,
		TargetPrice: 14.5,
		StopLoss:    7.3,
	})
	if err != nil {
		t.Fatalf("creating order: %v", err)
	}
	return o
}

func TestWebhookBadPassphrase(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "POST", "/webhook/signal", map[string]any{
		"passphrase":  "wrong",
		"signal_type": "rsi_oversold_long",
		"ticker":      "SPX",
		"price":       5450.0,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestWebhookBadPayload(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest("POST", "/webhook/signal", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookProcessed(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "POST", "/webhook/signal", map[string]any{
		"passphrase":  "letmein",
		"signal_type": "rsi_oversold_long",
		"ticker":      "SPX",
		"price":       5450.0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	res := decode[engine.ProcessResult](t, rec)
	if res.Reason == "" {
		t.Error("result has no reason")
	}
	// Whether the trade is accepted depends on wall-clock session phase;
	// an accepted result must carry an order.
	if res.Accepted && res.Order == nil {
		t.Error("accepted result missing order")
	}
}

func TestSessionEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "GET", "/api/session", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	info := decode[session.Info](t, rec)
	if info.Phase == "" || info.Weekday == "" {
		t.Errorf("session info incomplete: %+v", info)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "GET", "/api/health", nil)
	h := decode[healthResponse](t, rec)
	if h.Status != "ok" || h.Executor != "simulator" {
		t.Errorf("health = %+v", h)
	}
}

func TestAdviceWithoutAdvisor(t *testing.T) {
	f := newFixture(t)
	o := pendingOrder(t, f)

	rec := f.do(t, "POST", "/api/orders/"+o.ID+"/advice", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("order advice status = %d, want 503", rec.Code)
	}
	rec = f.do(t, "POST", "/api/positions/whatever/advice", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("position advice status = %d, want 503", rec.Code)
	}
}

func TestApproveAutoSubmits(t *testing.T) {
	f := newFixture(t)
	o := pendingOrder(t, f)

	rec := f.do(t, "POST", "/api/orders/"+o.ID+"/approve", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decode[approveResponse](t, rec)
	if resp.Status != "approved_and_submitted" {
		t.Errorf("Status = %q, want approved_and_submitted", resp.Status)
	}
	if resp.Order.Status != domain.OrderStatusSubmitted {
		t.Errorf("order Status = %q, want submitted", resp.Order.Status)
	}

	// Second approve conflicts.
	rec = f.do(t, "POST", "/api/orders/"+o.ID+"/approve", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second approve status = %d, want 409", rec.Code)
	}
}

func TestApproveWithoutSubmit(t *testing.T) {
	f := newFixture(t)
	o := pendingOrder(t, f)

	auto := false
	rec := f.do(t, "POST", "/api/orders/"+o.ID+"/approve", approveRequest{AutoSubmit: &auto})
	resp := decode[approveResponse](t, rec)
	if resp.Status != "approved" {
		t.Errorf("Status = %q, want approved", resp.Status)
	}
	if resp.Order.Status != domain.OrderStatusApproved {
		t.Errorf("order Status = %q, want approved", resp.Order.Status)
	}
}

func TestRejectOrder(t *testing.T) {
	f := newFixture(t)
	o := pendingOrder(t, f)

	rec := f.do(t, "POST", "/api/orders/"+o.ID+"/reject", rejectRequest{Reason: "too risky"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[domain.Order](t, rec)
	if got.Status != domain.OrderStatusCancelled || got.StatusReason != "too risky" {
		t.Errorf("order = %+v", got)
	}

	if rec := f.do(t, "POST", "/api/orders/missing/reject", nil); rec.Code != http.StatusNotFound {
		t.Errorf("reject missing status = %d, want 404", rec.Code)
	}
}

func TestClosePositionEndpoint(t *testing.T) {
	f := newFixture(t)

	// Build an open position through the full lifecycle.
	o := pendingOrder(t, f)
	f.mgr.ApproveOrder(o.ID)
	f.mgr.SubmitOrder(context.Background(), o.ID)
	_, pos, err := f.mgr.RecordFill(o.ID, domain.Fill{Quantity: 1, Price: 10.0, Timestamp: time.Now()})
	if err != nil || pos == nil {
		t.Fatalf("fill: pos=%v err=%v", pos, err)
	}

	rec := f.do(t, "POST", "/api/positions/"+pos.ID+"/close", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decode[closeResponse](t, rec)
	if resp.Status != "closing" {
		t.Errorf("Status = %q, want closing", resp.Status)
	}
	if resp.Position.Status != domain.PositionStatusClosing {
		t.Errorf("position Status = %q, want closing", resp.Position.Status)
	}
	if resp.ExitOrder.Side != domain.OrderSideSell {
		t.Errorf("exit side = %q, want sell", resp.ExitOrder.Side)
	}

	if rec := f.do(t, "POST", "/api/positions/missing/close", nil); rec.Code != http.StatusNotFound {
		t.Errorf("close missing status = %d, want 404", rec.Code)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "GET", "/api/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[summaryResponse](t, rec)
	if resp.Account == nil {
		t.Error("summary missing account from simulator")
	}
	if resp.OpenPositions != 0 || resp.ActiveOrders != 0 {
		t.Errorf("summary = %+v, want empty book", resp)
	}
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	// Give the handler a moment to subscribe, then publish.
	time.Sleep(100 * time.Millisecond)
	f.bus.Publish("order.created", map[string]string{"id": "x"})

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: order.created") {
			return
		}
	}
	t.Fatal("never saw the published event on the stream")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest("OPTIONS", "/api/session", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
