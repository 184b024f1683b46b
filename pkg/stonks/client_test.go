package stonks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"stonks/internal/domain"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8090/", "pw")
	if c.baseURL != "http://localhost:8090" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("httpClient is nil")
	}
}

func TestClientOrdersAndErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/orders":
			if r.URL.Query().Get("active") != "true" {
				t.Errorf("missing active filter: %s", r.URL.RawQuery)
			}
			json.NewEncoder(w).Encode([]*domain.Order{
				{ID: "ord-1", Status: domain.OrderStatusPendingApproval},
			})
		case "/api/orders/missing":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "order missing: not found"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "")
	orders, err := c.Orders(context.Background(), true)
	if err != nil {
		t.Fatalf("Orders: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != "ord-1" {
		t.Errorf("orders = %+v", orders)
	}

	if _, err := c.Order(context.Background(), "missing"); err == nil {
		t.Error("Order(missing) should return the API error")
	}
}

func TestClientApproveOrder(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/orders/ord-1/approve" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]bool
		json.NewDecoder(r.Body).Decode(&body)
		if !body["auto_submit"] {
			t.Error("auto_submit not sent")
		}
		json.NewEncoder(w).Encode(ApproveResult{
			Status: "approved_and_submitted",
			Order:  &domain.Order{ID: "ord-1", Status: domain.OrderStatusSubmitted},
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "")
	res, err := c.ApproveOrder(context.Background(), "ord-1", true)
	if err != nil {
		t.Fatalf("ApproveOrder: %v", err)
	}
	if res.Status != "approved_and_submitted" {
		t.Errorf("Status = %q", res.Status)
	}
}

func TestClientSendSignalFillsPassphrase(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sig domain.Signal
		json.NewDecoder(r.Body).Decode(&sig)
		if sig.Passphrase != "hunter2" {
			t.Errorf("Passphrase = %q, want hunter2", sig.Passphrase)
		}
		json.NewEncoder(w).Encode(map[string]any{"accepted": true})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "hunter2")
	res, err := c.SendSignal(context.Background(), &domain.Signal{
		Type:   domain.SignalRSIOversoldLong,
		Ticker: "SPX",
		Price:  5450,
	})
	if err != nil {
		t.Fatalf("SendSignal: %v", err)
	}
	if res["accepted"] != true {
		t.Errorf("result = %+v", res)
	}
}
