package nanostore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rl1809/station-pick/internal/core/domain"
)

// fakeNanostore records requests and serves canned responses per path.
type fakeNanostore struct {
	mu       sync.Mutex
	requests []*http.Request
	handlers map[string]http.HandlerFunc
}

func newFake(t *testing.T) (*fakeNanostore, *Client) {
	f := &fakeNanostore{handlers: make(map[string]http.HandlerFunc)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r)
		h, ok := f.handlers[r.Method+" "+r.URL.Path]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL+"/nanostore", "test-token")
	c.Timeout = time.Second
	return f, c
}

func (f *fakeNanostore) handle(method, path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method+" /nanostore/"+path] = h
}

func (f *fakeNanostore) last() *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func reply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}
}

func TestLocate(t *testing.T) {
	f, c := newFake(t)
	f.handle(http.MethodGet, "trays_for_order", reply(http.StatusOK, `{"records":[
		{"id":1,"tray_id":"TR-1","tray_status":"in_storage","available_quantity":50,"inbound_date":"2025-01-10T08:00:00","item_id":"M-100","item_description":"Pump"}
	]}`))

	trays, err := c.Locate(context.Background(), "M-100", true)
	if err != nil {
		t.Fatalf("locate failed: %v", err)
	}
	if len(trays) != 1 {
		t.Fatalf("expected 1 tray, got %d", len(trays))
	}
	tr := trays[0]
	if tr.ID != "TR-1" || tr.Location != domain.LocationStation || tr.AvailableQuantity != 50 || tr.Description != "Pump" {
		t.Errorf("unexpected tray: %+v", tr)
	}
	if want := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC); !tr.InboundDate.Equal(want) {
		t.Errorf("expected inbound %v, got %v", want, tr.InboundDate)
	}

	req := f.last()
	q := req.URL.Query()
	if q.Get("in_station") != "true" || q.Get("item_id") != "M-100" || q.Get("order_flow") != "fifo" {
		t.Errorf("unexpected query: %s", req.URL.RawQuery)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer test-token" {
		t.Errorf("expected bearer token, got %q", got)
	}
}

func TestLocate_NotFoundIsEmpty(t *testing.T) {
	_, c := newFake(t)

	trays, err := c.Locate(context.Background(), "M-404", false)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(trays) != 0 {
		t.Errorf("expected no trays, got %d", len(trays))
	}
}

// Run with -race: a fresh client is shared by the parallel station and storage lookups.
func TestLocate_ConcurrentFreshClient(t *testing.T) {
	f, c := newFake(t)
	f.handle(http.MethodGet, "trays_for_order", reply(http.StatusOK, `{"records":[
		{"id":1,"tray_id":"TR-1","tray_status":"in_storage","available_quantity":5,"inbound_date":"2025-01-10T08:00:00","item_id":"M-100"}
	]}`))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(inStation bool) {
			defer wg.Done()
			trays, err := c.Locate(context.Background(), "M-100", inStation)
			if err == nil && len(trays) != 1 {
				err = fmt.Errorf("expected 1 tray, got %d", len(trays))
			}
			errs <- err
		}(i%2 == 0)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("locate failed: %v", err)
		}
	}
}

func TestFindOrder_StatusMapping(t *testing.T) {
	f, c := newFake(t)
	f.handle(http.MethodGet, "orders", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("tray_id") {
		case "TR-done":
			reply(http.StatusOK, `{"records":[{"id":1,"tray_id":"TR-done","status":"completed"}]}`)(w, r)
		case "TR-ready":
			reply(http.StatusOK, `{"records":[{"id":2,"tray_id":"TR-ready","tray_status":"tray_ready_to_use","station_friendly_name":"Station A"}]}`)(w, r)
		default:
			reply(http.StatusOK, `{"records":[{"id":3,"tray_id":"TR-moving","tray_status":"tray_in_transit"}]}`)(w, r)
		}
	})
	ctx := context.Background()

	done, err := c.FindOrder(ctx, "TR-done", domain.OrderFilter{})
	if err != nil || done != nil {
		t.Errorf("expected completed order ignored, got %+v %v", done, err)
	}

	ready, err := c.FindOrder(ctx, "TR-ready", domain.OrderFilter{ReadyOnly: true})
	if err != nil || ready == nil {
		t.Fatalf("expected ready order, got %+v %v", ready, err)
	}
	if ready.Status != domain.OrderStatusActive || ready.StationName != "Station A" || ready.ID != "2" {
		t.Errorf("unexpected order: %+v", ready)
	}
	if f.last().URL.Query().Get("tray_status") != trayReadyToUse {
		t.Error("expected ready filter to be sent")
	}

	moving, err := c.FindOrder(ctx, "TR-moving", domain.OrderFilter{})
	if err != nil || moving == nil || moving.Status != domain.OrderStatusRequested {
		t.Errorf("expected requested order, got %+v %v", moving, err)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	f, c := newFake(t)
	f.handle(http.MethodGet, "orders", reply(http.StatusOK, `{"records":[]}`))

	_, err := c.GetOrder(context.Background(), "42")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestCreateOrder(t *testing.T) {
	f, c := newFake(t)
	c.AutoCompleteTime = 15
	f.handle(http.MethodPost, "orders", reply(http.StatusOK, `{"records":[{"id":77,"tray_id":"TR-1","status":"active","tray_status":"tray_requested"}]}`))

	order, err := c.CreateOrder(context.Background(), "TR-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if order.ID != "77" || order.Status != domain.OrderStatusRequested {
		t.Errorf("unexpected order: %+v", order)
	}
	q := f.last().URL.Query()
	if q.Get("tray_id") != "TR-1" || q.Get("user_id") != "1" || q.Get("auto_complete_time") != "15" {
		t.Errorf("unexpected query: %s", f.last().URL.RawQuery)
	}
}

func TestCompleteOrder(t *testing.T) {
	f, c := newFake(t)
	f.handle(http.MethodPatch, "orders/complete", reply(http.StatusOK, `{}`))

	if err := c.CompleteOrder(context.Background(), "77"); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if got := f.last().URL.Query().Get("record_id"); got != "77" {
		t.Errorf("expected record_id 77, got %q", got)
	}
}

func TestSubmitTransaction(t *testing.T) {
	f, c := newFake(t)
	f.handle(http.MethodPost, "transaction", reply(http.StatusOK, `{}`))

	err := c.SubmitTransaction(context.Background(), domain.Transaction{
		OrderID:     "77",
		Material:    "M-100",
		Quantity:    -5,
		Type:        domain.TransactionOutbound,
		Date:        time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC),
		SapOrderRef: "SAP-1",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	q := f.last().URL.Query()
	if q.Get("transaction_item_quantity") != "-5" || q.Get("transaction_type") != "outbound" ||
		q.Get("transaction_date") != "2025-01-10T08:00:00" || q.Get("sap_order_reference") != "SAP-1" {
		t.Errorf("unexpected query: %s", f.last().URL.RawQuery)
	}

	err = c.SubmitTransaction(context.Background(), domain.Transaction{
		OrderID: domain.InboundOrderRef, TrayID: "TR-9", Material: "M-100", Quantity: 10, Type: domain.TransactionInbound,
	})
	if err != nil {
		t.Fatalf("inbound failed: %v", err)
	}
	q = f.last().URL.Query()
	if q.Has("transaction_date") || q.Has("sap_order_reference") || q.Has("tray_id") || q.Get("order_id") != "reconcile" {
		t.Errorf("unexpected inbound query: %s", f.last().URL.RawQuery)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   domain.ErrorKind
	}{
		{"server error", http.StatusBadGateway, domain.KindTransient},
		{"rate limited", http.StatusTooManyRequests, domain.KindTransient},
		{"bad request", http.StatusBadRequest, domain.KindValidation},
		{"conflict", http.StatusConflict, domain.KindConflict},
		{"not found", http.StatusNotFound, domain.KindNotFound},
		{"unauthorized", http.StatusUnauthorized, domain.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c := newFake(t)
			f.handle(http.MethodPost, "transaction", reply(tt.status, `{"detail":"nope"}`))

			err := c.SubmitTransaction(context.Background(), domain.Transaction{OrderID: "1", Material: "M", Quantity: -1, Type: domain.TransactionOutbound})
			if got := domain.KindOf(err); got != tt.want {
				t.Errorf("expected %s, got %s (%v)", tt.want, got, err)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.status {
				t.Errorf("expected APIError with status %d, got %v", tt.status, err)
			}
		})
	}
}

func TestNetworkErrorIsTransient(t *testing.T) {
	c := New("http://127.0.0.1:1/nanostore", "")
	c.Timeout = time.Second

	_, err := c.ListSapOrders(context.Background(), "")
	if domain.KindOf(err) != domain.KindTransient {
		t.Errorf("expected transient, got %v", err)
	}
}

func TestReconcileAndSapOrders(t *testing.T) {
	f, c := newFake(t)
	f.handle(http.MethodGet, "sap_reconcile/report", reply(http.StatusOK, `{"records":[
		{"material":"M","sap_quantity":100,"item_quantity":80,"quantity_difference":20,"reconcile_status":"sap_shortage"}
	]}`))
	f.handle(http.MethodGet, "sap_orders/get_unique_sap_orders", reply(http.StatusOK, `{"records":[
		{"order_ref":"SAP-1","total_items":3,"pending_items":2,"completed_items":1,"order_status":"active"}
	]}`))
	f.handle(http.MethodGet, "sap_orders", reply(http.StatusOK, `{"records":[
		{"material":"M","item_description":"Pump","quantity":30,"picked_quantity":10}
	]}`))
	ctx := context.Background()

	records, err := c.ReconcileReport(ctx, domain.ReconcileQuery{Status: domain.ReconcileSapShortage})
	if err != nil || len(records) != 1 {
		t.Fatalf("report: %+v %v", records, err)
	}
	if r := records[0]; r.Difference != 20 || r.Status != domain.ReconcileSapShortage {
		t.Errorf("unexpected record: %+v", r)
	}
	if q := f.last().URL.Query(); q.Get("reconcile_status") != "sap_shortage" || q.Has("material") {
		t.Errorf("unexpected query: %s", f.last().URL.RawQuery)
	}

	orders, err := c.ListSapOrders(ctx, "")
	if err != nil || len(orders) != 1 || orders[0].PendingItems != 2 {
		t.Errorf("sap orders: %+v %v", orders, err)
	}
	if f.last().URL.Query().Get("order_status") != "active" {
		t.Error("expected active status by default")
	}

	lines, err := c.OrderLines(ctx, "SAP-1")
	if err != nil || len(lines) != 1 {
		t.Fatalf("lines: %+v %v", lines, err)
	}
	if l := lines[0]; l.OrderRef != "SAP-1" || l.Remaining() != 20 {
		t.Errorf("unexpected line: %+v", l)
	}
}
