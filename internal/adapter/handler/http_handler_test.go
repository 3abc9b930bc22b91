package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rl1809/station-pick/internal/core/domain"
	"github.com/rl1809/station-pick/internal/core/service"
)

// fakeStation returns canned values and records the last call's arguments.
type fakeStation struct {
	order    domain.RetrievalOrder
	orderErr error
	txn      domain.Transaction
	txnErr   error
	snapshot domain.LocationSnapshot
	report   domain.ReconcileReport
	sap      []domain.SapOrder
	lines    []domain.OrderLine
	err      error
	status   service.SyncStatus

	lastTray  domain.Tray
	lastPick  service.PickRequest
	lastQuery domain.ReconcileQuery
	lastID    string
}

func (f *fakeStation) EnsureOrder(ctx context.Context, tray domain.Tray) (domain.RetrievalOrder, error) {
	f.lastTray = tray
	return f.order, f.orderErr
}

func (f *fakeStation) ReadyOrder(ctx context.Context, tray domain.Tray) (domain.RetrievalOrder, error) {
	f.lastTray = tray
	return f.order, f.orderErr
}

func (f *fakeStation) Order(ctx context.Context, orderID string) (domain.RetrievalOrder, error) {
	f.lastID = orderID
	return f.order, f.orderErr
}

func (f *fakeStation) Release(ctx context.Context, orderID string) error {
	f.lastID = orderID
	return f.err
}

func (f *fakeStation) Pick(ctx context.Context, req service.PickRequest) (domain.Transaction, error) {
	f.lastPick = req
	return f.txn, f.txnErr
}

func (f *fakeStation) Inbound(ctx context.Context, req service.InboundRequest) (domain.Transaction, error) {
	return f.txn, f.txnErr
}

func (f *fakeStation) Locations(ctx context.Context, material string) (domain.LocationSnapshot, error) {
	f.lastID = material
	return f.snapshot, f.err
}

func (f *fakeStation) Reconciliation(ctx context.Context, query domain.ReconcileQuery) (domain.ReconcileReport, error) {
	f.lastQuery = query
	return f.report, f.err
}

func (f *fakeStation) SapOrders(ctx context.Context, status string) ([]domain.SapOrder, error) {
	return f.sap, f.err
}

func (f *fakeStation) OrderLines(ctx context.Context, orderRef string) ([]domain.OrderLine, error) {
	f.lastID = orderRef
	return f.lines, f.err
}

func (f *fakeStation) Refresh(ctx context.Context) error {
	return f.err
}

func (f *fakeStation) SyncStatus() service.SyncStatus {
	return f.status
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func TestHTTP_EnsureOrder(t *testing.T) {
	st := &fakeStation{order: domain.RetrievalOrder{ID: "7", TrayID: "T1", Status: domain.OrderStatusRequested}}
	h := NewHTTPHandler(st).Routes()

	rec, resp := do(t, h, http.MethodPost, "/api/orders/ensure", TrayRequest{TrayID: "T1", Material: "M-100"})
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("expected 200 success, got %d %+v", rec.Code, resp)
	}
	if st.lastTray.ID != "T1" || st.lastTray.Material != "M-100" {
		t.Errorf("unexpected tray passed: %+v", st.lastTray)
	}
	data := resp.Data.(map[string]any)
	if data["id"] != "7" || data["status"] != "requested" {
		t.Errorf("unexpected order payload: %+v", data)
	}
}

func TestHTTP_ReadyOrderNotReady(t *testing.T) {
	st := &fakeStation{
		order:    domain.RetrievalOrder{ID: "7", TrayID: "T1", Status: domain.OrderStatusRequested},
		orderErr: domain.ErrRetrievalNotReady,
	}
	h := NewHTTPHandler(st).Routes()

	rec, resp := do(t, h, http.MethodPost, "/api/orders/ready", TrayRequest{TrayID: "T1"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if resp.Success || resp.Kind != string(domain.KindConflict) {
		t.Errorf("unexpected response: %+v", resp)
	}
	if data, ok := resp.Data.(map[string]any); !ok || data["id"] != "7" {
		t.Errorf("expected pending order in payload, got %+v", resp.Data)
	}
}

func TestHTTP_ErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind domain.ErrorKind
	}{
		{"validation", domain.Validationf("quantity must be positive"), http.StatusBadRequest, domain.KindValidation},
		{"not found", domain.NotFoundf("order 9"), http.StatusNotFound, domain.KindNotFound},
		{"conflict", domain.ErrSubmissionInFlight, http.StatusConflict, domain.KindConflict},
		{"transient", fmt.Errorf("submit: %w", domain.ErrTransient), http.StatusServiceUnavailable, domain.KindTransient},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, domain.KindTransient},
		{"internal", fmt.Errorf("boom"), http.StatusInternalServerError, domain.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStation{txnErr: tt.err}
			h := NewHTTPHandler(st).Routes()

			rec, resp := do(t, h, http.MethodPost, "/api/picks", PickRequest{OrderID: "1", TrayID: "T1", Material: "M", Quantity: 1})
			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
			if resp.Success || resp.Kind != string(tt.kind) {
				t.Errorf("unexpected response: %+v", resp)
			}
			if tt.kind == domain.KindInternal && resp.Message != "internal error" {
				t.Errorf("expected internal detail hidden, got %q", resp.Message)
			}
		})
	}
}

func TestHTTP_Pick(t *testing.T) {
	st := &fakeStation{txn: domain.Transaction{ID: "x", OrderID: "1", Material: "M", Quantity: -5, Type: domain.TransactionOutbound}}
	h := NewHTTPHandler(st).Routes()

	rec, resp := do(t, h, http.MethodPost, "/api/picks", PickRequest{OrderID: "1", TrayID: "T1", Material: "M", Quantity: 5, SapOrderRef: "SAP-1"})
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("expected success, got %d %+v", rec.Code, resp)
	}
	if p := st.lastPick; p.Quantity != 5 || p.Tray.ID != "T1" || p.SapOrderRef != "SAP-1" {
		t.Errorf("unexpected pick request: %+v", p)
	}
	if data := resp.Data.(map[string]any); data["quantity"] != float64(-5) || data["type"] != "outbound" {
		t.Errorf("unexpected transaction payload: %+v", data)
	}
}

func TestHTTP_InvalidBody(t *testing.T) {
	h := NewHTTPHandler(&fakeStation{}).Routes()

	rec, resp := do(t, h, http.MethodPost, "/api/picks", "{not json")
	if rec.Code != http.StatusBadRequest || resp.Kind != string(domain.KindValidation) {
		t.Errorf("expected 400 validation, got %d %+v", rec.Code, resp)
	}
}

func TestHTTP_LocationsAndReconciliation(t *testing.T) {
	fetched := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	st := &fakeStation{
		snapshot: domain.LocationSnapshot{
			Material:  "M-100",
			Storage:   []domain.Tray{{ID: "T2", Location: domain.LocationStorage, AvailableQuantity: 3}},
			FetchedAt: fetched,
			Freshness: domain.FreshnessStale,
			LastError: "backend unavailable",
		},
		report: domain.ReconcileReport{
			Query:   domain.ReconcileQuery{Status: domain.ReconcileSapShortage},
			Records: []domain.ReconciliationRecord{{Material: "M-100", SapQuantity: 10, ItemQuantity: 8, Difference: 2, Status: domain.ReconcileSapShortage}},
		},
	}
	h := NewHTTPHandler(st).Routes()

	rec, resp := do(t, h, http.MethodGet, "/api/locations/M-100", nil)
	if rec.Code != http.StatusOK || st.lastID != "M-100" {
		t.Fatalf("unexpected locations call: %d %q", rec.Code, st.lastID)
	}
	snap := resp.Data.(map[string]any)
	if snap["freshness"] != "stale" || len(snap["storage"].([]any)) != 1 || len(snap["station"].([]any)) != 0 {
		t.Errorf("unexpected snapshot payload: %+v", snap)
	}

	rec, resp = do(t, h, http.MethodGet, "/api/reconciliation?status=sap_shortage&material=M-100", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if st.lastQuery.Status != domain.ReconcileSapShortage || st.lastQuery.Material != "M-100" {
		t.Errorf("unexpected query: %+v", st.lastQuery)
	}
	records := resp.Data.(map[string]any)["records"].([]any)
	if len(records) != 1 || records[0].(map[string]any)["actionable"] != true {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestHTTP_ReleaseAndLines(t *testing.T) {
	st := &fakeStation{lines: []domain.OrderLine{{OrderRef: "SAP-1", Material: "M", RequiredQuantity: 30, ConsumedQuantity: 10}}}
	h := NewHTTPHandler(st).Routes()

	rec, resp := do(t, h, http.MethodPost, "/api/orders/42/release", nil)
	if rec.Code != http.StatusOK || !resp.Success || st.lastID != "42" {
		t.Errorf("unexpected release: %d %+v %q", rec.Code, resp, st.lastID)
	}

	rec, resp = do(t, h, http.MethodGet, "/api/sap-orders/SAP-1/lines", nil)
	if rec.Code != http.StatusOK || st.lastID != "SAP-1" {
		t.Fatalf("unexpected lines call: %d %q", rec.Code, st.lastID)
	}
	lines := resp.Data.(map[string]any)["lines"].([]any)
	if lines[0].(map[string]any)["remaining"] != float64(20) {
		t.Errorf("unexpected line payload: %+v", lines)
	}
}

func TestHTTP_RefreshReportsDegraded(t *testing.T) {
	st := &fakeStation{
		err:    fmt.Errorf("locate: %w", domain.ErrTransient),
		status: service.SyncStatus{Degraded: true, ConsecutiveFailures: 3},
	}
	h := NewHTTPHandler(st).Routes()

	rec, resp := do(t, h, http.MethodPost, "/api/refresh", nil)
	if rec.Code != http.StatusOK || resp.Success || resp.Kind != string(domain.KindTransient) {
		t.Errorf("unexpected refresh response: %d %+v", rec.Code, resp)
	}
	if data := resp.Data.(map[string]any); data["degraded"] != true {
		t.Errorf("expected degraded status, got %+v", data)
	}
}

func TestHTTP_HealthCheck(t *testing.T) {
	h := NewHTTPHandler(&fakeStation{}).Routes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("unexpected health: %d %+v", rec.Code, body)
	}
}
