package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rl1809/station-pick/internal/core/domain"
	"github.com/rl1809/station-pick/internal/core/service"
)

// Station is the operation surface both handlers drive; *service.Station
// implements it.
type Station interface {
	EnsureOrder(ctx context.Context, tray domain.Tray) (domain.RetrievalOrder, error)
	ReadyOrder(ctx context.Context, tray domain.Tray) (domain.RetrievalOrder, error)
	Order(ctx context.Context, orderID string) (domain.RetrievalOrder, error)
	Release(ctx context.Context, orderID string) error
	Pick(ctx context.Context, req service.PickRequest) (domain.Transaction, error)
	Inbound(ctx context.Context, req service.InboundRequest) (domain.Transaction, error)
	Locations(ctx context.Context, material string) (domain.LocationSnapshot, error)
	Reconciliation(ctx context.Context, query domain.ReconcileQuery) (domain.ReconcileReport, error)
	SapOrders(ctx context.Context, status string) ([]domain.SapOrder, error)
	OrderLines(ctx context.Context, orderRef string) ([]domain.OrderLine, error)
	Refresh(ctx context.Context) error
	SyncStatus() service.SyncStatus
}

var _ Station = (*service.Station)(nil)

type HTTPHandler struct {
	station Station
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func NewHTTPHandler(station Station) *HTTPHandler {
	return &HTTPHandler{station: station}
}

func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)
	r.Route("/api", func(r chi.Router) {
		r.Get("/locations/{material}", h.Locations)
		r.Get("/reconciliation", h.Reconciliation)
		r.Post("/orders/ensure", h.EnsureOrder)
		r.Post("/orders/ready", h.ReadyOrder)
		r.Get("/orders/{id}", h.Order)
		r.Post("/orders/{id}/release", h.Release)
		r.Post("/picks", h.Pick)
		r.Post("/inbounds", h.Inbound)
		r.Post("/refresh", h.Refresh)
		r.Get("/sync", h.SyncStatus)
		r.Get("/sap-orders", h.SapOrders)
		r.Get("/sap-orders/{ref}/lines", h.OrderLines)
		r.Get("/health", h.HealthCheck)
	})
	return r
}

func (h *HTTPHandler) Locations(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.station.Locations(r.Context(), chi.URLParam(r, "material"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: toSnapshot(snapshot)})
}

func (h *HTTPHandler) Reconciliation(w http.ResponseWriter, r *http.Request) {
	query := domain.ReconcileQuery{
		Material: r.URL.Query().Get("material"),
		Status:   domain.ReconcileStatus(r.URL.Query().Get("status")),
	}
	report, err := h.station.Reconciliation(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: toReport(report)})
}

func (h *HTTPHandler) EnsureOrder(w http.ResponseWriter, r *http.Request) {
	var req TrayRequest
	if !decode(w, r, &req) {
		return
	}
	order, err := h.station.EnsureOrder(r.Context(), req.tray())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: toOrder(order)})
}

// ReadyOrder answers 409 with the pending order while the tray is in transit.
func (h *HTTPHandler) ReadyOrder(w http.ResponseWriter, r *http.Request) {
	var req TrayRequest
	if !decode(w, r, &req) {
		return
	}
	order, err := h.station.ReadyOrder(r.Context(), req.tray())
	if err != nil {
		resp := errorResponse(err)
		if order.ID != "" {
			resp.Data = toOrder(order)
		}
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: toOrder(order)})
}

func (h *HTTPHandler) Order(w http.ResponseWriter, r *http.Request) {
	order, err := h.station.Order(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: toOrder(order)})
}

func (h *HTTPHandler) Release(w http.ResponseWriter, r *http.Request) {
	if err := h.station.Release(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "tray released"})
}

func (h *HTTPHandler) Pick(w http.ResponseWriter, r *http.Request) {
	var req PickRequest
	if !decode(w, r, &req) {
		return
	}
	txn, err := h.station.Pick(r.Context(), req.toService())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: toTransaction(txn)})
}

func (h *HTTPHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	var req InboundRequest
	if !decode(w, r, &req) {
		return
	}
	txn, err := h.station.Inbound(r.Context(), req.toService())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: toTransaction(txn)})
}

func (h *HTTPHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.station.Refresh(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, Response{Success: false, Message: err.Error(), Kind: string(domain.KindOf(err)), Data: h.station.SyncStatus()})
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: h.station.SyncStatus()})
}

func (h *HTTPHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: h.station.SyncStatus()})
}

func (h *HTTPHandler) SapOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.station.SapOrders(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: toSapOrders(orders)})
}

func (h *HTTPHandler) OrderLines(w http.ResponseWriter, r *http.Request) {
	lines, err := h.station.OrderLines(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: toOrderLines(lines)})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := h.station.SyncStatus()
	if status.Degraded {
		writeJSON(w, http.StatusOK, map[string]any{"status": "degraded", "sync": status})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sync": status})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Message: "invalid request body",
			Kind:    string(domain.KindValidation),
		})
		return false
	}
	return true
}

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(err error) Response {
	kind := domain.KindOf(err)
	message := err.Error()
	if kind == domain.KindInternal {
		message = "internal error"
	}
	return Response{Success: false, Message: message, Kind: string(kind)}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse(err))
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
