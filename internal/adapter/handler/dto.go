package handler

import (
	"time"

	"github.com/rl1809/station-pick/internal/core/domain"
	"github.com/rl1809/station-pick/internal/core/service"
)

// Wire types shared by the HTTP and gRPC surfaces.

type Tray struct {
	TrayID            string    `json:"tray_id"`
	Code              string    `json:"code,omitempty"`
	Location          string    `json:"location"`
	AvailableQuantity int       `json:"available_quantity"`
	Material          string    `json:"material"`
	Description       string    `json:"description,omitempty"`
	InboundDate       time.Time `json:"inbound_date"`
}

type Order struct {
	ID          string    `json:"id"`
	TrayID      string    `json:"tray_id"`
	Status      string    `json:"status"`
	StationName string    `json:"station_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type StationTray struct {
	Tray
	Order *Order `json:"order,omitempty"`
}

type Snapshot struct {
	Material  string        `json:"material"`
	Storage   []Tray        `json:"storage"`
	Station   []StationTray `json:"station"`
	FetchedAt time.Time     `json:"fetched_at"`
	Freshness string        `json:"freshness"`
	LastError string        `json:"last_error,omitempty"`
}

type Transaction struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	TrayID      string    `json:"tray_id,omitempty"`
	Material    string    `json:"material"`
	Quantity    int       `json:"quantity"`
	Type        string    `json:"type"`
	Date        time.Time `json:"date"`
	SapOrderRef string    `json:"sap_order_ref,omitempty"`
}

type ReconcileRecord struct {
	Material     string    `json:"material"`
	Description  string    `json:"description,omitempty"`
	SapQuantity  int       `json:"sap_quantity"`
	ItemQuantity int       `json:"item_quantity"`
	Difference   int       `json:"quantity_difference"`
	Status       string    `json:"reconcile_status"`
	Actionable   bool      `json:"actionable"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ReconcileReport struct {
	Material  string            `json:"material,omitempty"`
	Status    string            `json:"status,omitempty"`
	Records   []ReconcileRecord `json:"records"`
	FetchedAt time.Time         `json:"fetched_at"`
	Freshness string            `json:"freshness"`
	LastError string            `json:"last_error,omitempty"`
}

type SapOrder struct {
	Ref            string `json:"order_ref"`
	TotalItems     int    `json:"total_items"`
	PendingItems   int    `json:"pending_items"`
	CompletedItems int    `json:"completed_items"`
	Status         string `json:"order_status"`
}

type OrderLine struct {
	OrderRef         string `json:"order_ref"`
	Material         string `json:"material"`
	Description      string `json:"description,omitempty"`
	RequiredQuantity int    `json:"required_quantity"`
	ConsumedQuantity int    `json:"consumed_quantity"`
	Remaining        int    `json:"remaining"`
}

type TrayRequest struct {
	TrayID   string `json:"tray_id"`
	Material string `json:"material"`
}

type OrderIDRequest struct {
	OrderID string `json:"order_id"`
}

type PickRequest struct {
	OrderID     string `json:"order_id"`
	TrayID      string `json:"tray_id"`
	Material    string `json:"material"`
	Quantity    int    `json:"quantity"`
	SapOrderRef string `json:"sap_order_ref,omitempty"`
}

type InboundRequest struct {
	Material string `json:"material"`
	Quantity int    `json:"quantity"`
	TrayID   string `json:"tray_id,omitempty"`
}

type LocationsRequest struct {
	Material string `json:"material"`
}

type ReconcileRequest struct {
	Material string `json:"material,omitempty"`
	Status   string `json:"status,omitempty"`
}

type SapOrdersRequest struct {
	Status string `json:"status,omitempty"`
}

type OrderLinesRequest struct {
	OrderRef string `json:"order_ref"`
}

type SapOrders struct {
	Orders []SapOrder `json:"orders"`
}

type OrderLines struct {
	Lines []OrderLine `json:"lines"`
}

type Empty struct{}

func (r TrayRequest) tray() domain.Tray {
	return domain.Tray{ID: r.TrayID, Code: r.TrayID, Material: r.Material}
}

func (r PickRequest) toService() service.PickRequest {
	return service.PickRequest{
		OrderID:     r.OrderID,
		Material:    r.Material,
		Quantity:    r.Quantity,
		Tray:        domain.Tray{ID: r.TrayID, Code: r.TrayID, Material: r.Material},
		SapOrderRef: r.SapOrderRef,
	}
}

func (r InboundRequest) toService() service.InboundRequest {
	return service.InboundRequest{Material: r.Material, Quantity: r.Quantity, TrayID: r.TrayID}
}

func toTray(t domain.Tray) Tray {
	return Tray{
		TrayID:            t.ID,
		Code:              t.Code,
		Location:          string(t.Location),
		AvailableQuantity: t.AvailableQuantity,
		Material:          t.Material,
		Description:       t.Description,
		InboundDate:       t.InboundDate,
	}
}

func toOrder(o domain.RetrievalOrder) Order {
	return Order{
		ID:          o.ID,
		TrayID:      o.TrayID,
		Status:      string(o.Status),
		StationName: o.StationName,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func toSnapshot(s domain.LocationSnapshot) Snapshot {
	out := Snapshot{
		Material:  s.Material,
		Storage:   make([]Tray, 0, len(s.Storage)),
		Station:   make([]StationTray, 0, len(s.Station)),
		FetchedAt: s.FetchedAt,
		Freshness: string(s.Freshness),
		LastError: s.LastError,
	}
	for _, t := range s.Storage {
		out.Storage = append(out.Storage, toTray(t))
	}
	for _, t := range s.Station {
		st := StationTray{Tray: toTray(t.Tray)}
		if t.Order != nil {
			o := toOrder(*t.Order)
			st.Order = &o
		}
		out.Station = append(out.Station, st)
	}
	return out
}

func toTransaction(t domain.Transaction) Transaction {
	return Transaction{
		ID:          t.ID,
		OrderID:     t.OrderID,
		TrayID:      t.TrayID,
		Material:    t.Material,
		Quantity:    t.Quantity,
		Type:        string(t.Type),
		Date:        t.Date,
		SapOrderRef: t.SapOrderRef,
	}
}

func toReport(r domain.ReconcileReport) ReconcileReport {
	out := ReconcileReport{
		Material:  r.Query.Material,
		Status:    string(r.Query.Status),
		Records:   make([]ReconcileRecord, 0, len(r.Records)),
		FetchedAt: r.FetchedAt,
		Freshness: string(r.Freshness),
		LastError: r.LastError,
	}
	for _, rec := range r.Records {
		out.Records = append(out.Records, ReconcileRecord{
			Material:     rec.Material,
			Description:  rec.Description,
			SapQuantity:  rec.SapQuantity,
			ItemQuantity: rec.ItemQuantity,
			Difference:   rec.Difference,
			Status:       string(rec.Status),
			Actionable:   rec.Actionable(),
			UpdatedAt:    rec.UpdatedAt,
		})
	}
	return out
}

func toSapOrders(orders []domain.SapOrder) SapOrders {
	out := SapOrders{Orders: make([]SapOrder, 0, len(orders))}
	for _, o := range orders {
		out.Orders = append(out.Orders, SapOrder{
			Ref:            o.Ref,
			TotalItems:     o.TotalItems,
			PendingItems:   o.PendingItems,
			CompletedItems: o.CompletedItems,
			Status:         o.Status,
		})
	}
	return out
}

func toOrderLines(lines []domain.OrderLine) OrderLines {
	out := OrderLines{Lines: make([]OrderLine, 0, len(lines))}
	for _, l := range lines {
		out.Lines = append(out.Lines, OrderLine{
			OrderRef:         l.OrderRef,
			Material:         l.Material,
			Description:      l.Description,
			RequiredQuantity: l.RequiredQuantity,
			ConsumedQuantity: l.ConsumedQuantity,
			Remaining:        l.Remaining(),
		})
	}
	return out
}
