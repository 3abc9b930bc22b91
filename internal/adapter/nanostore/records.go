package nanostore

import (
	"strconv"
	"time"

	"github.com/rl1809/station-pick/internal/core/domain"
)

const (
	trayReadyToUse  = "tray_ready_to_use"
	statusCompleted = "completed"
	dateLayout      = "2006-01-02T15:04:05"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	dateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type trayRecord struct {
	ID                int64  `json:"id"`
	TrayID            string `json:"tray_id"`
	TrayStatus        string `json:"tray_status"`
	AvailableQuantity int    `json:"available_quantity"`
	InboundDate       string `json:"inbound_date"`
	ItemID            string `json:"item_id"`
	ItemDescription   string `json:"item_description"`
}

func (r trayRecord) toDomain(inStation bool) domain.Tray {
	location := domain.LocationStorage
	if inStation {
		location = domain.LocationStation
	}
	return domain.Tray{
		ID:                r.TrayID,
		Code:              r.TrayID,
		Location:          location,
		AvailableQuantity: r.AvailableQuantity,
		Material:          r.ItemID,
		Description:       r.ItemDescription,
		InboundDate:       parseTime(r.InboundDate),
	}
}

type orderRecord struct {
	ID                  int64  `json:"id"`
	TrayID              string `json:"tray_id"`
	TrayStatus          string `json:"tray_status"`
	Status              string `json:"status"`
	StationFriendlyName string `json:"station_friendly_name"`
	CreatedAt           string `json:"created_at"`
	UpdatedAt           string `json:"updated_at"`
}

// status derives the lifecycle state: the robot marks a delivered tray
// ready to use, and completion is explicit.
func (r orderRecord) status() domain.OrderStatus {
	switch {
	case r.Status == statusCompleted:
		return domain.OrderStatusCompleted
	case r.TrayStatus == trayReadyToUse:
		return domain.OrderStatusActive
	default:
		return domain.OrderStatusRequested
	}
}

func (r orderRecord) toDomain() domain.RetrievalOrder {
	return domain.RetrievalOrder{
		ID:          strconv.FormatInt(r.ID, 10),
		TrayID:      r.TrayID,
		Status:      r.status(),
		StationName: r.StationFriendlyName,
		CreatedAt:   parseTime(r.CreatedAt),
		UpdatedAt:   parseTime(r.UpdatedAt),
	}
}

type reconcileRecord struct {
	Material           string `json:"material"`
	ItemDescription    string `json:"item_description"`
	SapQuantity        int    `json:"sap_quantity"`
	ItemQuantity       int    `json:"item_quantity"`
	QuantityDifference int    `json:"quantity_difference"`
	ReconcileStatus    string `json:"reconcile_status"`
	UpdatedAt          string `json:"updated_at"`
}

func (r reconcileRecord) toDomain() domain.ReconciliationRecord {
	return domain.ReconciliationRecord{
		Material:     r.Material,
		Description:  r.ItemDescription,
		SapQuantity:  r.SapQuantity,
		ItemQuantity: r.ItemQuantity,
		Difference:   r.QuantityDifference,
		Status:       domain.ReconcileStatus(r.ReconcileStatus),
		UpdatedAt:    parseTime(r.UpdatedAt),
	}
}

type sapOrderRecord struct {
	OrderRef       string `json:"order_ref"`
	TotalItems     int    `json:"total_items"`
	PendingItems   int    `json:"pending_items"`
	CompletedItems int    `json:"completed_items"`
	OrderStatus    string `json:"order_status"`
}

func (r sapOrderRecord) toDomain() domain.SapOrder {
	return domain.SapOrder{
		Ref:            r.OrderRef,
		TotalItems:     r.TotalItems,
		PendingItems:   r.PendingItems,
		CompletedItems: r.CompletedItems,
		Status:         r.OrderStatus,
	}
}

type orderLineRecord struct {
	OrderRef        string `json:"order_ref"`
	Material        string `json:"material"`
	ItemDescription string `json:"item_description"`
	Quantity        int    `json:"quantity"`
	PickedQuantity  int    `json:"picked_quantity"`
}

func (r orderLineRecord) toDomain() domain.OrderLine {
	return domain.OrderLine{
		OrderRef:         r.OrderRef,
		Material:         r.Material,
		Description:      r.ItemDescription,
		RequiredQuantity: r.Quantity,
		ConsumedQuantity: r.PickedQuantity,
	}
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
