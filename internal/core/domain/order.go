package domain

import "time"

type OrderStatus string

const (
	OrderStatusRequested OrderStatus = "requested"
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCompleted OrderStatus = "completed"
)

// RetrievalOrder asks the robot to bring a tray from storage to a station.
// Only one non-completed order may exist per tray.
type RetrievalOrder struct {
	ID          string
	TrayID      string
	Status      OrderStatus
	StationName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (o RetrievalOrder) Completed() bool {
	return o.Status == OrderStatusCompleted
}

// Ready reports whether the robot has delivered the tray.
func (o RetrievalOrder) Ready() bool {
	return o.Status == OrderStatusActive
}

// OrderFilter narrows FindOrder lookups.
type OrderFilter struct {
	// ReadyOnly restricts the lookup to orders whose tray is at the station.
	ReadyOnly bool
}

// OrderLine is one material line of an SAP order.
type OrderLine struct {
	OrderRef         string
	Material         string
	Description      string
	RequiredQuantity int
	ConsumedQuantity int
}

func (l OrderLine) Remaining() int {
	if l.ConsumedQuantity >= l.RequiredQuantity {
		return 0
	}
	return l.RequiredQuantity - l.ConsumedQuantity
}

// SapOrder summarizes an SAP order for selection screens.
type SapOrder struct {
	Ref            string
	TotalItems     int
	PendingItems   int
	CompletedItems int
	Status         string
}
