package port

import (
	"context"

	"github.com/rl1809/station-pick/internal/core/domain"
)

type LocationReader interface {
	// Locate lists a material's trays either at the station or in storage
	Locate(ctx context.Context, material string, inStation bool) ([]domain.Tray, error)
}

type OrderRepository interface {
	// FindOrder returns the tray's non-completed order, or nil when there is none
	FindOrder(ctx context.Context, trayID string, filter domain.OrderFilter) (*domain.RetrievalOrder, error)

	// GetOrder returns domain.ErrNotFound for unknown ids
	GetOrder(ctx context.Context, orderID string) (domain.RetrievalOrder, error)

	// CreateOrder requests a tray retrieval; not idempotent
	CreateOrder(ctx context.Context, trayID string) (domain.RetrievalOrder, error)

	// CompleteOrder releases the tray back to storage; not idempotent
	CompleteOrder(ctx context.Context, orderID string) error
}

type TransactionWriter interface {
	// SubmitTransaction appends a ledger entry; not idempotent
	SubmitTransaction(ctx context.Context, tx domain.Transaction) error
}

type ReconcileReader interface {
	// ReconcileReport returns backend-classified records for the query
	ReconcileReport(ctx context.Context, query domain.ReconcileQuery) ([]domain.ReconciliationRecord, error)
}

type SapOrderReader interface {
	ListSapOrders(ctx context.Context, status string) ([]domain.SapOrder, error)
	OrderLines(ctx context.Context, orderRef string) ([]domain.OrderLine, error)
}

// InventoryBackend is the external system of record.
type InventoryBackend interface {
	LocationReader
	OrderRepository
	TransactionWriter
	ReconcileReader
	SapOrderReader
}
