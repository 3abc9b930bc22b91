package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/station-pick/internal/core/domain"
	"github.com/rl1809/station-pick/internal/port"
)

type Options struct {
	CallTimeout time.Duration
	Snapshots   port.SnapshotStore
	Lease       port.TrayLease // nil keeps tray locking in-process
	LeaseTTL    time.Duration
	Owner       string
	Sync        SchedulerConfig
}

// Station is the surface the HTTP, gRPC and CLI adapters drive.
// Reads come from the scheduler-refreshed services; writes go straight
// to the backend under the tray lock.
type Station struct {
	orders    *OrderService
	ledger    *LedgerService
	locations *LocationService
	reconcile *ReconcileService
	scheduler *SyncScheduler

	sap     port.SapOrderReader
	timeout time.Duration
}

func NewStation(backend port.InventoryBackend, opts Options) *Station {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 30 * time.Second
	}
	if opts.Owner == "" {
		opts.Owner = uuid.NewString()
	}

	locks := newTrayLocks(opts.Lease, opts.Owner, opts.LeaseTTL)
	locations := NewLocationService(backend, backend, opts.Snapshots, opts.CallTimeout)
	reconcile := NewReconcileService(backend, opts.CallTimeout)

	return &Station{
		orders:    newOrderService(backend, locations, locks, opts.CallTimeout),
		ledger:    newLedgerService(backend, backend, backend, locations, locks, opts.CallTimeout),
		locations: locations,
		reconcile: reconcile,
		scheduler: NewSyncScheduler(locations, reconcile, opts.Sync),
		sap:       backend,
		timeout:   opts.CallTimeout,
	}
}

func (s *Station) Start() error {
	return s.scheduler.Start()
}

func (s *Station) Close() {
	s.scheduler.Stop()
}

func (s *Station) EnsureOrder(ctx context.Context, tray domain.Tray) (domain.RetrievalOrder, error) {
	return s.orders.EnsureOrder(ctx, tray)
}

func (s *Station) ReadyOrder(ctx context.Context, tray domain.Tray) (domain.RetrievalOrder, error) {
	return s.orders.ReadyOrder(ctx, tray)
}

func (s *Station) Order(ctx context.Context, orderID string) (domain.RetrievalOrder, error) {
	return s.orders.Get(ctx, orderID)
}

func (s *Station) Release(ctx context.Context, orderID string) error {
	return s.orders.Release(ctx, orderID)
}

func (s *Station) Pick(ctx context.Context, req PickRequest) (domain.Transaction, error) {
	return s.ledger.Pick(ctx, req)
}

func (s *Station) Inbound(ctx context.Context, req InboundRequest) (domain.Transaction, error) {
	return s.ledger.Inbound(ctx, req)
}

// Locations also puts the material on the refresh schedule.
func (s *Station) Locations(ctx context.Context, material string) (domain.LocationSnapshot, error) {
	snapshot, err := s.locations.Locations(ctx, material)
	if err != nil {
		return snapshot, err
	}
	s.scheduler.Watch(material)
	return snapshot, nil
}

func (s *Station) Reconciliation(ctx context.Context, query domain.ReconcileQuery) (domain.ReconcileReport, error) {
	return s.reconcile.Report(ctx, query)
}

func (s *Station) SapOrders(ctx context.Context, status string) ([]domain.SapOrder, error) {
	var orders []domain.SapOrder
	err := call(ctx, s.timeout, "sap orders", func(ctx context.Context) error {
		var err error
		orders, err = s.sap.ListSapOrders(ctx, status)
		return err
	})
	return orders, err
}

func (s *Station) OrderLines(ctx context.Context, orderRef string) ([]domain.OrderLine, error) {
	if orderRef == "" {
		return nil, domain.Validationf("order reference is required")
	}
	var lines []domain.OrderLine
	err := call(ctx, s.timeout, "order lines", func(ctx context.Context) error {
		var err error
		lines, err = s.sap.OrderLines(ctx, orderRef)
		return err
	})
	return lines, err
}

func (s *Station) Refresh(ctx context.Context) error {
	return s.scheduler.Refresh(ctx)
}

func (s *Station) SyncStatus() SyncStatus {
	return s.scheduler.Status()
}
