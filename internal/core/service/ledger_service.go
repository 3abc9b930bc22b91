package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/station-pick/internal/core/domain"
	"github.com/rl1809/station-pick/internal/port"
)

// PickRequest carries one pick workflow. It is built per pick and never
// shared, so concurrent picks on different trays cannot see each other.
type PickRequest struct {
	OrderID     string
	Material    string
	Quantity    int
	Tray        domain.Tray
	SapOrderRef string // empty for the reconciliation pick flow
}

type InboundRequest struct {
	Material string
	Quantity int
	TrayID   string // optional put-away tray
}

// LedgerService records quantity movements. A submission either fully
// succeeds or leaves nothing behind; failures are never retried here since
// the backend has no deduplication key.
type LedgerService struct {
	orders    port.OrderRepository
	writer    port.TransactionWriter
	lines     port.SapOrderReader
	locations *LocationService
	locks     *trayLocks
	inflight  *inflight
	timeout   time.Duration
	now       func() time.Time
}

func newLedgerService(orders port.OrderRepository, writer port.TransactionWriter, lines port.SapOrderReader,
	locations *LocationService, locks *trayLocks, timeout time.Duration) *LedgerService {
	return &LedgerService{
		orders:    orders,
		writer:    writer,
		lines:     lines,
		locations: locations,
		locks:     locks,
		inflight:  newInflight(),
		timeout:   timeout,
		now:       time.Now,
	}
}

// Pick removes quantity from a delivered tray against an order line.
func (s *LedgerService) Pick(ctx context.Context, req PickRequest) (domain.Transaction, error) {
	if req.OrderID == "" || req.Material == "" || req.Tray.ID == "" {
		return domain.Transaction{}, domain.Validationf("order id, material and tray are required")
	}
	if req.Quantity <= 0 {
		return domain.Transaction{}, domain.Validationf("pick quantity must be positive, got %d", req.Quantity)
	}

	key := "order:" + req.OrderID
	if !s.inflight.begin(key) {
		return domain.Transaction{}, domain.ErrSubmissionInFlight
	}
	defer s.inflight.end(key)

	unlock, err := s.locks.lock(ctx, req.Tray.ID)
	if err != nil {
		return domain.Transaction{}, err
	}
	defer unlock()

	var order domain.RetrievalOrder
	err = call(ctx, s.timeout, "get order", func(ctx context.Context) error {
		var err error
		order, err = s.orders.GetOrder(ctx, req.OrderID)
		return err
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	switch {
	case order.TrayID != req.Tray.ID:
		return domain.Transaction{}, domain.Conflictf("order %s belongs to tray %s, not %s", order.ID, order.TrayID, req.Tray.ID)
	case order.Completed():
		return domain.Transaction{}, domain.Conflictf("order %s already released", order.ID)
	case !order.Ready():
		return domain.Transaction{}, domain.ErrRetrievalNotReady
	}

	tray, err := s.locations.StationTray(ctx, req.Material, req.Tray.ID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if req.Quantity > tray.AvailableQuantity {
		return domain.Transaction{}, domain.Validationf("quantity %d exceeds tray %s availability %d",
			req.Quantity, tray.ID, tray.AvailableQuantity)
	}

	if req.SapOrderRef != "" {
		line, err := s.orderLine(ctx, req.SapOrderRef, req.Material)
		if err != nil {
			return domain.Transaction{}, err
		}
		if req.Quantity > line.Remaining() {
			return domain.Transaction{}, domain.Validationf("quantity %d exceeds order %s line %s remaining %d",
				req.Quantity, line.OrderRef, line.Material, line.Remaining())
		}
	}

	date := tray.InboundDate
	if date.IsZero() {
		date = s.now()
	}
	txn := domain.Transaction{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		TrayID:      tray.ID,
		Material:    req.Material,
		Quantity:    -req.Quantity,
		Type:        domain.TransactionOutbound,
		Date:        date,
		SapOrderRef: req.SapOrderRef,
	}
	if err := s.submit(ctx, txn); err != nil {
		return domain.Transaction{}, err
	}
	return txn, nil
}

// Inbound adds stock for a material. It is not bounded by any order line.
func (s *LedgerService) Inbound(ctx context.Context, req InboundRequest) (domain.Transaction, error) {
	if req.Material == "" {
		return domain.Transaction{}, domain.Validationf("material is required")
	}
	if req.Quantity <= 0 {
		return domain.Transaction{}, domain.Validationf("inbound quantity must be positive, got %d", req.Quantity)
	}

	key := "inbound:" + req.Material
	if !s.inflight.begin(key) {
		return domain.Transaction{}, domain.ErrSubmissionInFlight
	}
	defer s.inflight.end(key)

	if req.TrayID != "" {
		unlock, err := s.locks.lock(ctx, req.TrayID)
		if err != nil {
			return domain.Transaction{}, err
		}
		defer unlock()
	}

	txn := domain.Transaction{
		ID:       uuid.NewString(),
		OrderID:  domain.InboundOrderRef,
		TrayID:   req.TrayID,
		Material: req.Material,
		Quantity: req.Quantity,
		Type:     domain.TransactionInbound,
		Date:     s.now(),
	}
	if err := s.submit(ctx, txn); err != nil {
		return domain.Transaction{}, err
	}
	return txn, nil
}

func (s *LedgerService) submit(ctx context.Context, txn domain.Transaction) error {
	err := call(ctx, s.timeout, "submit transaction", func(ctx context.Context) error {
		return s.writer.SubmitTransaction(ctx, txn)
	})
	if err != nil {
		log.Printf("ledger: %s %s qty=%d order=%s failed, not retrying: %v",
			txn.Type, txn.Material, txn.Quantity, txn.OrderID, err)
		return err
	}

	s.locations.Invalidate(txn.Material)
	log.Printf("ledger: recorded %s %s qty=%d order=%s tx=%s", txn.Type, txn.Material, txn.Quantity, txn.OrderID, txn.ID)
	return nil
}

func (s *LedgerService) orderLine(ctx context.Context, orderRef, material string) (domain.OrderLine, error) {
	var lines []domain.OrderLine
	err := call(ctx, s.timeout, "order lines", func(ctx context.Context) error {
		var err error
		lines, err = s.lines.OrderLines(ctx, orderRef)
		return err
	})
	if err != nil {
		return domain.OrderLine{}, err
	}
	for _, l := range lines {
		if l.Material == material {
			return l, nil
		}
	}
	return domain.OrderLine{}, domain.NotFoundf("order %s has no line for %s", orderRef, material)
}
