package service

import (
	"context"
	"log"
	"time"

	"github.com/rl1809/station-pick/internal/core/domain"
	"github.com/rl1809/station-pick/internal/port"
)

// OrderService owns the retrieval order lifecycle:
// requested -> active -> completed, completed being terminal.
type OrderService struct {
	orders    port.OrderRepository
	locations *LocationService
	locks     *trayLocks
	timeout   time.Duration
}

func newOrderService(orders port.OrderRepository, locations *LocationService, locks *trayLocks, timeout time.Duration) *OrderService {
	return &OrderService{
		orders:    orders,
		locations: locations,
		locks:     locks,
		timeout:   timeout,
	}
}

// EnsureOrder returns the tray's open order, creating one if none exists.
// Check and create run under the tray lock so concurrent callers share one order.
func (s *OrderService) EnsureOrder(ctx context.Context, tray domain.Tray) (domain.RetrievalOrder, error) {
	if tray.ID == "" || tray.Material == "" {
		return domain.RetrievalOrder{}, domain.Validationf("tray id and material are required")
	}

	unlock, err := s.locks.lock(ctx, tray.ID)
	if err != nil {
		return domain.RetrievalOrder{}, err
	}
	defer unlock()

	if _, err := s.locations.LookupTray(ctx, tray.Material, tray.ID); err != nil {
		return domain.RetrievalOrder{}, err
	}

	existing, err := s.findOpen(ctx, tray.ID)
	if err != nil {
		return domain.RetrievalOrder{}, err
	}
	if existing != nil {
		log.Printf("ensure order: reusing order %s for tray %s (%s)", existing.ID, tray.ID, existing.Status)
		return *existing, nil
	}

	var order domain.RetrievalOrder
	err = call(ctx, s.timeout, "create order", func(ctx context.Context) error {
		var err error
		order, err = s.orders.CreateOrder(ctx, tray.ID)
		return err
	})
	if err != nil {
		log.Printf("ensure order: create for tray %s failed: %v", tray.ID, err)
		return domain.RetrievalOrder{}, err
	}

	s.locations.Invalidate(tray.Material)
	log.Printf("ensure order: created order %s for tray %s", order.ID, tray.ID)
	return order, nil
}

// ReadyOrder is EnsureOrder for pick flows: it fails with
// domain.ErrRetrievalNotReady until the robot has delivered the tray.
func (s *OrderService) ReadyOrder(ctx context.Context, tray domain.Tray) (domain.RetrievalOrder, error) {
	order, err := s.EnsureOrder(ctx, tray)
	if err != nil {
		return domain.RetrievalOrder{}, err
	}
	if !order.Ready() {
		return order, domain.ErrRetrievalNotReady
	}
	return order, nil
}

// Release completes the order. Releasing a completed order is a no-op;
// releasing a requested one cancels the retrieval.
func (s *OrderService) Release(ctx context.Context, orderID string) error {
	if orderID == "" {
		return domain.Validationf("order id is required")
	}

	order, err := s.get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Completed() {
		return nil
	}

	unlock, err := s.locks.lock(ctx, order.TrayID)
	if err != nil {
		return err
	}
	defer unlock()

	// Re-read under the lock: a concurrent release may have won.
	order, err = s.get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Completed() {
		return nil
	}

	err = call(ctx, s.timeout, "complete order", func(ctx context.Context) error {
		return s.orders.CompleteOrder(ctx, orderID)
	})
	if err != nil {
		log.Printf("release: order %s failed: %v", orderID, err)
		return err
	}

	s.locations.InvalidateAll()
	log.Printf("release: order %s for tray %s completed from %s", orderID, order.TrayID, order.Status)
	return nil
}

// Get returns the order with its current backend status.
func (s *OrderService) Get(ctx context.Context, orderID string) (domain.RetrievalOrder, error) {
	if orderID == "" {
		return domain.RetrievalOrder{}, domain.Validationf("order id is required")
	}
	return s.get(ctx, orderID)
}

func (s *OrderService) get(ctx context.Context, orderID string) (domain.RetrievalOrder, error) {
	var order domain.RetrievalOrder
	err := call(ctx, s.timeout, "get order", func(ctx context.Context) error {
		var err error
		order, err = s.orders.GetOrder(ctx, orderID)
		return err
	})
	return order, err
}

func (s *OrderService) findOpen(ctx context.Context, trayID string) (*domain.RetrievalOrder, error) {
	var order *domain.RetrievalOrder
	err := call(ctx, s.timeout, "find order", func(ctx context.Context) error {
		var err error
		order, err = s.orders.FindOrder(ctx, trayID, domain.OrderFilter{})
		return err
	})
	if err != nil {
		return nil, err
	}
	if order != nil && order.Completed() {
		return nil, nil
	}
	return order, nil
}
