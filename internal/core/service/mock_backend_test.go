package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rl1809/station-pick/internal/core/domain"
)

// Mock InventoryBackend. Submitted transactions are applied synchronously
// so follow-up reads see them.
type mockBackend struct {
	mu           sync.Mutex
	trays        map[string]*domain.Tray
	orders       map[string]*domain.RetrievalOrder
	lines        map[string][]domain.OrderLine
	records      []domain.ReconciliationRecord
	transactions []domain.Transaction
	nextOrderID  int

	latency       time.Duration
	failLocate    error
	failSubmit    error
	failReport    error
	createCalls   int
	locateCalls   int
	submitGate    chan struct{} // when set, SubmitTransaction blocks until closed
	submitEntered chan struct{}
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		trays:  make(map[string]*domain.Tray),
		orders: make(map[string]*domain.RetrievalOrder),
		lines:  make(map[string][]domain.OrderLine),
	}
}

func (m *mockBackend) addTray(t domain.Tray) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trays[t.ID] = &t
}

func (m *mockBackend) addLine(l domain.OrderLine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines[l.OrderRef] = append(m.lines[l.OrderRef], l)
}

// deliver plays the robot: the tray arrives and its order becomes active.
func (m *mockBackend) deliver(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[orderID]
	o.Status = domain.OrderStatusActive
	m.trays[o.TrayID].Location = domain.LocationStation
}

func (m *mockBackend) setFailLocate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failLocate = err
}

func (m *mockBackend) counts() (creates, locates int, txns []domain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls, m.locateCalls, append([]domain.Transaction(nil), m.transactions...)
}

func (m *mockBackend) wait(ctx context.Context) error {
	if m.latency == 0 {
		return nil
	}
	select {
	case <-time.After(m.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockBackend) Locate(ctx context.Context, material string, inStation bool) ([]domain.Tray, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locateCalls++
	if m.failLocate != nil {
		return nil, m.failLocate
	}
	want := domain.LocationStorage
	if inStation {
		want = domain.LocationStation
	}
	var out []domain.Tray
	for _, t := range m.trays {
		if t.Material == material && t.Location == want {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockBackend) FindOrder(ctx context.Context, trayID string, filter domain.OrderFilter) (*domain.RetrievalOrder, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.TrayID != trayID || o.Completed() {
			continue
		}
		if filter.ReadyOnly && !o.Ready() {
			continue
		}
		found := *o
		return &found, nil
	}
	return nil, nil
}

func (m *mockBackend) GetOrder(ctx context.Context, orderID string) (domain.RetrievalOrder, error) {
	if err := m.wait(ctx); err != nil {
		return domain.RetrievalOrder{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return domain.RetrievalOrder{}, domain.NotFoundf("order %s", orderID)
	}
	return *o, nil
}

func (m *mockBackend) CreateOrder(ctx context.Context, trayID string) (domain.RetrievalOrder, error) {
	if err := m.wait(ctx); err != nil {
		return domain.RetrievalOrder{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	m.nextOrderID++
	o := &domain.RetrievalOrder{
		ID:        strconv.Itoa(m.nextOrderID),
		TrayID:    trayID,
		Status:    domain.OrderStatusRequested,
		CreatedAt: time.Now(),
	}
	m.orders[o.ID] = o
	return *o, nil
}

func (m *mockBackend) CompleteOrder(ctx context.Context, orderID string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return domain.NotFoundf("order %s", orderID)
	}
	if o.Completed() {
		return errors.New("order already completed")
	}
	o.Status = domain.OrderStatusCompleted
	if t, ok := m.trays[o.TrayID]; ok {
		t.Location = domain.LocationStorage
	}
	return nil
}

func (m *mockBackend) SubmitTransaction(ctx context.Context, tx domain.Transaction) error {
	m.mu.Lock()
	gate, entered := m.submitGate, m.submitEntered
	m.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := m.wait(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSubmit != nil {
		return m.failSubmit
	}
	m.transactions = append(m.transactions, tx)
	if tx.Type == domain.TransactionOutbound {
		m.trays[tx.TrayID].AvailableQuantity += tx.Quantity
		lines := m.lines[tx.SapOrderRef]
		for i := range lines {
			if lines[i].Material == tx.Material {
				lines[i].ConsumedQuantity -= tx.Quantity
			}
		}
	}
	return nil
}

func (m *mockBackend) ReconcileReport(ctx context.Context, query domain.ReconcileQuery) ([]domain.ReconciliationRecord, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReport != nil {
		return nil, m.failReport
	}
	return append([]domain.ReconciliationRecord(nil), m.records...), nil
}

func (m *mockBackend) ListSapOrders(ctx context.Context, status string) ([]domain.SapOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SapOrder
	for ref, lines := range m.lines {
		o := domain.SapOrder{Ref: ref, TotalItems: len(lines), Status: "active"}
		for _, l := range lines {
			if l.Remaining() == 0 {
				o.CompletedItems++
			} else {
				o.PendingItems++
			}
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *mockBackend) OrderLines(ctx context.Context, orderRef string) ([]domain.OrderLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OrderLine(nil), m.lines[orderRef]...), nil
}

// Mock SnapshotStore
type mockSnapshots struct {
	mu    sync.Mutex
	saved map[string]domain.LocationSnapshot
}

func newMockSnapshots() *mockSnapshots {
	return &mockSnapshots{saved: make(map[string]domain.LocationSnapshot)}
}

func (m *mockSnapshots) Load(ctx context.Context, material string) (*domain.LocationSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.saved[material]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *mockSnapshots) Save(ctx context.Context, snapshot domain.LocationSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[snapshot.Material] = snapshot
	return nil
}

// Mock TrayLease
type mockLease struct {
	mu      sync.Mutex
	holders map[string]string
}

func (m *mockLease) Acquire(ctx context.Context, trayID, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.holders[trayID]; ok && h != owner {
		return false, nil
	}
	m.holders[trayID] = owner
	return true, nil
}

func (m *mockLease) Release(ctx context.Context, trayID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holders[trayID] == owner {
		delete(m.holders, trayID)
	}
	return nil
}

func newTestStation(backend *mockBackend) *Station {
	return NewStation(backend, Options{
		CallTimeout: time.Second,
		Snapshots:   newMockSnapshots(),
		Owner:       "test-station",
	})
}

var (
	inbound1 = time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	inbound2 = time.Date(2025, 2, 10, 8, 0, 0, 0, time.UTC)
)

func tray(id, material string, loc domain.TrayLocation, available int, inbound time.Time) domain.Tray {
	return domain.Tray{
		ID:                id,
		Code:              id,
		Location:          loc,
		AvailableQuantity: available,
		Material:          material,
		InboundDate:       inbound,
	}
}
