package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/station-pick/internal/core/domain"
	"github.com/rl1809/station-pick/internal/port"
)

const orderLookupConcurrency = 4

// LocationService answers "where are this material's trays". Reads never
// fail hard: a backend error yields the last snapshot tagged stale, or an
// unavailable snapshot when nothing is known yet.
type LocationService struct {
	reader  port.LocationReader
	orders  port.OrderRepository
	store   port.SnapshotStore
	timeout time.Duration
	now     func() time.Time

	group singleflight.Group

	mu             sync.Mutex
	invalidated    map[string]time.Time
	invalidatedAll time.Time
}

func NewLocationService(reader port.LocationReader, orders port.OrderRepository, store port.SnapshotStore, timeout time.Duration) *LocationService {
	return &LocationService{
		reader:      reader,
		orders:      orders,
		store:       store,
		timeout:     timeout,
		now:         time.Now,
		invalidated: make(map[string]time.Time),
	}
}

// Locations returns the material's trays split by partition, FIFO ordered.
// The only error is an invalid request.
func (s *LocationService) Locations(ctx context.Context, material string) (domain.LocationSnapshot, error) {
	if material == "" {
		return domain.LocationSnapshot{}, domain.Validationf("material is required")
	}

	snapshot, err := s.load(ctx, material)
	if err == nil {
		return snapshot, nil
	}

	log.Printf("locations: %s: %v", material, err)
	return s.fallback(ctx, material, err), nil
}

// Refresh fetches and stores a new snapshot, reporting backend failures.
func (s *LocationService) Refresh(ctx context.Context, material string) error {
	_, err := s.load(ctx, material)
	return err
}

// Invalidate marks every snapshot of material fetched before now as
// superseded by a mutation.
func (s *LocationService) Invalidate(material string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated[material] = s.now()
}

func (s *LocationService) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidatedAll = s.now()
}

// LookupTray finds a tray by reading the backend directly, bypassing snapshots.
func (s *LocationService) LookupTray(ctx context.Context, material, trayID string) (domain.Tray, error) {
	for _, inStation := range []bool{true, false} {
		tray, err := s.findLive(ctx, material, trayID, inStation)
		if err == nil {
			return tray, nil
		}
		if domain.KindOf(err) != domain.KindNotFound {
			return domain.Tray{}, err
		}
	}
	return domain.Tray{}, domain.NotFoundf("tray %s holding %s", trayID, material)
}

// StationTray reads a tray's live state, requiring it to be at the station.
func (s *LocationService) StationTray(ctx context.Context, material, trayID string) (domain.Tray, error) {
	return s.findLive(ctx, material, trayID, true)
}

func (s *LocationService) findLive(ctx context.Context, material, trayID string, inStation bool) (domain.Tray, error) {
	var trays []domain.Tray
	err := call(ctx, s.timeout, "locate", func(ctx context.Context) error {
		var err error
		trays, err = s.reader.Locate(ctx, material, inStation)
		return err
	})
	if err != nil {
		return domain.Tray{}, err
	}
	for _, t := range trays {
		if t.ID == trayID {
			return t, nil
		}
	}
	where := domain.LocationStorage
	if inStation {
		where = domain.LocationStation
	}
	return domain.Tray{}, domain.NotFoundf("tray %s holding %s in %s", trayID, material, where)
}

func (s *LocationService) load(ctx context.Context, material string) (domain.LocationSnapshot, error) {
	v, err, _ := s.group.Do(material, func() (interface{}, error) {
		return s.fetch(ctx, material)
	})
	if err != nil {
		return domain.LocationSnapshot{}, err
	}
	return v.(domain.LocationSnapshot), nil
}

func (s *LocationService) fetch(ctx context.Context, material string) (domain.LocationSnapshot, error) {
	started := s.now()
	snapshot := domain.LocationSnapshot{Material: material}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return call(gctx, s.timeout, "locate storage", func(ctx context.Context) error {
			trays, err := s.reader.Locate(ctx, material, false)
			snapshot.Storage = trays
			return err
		})
	})
	g.Go(func() error {
		var trays []domain.Tray
		err := call(gctx, s.timeout, "locate station", func(ctx context.Context) error {
			var err error
			trays, err = s.reader.Locate(ctx, material, true)
			return err
		})
		if err != nil {
			return err
		}
		snapshot.Station, err = s.withOrders(gctx, trays)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.LocationSnapshot{}, err
	}

	domain.SortFIFO(snapshot.Storage)
	sortStationFIFO(snapshot.Station)
	snapshot.FetchedAt = started
	snapshot.Freshness = domain.FreshnessFresh

	if s.superseded(material, started) {
		// A mutation landed while this fetch was running; keep the stored
		// snapshot and hand the result back as advisory only.
		snapshot.Freshness = domain.FreshnessStale
		return snapshot, nil
	}

	if s.store != nil {
		if err := s.store.Save(ctx, snapshot); err != nil {
			log.Printf("locations: save snapshot %s: %v", material, err)
		}
	}
	return snapshot, nil
}

// withOrders attaches the usable order of each station tray, if any.
func (s *LocationService) withOrders(ctx context.Context, trays []domain.Tray) ([]domain.StationTray, error) {
	out := make([]domain.StationTray, len(trays))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(orderLookupConcurrency)
	for i, tray := range trays {
		i, tray := i, tray
		out[i] = domain.StationTray{Tray: tray}
		g.Go(func() error {
			return call(gctx, s.timeout, "find order", func(ctx context.Context) error {
				order, err := s.orders.FindOrder(ctx, tray.ID, domain.OrderFilter{ReadyOnly: true})
				out[i].Order = order
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LocationService) superseded(material string, started time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return started.Before(s.invalidated[material]) || started.Before(s.invalidatedAll)
}

func (s *LocationService) fallback(ctx context.Context, material string, cause error) domain.LocationSnapshot {
	if s.store != nil {
		last, err := s.store.Load(ctx, material)
		if err != nil {
			log.Printf("locations: load snapshot %s: %v", material, err)
		}
		if last != nil {
			stale := *last
			stale.Freshness = domain.FreshnessStale
			stale.LastError = cause.Error()
			return stale
		}
	}
	return domain.LocationSnapshot{
		Material:  material,
		Freshness: domain.FreshnessUnavailable,
		LastError: fmt.Sprintf("no snapshot available: %v", cause),
	}
}

func sortStationFIFO(trays []domain.StationTray) {
	plain := make([]domain.Tray, len(trays))
	byID := make(map[string]*domain.RetrievalOrder, len(trays))
	for i, t := range trays {
		plain[i] = t.Tray
		byID[t.ID] = t.Order
	}
	domain.SortFIFO(plain)
	for i, t := range plain {
		trays[i] = domain.StationTray{Tray: t, Order: byID[t.ID]}
	}
}
