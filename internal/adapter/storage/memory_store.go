package storage

import (
	"context"
	"sync"

	"github.com/rl1809/station-pick/internal/core/domain"
)

// MemorySnapshotStore keeps snapshots for the life of the process.
type MemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]domain.LocationSnapshot
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: make(map[string]domain.LocationSnapshot)}
}

func (m *MemorySnapshotStore) Load(ctx context.Context, material string) (*domain.LocationSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.snapshots[material]
	if !ok {
		return nil, nil
	}
	s.Storage = append([]domain.Tray(nil), s.Storage...)
	s.Station = append([]domain.StationTray(nil), s.Station...)
	return &s, nil
}

func (m *MemorySnapshotStore) Save(ctx context.Context, snapshot domain.LocationSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.Material] = snapshot
	return nil
}
