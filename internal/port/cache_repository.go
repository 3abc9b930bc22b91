package port

import (
	"context"
	"time"

	"github.com/rl1809/station-pick/internal/core/domain"
)

type TrayLease interface {
	// Acquire takes the tray for owner, returns false if someone else holds it
	Acquire(ctx context.Context, trayID, owner string, ttl time.Duration) (bool, error)

	// Release drops the lease only if owner still holds it
	Release(ctx context.Context, trayID, owner string) error
}

type SnapshotStore interface {
	// Load returns nil when no snapshot has been stored for the material
	Load(ctx context.Context, material string) (*domain.LocationSnapshot, error)

	Save(ctx context.Context, snapshot domain.LocationSnapshot) error
}
