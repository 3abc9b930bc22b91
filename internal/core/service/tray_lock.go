package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rl1809/station-pick/internal/core/domain"
	"github.com/rl1809/station-pick/internal/port"
)

// trayLocks serializes mutating sequences per tray. The backend offers no
// compare-and-swap, so this is the only guard against duplicate orders.
type trayLocks struct {
	mu    sync.Mutex
	locks map[string]*trayLock

	lease port.TrayLease
	owner string
	ttl   time.Duration
}

type trayLock struct {
	sem  chan struct{}
	refs int
}

func newTrayLocks(lease port.TrayLease, owner string, ttl time.Duration) *trayLocks {
	return &trayLocks{
		locks: make(map[string]*trayLock),
		lease: lease,
		owner: owner,
		ttl:   ttl,
	}
}

// lock blocks until the tray is free or ctx is done. The returned func must be
// called exactly once.
func (l *trayLocks) lock(ctx context.Context, trayID string) (func(), error) {
	l.mu.Lock()
	tl, ok := l.locks[trayID]
	if !ok {
		tl = &trayLock{sem: make(chan struct{}, 1)}
		l.locks[trayID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	select {
	case tl.sem <- struct{}{}:
	case <-ctx.Done():
		l.drop(trayID, tl)
		return nil, fmt.Errorf("waiting for tray %s: %w", trayID, ctx.Err())
	}

	if l.lease != nil {
		ok, err := l.lease.Acquire(ctx, trayID, l.owner, l.ttl)
		if err != nil {
			<-tl.sem
			l.drop(trayID, tl)
			return nil, fmt.Errorf("acquire lease for tray %s: %w: %w", trayID, domain.ErrTransient, err)
		}
		if !ok {
			<-tl.sem
			l.drop(trayID, tl)
			return nil, fmt.Errorf("tray %s: %w", trayID, domain.ErrTrayBusy)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if l.lease != nil {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				if err := l.lease.Release(ctx, trayID, l.owner); err != nil {
					log.Printf("tray lock: release lease for %s: %v", trayID, err)
				}
				cancel()
			}
			<-tl.sem
			l.drop(trayID, tl)
		})
	}, nil
}

func (l *trayLocks) drop(trayID string, tl *trayLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tl.refs--
	if tl.refs == 0 {
		delete(l.locks, trayID)
	}
}

// inflight rejects a second submission for a key instead of queueing it.
type inflight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{keys: make(map[string]struct{})}
}

func (f *inflight) begin(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.keys[key]; busy {
		return false
	}
	f.keys[key] = struct{}{}
	return true
}

func (f *inflight) end(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
}
