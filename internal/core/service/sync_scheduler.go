package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/station-pick/internal/core/domain"
)

type SchedulerConfig struct {
	Interval    time.Duration
	MaxFailures int // consecutive failed rounds before reporting degraded
	MaxBackoff  int // most ticks skipped while degraded
}

type SyncStatus struct {
	Degraded            bool      `json:"degraded"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	LastAttempt         time.Time `json:"last_attempt"`
	LastSuccess         time.Time `json:"last_success"`
	Watched             []string  `json:"watched"`
}

// SyncScheduler keeps watched materials fresh. It only reads; user
// mutations invalidate snapshots so a slow poll cannot overwrite them.
type SyncScheduler struct {
	locations *LocationService
	reconcile *ReconcileService
	cfg       SchedulerConfig
	cron      *cron.Cron

	mu          sync.Mutex
	watched     map[string]struct{}
	failures    int
	skip        int
	lastErr     string
	lastAttempt time.Time
	lastSuccess time.Time
}

func NewSyncScheduler(locations *LocationService, reconcile *ReconcileService, cfg SchedulerConfig) *SyncScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 12
	}
	return &SyncScheduler{
		locations: locations,
		reconcile: reconcile,
		cfg:       cfg,
		watched:   make(map[string]struct{}),
	}
}

func (s *SyncScheduler) Watch(material string) {
	if material == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched[material] = struct{}{}
}

func (s *SyncScheduler) Unwatch(material string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watched, material)
}

func (s *SyncScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	logger := cron.PrintfLogger(log.Default())
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.Interval), s.tick); err != nil {
		return fmt.Errorf("schedule sync: %w", err)
	}
	c.Start()
	s.cron = c
	log.Printf("sync: refreshing every %s", s.cfg.Interval)
	return nil
}

// Stop halts the schedule and waits for a running round to finish.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	log.Println("sync: stopped")
}

// Refresh runs a round now, ignoring any backoff.
func (s *SyncScheduler) Refresh(ctx context.Context) error {
	err := s.round(ctx)
	s.record(err)
	return err
}

func (s *SyncScheduler) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SyncStatus{
		Degraded:            s.failures >= s.cfg.MaxFailures,
		ConsecutiveFailures: s.failures,
		LastError:           s.lastErr,
		LastAttempt:         s.lastAttempt,
		LastSuccess:         s.lastSuccess,
		Watched:             s.materials(),
	}
}

func (s *SyncScheduler) tick() {
	s.mu.Lock()
	if s.skip > 0 {
		s.skip--
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Interval)
	defer cancel()
	s.record(s.round(ctx))
}

func (s *SyncScheduler) round(ctx context.Context) error {
	s.mu.Lock()
	materials := s.materials()
	s.mu.Unlock()

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(orderLookupConcurrency)
	for _, m := range materials {
		m := m
		g.Go(func() error {
			err := errors.Join(
				s.locations.Refresh(gctx, m),
				s.reconcile.Refresh(gctx, domain.ReconcileQuery{Material: m}),
			)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", m, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (s *SyncScheduler) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastAttempt = time.Now()
	if err == nil {
		if s.failures >= s.cfg.MaxFailures {
			log.Printf("sync: recovered after %d failed rounds", s.failures)
		}
		s.failures = 0
		s.skip = 0
		s.lastErr = ""
		s.lastSuccess = s.lastAttempt
		return
	}

	s.failures++
	s.lastErr = err.Error()
	if s.failures < s.cfg.MaxFailures {
		log.Printf("sync: round failed (%d/%d): %v", s.failures, s.cfg.MaxFailures, err)
		return
	}

	// Degraded: skip 1, 3, 7, ... ticks up to MaxBackoff.
	skip := s.cfg.MaxBackoff
	if exp := s.failures - s.cfg.MaxFailures + 1; exp < 31 {
		skip = min(1<<exp-1, s.cfg.MaxBackoff)
	}
	s.skip = skip
	log.Printf("sync: degraded after %d failed rounds, skipping %d ticks: %v", s.failures, skip, err)
}

// materials must be called with mu held.
func (s *SyncScheduler) materials() []string {
	out := make([]string, 0, len(s.watched))
	for m := range s.watched {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
