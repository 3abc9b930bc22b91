package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/rl1809/station-pick/internal/core/domain"
	"github.com/rl1809/station-pick/internal/port"
)

// ReconcileService serves the SAP vs physical quantity report. The backend
// status is authoritative; Classify is only used to flag drift.
type ReconcileService struct {
	reader  port.ReconcileReader
	timeout time.Duration
	now     func() time.Time

	mu   sync.Mutex
	last map[domain.ReconcileQuery]domain.ReconcileReport
}

func NewReconcileService(reader port.ReconcileReader, timeout time.Duration) *ReconcileService {
	return &ReconcileService{
		reader:  reader,
		timeout: timeout,
		now:     time.Now,
		last:    make(map[domain.ReconcileQuery]domain.ReconcileReport),
	}
}

// Report returns records matching the query. Backend failures degrade to
// the previous report for the same query, tagged stale.
func (s *ReconcileService) Report(ctx context.Context, query domain.ReconcileQuery) (domain.ReconcileReport, error) {
	if query.Status != "" && !query.Status.Valid() {
		return domain.ReconcileReport{}, domain.Validationf("unknown reconcile status %q", query.Status)
	}

	report, err := s.fetch(ctx, query)
	if err == nil {
		return report, nil
	}

	log.Printf("reconcile: %+v: %v", query, err)
	s.mu.Lock()
	last, ok := s.last[query]
	s.mu.Unlock()
	if ok {
		last.Freshness = domain.FreshnessStale
		last.LastError = err.Error()
		return last, nil
	}
	return domain.ReconcileReport{
		Query:     query,
		Freshness: domain.FreshnessUnavailable,
		LastError: err.Error(),
	}, nil
}

// Refresh re-reads the report for query, reporting backend failures.
func (s *ReconcileService) Refresh(ctx context.Context, query domain.ReconcileQuery) error {
	_, err := s.fetch(ctx, query)
	return err
}

// Record returns the reconciliation record of one material, if any.
func (s *ReconcileService) Record(ctx context.Context, material string) (domain.ReconciliationRecord, domain.Freshness, error) {
	report, err := s.Report(ctx, domain.ReconcileQuery{Material: material})
	if err != nil {
		return domain.ReconciliationRecord{}, "", err
	}
	for _, r := range report.Records {
		if r.Material == material {
			return r, report.Freshness, nil
		}
	}
	if report.Freshness == domain.FreshnessUnavailable {
		return domain.ReconciliationRecord{}, report.Freshness, nil
	}
	return domain.ReconciliationRecord{}, report.Freshness, domain.NotFoundf("no reconciliation record for %s", material)
}

func (s *ReconcileService) fetch(ctx context.Context, query domain.ReconcileQuery) (domain.ReconcileReport, error) {
	var records []domain.ReconciliationRecord
	err := call(ctx, s.timeout, "reconcile report", func(ctx context.Context) error {
		var err error
		records, err = s.reader.ReconcileReport(ctx, query)
		return err
	})
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.ReconcileReport{}, err
	}

	report := domain.ReconcileReport{
		Query:     query,
		Records:   filterRecords(records, query),
		FetchedAt: s.now(),
		Freshness: domain.FreshnessFresh,
	}
	for _, r := range report.Records {
		if diff, status := domain.Classify(r.SapQuantity, r.ItemQuantity); status != r.Status || diff != r.Difference {
			log.Printf("reconcile: backend drift for %s: reported %s/%d, quantities give %s/%d",
				r.Material, r.Status, r.Difference, status, diff)
		}
	}

	s.mu.Lock()
	s.last[query] = report
	s.mu.Unlock()
	return report, nil
}

func filterRecords(records []domain.ReconciliationRecord, query domain.ReconcileQuery) []domain.ReconciliationRecord {
	out := make([]domain.ReconciliationRecord, 0, len(records))
	for _, r := range records {
		if query.Status != "" && r.Status != query.Status {
			continue
		}
		if query.Material != "" && r.Material != query.Material {
			continue
		}
		out = append(out, r)
	}
	return out
}
