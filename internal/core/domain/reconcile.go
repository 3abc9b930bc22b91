package domain

import "time"

type ReconcileStatus string

const (
	ReconcileMatched       ReconcileStatus = "matched"
	ReconcileSapShortage   ReconcileStatus = "sap_shortage"
	ReconcileRobotShortage ReconcileStatus = "robot_shortage"
)

func (s ReconcileStatus) Valid() bool {
	switch s {
	case ReconcileMatched, ReconcileSapShortage, ReconcileRobotShortage:
		return true
	}
	return false
}

// Classify compares the ERP quantity with the physically tracked one.
// difference = item - sap; exactly one status holds for any pair.
func Classify(sapQuantity, itemQuantity int) (int, ReconcileStatus) {
	difference := itemQuantity - sapQuantity
	switch {
	case difference < 0:
		return difference, ReconcileSapShortage
	case difference > 0:
		return difference, ReconcileRobotShortage
	default:
		return difference, ReconcileMatched
	}
}

// ReconciliationRecord is computed by the backend. Status is authoritative
// and is never re-derived for display.
type ReconciliationRecord struct {
	Material     string
	Description  string
	SapQuantity  int
	ItemQuantity int
	Difference   int
	Status       ReconcileStatus
	UpdatedAt    time.Time
}

// Actionable reports whether the record feeds the retrieval workflow.
// Matched records are read-only.
func (r ReconciliationRecord) Actionable() bool {
	return r.Status == ReconcileSapShortage || r.Status == ReconcileRobotShortage
}

// ReconcileQuery filters the backend report. Zero values mean "any".
type ReconcileQuery struct {
	Material string
	Status   ReconcileStatus
}

type ReconcileReport struct {
	Query     ReconcileQuery
	Records   []ReconciliationRecord
	FetchedAt time.Time
	Freshness Freshness
	LastError string
}
