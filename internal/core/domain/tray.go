package domain

import (
	"sort"
	"time"
)

type TrayLocation string

const (
	LocationStorage TrayLocation = "storage"
	LocationStation TrayLocation = "station"
)

type Tray struct {
	ID                string
	Code              string
	Location          TrayLocation
	AvailableQuantity int
	Material          string
	Description       string
	InboundDate       time.Time
}

// StationTray is a tray at the station together with the order that brought it.
type StationTray struct {
	Tray
	Order *RetrievalOrder
}

// SortFIFO orders trays oldest inbound first, the fulfilment policy for picks.
func SortFIFO(trays []Tray) {
	sort.SliceStable(trays, func(i, j int) bool {
		if !trays[i].InboundDate.Equal(trays[j].InboundDate) {
			return trays[i].InboundDate.Before(trays[j].InboundDate)
		}
		return trays[i].Code < trays[j].Code
	})
}

type Freshness string

const (
	FreshnessFresh       Freshness = "fresh"
	FreshnessStale       Freshness = "stale"
	FreshnessUnavailable Freshness = "unavailable"
)

// LocationSnapshot is the last observed placement of a material's trays.
// An unavailable snapshot carries no trays and must not be read as empty.
type LocationSnapshot struct {
	Material  string
	Storage   []Tray
	Station   []StationTray
	FetchedAt time.Time
	Freshness Freshness
	LastError string
}

// FindTray looks a tray up in both partitions.
func (s LocationSnapshot) FindTray(trayID string) (Tray, bool) {
	for _, t := range s.Station {
		if t.ID == trayID {
			return t.Tray, true
		}
	}
	for _, t := range s.Storage {
		if t.ID == trayID {
			return t, true
		}
	}
	return Tray{}, false
}
