package models

import (
	"errors"
	"time"
)

// ErrEmptySeries indicates an operation was attempted on an empty record sequence.
var ErrEmptySeries = errors.New("models: empty production series")

// ProductionObservation represents one calendar month of cleaned, BOE-normalized
// field production. Observations are chronologically ordered and gap-free; the
// integer month offset t is always re-derived from position, never stored.
type ProductionObservation struct {
	Period    time.Time `json:"period" db:"report_month"`
	ActualBOE float64   `json:"actual_boe" db:"actual_boe"`
	IsShutIn  bool      `json:"is_shut_in" db:"is_shut_in"`
}

// ProducingCount returns the number of non-zero producing months in the series.
func ProducingCount(obs []ProductionObservation) int {
	n := 0
	for _, o := range obs {
		if o.ActualBOE > 0 {
			n++
		}
	}
	return n
}

// SeriesSpan returns the first and last periods of the series and false when
// the series is empty.
func SeriesSpan(obs []ProductionObservation) (time.Time, time.Time, bool) {
	if len(obs) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return obs[0].Period, obs[len(obs)-1].Period, true
}
