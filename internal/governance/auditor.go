// Package governance scans fiscal reconciliation tables for variance
// breaches and escalates persistent breaches through a LOW/MEDIUM/HIGH
// severity ladder.
package governance

import (
	"fmt"
	"math"

	"github.com/declinewatch/declinewatch-go/internal/models"
)

// DefaultThresholdPct is the variance band applied when a run does not
// supply a governance threshold, in percent. The default reflects the
// OGA's acceptable metering uncertainty band for fiscal measurement
// points.
const DefaultThresholdPct = 15.0

// mediumMagnitudePct promotes even a solitary breach to MEDIUM when its
// magnitude alone is alarming.
const mediumMagnitudePct = 25.0

// Auditor raises governance flags for months whose variance breaches the
// configured threshold.
type Auditor struct {
	clock Clock
}

// NewAuditor returns an auditor stamping flags with the given clock.
// A nil clock falls back to the system clock.
func NewAuditor(clock Clock) *Auditor {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Auditor{clock: clock}
}

// Run scans the fiscal table in chronological order and emits one flag per
// breaching producing month. Shut-in months are invisible to the scan: they
// neither breach nor reset the consecutive-breach counter, so a breach
// either side of a shut-in gap still counts as consecutive.
//
// Severity is classified per breaching record from its own run length and
// magnitude. FlagID is 1-based over emitted flags. An empty flag list is a
// clean result, not an error.
func (a *Auditor) Run(records []models.FiscalRecord, thresholdPct float64) ([]models.GovernanceFlag, error) {
	if thresholdPct <= 0 {
		return nil, fmt.Errorf("%w: got %.2f%%", ErrInvalidThreshold, thresholdPct)
	}
	now := a.clock.Now().UTC()

	flags := make([]models.GovernanceFlag, 0)
	consec := 0
	for _, r := range records {
		if r.IsShutIn {
			continue
		}
		absVar := math.Abs(r.VariancePct)
		if absVar <= thresholdPct {
			consec = 0
			continue
		}
		consec++

		severity, reason := classify(consec, absVar, r.VarianceBOE, thresholdPct)
		flags = append(flags, models.GovernanceFlag{
			FlagID:          len(flags) + 1,
			Period:          r.Period,
			ActualBOE:       round1(r.ActualBOE),
			ForecastBOE:     round1(r.ForecastBOE),
			VarianceBOE:     round1(r.VarianceBOE),
			VariancePct:     round2(r.VariancePct),
			RevenueExposure: r.RevenueExposure.Round(2),
			Severity:        severity,
			Reason:          reason,
			CreatedAt:       now,
		})
	}
	return flags, nil
}

func classify(consec int, absVar, varianceBOE, thresholdPct float64) (models.Severity, string) {
	switch {
	case consec >= 3:
		return models.SeverityHigh, fmt.Sprintf(
			"SYSTEMATIC: %d consecutive months exceeding %.0f%% variance threshold. "+
				"Indicates possible metering drift or unrecorded diversion.",
			consec, thresholdPct)
	case consec >= 2 || absVar > mediumMagnitudePct:
		return models.SeverityMedium, fmt.Sprintf(
			"ELEVATED: Variance of %.1f%% exceeds %.0f%% threshold. Monitor for recurrence.",
			absVar, thresholdPct)
	default:
		direction := "over"
		if varianceBOE < 0 {
			direction = "under"
		}
		return models.SeverityLow, fmt.Sprintf(
			"SINGLE BREACH: Field %s-produced by %.1f%% vs. technical decline forecast.",
			direction, absVar)
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
