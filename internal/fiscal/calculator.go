// Package fiscal prices production variance into GBP revenue exposure.
//
// The calculation is deliberately simple and transparent, matching how
// Ring Fence Corporation Tax and Supplementary Charge exposures are
// estimated in pre-budget operator reports:
//
//	revenue_exposure = variance_boe × price_per_barrel
//
// A negative exposure is the fiscal leakage signal: revenue the operator
// reported that the technical decline model says should not exist, or
// vice versa.
package fiscal

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/declinewatch/declinewatch-go/internal/models"
)

// DefaultPricePerBarrel is the Brent-equivalent settlement price applied
// when a run does not supply one, in GBP per barrel. Production use should
// source this from the operator's realised price or a live forward curve.
var DefaultPricePerBarrel = decimal.NewFromFloat(72.50)

// Apply prices a reconciliation table into fiscal records at the given
// settlement price.
//
// Shut-in months keep their variance for transparency but contribute
// exactly zero exposure: the forecast assumes continuous operation, so a
// shut-in variance is not a real fiscal signal and must not pollute the
// cumulative risk total. The cumulative column runs over the entire
// sequence in chronological order, shut-ins included.
func Apply(records []models.ReconciliationRecord, price decimal.Decimal) ([]models.FiscalRecord, error) {
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: got %s GBP/BOE", ErrInvalidPrice, price)
	}
	return apply(records, price), nil
}

// apply assumes price has already been validated.
func apply(records []models.ReconciliationRecord, price decimal.Decimal) []models.FiscalRecord {
	out := make([]models.FiscalRecord, len(records))
	cumulative := decimal.Zero
	for i, r := range records {
		exposure := decimal.Zero
		if !r.IsShutIn {
			exposure = decimal.NewFromFloat(r.VarianceBOE).Mul(price)
		}
		cumulative = cumulative.Add(exposure)
		out[i] = models.FiscalRecord{
			ReconciliationRecord: r,
			RevenueExposure:      exposure,
			CumulativeExposure:   cumulative,
			PricePerBarrel:       price,
		}
	}
	return out
}
