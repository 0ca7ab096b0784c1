package recon

import (
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"

	"github.com/declinewatch/declinewatch-go/internal/models"
)

// DefaultTrendPeriod is the moving-average window used for the dashboard
// variance trend.
const DefaultTrendPeriod = 3

// VarianceTrend smooths the percentage-variance series with a simple moving
// average so the dashboard can show drift instead of month-to-month noise.
// The result has len(records)-period+1 points, one per full window.
func VarianceTrend(records []models.ReconciliationRecord, period int) []float64 {
	if len(records) == 0 || period <= 0 {
		return nil
	}
	if period > len(records) {
		period = len(records)
	}

	pcts := make([]float64, len(records))
	for i, r := range records {
		pcts[i] = r.VariancePct
	}

	sma := trend.NewSmaWithPeriod[float64](period)
	return helper.ChanToSlice(sma.Compute(helper.SliceToChan(pcts)))
}
