package recon

import (
	"fmt"

	"github.com/declinewatch/declinewatch-go/internal/decline"
	"github.com/declinewatch/declinewatch-go/internal/models"
)

// BuildTable aligns every observation of the full series against the fitted
// decline forecast. The month offset t is re-derived from chronological
// position rather than trusted from input. Variance is computed for every
// record including shut-in months; suppression of shut-in months happens only
// at the fiscal stage. The percentage variance uses a guarded division: it is
// exactly 0 whenever the forecast is 0.
func BuildTable(obs []models.ProductionObservation, params models.DeclineModelParameters) ([]models.ReconciliationRecord, error) {
	if len(obs) == 0 {
		return nil, fmt.Errorf("recon: %w", models.ErrEmptySeries)
	}

	records := make([]models.ReconciliationRecord, len(obs))
	for i, o := range obs {
		forecast := decline.Forecast(params.Qi, params.Di, i)
		variance := o.ActualBOE - forecast

		pct := 0.0
		if forecast > 0 {
			pct = 100 * variance / forecast
		}

		records[i] = models.ReconciliationRecord{
			Period:      o.Period,
			T:           i,
			ActualBOE:   o.ActualBOE,
			ForecastBOE: forecast,
			VarianceBOE: variance,
			VariancePct: pct,
			IsShutIn:    o.IsShutIn,
		}
	}
	return records, nil
}
