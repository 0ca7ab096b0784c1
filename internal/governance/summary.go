package governance

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/declinewatch/declinewatch-go/internal/models"
)

// Summarize reduces one audit run to the headline report object: the final
// cumulative exposure, variance totals and counts, and the flag list. The
// mean variance is signed, so chronic under-production is not masked by
// occasional over-production. Fails only on an empty fiscal sequence, where
// the final cumulative value is undefined.
func Summarize(fieldName string, records []models.FiscalRecord, flags []models.GovernanceFlag,
	price decimal.Decimal, thresholdPct float64, clock Clock) (models.FiscalSummary, error) {

	if len(records) == 0 {
		return models.FiscalSummary{}, fmt.Errorf("governance: %w", models.ErrEmptySeries)
	}
	if clock == nil {
		clock = SystemClock{}
	}

	var totalVariance, sumPct float64
	producing := 0
	for _, r := range records {
		if r.IsShutIn {
			continue
		}
		producing++
		totalVariance += r.VarianceBOE
		sumPct += r.VariancePct
	}

	avgPct := 0.0
	if producing > 0 {
		avgPct = round2(sumPct / float64(producing))
	}

	return models.FiscalSummary{
		FieldName:             fieldName,
		TotalRevenueAtRisk:    records[len(records)-1].CumulativeExposure.Round(2),
		TotalVarianceBOE:      round1(totalVariance),
		MonthsAnalysed:        len(records),
		MonthsShutIn:          len(records) - producing,
		ProducingMonths:       producing,
		AvgMonthlyVariancePct: avgPct,
		Flags:                 flags,
		PricePerBarrel:        price,
		ThresholdPct:          thresholdPct,
		AnalysisDate:          clock.Now().UTC(),
	}, nil
}
