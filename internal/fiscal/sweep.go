package fiscal

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/declinewatch/declinewatch-go/internal/models"
)

// DefaultPriceScenarios returns the five-point stress range swept by the
// quarterly governance pack, in GBP per BOE.
func DefaultPriceScenarios() []decimal.Decimal {
	return []decimal.Decimal{
		decimal.NewFromFloat(55.0),
		decimal.NewFromFloat(62.50),
		decimal.NewFromFloat(72.50),
		decimal.NewFromFloat(82.50),
		decimal.NewFromFloat(95.0),
	}
}

// Sweep reprices the reconciliation table once per candidate price and
// reports the final cumulative exposure of each run, rounded to pence.
// An empty prices slice falls back to DefaultPriceScenarios.
//
// Scenario runs share no state, so they execute concurrently; results
// come back in input price order.
func Sweep(records []models.ReconciliationRecord, prices []decimal.Decimal) ([]models.SweepResult, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("fiscal: %w", models.ErrEmptySeries)
	}
	if len(prices) == 0 {
		prices = DefaultPriceScenarios()
	}
	for _, p := range prices {
		if p.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: got %s GBP/BOE", ErrInvalidPrice, p)
		}
	}

	results := make([]models.SweepResult, len(prices))
	var wg sync.WaitGroup
	for i, price := range prices {
		wg.Add(1)
		go func() {
			defer wg.Done()
			table := apply(records, price)
			results[i] = models.SweepResult{
				PricePerBarrel:     price,
				TotalRevenueAtRisk: table[len(table)-1].CumulativeExposure.Round(2),
			}
		}()
	}
	wg.Wait()

	return results, nil
}
