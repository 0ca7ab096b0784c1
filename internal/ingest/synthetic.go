package ingest

import (
	"math"
	"math/rand"
	"time"

	"github.com/declinewatch/declinewatch-go/internal/models"
)

// Synthetic series shape mirrors a mid-life North Sea oil producer: ~4%
// monthly exponential decline with associated gas and a seasonal swing.
const (
	syntheticBaseOilTonnes  = 12000.0
	syntheticMonthlyDecline = 0.04
	syntheticOilNoise       = 200.0
	syntheticGasRatio       = 1200.0
	syntheticShutIns        = 3
	syntheticGasOutages     = 2
)

// SyntheticField generates a deterministic PPRS-like monthly series for
// demos and tests: exponential oil decline with noise, correlated gas, a
// few maintenance shut-ins and a couple of gas metering outages. The series
// is stored under the canonical FieldKey of name; the same seed always
// yields the same series.
func SyntheticField(name string, months int, seed int64) FieldSeries {
	key := FieldKey(name)
	if months <= 0 {
		return FieldSeries{FieldName: key}
	}
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2018, time.January, 1, 0, 0, 0, 0, time.UTC)

	oil := make([]float64, months)
	gas := make([]float64, months)
	for t := range oil {
		base := syntheticBaseOilTonnes * math.Exp(-syntheticMonthlyDecline*float64(t))
		oil[t] = math.Max(base+rng.NormFloat64()*syntheticOilNoise, 0)
		seasonal := 1 + 0.15*math.Sin(2*math.Pi*float64(t)/12)
		gas[t] = math.Max(oil[t]/syntheticGasRatio*seasonal+rng.NormFloat64()*0.05, 0)
	}

	// Maintenance windows take both streams down for the whole month.
	for _, idx := range rng.Perm(months)[:min(syntheticShutIns, months)] {
		oil[idx] = 0
		gas[idx] = 0
	}

	// Gas metering outages: the oil stream keeps flowing, the gas volume
	// reads zero, and the BOE total dips hard enough to breach governance.
	producing := make([]int, 0, months)
	for i := range oil {
		if oil[i] > 0 {
			producing = append(producing, i)
		}
	}
	rng.Shuffle(len(producing), func(i, j int) { producing[i], producing[j] = producing[j], producing[i] })
	for _, idx := range producing[:min(syntheticGasOutages, len(producing))] {
		gas[idx] = 0
	}

	obs := make([]models.ProductionObservation, months)
	for t := range obs {
		period := start.AddDate(0, t, 0)
		obs[t] = models.ProductionObservation{
			Period:    period,
			ActualBOE: oil[t]*OilTonnesToBarrels + gas[t]*float64(daysInMonth(period))*GasMMscfToBOE,
			IsShutIn:  oil[t] <= shutInThreshold && gas[t] <= shutInThreshold,
		}
	}
	return FieldSeries{FieldName: key, Observations: obs}
}
