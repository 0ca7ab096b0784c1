package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// DeclineModelParameters holds the fitted exponential decline model for a field.
// Covariance is the 2x2 estimator uncertainty matrix in (qi, di) order.
type DeclineModelParameters struct {
	Qi         float64       `json:"qi"`
	Di         float64       `json:"di"`
	Covariance [2][2]float64 `json:"covariance"`
	Converged  bool          `json:"converged"`
	Iterations int           `json:"iterations"`
}

// QiStdErr returns the standard error of the fitted initial rate.
func (p DeclineModelParameters) QiStdErr() float64 {
	return math.Sqrt(p.Covariance[0][0])
}

// DiStdErr returns the standard error of the fitted decline rate.
func (p DeclineModelParameters) DiStdErr() float64 {
	return math.Sqrt(p.Covariance[1][1])
}

// ReconciliationRecord aligns one month of actual production against the
// decline forecast. Variance is defined for every record including shut-in
// months; only fiscal exposure suppresses shut-ins.
type ReconciliationRecord struct {
	Period      time.Time `json:"period"`
	T           int       `json:"t"`
	ActualBOE   float64   `json:"actual_boe"`
	ForecastBOE float64   `json:"forecast_boe"`
	VarianceBOE float64   `json:"variance_boe"`
	VariancePct float64   `json:"variance_pct"`
	IsShutIn    bool      `json:"is_shut_in"`
}

// FiscalRecord extends a reconciliation record with the monetary exposure of
// its variance at the run price. Shut-in months carry zero exposure but remain
// part of the running cumulative total.
type FiscalRecord struct {
	ReconciliationRecord
	RevenueExposure    decimal.Decimal `json:"revenue_exposure_gbp"`
	CumulativeExposure decimal.Decimal `json:"cumulative_exposure_gbp"`
	PricePerBarrel     decimal.Decimal `json:"price_per_barrel_gbp"`
}

// Severity classifies a governance flag by breach persistence and magnitude.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// GovernanceFlag is the immutable audit record raised for a single breaching
// month. FlagID is 1-based over emitted flags in chronological order.
type GovernanceFlag struct {
	FlagID          int             `json:"flag_id"`
	Period          time.Time       `json:"report_month"`
	ActualBOE       float64         `json:"actual_boe"`
	ForecastBOE     float64         `json:"forecast_boe"`
	VarianceBOE     float64         `json:"variance_boe"`
	VariancePct     float64         `json:"variance_pct"`
	RevenueExposure decimal.Decimal `json:"revenue_exposure_gbp"`
	Severity        Severity        `json:"severity"`
	Reason          string          `json:"flag_reason"`
	CreatedAt       time.Time       `json:"created_at"`
}

// FiscalSummary is the top-level report object for one audit run.
type FiscalSummary struct {
	FieldName             string           `json:"field_name"`
	TotalRevenueAtRisk    decimal.Decimal  `json:"total_revenue_at_risk_gbp"`
	TotalVarianceBOE      float64          `json:"total_variance_boe"`
	MonthsAnalysed        int              `json:"months_analysed"`
	MonthsShutIn          int              `json:"months_shut_in"`
	ProducingMonths       int              `json:"producing_months"`
	AvgMonthlyVariancePct float64          `json:"avg_monthly_variance_pct"`
	Flags                 []GovernanceFlag `json:"governance_flags"`
	PricePerBarrel        decimal.Decimal  `json:"price_per_barrel_gbp"`
	ThresholdPct          float64          `json:"threshold_pct"`
	AnalysisDate          time.Time        `json:"analysis_date"`
}

// HighestSeverity returns the most severe flag level present, or an empty
// severity when no flags were raised.
func (s FiscalSummary) HighestSeverity() Severity {
	var out Severity
	rank := map[Severity]int{SeverityLow: 1, SeverityMedium: 2, SeverityHigh: 3}
	for _, f := range s.Flags {
		if rank[f.Severity] > rank[out] {
			out = f.Severity
		}
	}
	return out
}

// SweepResult is one price scenario of a sensitivity sweep: the final
// cumulative exposure the reconciliation table yields at that price.
type SweepResult struct {
	PricePerBarrel     decimal.Decimal `json:"price_per_barrel_gbp"`
	TotalRevenueAtRisk decimal.Decimal `json:"total_revenue_at_risk_gbp"`
}
