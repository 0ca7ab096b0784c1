// Package ingest normalizes NSTA PPRS production exports into the monthly
// observation contract the audit engine consumes.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/declinewatch/declinewatch-go/internal/models"
)

// BOE conversion constants. One tonne of North Sea crude is about 7.33
// barrels; one MMscf of gas about 175.8 BOE at standard conditions. Gas is
// reported as a daily rate, so it expands by calendar days before
// conversion, which matters at fiscal scale (February vs March is a ~5%
// swing).
const (
	OilTonnesToBarrels = 7.33
	GasMMscfToBOE      = 175.8
)

// shutInThreshold marks a month as shut in when both streams sit at or
// below it. A shut-in month is an operational interruption, not missing
// data.
const shutInThreshold = 0.0

var (
	// ErrFieldNotFound reports a reporting unit absent from the export.
	ErrFieldNotFound = errors.New("ingest: field not found")
	// ErrMissingColumn reports a PPRS export without a required column.
	ErrMissingColumn = errors.New("ingest: required column missing")
)

// FieldSeries is one reporting unit's cleaned chronological series.
type FieldSeries struct {
	FieldName    string                         `json:"field_name"`
	Observations []models.ProductionObservation `json:"observations"`
}

// ParseCSV reads a PPRS CSV export. NSTA publishes camelCase headers
// (reportingUnitName, productionMonth, oilProduction, gasProduction); they
// are normalized on ingest. Oil arrives in tonnes per month and gas in
// MMscf per day; both are converted to a single BOE figure per month.
// Missing volumes count as zero. Records come back grouped per field under
// the canonical FieldKey, fields alphabetical, observations chronological.
func ParseCSV(r io.Reader) ([]FieldSeries, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("ingest: read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[FieldKey(name)] = i
	}
	for _, name := range []string{"reporting_unit_name", "production_month", "oil_production", "gas_production"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	byField := make(map[string][]models.ProductionObservation)
	for row := 2; ; row++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingest: row %d: %w", row, err)
		}

		field := FieldKey(record[cols["reporting_unit_name"]])
		period, err := time.Parse("2006-01-02", strings.TrimSpace(record[cols["production_month"]]))
		if err != nil {
			return nil, fmt.Errorf("ingest: row %d: parse production month: %w", row, err)
		}
		oil, err := parseVolume(record[cols["oil_production"]])
		if err != nil {
			return nil, fmt.Errorf("ingest: row %d: parse oil volume: %w", row, err)
		}
		gas, err := parseVolume(record[cols["gas_production"]])
		if err != nil {
			return nil, fmt.Errorf("ingest: row %d: parse gas rate: %w", row, err)
		}

		byField[field] = append(byField[field], models.ProductionObservation{
			Period:    monthStart(period),
			ActualBOE: oil*OilTonnesToBarrels + gas*float64(daysInMonth(period))*GasMMscfToBOE,
			IsShutIn:  oil <= shutInThreshold && gas <= shutInThreshold,
		})
	}

	names := make([]string, 0, len(byField))
	for name := range byField {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]FieldSeries, 0, len(names))
	for _, name := range names {
		obs := byField[name]
		sort.Slice(obs, func(i, j int) bool { return obs[i].Period.Before(obs[j].Period) })
		out = append(out, FieldSeries{FieldName: name, Observations: obs})
	}
	return out, nil
}

// Field extracts a single reporting unit's series. Lookup goes through
// FieldKey, so any spelling of the name matches.
func Field(series []FieldSeries, name string) ([]models.ProductionObservation, error) {
	want := FieldKey(name)
	for _, fs := range series {
		if FieldKey(fs.FieldName) == want {
			return fs.Observations, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrFieldNotFound, name)
}

// parseVolume treats an empty cell as zero so a null stream does not sink
// the whole export.
func parseVolume(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// FieldKey converts a reporting unit name to its canonical snake_case key,
// so "Ninian South", "ninianSouth" and "NINIAN SOUTH" all address the same
// stored series.
func FieldKey(name string) string {
	var b strings.Builder
	prevLower := false
	pendingSep := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == ' ' || r == '-' || r == '_':
			pendingSep = b.Len() > 0
			prevLower = false
		case unicode.IsUpper(r):
			if pendingSep || prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			pendingSep = false
			prevLower = false
		default:
			if pendingSep {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			pendingSep = false
			prevLower = unicode.IsLower(r)
		}
	}
	return b.String()
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
