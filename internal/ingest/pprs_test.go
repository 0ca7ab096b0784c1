package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleExport = `reportingUnitName,productionMonth,oilProduction,gasProduction,reportingUnitType
BRENT ALPHA,2023-02-01,1000,2.5,Oil Field Exporting to Pipeline
BRENT ALPHA,2023-01-01,1100,2.6,Oil Field Exporting to Pipeline
BRENT ALPHA,2023-03-01,0,0,Oil Field Exporting to Pipeline
FORTIES BRAVO,2023-01-01,500,,Oil Field Exporting to Pipeline
`

func TestParseCSV(t *testing.T) {
	series, err := ParseCSV(strings.NewReader(sampleExport))
	require.NoError(t, err)
	require.Len(t, series, 2)

	// Fields alphabetical, observations chronological.
	assert.Equal(t, "brent_alpha", series[0].FieldName)
	assert.Equal(t, "forties_bravo", series[1].FieldName)

	alpha := series[0].Observations
	require.Len(t, alpha, 3)
	assert.Equal(t, time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC), alpha[0].Period)
	assert.Equal(t, time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC), alpha[1].Period)
	assert.Equal(t, time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC), alpha[2].Period)

	// January: 1100 t oil and 2.6 MMscf/d of gas over 31 days.
	assert.InDelta(t, 1100*7.33+2.6*31*175.8, alpha[0].ActualBOE, 1e-9)
	// February only has 28 days, which the gas expansion must respect.
	assert.InDelta(t, 1000*7.33+2.5*28*175.8, alpha[1].ActualBOE, 1e-9)

	assert.False(t, alpha[0].IsShutIn)
	assert.True(t, alpha[2].IsShutIn)
	assert.Equal(t, 0.0, alpha[2].ActualBOE)

	// Missing gas cell reads as zero without marking the month shut in.
	bravo := series[1].Observations
	require.Len(t, bravo, 1)
	assert.InDelta(t, 500*7.33, bravo[0].ActualBOE, 1e-9)
	assert.False(t, bravo[0].IsShutIn)
}

func TestParseCSVNormalizesDayOfMonth(t *testing.T) {
	export := "reportingUnitName,productionMonth,oilProduction,gasProduction\n" +
		"BRENT ALPHA,2023-01-15,100,0\n"
	series, err := ParseCSV(strings.NewReader(export))
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		series[0].Observations[0].Period)
}

func TestParseCSVMissingColumn(t *testing.T) {
	export := "reportingUnitName,productionMonth,gasProduction\n" +
		"BRENT ALPHA,2023-01-01,2.5\n"
	_, err := ParseCSV(strings.NewReader(export))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestParseCSVMalformedRows(t *testing.T) {
	cases := []struct {
		name string
		row  string
	}{
		{"bad oil volume", "BRENT ALPHA,2023-01-01,not-a-number,2.5"},
		{"bad gas rate", "BRENT ALPHA,2023-01-01,1000,oops"},
		{"bad month", "BRENT ALPHA,January 2023,1000,2.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			export := "reportingUnitName,productionMonth,oilProduction,gasProduction\n" + tc.row + "\n"
			_, err := ParseCSV(strings.NewReader(export))
			require.Error(t, err)
			assert.ErrorContains(t, err, "row 2")
		})
	}
}

func TestParseCSVCanonicalFieldKeys(t *testing.T) {
	// Mixed spellings of one reporting unit collapse onto a single series
	// keyed the same way synthetic fields are.
	export := "reportingUnitName,productionMonth,oilProduction,gasProduction\n" +
		"Ninian South,2023-01-01,1000,2.5\n" +
		"NINIAN SOUTH,2023-02-01,950,2.4\n" +
		"ninianSouth,2023-03-01,900,2.3\n"
	series, err := ParseCSV(strings.NewReader(export))
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "ninian_south", series[0].FieldName)
	assert.Len(t, series[0].Observations, 3)

	obs, err := Field(series, "ninian_south")
	require.NoError(t, err)
	assert.Len(t, obs, 3)
}

func TestFieldKey(t *testing.T) {
	cases := map[string]string{
		"Ninian South":   "ninian_south",
		"NINIAN SOUTH":   "ninian_south",
		"ninianSouth":    "ninian_south",
		"brent_alpha":    "brent_alpha",
		"  Brent-Alpha ": "brent_alpha",
		"Captain Area 2": "captain_area_2",
	}
	for in, want := range cases {
		assert.Equal(t, want, FieldKey(in), "FieldKey(%q)", in)
	}
}

func TestFieldLookup(t *testing.T) {
	series, err := ParseCSV(strings.NewReader(sampleExport))
	require.NoError(t, err)

	obs, err := Field(series, "brent alpha")
	require.NoError(t, err)
	assert.Len(t, obs, 3)

	obs, err = Field(series, "  FORTIES BRAVO ")
	require.NoError(t, err)
	assert.Len(t, obs, 1)

	_, err = Field(series, "NINIAN DELTA")
	assert.ErrorIs(t, err, ErrFieldNotFound)
}
