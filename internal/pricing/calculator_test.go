package pricing

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimate(t *testing.T) {
	t.Parallel()
	c := NewCalculator(DefaultRates())

	tests := []struct {
		name    string
		elapsed time.Duration
		want    float64
	}{
		{"zero", 0, 0},
		{"negative", -time.Minute, 0},
		{"one minute", time.Minute, 2.0 / 60},
		{"half hour", 30 * time.Minute, 1.0},
		{"one hour", time.Hour, 2.0},
		{"ninety minutes", 90 * time.Minute, 3.0},
		{"sub-minute accrues", 30 * time.Second, 2.0 / 120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, c.Estimate(tt.elapsed), 1e-9)
		})
	}
}

func TestEstimate_Monotonic(t *testing.T) {
	t.Parallel()
	c := NewCalculator(DefaultRates())

	prev := 0.0
	for m := 1; m <= 240; m++ {
		got := c.Estimate(time.Duration(m) * time.Minute)
		assert.Greater(t, got, prev)
		prev = got
	}
}

func TestForCarparkType(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()

	covered := ForCarparkType(rates, "COVERED CAR PARK")
	assert.InDelta(t, 2.40, covered.Estimate(time.Hour), 1e-9)

	unknown := ForCarparkType(rates, "SOMETHING ELSE")
	assert.InDelta(t, rates.PerHour, unknown.Estimate(time.Hour), 1e-9)
}

func TestPerMinute(t *testing.T) {
	t.Parallel()
	c := NewCalculator(Rates{PerHour: 3.0})
	assert.InDelta(t, 0.05, c.PerMinute(), 1e-9)
}

func TestLoadRates(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("per_hour: 2.5\nby_carpark_type:\n  \"BASEMENT CAR PARK\": 3.0\n"), 0o644))

	rates, err := LoadRates(path)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, rates.PerHour, 1e-9)
	assert.InDelta(t, 3.0, rates.ByCarparkType["BASEMENT CAR PARK"], 1e-9)
}

func TestLoadRates_Invalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("per_hour: -1\n"), 0o644))

	_, err := LoadRates(path)
	assert.Error(t, err)

	_, err = LoadRates(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
