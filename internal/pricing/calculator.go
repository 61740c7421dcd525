package pricing

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rates holds parking tariff configuration. HDB surface and multi-storey
// carparks charge a flat hourly rate; specific carpark types may override it.
type Rates struct {
	PerHour       float64            `yaml:"per_hour" mapstructure:"per_hour"`
	ByCarparkType map[string]float64 `yaml:"by_carpark_type" mapstructure:"by_carpark_type"`
}

// DefaultRates returns the standard HDB short-term tariff.
func DefaultRates() Rates {
	return Rates{
		PerHour: 2.00,
		ByCarparkType: map[string]float64{
			"COVERED CAR PARK":      2.40,
			"MECHANISED CAR PARK":   2.40,
			"BASEMENT CAR PARK":     2.40,
			"MULTI-STOREY CAR PARK": 2.00,
			"SURFACE CAR PARK":      2.00,
		},
	}
}

// LoadRates reads a YAML tariff file. Fields missing from the file keep
// their defaults.
func LoadRates(path string) (Rates, error) {
	rates := DefaultRates()
	data, err := os.ReadFile(path)
	if err != nil {
		return rates, eris.Wrapf(err, "pricing: read %s", path)
	}
	if err := yaml.Unmarshal(data, &rates); err != nil {
		return rates, eris.Wrapf(err, "pricing: parse %s", path)
	}
	if rates.PerHour <= 0 {
		return rates, eris.Errorf("pricing: per_hour must be positive, got %v", rates.PerHour)
	}
	return rates, nil
}

// Calculator computes parking cost from elapsed time.
type Calculator struct {
	perHour float64
}

// NewCalculator creates a Calculator charging the base hourly rate.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{perHour: rates.PerHour}
}

// ForCarparkType creates a Calculator using the type override when one
// exists, otherwise the base rate.
func ForCarparkType(rates Rates, carparkType string) *Calculator {
	if rate, ok := rates.ByCarparkType[carparkType]; ok && rate > 0 {
		return &Calculator{perHour: rate}
	}
	return &Calculator{perHour: rates.PerHour}
}

// PerMinute returns the per-minute rate.
func (c *Calculator) PerMinute() float64 {
	return c.perHour / 60
}

// Estimate returns the pro-rated cost of the elapsed duration. Charging is
// continuous per minute, not rounded to blocks, so successive estimates for
// a running session never jump.
func (c *Calculator) Estimate(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return elapsed.Minutes() * c.PerMinute()
}
