package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCycleKey(t *testing.T) {
	t.Parallel()

	sgt := time.FixedZone("SGT", 8*3600)
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"mid month", time.Date(2025, 3, 15, 10, 0, 0, 0, sgt), "2025-03"},
		{"first instant", time.Date(2025, 12, 1, 0, 0, 0, 0, sgt), "2025-12"},
		{"last instant", time.Date(2025, 1, 31, 23, 59, 59, 0, sgt), "2025-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CycleKey(tt.at))
		})
	}
}

func TestBudgetID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "u1_2025-03", BudgetID("u1", "2025-03"))
}

func TestBudget_DerivedQueries(t *testing.T) {
	t.Parallel()

	b := &Budget{
		LimitAmount:      100,
		AccumulatedSpend: 25,
		WarningFraction:  DefaultWarningFraction,
		CriticalFraction: DefaultCriticalFraction,
	}

	assert.InDelta(t, 75.0, b.Remaining(), 1e-9)
	assert.InDelta(t, 25.0, b.UsagePercent(), 1e-9)
	assert.False(t, b.IsExceeded())
	assert.False(t, b.ShouldSendWarning())
	assert.False(t, b.ShouldSendCritical())
}

func TestBudget_UsagePercent_ZeroLimit(t *testing.T) {
	t.Parallel()

	b := &Budget{LimitAmount: 0, AccumulatedSpend: 50}
	assert.Zero(t, b.UsagePercent())

	b.LimitAmount = -10
	assert.Zero(t, b.UsagePercent())
}

func TestBudget_WarningThreshold(t *testing.T) {
	t.Parallel()

	b := &Budget{
		LimitAmount:      100,
		WarningFraction:  0.8,
		CriticalFraction: 1.0,
	}

	b.AccumulatedSpend = 79
	assert.False(t, b.ShouldSendWarning())

	b.AccumulatedSpend = 80
	assert.True(t, b.ShouldSendWarning())
	assert.False(t, b.ShouldSendCritical())

	b.AccumulatedSpend = 100
	assert.True(t, b.ShouldSendCritical())
	assert.True(t, b.IsExceeded())
}

func TestBudget_WarningLatch(t *testing.T) {
	t.Parallel()

	// Once the warning is latched it never re-fires, even if spend drops
	// back under the threshold and climbs again.
	b := &Budget{LimitAmount: 100, WarningFraction: 0.8, CriticalFraction: 1.0}

	b.AccumulatedSpend = 80
	assert.True(t, b.ShouldSendWarning())

	b.WarningSent = true
	assert.False(t, b.ShouldSendWarning())

	b.AccumulatedSpend = 50
	assert.False(t, b.ShouldSendWarning())

	b.AccumulatedSpend = 150
	assert.False(t, b.ShouldSendWarning())
}

func TestBudget_WarningMonotoneOverRisingSpend(t *testing.T) {
	t.Parallel()

	// Sweeping spend from 0 to twice the limit fires the warning predicate
	// exactly once when the latch is applied at first crossing.
	b := &Budget{LimitAmount: 100, WarningFraction: 0.8, CriticalFraction: 1.0}

	fired := 0
	for spend := 0.0; spend <= 200; spend++ {
		b.AccumulatedSpend = spend
		if b.ShouldSendWarning() {
			fired++
			b.WarningSent = true
			assert.GreaterOrEqual(t, spend, 80.0)
		}
	}
	assert.Equal(t, 1, fired)
}
