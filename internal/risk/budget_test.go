package risk

import (
	"errors"
	"testing"

	"vela/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBudget(t *testing.T) {
	b := NewBudget(1_000_000, 0.3, 1.0)
	assert.Equal(t, 3000.0, b.PerTradeLoss)
	assert.Equal(t, 10000.0, b.PerDayLoss)

	// 取整向下
	b = NewBudget(333_333, 0.3, 1.0)
	assert.Equal(t, 999.0, b.PerTradeLoss)

	// 下限 1
	b = NewBudget(100, 0.1, 0.1)
	assert.Equal(t, 1.0, b.PerTradeLoss)
	assert.Equal(t, 1.0, b.PerDayLoss)
}

func TestSizeLong(t *testing.T) {
	qty, err := SizeLong(100, 98, 3000)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), qty)

	// floor 性质：q*(entry-stop) <= budget < (q+1)*(entry-stop)
	cases := []struct{ entry, stop, budget float64 }{
		{100, 99.7, 3000},
		{2514.5, 2508.2, 999},
		{55.55, 55.54, 1},
		{10.01, 10.00, 250},
	}
	for _, tc := range cases {
		q, err := SizeLong(tc.entry, tc.stop, tc.budget)
		require.NoError(t, err)
		dist := tc.entry - tc.stop
		assert.LessOrEqual(t, float64(q)*dist, tc.budget+1e-9)
		assert.Greater(t, float64(q+1)*dist, tc.budget-1e-9)
	}
}

func TestSizeLongInvalid(t *testing.T) {
	_, err := SizeLong(100, 100, 3000)
	assert.True(t, errors.Is(err, types.ErrInvalidRisk))

	_, err = SizeLong(100, 101, 3000)
	assert.True(t, errors.Is(err, types.ErrInvalidRisk))

	_, err = SizeLong(0, -1, 3000)
	assert.True(t, errors.Is(err, types.ErrInvalidRisk))

	_, err = SizeLong(100, 99, 0)
	assert.True(t, errors.Is(err, types.ErrInvalidRisk))
}

func TestRMultiple(t *testing.T) {
	r, err := RMultiple(6000, 3000)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, r, 1e-9)

	r, err = RMultiple(-3000, 3000)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, r, 1e-9)

	_, err = RMultiple(100, 0)
	assert.True(t, errors.Is(err, types.ErrInvalidRisk))
}
