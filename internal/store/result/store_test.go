package result

import (
	"context"
	"testing"
	"time"

	"vela/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSummaries() []types.DaySummary {
	entry := time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC)
	return []types.DaySummary{{
		Date:     time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		TotalPnL: 6300,
		Trades: []types.Trade{{
			EntryTime:  entry,
			ExitTime:   entry.Add(9 * time.Minute),
			EntryPrice: 100.0,
			ExitPrice:  106.3,
			Quantity:   1000,
			PnL:        6300,
			RMultiple:  2.1,
			Reason:     types.ExitTakeProfit,
		}},
	}}
}

func TestStoreRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	id, err := store.CreateRun(ctx, "600519", "dev", []byte(`{"capital":1000000}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	verdict := types.Verdict{
		Status:  types.VerdictGo,
		Mode:    "dev",
		Metrics: types.VerdictMetrics{AvgR: 2.1, TradeCount: 1},
	}
	require.NoError(t, store.CompleteRun(ctx, id, verdict, sampleSummaries()))

	run, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, run.Status)
	assert.Equal(t, "600519", run.Symbol)
	assert.Equal(t, 1, run.Trades)
	assert.InDelta(t, 6300, run.TotalPnL, 1e-9)
	assert.True(t, run.Verdict.Go())

	trades, err := store.ListTrades(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, types.ExitTakeProfit, trades[0].Reason)
	assert.Equal(t, int64(1000), trades[0].Quantity)

	days, err := store.ListDays(ctx, id)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.False(t, days[0].DayLossHit)
}

func TestStoreListRunsOrder(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	first, err := store.CreateRun(ctx, "600519", "dev", []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, store.FailRun(ctx, first, "no bars"))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunStatusFailed, runs[0].Status)
	assert.Equal(t, "no bars", runs[0].Message)
}
