package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"vela/internal/config"
	"vela/internal/guard"
	"vela/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) PlaceMarket(ctx context.Context, side types.Side, quantity int64) error {
	args := m.Called(ctx, side, quantity)
	return args.Error(0)
}

func (m *mockExecutor) ClosePosition(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func livePolicy() *config.Policy {
	return &config.Policy{
		Capital: 1_000_000,
		Risk: config.RiskConfig{
			PerTradePct: 0.3,
			PerDayPct:   1.0,
		},
		Session: config.SessionConfig{
			Open:     "09:30",
			Close:    "15:00",
			Timezone: "UTC",
		},
		Entry: config.EntryConfig{
			LunchFrom:   "11:30",
			LunchTo:     "13:00",
			CutoffAfter: "14:25",
		},
		Exit: config.ExitConfig{
			TakeProfitR:       2.0,
			MaxHoldMinutes:    20,
			EarlyStopAdverseR: 0.6,
		},
	}
}

var liveT0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newLiveRunner(t *testing.T, exec Executor) *Runner {
	t.Helper()
	p := livePolicy()
	g, err := guard.NewExecutionGuard(p)
	require.NoError(t, err)
	r, err := NewRunner(p, g, exec)
	require.NoError(t, err)
	return r
}

func enterSignal() types.Signal {
	return types.Signal{
		Action:      types.ActionEnter,
		Side:        types.SideLong,
		Entry:       100.0,
		Stop:        97.0,
		PlannedRisk: 3000,
	}
}

// feedMinute 在第 i 分钟内喂两笔 tick，使分钟 K 线在下一分钟首笔时完成。
func feedMinute(r *Runner, ctx context.Context, i int, price float64) {
	base := liveT0.Add(time.Duration(i) * time.Minute)
	r.OnTick(ctx, types.Tick{Time: base, Price: price, Volume: 100})
	r.OnTick(ctx, types.Tick{Time: base.Add(30 * time.Second), Price: price, Volume: 100})
}

func TestRunnerEntersOnGuardApproval(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("PlaceMarket", mock.Anything, types.SideLong, int64(1000)).Return(nil)
	r := newLiveRunner(t, exec)

	r.OnSignal(enterSignal())
	assert.Equal(t, StateArmed, r.State())

	// 第 0 分钟的 K 线在第 1 分钟首笔 tick 时完成并触发准入
	feedMinute(r, context.Background(), 0, 100.2)
	feedMinute(r, context.Background(), 1, 100.3)

	assert.Equal(t, StateOpen, r.State())
	exec.AssertExpectations(t)
}

func TestRunnerStopLossExit(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("PlaceMarket", mock.Anything, types.SideLong, int64(1000)).Return(nil)
	exec.On("ClosePosition", mock.Anything).Return(nil)
	r := newLiveRunner(t, exec)
	ctx := context.Background()

	r.OnSignal(enterSignal())
	feedMinute(r, ctx, 0, 100.2)
	feedMinute(r, ctx, 1, 100.3)
	require.Equal(t, StateOpen, r.State())

	feedMinute(r, ctx, 2, 96.5) // 收盘击穿止损
	feedMinute(r, ctx, 3, 96.4)

	assert.Equal(t, StateIdle, r.State())
	require.Len(t, r.Trades(), 1)
	trade := r.Trades()[0]
	assert.Equal(t, types.ExitStopLoss, trade.Reason)
	assert.Negative(t, trade.PnL)
	exec.AssertExpectations(t)
}

func TestRunnerTakeProfitExit(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("PlaceMarket", mock.Anything, types.SideLong, int64(1000)).Return(nil)
	exec.On("ClosePosition", mock.Anything).Return(nil)
	r := newLiveRunner(t, exec)
	ctx := context.Background()

	r.OnSignal(enterSignal())
	feedMinute(r, ctx, 0, 100.2)
	feedMinute(r, ctx, 1, 100.3)
	require.Equal(t, StateOpen, r.State())

	// 2R = 6000，1000 股需要 +6 以上
	feedMinute(r, ctx, 2, 107.0)
	feedMinute(r, ctx, 3, 107.1)

	require.Len(t, r.Trades(), 1)
	assert.Equal(t, types.ExitTakeProfit, r.Trades()[0].Reason)
	assert.Positive(t, r.Trades()[0].RMultiple)
}

func TestRunnerEarlyStopExit(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("PlaceMarket", mock.Anything, types.SideLong, int64(1000)).Return(nil)
	exec.On("ClosePosition", mock.Anything).Return(nil)
	r := newLiveRunner(t, exec)
	ctx := context.Background()

	r.OnSignal(enterSignal())
	feedMinute(r, ctx, 0, 100.2)
	feedMinute(r, ctx, 1, 100.3)
	require.Equal(t, StateOpen, r.State())

	// 亏 2000 = 0.67R，过早停阈值但离止损还远
	feedMinute(r, ctx, 2, 98.3)
	feedMinute(r, ctx, 3, 98.2)

	require.Len(t, r.Trades(), 1)
	assert.Equal(t, types.ExitEarlyStop, r.Trades()[0].Reason)
}

func TestRunnerTimeLimitExit(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("PlaceMarket", mock.Anything, types.SideLong, int64(1000)).Return(nil)
	exec.On("ClosePosition", mock.Anything).Return(nil)
	r := newLiveRunner(t, exec)
	ctx := context.Background()

	r.OnSignal(enterSignal())
	feedMinute(r, ctx, 0, 100.2)
	for i := 1; i <= 25; i++ {
		feedMinute(r, ctx, i, 100.3)
	}

	require.Len(t, r.Trades(), 1)
	assert.Equal(t, types.ExitTimeLimit, r.Trades()[0].Reason)
}

func TestRunnerIgnoresSignalWhileOpen(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("PlaceMarket", mock.Anything, types.SideLong, int64(1000)).Return(nil).Once()
	r := newLiveRunner(t, exec)
	ctx := context.Background()

	r.OnSignal(enterSignal())
	feedMinute(r, ctx, 0, 100.2)
	feedMinute(r, ctx, 1, 100.3)
	require.Equal(t, StateOpen, r.State())

	r.OnSignal(enterSignal())
	assert.Equal(t, StateOpen, r.State())
	exec.AssertNumberOfCalls(t, "PlaceMarket", 1)
}

func TestRunnerStaysArmedOnRejection(t *testing.T) {
	exec := &mockExecutor{}
	r := newLiveRunner(t, exec)
	ctx := context.Background()

	r.OnSignal(enterSignal())
	// 收盘在 VWAP 下方：准入拒绝，状态保持 ARMED
	base := liveT0
	r.OnTick(ctx, types.Tick{Time: base, Price: 100.0, Volume: 100})
	r.OnTick(ctx, types.Tick{Time: base.Add(20 * time.Second), Price: 101.0, Volume: 100})
	r.OnTick(ctx, types.Tick{Time: base.Add(40 * time.Second), Price: 99.0, Volume: 400})
	r.OnTick(ctx, types.Tick{Time: base.Add(time.Minute), Price: 99.0, Volume: 100})

	assert.Equal(t, StateArmed, r.State())
	exec.AssertNotCalled(t, "PlaceMarket", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunnerStaysArmedOnExecutorError(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("PlaceMarket", mock.Anything, types.SideLong, int64(1000)).Return(errors.New("rejected"))
	r := newLiveRunner(t, exec)
	ctx := context.Background()

	r.OnSignal(enterSignal())
	feedMinute(r, ctx, 0, 100.2)
	feedMinute(r, ctx, 1, 100.3)

	assert.Equal(t, StateArmed, r.State())
	assert.Empty(t, r.Trades())
}
