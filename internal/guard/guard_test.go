package guard

import (
	"testing"
	"time"

	"vela/internal/config"
	"vela/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func guardPolicy() *config.Policy {
	return &config.Policy{
		Capital: 1_000_000,
		Session: config.SessionConfig{
			Open:     "09:30",
			Close:    "15:00",
			Timezone: "UTC",
		},
		Entry: config.EntryConfig{
			SkipOpenMinutes: 5,
			LunchFrom:       "11:30",
			LunchTo:         "13:00",
			CutoffAfter:     "14:25",
			VolumeCheck:     true,
			VolumeLookback:  3,
			VolumeMinRatio:  0.3,
			VolumeMaxRatio:  3.0,
		},
		Exit: config.ExitConfig{
			EarlyStopAdverseR: 0.6,
		},
	}
}

func minuteBar(clock string, close, vwap, volume float64) types.Bar {
	ts, err := time.Parse("2006-01-02 15:04", "2026-03-02 "+clock)
	if err != nil {
		panic(err)
	}
	return types.Bar{
		Time:   ts.UTC(),
		Open:   close - 0.1,
		High:   close + 0.2,
		Low:    close - 0.3,
		Close:  close,
		Volume: volume,
		VWAP:   vwap,
	}
}

// okBars 构造一段能通过全部检查的 K 线。
func okBars(clock string) []types.Bar {
	return []types.Bar{
		minuteBar("10:00", 100.1, 100.0, 1000),
		minuteBar("10:01", 100.2, 100.0, 1100),
		minuteBar("10:02", 100.1, 100.0, 900),
		minuteBar(clock, 100.3, 100.0, 1000),
	}
}

func newGuard(t *testing.T, p *config.Policy) *ExecutionGuard {
	t.Helper()
	g, err := NewExecutionGuard(p)
	require.NoError(t, err)
	return g
}

func TestCheckApproves(t *testing.T) {
	g := newGuard(t, guardPolicy())
	d := g.Check(okBars("10:03"), types.SideLong)
	assert.True(t, d.OK)
	assert.Empty(t, d.Reason)
}

func TestCheckTimeOfDay(t *testing.T) {
	g := newGuard(t, guardPolicy())

	cases := []struct {
		name  string
		clock string
	}{
		{"right after open", "09:32"},
		{"lunch", "12:00"},
		{"after cutoff", "14:30"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := g.Check(okBars(tc.clock), types.SideLong)
			assert.False(t, d.OK)
			assert.Equal(t, ReasonTimeExcluded, d.Reason)
		})
	}
}

func TestCheckSessionExclusions(t *testing.T) {
	p := guardPolicy()
	p.Session.Exclusions = []config.ClockRange{{From: "10:10", To: "10:20"}}
	g := newGuard(t, p)

	d := g.Check(okBars("10:15"), types.SideLong)
	assert.Equal(t, ReasonTimeExcluded, d.Reason)
}

func TestCheckPriceVsVwap(t *testing.T) {
	g := newGuard(t, guardPolicy())

	bars := okBars("10:03")
	bars[len(bars)-1].Close = 99.0
	d := g.Check(bars, types.SideLong)
	assert.Equal(t, ReasonBelowVwap, d.Reason)

	// VWAP 缺失必须失败而不是放行
	bars = okBars("10:03")
	bars[len(bars)-1].VWAP = 0
	d = g.Check(bars, types.SideLong)
	assert.Equal(t, ReasonMissingVwap, d.Reason)
}

func TestCheckVolumeAnomaly(t *testing.T) {
	g := newGuard(t, guardPolicy())

	bars := okBars("10:03")
	bars[len(bars)-1].Volume = 100 // 均量 1000，比值 0.1
	d := g.Check(bars, types.SideLong)
	assert.Equal(t, ReasonVolumeThin, d.Reason)

	bars = okBars("10:03")
	bars[len(bars)-1].Volume = 50_000
	d = g.Check(bars, types.SideLong)
	assert.Equal(t, ReasonVolumeSpike, d.Reason)

	d = g.Check(okBars("10:03")[2:], types.SideLong)
	assert.Equal(t, ReasonShortHistory, d.Reason)
}

func TestCheckFalseBreakout(t *testing.T) {
	p := guardPolicy()
	p.Entry.BreakoutLookback = 3
	g := newGuard(t, p)

	// 最新一根收盘突破前高：放行
	bars := okBars("10:03")
	bars[len(bars)-1].High = 101.0
	bars[len(bars)-1].Close = 100.9
	d := g.Check(bars, types.SideLong)
	assert.True(t, d.OK)

	// 只有影线破前高、收盘没站上去：拒绝
	bars = okBars("10:03")
	bars[len(bars)-1].High = 101.0
	bars[len(bars)-1].Close = 100.3
	d = g.Check(bars, types.SideLong)
	assert.Equal(t, ReasonNoBreakout, d.Reason)
}

func TestCheckShortCircuits(t *testing.T) {
	g := newGuard(t, guardPolicy())

	calls := make(map[string]int)
	for i, c := range g.checks {
		name, fn := c.name, c.fn
		g.checks[i].fn = func(bars []types.Bar, side types.Side) types.GuardDecision {
			calls[name]++
			return fn(bars, side)
		}
	}

	// 时段检查失败后，后续检查一次都不能被调用
	d := g.Check(okBars("12:00"), types.SideLong)
	require.False(t, d.OK)
	assert.Equal(t, 1, calls["time_of_day"])
	assert.Zero(t, calls["price_vs_vwap"])
	assert.Zero(t, calls["volume_anomaly"])
	assert.Zero(t, calls["false_breakout"])
}

func TestCheckEmptyBars(t *testing.T) {
	g := newGuard(t, guardPolicy())
	d := g.Check(nil, types.SideLong)
	assert.Equal(t, ReasonNoBars, d.Reason)
}

func TestShouldExitEarly(t *testing.T) {
	g := newGuard(t, guardPolicy())

	// 阈值 0.6R，预算 3000：浮亏 1800 触发
	assert.False(t, g.ShouldExitEarly(100, 99.0, 3000, types.SideLong, 1000))  // 亏 1000
	assert.True(t, g.ShouldExitEarly(100, 98.0, 3000, types.SideLong, 1000))   // 亏 2000
	assert.False(t, g.ShouldExitEarly(100, 102.0, 3000, types.SideLong, 1000)) // 浮盈不触发

	// 空头方向反过来
	assert.True(t, g.ShouldExitEarly(100, 102.0, 3000, types.SideShort, 1000))
	assert.False(t, g.ShouldExitEarly(100, 98.0, 3000, types.SideShort, 1000))

	// 阈值或预算非法时永不触发
	p := guardPolicy()
	p.Exit.EarlyStopAdverseR = 0
	g2 := newGuard(t, p)
	assert.False(t, g2.ShouldExitEarly(100, 90.0, 3000, types.SideLong, 1000))
	assert.False(t, g.ShouldExitEarly(100, 90.0, 0, types.SideLong, 1000))
}
