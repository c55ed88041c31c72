package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vela/internal/config"
	"vela/internal/types"
)

func pullbackPolicy() *config.Policy {
	return &config.Policy{
		Strategy: config.StrategyConfig{
			Name:              "vwap_pullback_long",
			VwapBandPct:       0.5,
			PullbackMinPct:    0.1,
			PullbackMaxPct:    5.0,
			LocalHighLookback: 3,
			StopPct:           2.9,
		},
		Exit: config.ExitConfig{MaxHoldMinutes: 20},
	}
}

// setupBars 构造一段回踩反弹序列：前段冲高到 101，
// 第 3 根低点触及 VWAP 容差带，第 4 根收出反弹阳线。
func setupBars() []types.Bar {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mk := func(i int, o, h, l, c float64) types.Bar {
		return types.Bar{
			Time: base.Add(time.Duration(i) * time.Minute),
			Open: o, High: h, Low: l, Close: c,
			Volume: 1000, VWAP: 99.5,
		}
	}
	return []types.Bar{
		mk(0, 100.2, 101.0, 100.0, 100.5),
		mk(1, 100.5, 101.0, 100.2, 100.8),
		mk(2, 100.8, 101.0, 100.4, 100.6),
		mk(3, 100.6, 100.7, 99.5, 99.8),
		mk(4, 99.7, 100.1, 99.6, 100.0),
	}
}

func TestEntrySignal(t *testing.T) {
	s := &VwapPullbackLong{}
	bars := setupBars()

	sig := s.OnBar(4, bars, false, pullbackPolicy())
	require.Equal(t, types.ActionEnter, sig.Action)
	assert.Equal(t, types.SideLong, sig.Side)
	assert.Equal(t, 100.0, sig.Entry)
	assert.InDelta(t, 97.1, sig.Stop, 1e-9)
	assert.Equal(t, 20, sig.MaxHoldMinutes)
}

func TestHoldWithoutBandTouch(t *testing.T) {
	s := &VwapPullbackLong{}
	bars := setupBars()
	// 前一根低点离 VWAP 太远，不算回踩
	bars[3].Low = 100.3

	sig := s.OnBar(4, bars, false, pullbackPolicy())
	assert.Equal(t, types.ActionHold, sig.Action)
}

func TestHoldBelowVwap(t *testing.T) {
	s := &VwapPullbackLong{}
	bars := setupBars()
	bars[4].Close = 99.4

	sig := s.OnBar(4, bars, false, pullbackPolicy())
	assert.Equal(t, types.ActionHold, sig.Action)
}

func TestHoldWhenBearish(t *testing.T) {
	s := &VwapPullbackLong{}
	bars := setupBars()
	bars[4].Open = 99.9
	bars[4].Close = 99.8

	sig := s.OnBar(4, bars, false, pullbackPolicy())
	assert.Equal(t, types.ActionHold, sig.Action)
}

func TestHoldPullbackOutOfRange(t *testing.T) {
	s := &VwapPullbackLong{}
	bars := setupBars()
	p := pullbackPolicy()
	// depth=(101-99.6)/101≈1.39%，把上限压到 1% 即出界
	p.Strategy.PullbackMaxPct = 1.0

	sig := s.OnBar(4, bars, false, p)
	assert.Equal(t, types.ActionHold, sig.Action)
}

func TestHoldInsufficientHistory(t *testing.T) {
	s := &VwapPullbackLong{}
	bars := setupBars()

	sig := s.OnBar(2, bars, false, pullbackPolicy())
	assert.Equal(t, types.ActionHold, sig.Action)
}

func TestHoldMissingVwap(t *testing.T) {
	s := &VwapPullbackLong{}
	bars := setupBars()
	bars[4].VWAP = 0

	sig := s.OnBar(4, bars, false, pullbackPolicy())
	assert.Equal(t, types.ActionHold, sig.Action)
}

func TestExitWhileOpen(t *testing.T) {
	s := &VwapPullbackLong{}
	bars := setupBars()
	bars[4].Close = 99.2

	sig := s.OnBar(4, bars, true, pullbackPolicy())
	require.Equal(t, types.ActionExit, sig.Action)
	assert.Equal(t, types.SideLong, sig.Side)

	bars[4].Close = 100.0
	sig = s.OnBar(4, bars, true, pullbackPolicy())
	assert.Equal(t, types.ActionHold, sig.Action)
}

func TestForName(t *testing.T) {
	s, err := ForName("VWAP_Pullback_Long")
	require.NoError(t, err)
	assert.Equal(t, "vwap_pullback_long", s.Name())

	_, err = ForName("momentum_breakout")
	assert.Error(t, err)
}
