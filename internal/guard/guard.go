// Package guard 实现实盘入场前的串行准入管线。
// 各检查相互独立、按固定顺序执行，第一个失败即短路返回，
// 决策永远带着机器可读的拒绝原因。
package guard

import (
	"errors"
	"fmt"
	"time"

	talib "github.com/markcheno/go-talib"

	"vela/internal/config"
	"vela/internal/types"
)

// 拒绝原因码。空列表之外的所有出口都必须落在这里。
const (
	ReasonNoBars       = "no_bars"
	ReasonTimeExcluded = "time_excluded"
	ReasonMissingVwap  = "missing_vwap"
	ReasonBelowVwap    = "below_vwap"
	ReasonAboveVwap    = "above_vwap"
	ReasonShortHistory = "short_history"
	ReasonVolumeThin   = "volume_thin"
	ReasonVolumeSpike  = "volume_spike"
	ReasonNoBreakout   = "false_breakout"
)

type checkFunc func(bars []types.Bar, side types.Side) types.GuardDecision

type namedCheck struct {
	name string
	fn   checkFunc
}

// ExecutionGuard 在构造时把时钟字符串解析成当日分钟序号，
// Check 调用路径上不再做任何字符串解析。
type ExecutionGuard struct {
	policy *config.Policy
	loc    *time.Location

	openMin   int
	lunchFrom int
	lunchTo   int
	cutoff    int
	excluded  [][2]int

	checks []namedCheck
}

// NewExecutionGuard 解析 Policy 里的时段配置并装配检查序列。
func NewExecutionGuard(policy *config.Policy) (*ExecutionGuard, error) {
	if policy == nil {
		return nil, errors.New("policy required")
	}
	loc, err := time.LoadLocation(policy.Session.Timezone)
	if err != nil {
		return nil, fmt.Errorf("session timezone: %w", err)
	}
	g := &ExecutionGuard{policy: policy, loc: loc}
	for _, clock := range []struct {
		val string
		dst *int
	}{
		{policy.Session.Open, &g.openMin},
		{policy.Entry.LunchFrom, &g.lunchFrom},
		{policy.Entry.LunchTo, &g.lunchTo},
		{policy.Entry.CutoffAfter, &g.cutoff},
	} {
		m, err := config.MinuteOfDay(clock.val)
		if err != nil {
			return nil, err
		}
		*clock.dst = m
	}
	for _, ex := range policy.Session.Exclusions {
		from, err := config.MinuteOfDay(ex.From)
		if err != nil {
			return nil, err
		}
		to, err := config.MinuteOfDay(ex.To)
		if err != nil {
			return nil, err
		}
		g.excluded = append(g.excluded, [2]int{from, to})
	}
	g.checks = []namedCheck{
		{"time_of_day", g.checkTimeOfDay},
		{"price_vs_vwap", g.checkPriceVsVwap},
		{"volume_anomaly", g.checkVolumeAnomaly},
		{"false_breakout", g.checkFalseBreakout},
	}
	return g, nil
}

// Check 对最近的分钟 K 线序列执行全部准入检查。
func (g *ExecutionGuard) Check(bars []types.Bar, side types.Side) types.GuardDecision {
	if len(bars) == 0 {
		return types.Reject(ReasonNoBars)
	}
	for _, c := range g.checks {
		if d := c.fn(bars, side); !d.OK {
			return d
		}
	}
	return types.Approve()
}

// checkTimeOfDay 拒绝开盘冷启动窗口、午休、尾盘截止之后，
// 以及 Policy 额外配置的排除窗口。
func (g *ExecutionGuard) checkTimeOfDay(bars []types.Bar, _ types.Side) types.GuardDecision {
	last := bars[len(bars)-1].Time.In(g.loc)
	minute := last.Hour()*60 + last.Minute()

	if skip := g.policy.Entry.SkipOpenMinutes; skip > 0 && minute < g.openMin+skip {
		return types.Reject(ReasonTimeExcluded)
	}
	if g.lunchFrom < g.lunchTo && minute >= g.lunchFrom && minute < g.lunchTo {
		return types.Reject(ReasonTimeExcluded)
	}
	if minute >= g.cutoff {
		return types.Reject(ReasonTimeExcluded)
	}
	for _, ex := range g.excluded {
		if minute >= ex[0] && minute < ex[1] {
			return types.Reject(ReasonTimeExcluded)
		}
	}
	return types.Approve()
}

// checkPriceVsVwap 要求最新一根的收盘站在参考价的有利一侧；
// 缺失 VWAP 视为失败而不是放行。
func (g *ExecutionGuard) checkPriceVsVwap(bars []types.Bar, side types.Side) types.GuardDecision {
	last := bars[len(bars)-1]
	if last.VWAP <= 0 {
		return types.Reject(ReasonMissingVwap)
	}
	switch side {
	case types.SideShort:
		if last.Close > last.VWAP {
			return types.Reject(ReasonAboveVwap)
		}
	default:
		if last.Close < last.VWAP {
			return types.Reject(ReasonBelowVwap)
		}
	}
	return types.Approve()
}

// checkVolumeAnomaly 把最新成交量与此前均量之比约束在配置区间内，
// 过薄与异常放量都拒绝。
func (g *ExecutionGuard) checkVolumeAnomaly(bars []types.Bar, _ types.Side) types.GuardDecision {
	cfg := g.policy.Entry
	if !cfg.VolumeCheck {
		return types.Approve()
	}
	lookback := cfg.VolumeLookback
	if lookback <= 0 {
		lookback = 5
	}
	if len(bars) < lookback+1 {
		return types.Reject(ReasonShortHistory)
	}
	prior := bars[:len(bars)-1]
	vols := make([]float64, len(prior))
	for i, b := range prior {
		vols[i] = b.Volume
	}
	sma := talib.Sma(vols, lookback)
	avg := sma[len(sma)-1]
	if avg <= 0 {
		return types.Reject(ReasonVolumeThin)
	}
	ratio := bars[len(bars)-1].Volume / avg
	if ratio < cfg.VolumeMinRatio {
		return types.Reject(ReasonVolumeThin)
	}
	if ratio > cfg.VolumeMaxRatio {
		return types.Reject(ReasonVolumeSpike)
	}
	return types.Approve()
}

// checkFalseBreakout 要求最新一根对回看窗口做出真实的新极值，
// 且由收盘确认，单靠影线不算。
func (g *ExecutionGuard) checkFalseBreakout(bars []types.Bar, side types.Side) types.GuardDecision {
	lookback := g.policy.Entry.BreakoutLookback
	if lookback <= 0 {
		return types.Approve()
	}
	if len(bars) < lookback+1 {
		return types.Reject(ReasonShortHistory)
	}
	prior := bars[len(bars)-1-lookback : len(bars)-1]
	last := bars[len(bars)-1]

	if side == types.SideShort {
		lows := make([]float64, len(prior))
		for i, b := range prior {
			lows[i] = b.Low
		}
		floor := talib.Min(lows, lookback)
		ref := floor[len(floor)-1]
		if last.Low < ref && last.Close < ref {
			return types.Approve()
		}
		return types.Reject(ReasonNoBreakout)
	}

	highs := make([]float64, len(prior))
	for i, b := range prior {
		highs[i] = b.High
	}
	ceil := talib.Max(highs, lookback)
	ref := ceil[len(ceil)-1]
	if last.High > ref && last.Close > ref {
		return types.Approve()
	}
	return types.Reject(ReasonNoBreakout)
}

// ShouldExitEarly 判断不利波动（货币计）折算成 R 后是否触及早停阈值。
// 仅在持仓期间由外层轮询调用，与准入管线完全独立。
func (g *ExecutionGuard) ShouldExitEarly(entryPrice, currentPrice, plannedRisk float64, side types.Side, qty int64) bool {
	threshold := g.policy.Exit.EarlyStopAdverseR
	if threshold <= 0 || plannedRisk <= 0 || qty <= 0 {
		return false
	}
	adverse := (entryPrice - currentPrice) * float64(qty)
	if side == types.SideShort {
		adverse = -adverse
	}
	if adverse <= 0 {
		return false
	}
	return adverse/plannedRisk >= threshold
}
