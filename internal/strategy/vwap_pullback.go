package strategy

import (
	talib "github.com/markcheno/go-talib"

	"vela/internal/config"
	"vela/internal/types"
)

// VwapPullbackLong 是参考实现：VWAP 上方的回踩反弹做多。
// 入场需同时满足：现价在 VWAP 上方、前一根低点触及 VWAP 容差带、
// 距局部高点的回撤深度落在配置区间内、当前为反弹阳线。
// 持仓期间收盘跌破 VWAP 即发出出场信号。
type VwapPullbackLong struct{}

func (s *VwapPullbackLong) Name() string { return "vwap_pullback_long" }

func (s *VwapPullbackLong) OnBar(index int, bars []types.Bar, hasOpen bool, policy *config.Policy) types.Signal {
	if index < 0 || index >= len(bars) {
		return types.Hold()
	}
	cur := bars[index]

	if hasOpen {
		if cur.VWAP > 0 && cur.Close < cur.VWAP {
			return types.Signal{Action: types.ActionExit, Side: types.SideLong}
		}
		return types.Hold()
	}

	cfg := policy.Strategy
	// 局部高点需要足够的历史
	if index < cfg.LocalHighLookback+1 {
		return types.Hold()
	}
	prev := bars[index-1]
	if cur.VWAP <= 0 || prev.VWAP <= 0 {
		return types.Hold()
	}

	if cur.Close <= cur.VWAP {
		return types.Hold()
	}
	if !touchedBand(prev.Low, prev.VWAP, cfg.VwapBandPct) {
		return types.Hold()
	}
	high := localHigh(bars[:index], cfg.LocalHighLookback)
	if high <= 0 {
		return types.Hold()
	}
	depth := (high - cur.Low) / high * 100
	if depth < cfg.PullbackMinPct || depth > cfg.PullbackMaxPct {
		return types.Hold()
	}
	if !cur.Bullish() {
		return types.Hold()
	}

	entry := cur.Close
	stop := entry * (1 - cfg.StopPct/100)
	return types.Signal{
		Action:         types.ActionEnter,
		Side:           types.SideLong,
		Entry:          entry,
		Stop:           stop,
		MaxHoldMinutes: policy.Exit.MaxHoldMinutes,
	}
}

// touchedBand 判断低点是否触及 VWAP 上下 bandPct% 的容差带。
func touchedBand(low, vwap, bandPct float64) bool {
	if vwap <= 0 {
		return false
	}
	dist := low - vwap
	if dist < 0 {
		dist = -dist
	}
	return dist/vwap*100 <= bandPct
}

// localHigh 取回看窗口内的最高价。
func localHigh(bars []types.Bar, lookback int) float64 {
	if lookback <= 0 || len(bars) < lookback {
		return 0
	}
	highs := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
	}
	rolled := talib.Max(highs, lookback)
	return rolled[len(rolled)-1]
}
