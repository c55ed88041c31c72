package config

import (
	"fmt"
	"strings"
	"time"
)

// ShapeError 表示策略文件缺键或取值非法。
// 在边界处即视为致命，引擎内部不再做这类检查。
type ShapeError struct {
	Detail string
}

func (e *ShapeError) Error() string {
	return "policy shape: " + e.Detail
}

func shapeErrf(format string, v ...any) error {
	return &ShapeError{Detail: fmt.Sprintf(format, v...)}
}

// validate 对解码后的 Policy 做数值与时钟校验。
func validate(p *Policy) error {
	if p.Capital <= 0 {
		return shapeErrf("capital must be > 0, got %.2f", p.Capital)
	}
	if p.Risk.PerTradePct <= 0 || p.Risk.PerTradePct > 100 {
		return shapeErrf("risk.per_trade_pct out of range: %.4f", p.Risk.PerTradePct)
	}
	if p.Risk.PerDayPct <= 0 || p.Risk.PerDayPct > 100 {
		return shapeErrf("risk.per_day_pct out of range: %.4f", p.Risk.PerDayPct)
	}
	if p.Risk.PerDayPct < p.Risk.PerTradePct {
		return shapeErrf("risk.per_day_pct %.4f below per_trade_pct %.4f", p.Risk.PerDayPct, p.Risk.PerTradePct)
	}
	if p.Risk.SizingBuffer < 0 || p.Risk.SizingBuffer >= 1 {
		return shapeErrf("risk.sizing_buffer must be in [0,1): %.4f", p.Risk.SizingBuffer)
	}
	if _, err := MinuteOfDay(p.Session.Open); err != nil {
		return shapeErrf("session.open: %v", err)
	}
	if _, err := MinuteOfDay(p.Session.Close); err != nil {
		return shapeErrf("session.close: %v", err)
	}
	if _, err := time.LoadLocation(p.Session.Timezone); err != nil {
		return shapeErrf("session.timezone: %v", err)
	}
	for i, ex := range p.Session.Exclusions {
		if _, err := MinuteOfDay(ex.From); err != nil {
			return shapeErrf("session.exclusions[%d].from: %v", i, err)
		}
		if _, err := MinuteOfDay(ex.To); err != nil {
			return shapeErrf("session.exclusions[%d].to: %v", i, err)
		}
	}
	for _, clock := range []struct{ key, val string }{
		{"entry.lunch_from", p.Entry.LunchFrom},
		{"entry.lunch_to", p.Entry.LunchTo},
		{"entry.cutoff_after", p.Entry.CutoffAfter},
	} {
		if _, err := MinuteOfDay(clock.val); err != nil {
			return shapeErrf("%s: %v", clock.key, err)
		}
	}
	if p.Entry.VolumeCheck && p.Entry.VolumeMinRatio >= p.Entry.VolumeMaxRatio {
		return shapeErrf("entry.volume_min_ratio %.2f must be below volume_max_ratio %.2f",
			p.Entry.VolumeMinRatio, p.Entry.VolumeMaxRatio)
	}
	if p.Strategy.PullbackMinPct > p.Strategy.PullbackMaxPct {
		return shapeErrf("strategy.pullback_min_pct %.2f above pullback_max_pct %.2f",
			p.Strategy.PullbackMinPct, p.Strategy.PullbackMaxPct)
	}
	if pg := p.Exit.ProfitGuard; pg.Enabled {
		if pg.TrailR <= 0 || pg.TriggerR <= 0 {
			return shapeErrf("exit.profit_guard requires positive trigger_r/trail_r")
		}
		if pg.KeepR >= pg.TriggerR {
			return shapeErrf("exit.profit_guard.keep_r %.2f must be below trigger_r %.2f", pg.KeepR, pg.TriggerR)
		}
	}
	if p.Exec.SlippagePct < 0 {
		return shapeErrf("exec.slippage_pct must be >= 0")
	}
	if len(p.Verdict) == 0 {
		return shapeErrf("verdict requires at least one named threshold set")
	}
	for name, vc := range p.Verdict {
		if vc.MaxDDPct <= 0 {
			return shapeErrf("verdict.%s.max_dd_pct must be > 0", name)
		}
		if vc.MaxDayLossRatio < 0 || vc.MaxDayLossRatio > 1 {
			return shapeErrf("verdict.%s.max_day_loss_ratio must be in [0,1]", name)
		}
	}
	return nil
}

// MinuteOfDay 解析 "HH:MM" 为当日分钟序号。
func MinuteOfDay(clock string) (int, error) {
	clock = strings.TrimSpace(clock)
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q", clock)
	}
	return t.Hour()*60 + t.Minute(), nil
}
