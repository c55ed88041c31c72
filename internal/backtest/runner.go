// Package backtest 把历史 K 线与策略推演成模拟成交序列。
// Runner 是纯同步计算：同样的 K 线与 Policy 输入必定产出逐位一致的结果。
package backtest

import (
	"errors"
	"fmt"
	"time"

	"vela/internal/config"
	"vela/internal/logger"
	"vela/internal/risk"
	"vela/internal/sim"
	"vela/internal/strategy"
	"vela/internal/types"
)

// Runner 以"最多一仓"的状态机回放单个交易日。
type Runner struct {
	policy *config.Policy
	strat  strategy.Strategy
	budget risk.Budget
}

// NewRunner 为给定 Policy 构建回放器。
func NewRunner(policy *config.Policy, strat strategy.Strategy) (*Runner, error) {
	if policy == nil {
		return nil, errors.New("policy required")
	}
	if strat == nil {
		return nil, errors.New("strategy required")
	}
	return &Runner{
		policy: policy,
		strat:  strat,
		budget: risk.NewBudget(policy.Capital, policy.Risk.PerTradePct, policy.Risk.PerDayPct),
	}, nil
}

// position 是持仓期间的全部状态。
type position struct {
	entryTime   time.Time
	entryPrice  float64
	stop        float64
	qty         int64
	plannedRisk float64
	maxHoldMin  int
	mfeR        float64
}

// RunDay 回放一个交易日的 K 线，产出按时间排列的成交与当日汇总。
// 所有成交都经由 sim 对"下一根开盘价"撮合，绝不使用当根收盘，
// 以避免前视偏差；收盘仍持仓则按最后一根收盘强平。
func (r *Runner) RunDay(bars []types.Bar) (types.DaySummary, error) {
	summary := types.DaySummary{}
	if len(bars) == 0 {
		return summary, nil
	}
	summary.Date = bars[0].Time.Truncate(24 * time.Hour)

	slip := r.policy.Exec.SlippagePct
	plannedRisk := r.budget.PerTradeLoss * (1 - r.policy.Risk.SizingBuffer)

	var (
		pos        *position
		cumPnL     float64
		peakPnL    float64
		lossStreak int
	)

	closeTrade := func(exitTime time.Time, exitPrice float64, reason types.ExitReason) error {
		pnl := (exitPrice - pos.entryPrice) * float64(pos.qty)
		rMult, err := risk.RMultiple(pnl, pos.plannedRisk)
		if err != nil {
			return err
		}
		trade := types.Trade{
			EntryTime:  pos.entryTime,
			ExitTime:   exitTime,
			EntryPrice: pos.entryPrice,
			ExitPrice:  exitPrice,
			Quantity:   pos.qty,
			PnL:        pnl,
			RMultiple:  rMult,
			Reason:     reason,
		}
		summary.Trades = append(summary.Trades, trade)
		cumPnL += pnl
		summary.TotalPnL = cumPnL
		if cumPnL > peakPnL {
			peakPnL = cumPnL
		}
		if dd := peakPnL - cumPnL; dd > summary.MaxDrawdown {
			summary.MaxDrawdown = dd
		}
		if pnl < 0 {
			lossStreak++
			if lossStreak > summary.LossStreak {
				summary.LossStreak = lossStreak
			}
		} else {
			lossStreak = 0
		}
		if cumPnL <= -r.budget.PerDayLoss {
			summary.DayLossHit = true
		}
		pos = nil
		return nil
	}

	for i := range bars {
		cur := bars[i]
		last := i == len(bars)-1

		if pos != nil {
			if last {
				// 收盘强平：此时已没有"下一根开盘"可用
				exitPrice, err := sim.Fill(cur.Close, types.SideShort, slip)
				if err != nil {
					return summary, fmt.Errorf("eod fill: %w", err)
				}
				if err := closeTrade(cur.Time, exitPrice, types.ExitEndOfDay); err != nil {
					return summary, err
				}
				continue
			}
			if reason, ok := r.exitReason(i, bars, pos); ok {
				exitPrice, err := sim.Fill(bars[i+1].Open, types.SideShort, slip)
				if err != nil {
					return summary, fmt.Errorf("exit fill: %w", err)
				}
				if err := closeTrade(bars[i+1].Time, exitPrice, reason); err != nil {
					return summary, err
				}
			}
			continue
		}

		// 空仓：日内止损或笔数额度用尽后不再进场
		if summary.DayLossHit || cumPnL <= -r.budget.PerDayLoss {
			continue
		}
		if len(summary.Trades) >= r.policy.MaxTradesPerDay {
			continue
		}
		if last {
			continue
		}
		sig := r.strat.OnBar(i, bars, false, r.policy)
		if sig.Action != types.ActionEnter {
			continue
		}
		pos = r.tryOpen(sig, bars[i+1], plannedRisk, slip)
	}

	return summary, nil
}

// tryOpen 做入场前的距离与规模检查，任何一步不满足都只是放弃候选。
func (r *Runner) tryOpen(sig types.Signal, next types.Bar, plannedRisk, slip float64) *position {
	if sig.Entry <= 0 || sig.Stop <= 0 || sig.Stop >= sig.Entry {
		return nil
	}
	if minPct := r.policy.Risk.MinStopDistancePct; minPct > 0 {
		if (sig.Entry-sig.Stop)/sig.Entry*100 < minPct {
			logger.Debugf("entry skipped: stop distance below floor entry=%.4f stop=%.4f", sig.Entry, sig.Stop)
			return nil
		}
	}
	entryPrice, err := sim.Fill(next.Open, types.SideLong, slip)
	if err != nil {
		logger.Debugf("entry skipped: %v", err)
		return nil
	}
	qty, err := risk.SizeLong(entryPrice, sig.Stop, plannedRisk)
	if err != nil || qty <= 0 {
		logger.Debugf("entry skipped: sizing failed entry=%.4f stop=%.4f err=%v", entryPrice, sig.Stop, err)
		return nil
	}
	maxHold := sig.MaxHoldMinutes
	if maxHold <= 0 {
		maxHold = r.policy.Exit.MaxHoldMinutes
	}
	return &position{
		entryTime:   next.Time,
		entryPrice:  entryPrice,
		stop:        sig.Stop,
		qty:         qty,
		plannedRisk: plannedRisk,
		maxHoldMin:  maxHold,
	}
}

// exitReason 按固定优先级评估当根 K 线上的出场条件：
// 止损 → 策略出场（可被宽限期抑制）→ 止盈 → 回撤保护 → 持仓时限。
// 同一根上多个条件同时为真时，永远取序号最小者。
func (r *Runner) exitReason(i int, bars []types.Bar, pos *position) (types.ExitReason, bool) {
	cur := bars[i]
	unrealized := (cur.Close - pos.entryPrice) * float64(pos.qty)
	curR := unrealized / pos.plannedRisk
	heldMin := int(cur.Time.Sub(pos.entryTime) / time.Minute)

	// (1) 止损：收盘触及或击穿
	if cur.Close <= pos.stop {
		return types.ExitStopLoss, true
	}

	// (2) 策略出场，宽限期内只要亏损未超过容忍线就抑制
	if sig := r.strat.OnBar(i, bars, true, r.policy); sig.Action == types.ActionExit {
		grace := r.policy.Exit.VwapGraceMinutes
		suppressed := grace > 0 && heldMin < grace && curR > -r.policy.Exit.VwapGraceMaxLossR
		if !suppressed {
			return types.ExitStrategy, true
		}
	}

	// (3) 止盈
	if unrealized >= pos.plannedRisk*r.policy.Exit.TakeProfitR {
		return types.ExitTakeProfit, true
	}

	// (4) 回撤保护：MFE 达标后跟踪离场
	if pg := r.policy.Exit.ProfitGuard; pg.Enabled {
		if curR > pos.mfeR {
			pos.mfeR = curR
		}
		if pos.mfeR >= pg.TriggerR {
			floor := pos.mfeR - pg.TrailR
			if pg.KeepR > floor {
				floor = pg.KeepR
			}
			if curR <= floor {
				return types.ExitProfitGuard, true
			}
		}
	}

	// (5) 持仓时限
	if heldMin >= pos.maxHoldMin {
		return types.ExitTimeLimit, true
	}

	return "", false
}
