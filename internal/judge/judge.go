// Package judge 把一组 DaySummary 对照阈值裁决为 GO / NO_GO。
// Evaluate 是纯函数：不读时钟、不留状态，每次调用产出全新的 Verdict。
package judge

import (
	"vela/internal/config"
	"vela/internal/types"
)

// Evaluate 按 mode 选取阈值组（缺失时回退默认组）评估全部指标。
// 每个阈值独立检查，违规全部收集而不是遇错即停，
// 让调用方一次看到完整的失败画面。
func Evaluate(summaries []types.DaySummary, policy *config.Policy, mode string) types.Verdict {
	verdict := types.Verdict{Status: types.VerdictNoGo, Mode: mode}
	if len(summaries) == 0 {
		verdict.Reasons = []string{types.ReasonNoData}
		return verdict
	}

	verdict.Metrics = Metrics(summaries, policy.Capital)
	thresholds, _ := policy.Thresholds(mode)

	m := verdict.Metrics
	if m.AvgR < thresholds.MinAvgR {
		verdict.Reasons = append(verdict.Reasons, types.ReasonWeakAvgR)
	}
	if thresholds.MaxDDPct > 0 && m.MaxDDPct > thresholds.MaxDDPct {
		verdict.Reasons = append(verdict.Reasons, types.ReasonDrawdown)
	}
	if thresholds.MaxLossStreak > 0 && m.LossStreak > thresholds.MaxLossStreak {
		verdict.Reasons = append(verdict.Reasons, types.ReasonLossStreak)
	}
	if m.DayLossRatio > thresholds.MaxDayLossRatio {
		verdict.Reasons = append(verdict.Reasons, types.ReasonDayLossRatio)
	}
	if m.TradeCount < thresholds.MinTrades {
		verdict.Reasons = append(verdict.Reasons, types.ReasonTooFewTrades)
	}

	if len(verdict.Reasons) == 0 {
		verdict.Status = types.VerdictGo
	}
	return verdict
}

// Metrics 汇总全量指标：平均 R、占本金百分比的最大回撤、
// 最长单日连亏、触发日亏止损的天数占比与总成交笔数。
func Metrics(summaries []types.DaySummary, capital float64) types.VerdictMetrics {
	var m types.VerdictMetrics
	var sumR float64
	var maxDD float64
	var lossDays int
	for _, day := range summaries {
		for _, trade := range day.Trades {
			sumR += trade.RMultiple
			m.TradeCount++
		}
		if day.MaxDrawdown > maxDD {
			maxDD = day.MaxDrawdown
		}
		if day.LossStreak > m.LossStreak {
			m.LossStreak = day.LossStreak
		}
		if day.DayLossHit {
			lossDays++
		}
	}
	if m.TradeCount > 0 {
		m.AvgR = sumR / float64(m.TradeCount)
	}
	if capital > 0 {
		m.MaxDDPct = maxDD / capital * 100
	}
	m.DayLossRatio = float64(lossDays) / float64(len(summaries))
	return m
}
