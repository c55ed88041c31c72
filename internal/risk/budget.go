// Package risk 把账户资金与百分比上限换算成绝对的亏损预算，
// 并负责仓位与 R 倍数的纯函数计算。所有函数无副作用。
package risk

import (
	"fmt"
	"math"

	"vela/internal/types"
)

// Budget 是单笔与单日的绝对亏损预算（货币单位，向下取整，至少 1）。
type Budget struct {
	PerTradeLoss float64 `json:"per_trade_loss"`
	PerDayLoss   float64 `json:"per_day_loss"`
}

// NewBudget 由资金与百分比上限计算预算。
func NewBudget(capital, perTradePct, perDayPct float64) Budget {
	return Budget{
		PerTradeLoss: flooredBudget(capital, perTradePct),
		PerDayLoss:   flooredBudget(capital, perDayPct),
	}
}

func flooredBudget(capital, pct float64) float64 {
	amount := math.Floor(capital * pct / 100)
	if amount < 1 {
		amount = 1
	}
	return amount
}

// SizeLong 按单笔亏损预算推导多头仓位：floor(perTradeLoss / (entry - stop))。
// stop >= entry 时返回 ErrInvalidRisk，调用方应跳过该候选。
func SizeLong(entry, stop, perTradeLoss float64) (int64, error) {
	if entry <= 0 || stop <= 0 {
		return 0, fmt.Errorf("%w: entry=%.4f stop=%.4f", types.ErrInvalidRisk, entry, stop)
	}
	if stop >= entry {
		return 0, fmt.Errorf("%w: stop %.4f not below entry %.4f", types.ErrInvalidRisk, stop, entry)
	}
	if perTradeLoss <= 0 {
		return 0, fmt.Errorf("%w: per-trade loss %.2f", types.ErrInvalidRisk, perTradeLoss)
	}
	return int64(math.Floor(perTradeLoss / (entry - stop))), nil
}

// RMultiple 返回收益相对单笔风险预算的倍数。
func RMultiple(profit, perTradeLoss float64) (float64, error) {
	if perTradeLoss <= 0 {
		return 0, fmt.Errorf("%w: per-trade loss %.2f", types.ErrInvalidRisk, perTradeLoss)
	}
	return profit / perTradeLoss, nil
}
