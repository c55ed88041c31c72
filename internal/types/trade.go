package types

import "time"

// ExitReason 是平仓原因的封闭集合，一笔 Trade 只允许一个。
type ExitReason string

const (
	ExitStopLoss     ExitReason = "stop_loss"
	ExitStrategy     ExitReason = "strategy_exit"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitProfitGuard  ExitReason = "profit_guard"
	ExitTimeLimit    ExitReason = "time_limit"
	ExitEndOfDay     ExitReason = "eod_close"
	ExitEarlyStop    ExitReason = "early_stop"
)

// Trade 记录一笔已完成的模拟或实盘持仓。
// 不变量：RMultiple 与 PnL 同号（或同为零）。
type Trade struct {
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	Quantity   int64      `json:"quantity"`
	PnL        float64    `json:"pnl"`
	RMultiple  float64    `json:"r_multiple"`
	Reason     ExitReason `json:"reason"`
}

// HoldingMinutes 返回持仓分钟数。
func (t Trade) HoldingMinutes() int {
	return int(t.ExitTime.Sub(t.EntryTime) / time.Minute)
}

// DaySummary 汇总单个交易日。
// 不变量：DayLossHit 为真当且仅当日内累计亏损击穿了当日亏损预算。
type DaySummary struct {
	Date        time.Time `json:"date"`
	Trades      []Trade   `json:"trades"`
	TotalPnL    float64   `json:"total_pnl"`
	DayLossHit  bool      `json:"day_loss_hit"`
	MaxDrawdown float64   `json:"max_drawdown"`
	LossStreak  int       `json:"loss_streak"`
}
