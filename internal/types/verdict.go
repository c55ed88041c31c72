package types

// VerdictStatus 只有 GO / NO_GO 两种结果。
type VerdictStatus string

const (
	VerdictGo   VerdictStatus = "GO"
	VerdictNoGo VerdictStatus = "NO_GO"
)

// 裁决原因码。no_data 表示没有任何 DaySummary 可评估。
const (
	ReasonNoData        = "no_data"
	ReasonWeakAvgR      = "weak_avg_r"
	ReasonDrawdown      = "excessive_drawdown"
	ReasonLossStreak    = "loss_streak"
	ReasonDayLossRatio  = "day_loss_ratio"
	ReasonTooFewTrades  = "too_few_trades"
)

// VerdictMetrics 是 Judge 评估出的全部数值指标。
type VerdictMetrics struct {
	AvgR         float64 `json:"avg_r"`
	MaxDDPct     float64 `json:"max_dd_pct"`
	LossStreak   int     `json:"loss_streak"`
	DayLossRatio float64 `json:"day_loss_ratio"`
	TradeCount   int     `json:"trade_count"`
}

// Verdict 是一次评估的完整输出，Reasons 为空当且仅当 GO。
// 每次调用都产出新值，调用方可自由持久化或丢弃。
type Verdict struct {
	Status  VerdictStatus  `json:"status"`
	Reasons []string       `json:"reasons,omitempty"`
	Metrics VerdictMetrics `json:"metrics"`
	Mode    string         `json:"mode"`
}

// Go 报告裁决是否通过。
func (v Verdict) Go() bool { return v.Status == VerdictGo }
