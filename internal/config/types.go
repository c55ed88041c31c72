package config

import "strings"

// Policy 是引擎的全量配置载体。顶层调用方持有所有权，
// 引擎各组件只读借用；变异（AutoFix）一律通过 Clone 产生新实例。
type Policy struct {
	App             AppConfig                `toml:"app"`
	Data            DataConfig               `toml:"data"`
	Capital         float64                  `toml:"capital"`
	Risk            RiskConfig               `toml:"risk"`
	Session         SessionConfig            `toml:"session"`
	Strategy        StrategyConfig           `toml:"strategy"`
	Entry           EntryConfig              `toml:"entry"`
	Exit            ExitConfig               `toml:"exit"`
	MaxTradesPerDay int                      `toml:"max_trades_per_day"`
	Exec            ExecConfig               `toml:"exec"`
	Verdict         map[string]VerdictConfig `toml:"verdict"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// DataConfig 描述外部行情协作方与结果落盘位置。
type DataConfig struct {
	Source    string `toml:"source"`
	Symbol    string `toml:"symbol"`
	Timeframe string `toml:"timeframe"`
	StoreRoot string `toml:"store_root"`
	VerdictDB string `toml:"verdict_db"`
}

// RiskConfig 控制资金占用与单笔/单日亏损上限（百分数）。
type RiskConfig struct {
	PerTradePct        float64 `toml:"per_trade_pct"`
	PerDayPct          float64 `toml:"per_day_pct"`
	MaxPositions       int     `toml:"max_positions"`
	SizingBuffer       float64 `toml:"sizing_buffer"`         // 可选：预算再打的折扣，0~1
	MinStopDistancePct float64 `toml:"min_stop_distance_pct"` // 入场时 |entry-stop|/entry 的下限
}

// ClockRange 是一段 "HH:MM" 起止的当日时间窗。
type ClockRange struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

// SessionConfig 描述交易时段与排除窗口。
type SessionConfig struct {
	Open       string       `toml:"open"`
	Close      string       `toml:"close"`
	Timezone   string       `toml:"timezone"`
	Exclusions []ClockRange `toml:"exclusions"`
}

// StrategyConfig 是策略变体及其参数。
type StrategyConfig struct {
	Name              string  `toml:"name"`
	VwapBandPct       float64 `toml:"vwap_band_pct"`       // 前一根低点触及 VWAP 的容差带
	PullbackMinPct    float64 `toml:"pullback_min_pct"`    // 距局部高点的最小回撤
	PullbackMaxPct    float64 `toml:"pullback_max_pct"`    // 距局部高点的最大回撤
	LocalHighLookback int     `toml:"local_high_lookback"` // 局部高点回看根数
	StopPct           float64 `toml:"stop_pct"`            // 止损距入场价的百分比
}

// EntryConfig 是实盘准入管线（ExecutionGuard）的参数。
type EntryConfig struct {
	SkipOpenMinutes  int     `toml:"skip_open_minutes"`
	LunchFrom        string  `toml:"lunch_from"`
	LunchTo          string  `toml:"lunch_to"`
	CutoffAfter      string  `toml:"cutoff_after"`
	VolumeCheck      bool    `toml:"volume_check"`
	VolumeLookback   int     `toml:"volume_lookback"`
	VolumeMinRatio   float64 `toml:"volume_min_ratio"`
	VolumeMaxRatio   float64 `toml:"volume_max_ratio"`
	BreakoutLookback int     `toml:"breakout_lookback"`
}

// ProfitGuardConfig 是回撤保护出场：MFE 达到 TriggerR 后，
// 当前 R 跌至 max(mfe-TrailR, KeepR) 即离场。
type ProfitGuardConfig struct {
	Enabled  bool    `toml:"enabled"`
	TriggerR float64 `toml:"trigger_r"`
	TrailR   float64 `toml:"trail_r"`
	KeepR    float64 `toml:"keep_r"`
}

// ExitConfig 汇总全部出场规则参数。
type ExitConfig struct {
	TakeProfitR       float64           `toml:"take_profit_r"`
	MaxHoldMinutes    int               `toml:"max_hold_minutes"`
	VwapGraceMinutes  int               `toml:"vwap_grace_minutes"`   // 宽限期内抑制策略出场
	VwapGraceMaxLossR float64           `toml:"vwap_grace_max_loss_r"` // 宽限期内容忍的最大亏损 R
	ProfitGuard       ProfitGuardConfig `toml:"profit_guard"`
	EarlyStopAdverseR float64           `toml:"early_stop_adverse_r"` // 实盘早停：不利波动达到该 R 即离场
}

type ExecConfig struct {
	SlippagePct float64 `toml:"slippage_pct"`
}

// VerdictConfig 是一套裁决阈值，按运行模式（dev/prod）命名。
type VerdictConfig struct {
	MinAvgR         float64 `toml:"min_avg_r"`
	MaxDDPct        float64 `toml:"max_dd_pct"`
	MaxLossStreak   int     `toml:"max_loss_streak"`
	MaxDayLossRatio float64 `toml:"max_day_loss_ratio"`
	MinTrades       int     `toml:"min_trades"`
}

// Thresholds 返回 mode 对应的阈值组，缺失时回退 default，再回退 dev。
func (p *Policy) Thresholds(mode string) (VerdictConfig, bool) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if vc, ok := p.Verdict[mode]; ok {
		return vc, true
	}
	if vc, ok := p.Verdict["default"]; ok {
		return vc, true
	}
	if vc, ok := p.Verdict["dev"]; ok {
		return vc, true
	}
	return VerdictConfig{}, false
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
