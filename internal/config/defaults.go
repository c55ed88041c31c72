package config

import "strings"

// 默认值常量
const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppHTTPAddr      = ":9982"
	defaultDataSource       = "binance"
	defaultDataTimeframe    = "1m"
	defaultDataStoreRoot    = "data/backtest"
	defaultDataVerdictDB    = "data/verdicts.db"
	defaultRiskMaxPositions = 1
	defaultSessionOpen      = "09:30"
	defaultSessionClose     = "15:00"
	defaultSessionTZ        = "Asia/Shanghai"
	defaultStrategyName     = "vwap_pullback_long"
	defaultStrategyLookback = 10
	defaultEntryLunchFrom   = "11:30"
	defaultEntryLunchTo     = "13:00"
	defaultEntryCutoff      = "14:25"
	defaultMaxTradesPerDay  = 3
)

// applyDefaults 为所有子配置应用默认值。
func (p *Policy) applyDefaults(keys keySet) {
	p.App.applyDefaults(keys)
	p.Data.applyDefaults(keys)
	p.Risk.applyDefaults(keys)
	p.Session.applyDefaults(keys)
	p.Strategy.applyDefaults(keys)
	p.Entry.applyDefaults(keys)
	p.Exit.applyDefaults(keys)
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "max_trades_per_day",
			need:  func() bool { return p.MaxTradesPerDay <= 0 },
			apply: func() { p.MaxTradesPerDay = defaultMaxTradesPerDay },
		},
	)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (d *DataConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("data.source", &d.Source, defaultDataSource),
		stringFieldDefault("data.timeframe", &d.Timeframe, defaultDataTimeframe),
		stringFieldDefault("data.store_root", &d.StoreRoot, defaultDataStoreRoot),
		stringFieldDefault("data.verdict_db", &d.VerdictDB, defaultDataVerdictDB),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.max_positions",
			need:  func() bool { return r.MaxPositions <= 0 },
			apply: func() { r.MaxPositions = defaultRiskMaxPositions },
		},
	)
}

func (s *SessionConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("session.open", &s.Open, defaultSessionOpen),
		stringFieldDefault("session.close", &s.Close, defaultSessionClose),
		stringFieldDefault("session.timezone", &s.Timezone, defaultSessionTZ),
	)
}

func (s *StrategyConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("strategy.name", &s.Name, defaultStrategyName),
		fieldDefault{
			key:   "strategy.local_high_lookback",
			need:  func() bool { return s.LocalHighLookback <= 0 },
			apply: func() { s.LocalHighLookback = defaultStrategyLookback },
		},
		fieldDefault{
			key:   "strategy.vwap_band_pct",
			need:  func() bool { return s.VwapBandPct <= 0 },
			apply: func() { s.VwapBandPct = 0.15 },
		},
		fieldDefault{
			key:   "strategy.pullback_max_pct",
			need:  func() bool { return s.PullbackMaxPct <= 0 },
			apply: func() { s.PullbackMaxPct = 2.0 },
		},
		fieldDefault{
			key:   "strategy.stop_pct",
			need:  func() bool { return s.StopPct <= 0 },
			apply: func() { s.StopPct = 0.5 },
		},
	)
}

func (e *EntryConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("entry.lunch_from", &e.LunchFrom, defaultEntryLunchFrom),
		stringFieldDefault("entry.lunch_to", &e.LunchTo, defaultEntryLunchTo),
		stringFieldDefault("entry.cutoff_after", &e.CutoffAfter, defaultEntryCutoff),
		fieldDefault{
			key:   "entry.skip_open_minutes",
			need:  func() bool { return e.SkipOpenMinutes <= 0 },
			apply: func() { e.SkipOpenMinutes = 5 },
		},
		fieldDefault{
			key:   "entry.volume_lookback",
			need:  func() bool { return e.VolumeLookback <= 0 },
			apply: func() { e.VolumeLookback = 5 },
		},
		fieldDefault{
			key:   "entry.volume_min_ratio",
			need:  func() bool { return e.VolumeMinRatio <= 0 },
			apply: func() { e.VolumeMinRatio = 0.3 },
		},
		fieldDefault{
			key:   "entry.volume_max_ratio",
			need:  func() bool { return e.VolumeMaxRatio <= 0 },
			apply: func() { e.VolumeMaxRatio = 8.0 },
		},
		fieldDefault{
			key:   "entry.breakout_lookback",
			need:  func() bool { return e.BreakoutLookback <= 0 },
			apply: func() { e.BreakoutLookback = 5 },
		},
	)
}

func (e *ExitConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "exit.take_profit_r",
			need:  func() bool { return e.TakeProfitR <= 0 },
			apply: func() { e.TakeProfitR = 2.0 },
		},
		fieldDefault{
			key:   "exit.max_hold_minutes",
			need:  func() bool { return e.MaxHoldMinutes <= 0 },
			apply: func() { e.MaxHoldMinutes = 60 },
		},
		fieldDefault{
			key:   "exit.early_stop_adverse_r",
			need:  func() bool { return e.EarlyStopAdverseR <= 0 },
			apply: func() { e.EarlyStopAdverseR = 0.8 },
		},
		fieldDefault{
			key:   "exit.profit_guard.trigger_r",
			need:  func() bool { return e.ProfitGuard.Enabled && e.ProfitGuard.TriggerR <= 0 },
			apply: func() { e.ProfitGuard.TriggerR = 1.0 },
		},
		fieldDefault{
			key:   "exit.profit_guard.trail_r",
			need:  func() bool { return e.ProfitGuard.Enabled && e.ProfitGuard.TrailR <= 0 },
			apply: func() { e.ProfitGuard.TrailR = 0.5 },
		},
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
