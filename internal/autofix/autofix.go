// Package autofix 在 Policy 参数空间上做有界的最优先搜索：
// 对 NO_GO 的裁决原因套用一组小而可解释的单参数变异，
// 逐轮评估并保留得分最高的 beamWidth 个作为下一轮种子，
// 任何候选拿到 GO 即刻收束。
package autofix

import (
	"errors"
	"math"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"vela/internal/config"
	"vela/internal/judge"
	"vela/internal/logger"
	"vela/internal/types"
)

// EvalFunc 由调用方提供，把候选 Policy 回放成 DaySummary 序列。
// 搜索本身不接触任何行情数据。
type EvalFunc func(policy *config.Policy) ([]types.DaySummary, error)

// Options 控制搜索规模。零值字段使用默认值。
type Options struct {
	MaxCandidates int    // 全局评估次数上限（不含基线）
	MaxRounds     int    // 变异轮数上限
	BeamWidth     int    // 每轮保留的种子数
	Parallelism   int    // 单轮内的并发评估数
	Mode          string // 裁决阈值组
}

func (o *Options) defaults() {
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = 24
	}
	if o.MaxRounds <= 0 {
		o.MaxRounds = 3
	}
	if o.BeamWidth <= 0 {
		o.BeamWidth = 3
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 4
	}
	if o.Mode == "" {
		o.Mode = "dev"
	}
}

// Candidate 是一次评估的完整记录。
type Candidate struct {
	Policy   *config.Policy
	Mutation string // 相对基线累计的变异路径
	Verdict  types.Verdict
	Score    float64
	Err      error
}

// Result 汇总一次搜索。Best 的得分永远不低于基线。
type Result struct {
	BaseVerdict types.Verdict
	Candidates  []Candidate
	Best        Candidate
}

// Search 评估基线后做 beam search。第一次出现 GO 的候选即终止，
// 找不到 GO 则返回得分最高的候选（可能就是基线自身）。
func Search(base *config.Policy, eval EvalFunc, opts Options) (Result, error) {
	if base == nil {
		return Result{}, errors.New("base policy required")
	}
	if eval == nil {
		return Result{}, errors.New("eval func required")
	}
	opts.defaults()

	baseCand := evaluate(base, "", eval, opts.Mode)
	result := Result{BaseVerdict: baseCand.Verdict, Best: baseCand}
	if baseCand.Err != nil {
		return result, baseCand.Err
	}
	if baseCand.Verdict.Go() {
		return result, nil
	}

	var used int64
	seeds := []Candidate{baseCand}

	for round := 1; round <= opts.MaxRounds; round++ {
		var batch []*config.Policy
		var labels []string
		seen := map[string]struct{}{}
		for _, seed := range seeds {
			for _, mut := range menu(seed.Verdict.Reasons) {
				next := seed.Policy.Clone()
				if !mut.apply(next) {
					continue
				}
				label := joinLabel(seed.Mutation, mut.label)
				if _, dup := seen[label]; dup {
					continue
				}
				seen[label] = struct{}{}
				batch = append(batch, next)
				labels = append(labels, label)
			}
		}
		if len(batch) == 0 {
			break
		}

		// 同一轮内的候选互不共享可变状态，可安全并发评估；
		// 全局评估上限用原子计数兜底。
		evaluated := make([]Candidate, len(batch))
		var g errgroup.Group
		g.SetLimit(opts.Parallelism)
		for i := range batch {
			if atomic.AddInt64(&used, 1) > int64(opts.MaxCandidates) {
				atomic.AddInt64(&used, -1)
				evaluated = evaluated[:i]
				break
			}
			i := i
			g.Go(func() error {
				evaluated[i] = evaluate(batch[i], labels[i], eval, opts.Mode)
				return nil
			})
		}
		_ = g.Wait()

		result.Candidates = append(result.Candidates, evaluated...)
		for _, cand := range evaluated {
			if cand.Score > result.Best.Score {
				result.Best = cand
			}
		}
		for _, cand := range evaluated {
			if cand.Err == nil && cand.Verdict.Go() {
				logger.Infof("autofix: GO found round=%d mutation=%s", round, cand.Mutation)
				result.Best = cand
				return result, nil
			}
		}
		if atomic.LoadInt64(&used) >= int64(opts.MaxCandidates) {
			break
		}

		sort.SliceStable(evaluated, func(a, b int) bool {
			return evaluated[a].Score > evaluated[b].Score
		})
		width := opts.BeamWidth
		if width > len(evaluated) {
			width = len(evaluated)
		}
		seeds = evaluated[:width]
	}

	logger.Infof("autofix: no GO found best=%q score=%.2f", result.Best.Mutation, result.Best.Score)
	return result, nil
}

// evaluate 回放一个候选并打分。评估失败只废掉这一个候选。
func evaluate(policy *config.Policy, label string, eval EvalFunc, mode string) Candidate {
	cand := Candidate{Policy: policy, Mutation: label}
	summaries, err := eval(policy)
	if err != nil {
		logger.Warnf("autofix: candidate %q evaluation failed: %v", label, err)
		cand.Err = err
		cand.Verdict = types.Verdict{Status: types.VerdictNoGo, Mode: mode}
		cand.Score = math.Inf(-1)
		return cand
	}
	cand.Verdict = judge.Evaluate(summaries, policy, mode)
	thresholds, _ := policy.Thresholds(mode)
	cand.Score = score(cand.Verdict, thresholds)
	return cand
}

// score 把裁决折算成单一数值：GO 奖励、平均 R、回撤与成交数惩罚。
func score(v types.Verdict, thresholds config.VerdictConfig) float64 {
	s := v.Metrics.AvgR*100 - v.Metrics.MaxDDPct*10
	if v.Metrics.TradeCount < thresholds.MinTrades {
		s -= float64(thresholds.MinTrades-v.Metrics.TradeCount) * 5
	}
	if v.Go() {
		s += 1000
	}
	return s
}

type mutation struct {
	label string
	apply func(p *config.Policy) bool // 返回 false 表示对该 Policy 是空操作
}

// menu 按裁决原因挑选变异集合；没有命中已知模式时退回全量菜单。
func menu(reasons []string) []mutation {
	all := map[string]mutation{
		"raise_take_profit_r":   raiseTakeProfitR,
		"shorten_max_hold":      shortenMaxHold,
		"tighten_early_stop":    tightenEarlyStop,
		"lower_max_trades":      lowerMaxTrades,
		"earlier_strategy_exit": earlierStrategyExit,
	}
	pick := map[string]struct{}{}
	for _, reason := range reasons {
		switch reason {
		case types.ReasonWeakAvgR:
			pick["raise_take_profit_r"] = struct{}{}
			pick["shorten_max_hold"] = struct{}{}
			pick["earlier_strategy_exit"] = struct{}{}
		case types.ReasonDrawdown:
			pick["tighten_early_stop"] = struct{}{}
			pick["lower_max_trades"] = struct{}{}
			pick["shorten_max_hold"] = struct{}{}
		case types.ReasonLossStreak, types.ReasonDayLossRatio:
			pick["lower_max_trades"] = struct{}{}
			pick["tighten_early_stop"] = struct{}{}
		}
	}
	if len(pick) == 0 {
		for name := range all {
			pick[name] = struct{}{}
		}
	}
	out := make([]mutation, 0, len(pick))
	for _, name := range menuOrder {
		if _, ok := pick[name]; ok {
			out = append(out, all[name])
		}
	}
	return out
}

// 固定顺序保证同样输入产出同样的候选序列。
var menuOrder = []string{
	"raise_take_profit_r",
	"shorten_max_hold",
	"tighten_early_stop",
	"lower_max_trades",
	"earlier_strategy_exit",
}

var raiseTakeProfitR = mutation{
	label: "raise_take_profit_r",
	apply: func(p *config.Policy) bool {
		if p.Exit.TakeProfitR >= 6 {
			return false
		}
		p.Exit.TakeProfitR += 0.5
		return true
	},
}

var shortenMaxHold = mutation{
	label: "shorten_max_hold",
	apply: func(p *config.Policy) bool {
		next := p.Exit.MaxHoldMinutes * 3 / 4
		if next < 5 {
			next = 5
		}
		if next == p.Exit.MaxHoldMinutes {
			return false
		}
		p.Exit.MaxHoldMinutes = next
		return true
	},
}

var tightenEarlyStop = mutation{
	label: "tighten_early_stop",
	apply: func(p *config.Policy) bool {
		if p.Exit.EarlyStopAdverseR <= 0 {
			p.Exit.EarlyStopAdverseR = 0.8
			return true
		}
		next := p.Exit.EarlyStopAdverseR - 0.2
		if next < 0.2 {
			next = 0.2
		}
		if next == p.Exit.EarlyStopAdverseR {
			return false
		}
		p.Exit.EarlyStopAdverseR = next
		return true
	},
}

var lowerMaxTrades = mutation{
	label: "lower_max_trades",
	apply: func(p *config.Policy) bool {
		if p.MaxTradesPerDay <= 1 {
			return false
		}
		p.MaxTradesPerDay--
		return true
	},
}

var earlierStrategyExit = mutation{
	label: "earlier_strategy_exit",
	apply: func(p *config.Policy) bool {
		if p.Exit.VwapGraceMinutes <= 0 {
			return false
		}
		next := p.Exit.VwapGraceMinutes - 5
		if next < 0 {
			next = 0
		}
		p.Exit.VwapGraceMinutes = next
		return true
	},
}

func joinLabel(prefix, label string) string {
	if prefix == "" {
		return label
	}
	return prefix + ">" + label
}
