package app

import (
	"context"
	"sync"

	"vela/internal/config"
	"vela/internal/livebar"
	"vela/internal/logger"
	"vela/internal/risk"
	"vela/internal/strategy"
	"vela/internal/types"
)

// feedWindow 是信号侧保留的分钟 K 线根数，与策略回看需求相比留足余量。
const feedWindow = 240

// signalFeed 把 tick 流聚合成分钟 K 线并喂给策略，产出候选入场信号。
// 配置热更新通过 swapPolicy 原子切换，正在聚合的 K 线不受影响。
type signalFeed struct {
	mu      sync.Mutex
	policy  *config.Policy
	strat   strategy.Strategy
	budget  risk.Budget
	builder *livebar.MinuteBarBuilder
	bars    []types.Bar
}

func newSignalFeed(policy *config.Policy) (*signalFeed, error) {
	strat, err := strategy.ForName(policy.Strategy.Name)
	if err != nil {
		return nil, err
	}
	return &signalFeed{
		policy:  policy,
		strat:   strat,
		budget:  risk.NewBudget(policy.Capital, policy.Risk.PerTradePct, policy.Risk.PerDayPct),
		builder: livebar.NewMinuteBarBuilder(),
	}, nil
}

// swapPolicy 切换到新配置。策略名变化时一并换策略实现；
// 新名字无法解析则保留旧配置继续跑。
func (f *signalFeed) swapPolicy(next *config.Policy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if next.Strategy.Name != f.policy.Strategy.Name {
		strat, err := strategy.ForName(next.Strategy.Name)
		if err != nil {
			logger.Errorf("policy reload rejected: %v", err)
			return
		}
		f.strat = strat
	}
	f.policy = next
	f.budget = risk.NewBudget(next.Capital, next.Risk.PerTradePct, next.Risk.PerDayPct)
	logger.Infof("signal feed policy updated strategy=%s", next.Strategy.Name)
}

// onTick 吸收一个 tick；跨分钟产生完整 K 线时跑一次策略。
func (f *signalFeed) onTick(tick types.Tick) (types.Signal, bool) {
	bar, done := f.builder.Update(tick)
	if !done {
		return types.Signal{}, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.bars = append(f.bars, bar)
	if len(f.bars) > feedWindow {
		f.bars = f.bars[len(f.bars)-feedWindow:]
	}

	sig := f.strat.OnBar(len(f.bars)-1, f.bars, false, f.policy)
	if sig.Action != types.ActionEnter {
		return types.Signal{}, false
	}
	if sig.PlannedRisk <= 0 {
		sig.PlannedRisk = f.budget.PerTradeLoss
	}
	return sig, true
}

// paperExecutor 只记录订单意图，不触达任何交易所。
type paperExecutor struct{}

func (p *paperExecutor) PlaceMarket(_ context.Context, side types.Side, quantity int64) error {
	logger.Infof("paper order: market %s qty=%d", side, quantity)
	return nil
}

func (p *paperExecutor) ClosePosition(context.Context) error {
	logger.Infof("paper order: close position")
	return nil
}
