// Package live 实现实盘侧的单仓位编排状态机。
// Runner 由外部轮询驱动：tick 进来先聚合成分钟 K 线，
// 再依次走准入与出场判断；整个实例限定在单一逻辑线程内使用。
package live

import (
	"context"
	"errors"
	"math"
	"time"

	"vela/internal/config"
	"vela/internal/guard"
	"vela/internal/livebar"
	"vela/internal/logger"
	"vela/internal/types"
)

// State 是 Runner 的运行阶段。
type State string

const (
	StateIdle  State = "IDLE"
	StateArmed State = "ARMED"
	StateOpen  State = "OPEN"
)

// 准入窗口只保留最近的这么多根分钟 K 线。
const barWindow = 120

// Executor 是外部下单协作方。返回值只用于日志，不参与状态决策。
type Executor interface {
	PlaceMarket(ctx context.Context, side types.Side, quantity int64) error
	ClosePosition(ctx context.Context) error
}

// Runner 维护 IDLE → ARMED → OPEN 的单仓位状态机。
// OPEN 期间收到的新信号被忽略而不是排队。
type Runner struct {
	policy   *config.Policy
	guard    *guard.ExecutionGuard
	builder  *livebar.MinuteBarBuilder
	executor Executor

	state  State
	signal types.Signal
	bars   []types.Bar

	entryTime   time.Time
	entryPrice  float64
	stop        float64
	qty         int64
	plannedRisk float64
	maxHoldMin  int

	trades []types.Trade
}

// NewRunner 装配实盘状态机。
func NewRunner(policy *config.Policy, g *guard.ExecutionGuard, executor Executor) (*Runner, error) {
	if policy == nil {
		return nil, errors.New("policy required")
	}
	if g == nil {
		return nil, errors.New("guard required")
	}
	if executor == nil {
		return nil, errors.New("executor required")
	}
	return &Runner{
		policy:   policy,
		guard:    g,
		builder:  livebar.NewMinuteBarBuilder(),
		executor: executor,
		state:    StateIdle,
	}, nil
}

// State 返回当前阶段。
func (r *Runner) State() State { return r.state }

// Trades 返回本实例已完成的实盘成交。
func (r *Runner) Trades() []types.Trade { return r.trades }

// OnSignal 接收一次候选入场信号。
// OPEN 期间忽略；ARMED 期间用最新信号覆盖旧的。
func (r *Runner) OnSignal(sig types.Signal) {
	if sig.Action != types.ActionEnter {
		return
	}
	if r.state == StateOpen {
		logger.Debugf("signal ignored: position already open")
		return
	}
	if sig.Entry <= 0 || sig.Stop <= 0 || sig.Entry == sig.Stop {
		logger.Warnf("signal dropped: bad price pair entry=%.4f stop=%.4f", sig.Entry, sig.Stop)
		return
	}
	r.signal = sig
	r.state = StateArmed
	logger.Infof("armed side=%s entry=%.4f stop=%.4f", sig.Side, sig.Entry, sig.Stop)
}

// OnTick 按到达顺序处理一个 tick。只有跨分钟产生完整 K 线时才推进状态机。
func (r *Runner) OnTick(ctx context.Context, tick types.Tick) {
	bar, done := r.builder.Update(tick)
	if !done {
		return
	}
	r.onBar(ctx, bar)
}

func (r *Runner) onBar(ctx context.Context, bar types.Bar) {
	r.bars = append(r.bars, bar)
	if len(r.bars) > barWindow {
		r.bars = r.bars[len(r.bars)-barWindow:]
	}

	switch r.state {
	case StateArmed:
		r.tryEnter(ctx, bar)
	case StateOpen:
		if reason, ok := r.exitReason(bar); ok {
			r.close(ctx, bar, reason)
		}
	}
}

// tryEnter 让准入管线裁决；拒绝只记录原因，保持 ARMED 不丢状态。
func (r *Runner) tryEnter(ctx context.Context, bar types.Bar) {
	sig := r.signal
	if d := r.guard.Check(r.bars, sig.Side); !d.OK {
		logger.Infof("entry rejected: %s", d.Reason)
		return
	}

	plannedRisk := sig.PlannedRisk
	if plannedRisk <= 0 {
		plannedRisk = r.policy.Capital * r.policy.Risk.PerTradePct / 100
	}
	dist := math.Abs(sig.Entry - sig.Stop)
	qty := int64(math.Floor(plannedRisk / dist))
	if qty <= 0 {
		logger.Warnf("entry skipped: sizing failed dist=%.4f risk=%.2f", dist, plannedRisk)
		return
	}

	if err := r.executor.PlaceMarket(ctx, sig.Side, qty); err != nil {
		logger.Errorf("place market failed: %v", err)
		return
	}

	r.entryTime = bar.Time
	r.entryPrice = bar.Close
	r.stop = sig.Stop
	r.qty = qty
	r.plannedRisk = plannedRisk
	r.maxHoldMin = sig.MaxHoldMinutes
	if r.maxHoldMin <= 0 {
		r.maxHoldMin = r.policy.Exit.MaxHoldMinutes
	}
	r.state = StateOpen
	logger.Infof("entered side=%s qty=%d price=%.4f stop=%.4f", sig.Side, qty, r.entryPrice, r.stop)
}

// exitReason 按固定顺序评估出场：止损 → 止盈 → 早停 → 持仓时限。
// 价格规则同根同时为真时永远先止损。
func (r *Runner) exitReason(bar types.Bar) (types.ExitReason, bool) {
	side := r.signal.Side
	unreal := (bar.Close - r.entryPrice) * float64(r.qty)
	if side == types.SideShort {
		unreal = -unreal
	}

	if stopHit(bar.Close, r.stop, side) {
		return types.ExitStopLoss, true
	}
	if tpR := r.policy.Exit.TakeProfitR; tpR > 0 && unreal >= r.plannedRisk*tpR {
		return types.ExitTakeProfit, true
	}
	if r.guard.ShouldExitEarly(r.entryPrice, bar.Close, r.plannedRisk, side, r.qty) {
		return types.ExitEarlyStop, true
	}
	if held := int(bar.Time.Sub(r.entryTime) / time.Minute); held >= r.maxHoldMin {
		return types.ExitTimeLimit, true
	}
	return "", false
}

func stopHit(close, stop float64, side types.Side) bool {
	if side == types.SideShort {
		return close >= stop
	}
	return close <= stop
}

func (r *Runner) close(ctx context.Context, bar types.Bar, reason types.ExitReason) {
	if err := r.executor.ClosePosition(ctx); err != nil {
		logger.Errorf("close position failed: %v", err)
	}

	pnl := (bar.Close - r.entryPrice) * float64(r.qty)
	if r.signal.Side == types.SideShort {
		pnl = -pnl
	}
	var rMult float64
	if r.plannedRisk > 0 {
		rMult = pnl / r.plannedRisk
	}
	r.trades = append(r.trades, types.Trade{
		EntryTime:  r.entryTime,
		ExitTime:   bar.Time,
		EntryPrice: r.entryPrice,
		ExitPrice:  bar.Close,
		Quantity:   r.qty,
		PnL:        pnl,
		RMultiple:  rMult,
		Reason:     reason,
	})
	logger.Infof("closed reason=%s pnl=%.2f r=%.2f", reason, pnl, rMult)

	r.state = StateIdle
	r.signal = types.Signal{}
	r.qty = 0
}
