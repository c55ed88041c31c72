// Package app 负责把引擎各组件按运行模式装配起来：
// backtest / autofix 是一次性的批处理，live / serve 是常驻进程。
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vela/internal/autofix"
	"vela/internal/backtest"
	"vela/internal/config"
	"vela/internal/gateway/binance"
	"vela/internal/guard"
	"vela/internal/judge"
	"vela/internal/live"
	"vela/internal/logger"
	"vela/internal/report/chart"
	"vela/internal/scheduler"
	"vela/internal/store/result"
	"vela/internal/store/verdict"
	"vela/internal/strategy"
	reporthttp "vela/internal/transport/http/report"
	"vela/internal/types"
)

// Options 是 CLI 层传进来的运行参数。
type Options struct {
	PolicyPath string
	Mode       string
	Limit      int
	ChartPath  string
}

// RunBacktest 取历史 K 线回放一遍并落盘结果与裁决。
func RunBacktest(ctx context.Context, policy *config.Policy, opts Options) error {
	bars, err := fetchBars(ctx, policy, opts.Limit)
	if err != nil {
		return err
	}
	summaries, err := replay(policy, bars)
	if err != nil {
		return err
	}
	v := judge.Evaluate(summaries, policy, opts.Mode)
	logVerdict(v, summaries)

	if err := writeChart(opts.ChartPath, policy.Data.Symbol, summaries); err != nil {
		return err
	}
	return persist(ctx, policy, opts.Mode, v, summaries)
}

// RunAutoFix 在同一段历史上搜索能拿到 GO 的参数变体。
func RunAutoFix(ctx context.Context, policy *config.Policy, opts Options) error {
	bars, err := fetchBars(ctx, policy, opts.Limit)
	if err != nil {
		return err
	}
	evalFn := func(p *config.Policy) ([]types.DaySummary, error) {
		return replay(p, bars)
	}
	res, err := autofix.Search(policy, evalFn, autofix.Options{Mode: opts.Mode})
	if err != nil {
		return err
	}

	logger.InfoBlock("autofix result", func() {
		logger.Infof("base: %s %v", res.BaseVerdict.Status, res.BaseVerdict.Reasons)
		logger.Infof("candidates tried: %d", len(res.Candidates))
		logger.Infof("best: %q %s score=%.2f", res.Best.Mutation, res.Best.Verdict.Status, res.Best.Score)
	})

	summaries, err := evalFn(res.Best.Policy)
	if err != nil {
		return err
	}
	return persist(ctx, res.Best.Policy, opts.Mode, res.Best.Verdict, summaries)
}

// RunLive 订阅逐笔成交驱动实盘状态机。策略文件支持热更新。
func RunLive(ctx context.Context, opts Options) error {
	watcher, err := config.NewWatcher(opts.PolicyPath)
	if err != nil {
		return err
	}
	policy := watcher.Current()

	source, err := binance.New(binance.Config{})
	if err != nil {
		return err
	}
	defer source.Close()

	g, err := guard.NewExecutionGuard(policy)
	if err != nil {
		return err
	}
	runner, err := live.NewRunner(policy, g, &paperExecutor{})
	if err != nil {
		return err
	}
	feed, err := newSignalFeed(policy)
	if err != nil {
		return err
	}
	watcher.OnChange(func(next *config.Policy) {
		feed.swapPolicy(next)
	})

	ticks, err := source.SubscribeTicks(ctx, policy.Data.Symbol, 0)
	if err != nil {
		return err
	}

	// 对齐到 K 线边界的心跳，只读订阅侧统计
	heartbeat := &scheduler.Aligned{Name: "live", Interval: time.Minute, Offset: 2 * time.Second}
	if iv, ok := scheduler.ParseInterval(policy.Data.Timeframe); ok {
		heartbeat.Interval = iv
	}
	go heartbeat.Start(ctx, func(time.Time) {
		stats := source.Stats()
		logger.Infof("live heartbeat reconnects=%d subscribe_errors=%d last_error=%q",
			stats.Reconnects, stats.SubscribeErrors, stats.LastError)
	})

	logger.Infof("live loop started symbol=%s", policy.Data.Symbol)
	for {
		select {
		case <-ctx.Done():
			return nil
		case tick, ok := <-ticks:
			if !ok {
				return fmt.Errorf("tick stream closed")
			}
			if sig, ok := feed.onTick(tick); ok && runner.State() == live.StateIdle {
				runner.OnSignal(sig)
			}
			runner.OnTick(ctx, tick)
		}
	}
}

// Serve 启动结果查询 API。
func Serve(ctx context.Context, policy *config.Policy) error {
	results, verdicts, err := openStores(policy)
	if err != nil {
		return err
	}
	defer results.Close()
	defer verdicts.Close()

	srv, err := reporthttp.NewServer(reporthttp.Config{
		Addr:     policy.App.HTTPAddr,
		Results:  results,
		Verdicts: verdicts,
		Launch:   launchRun(policy, results, verdicts),
	})
	if err != nil {
		return err
	}
	logger.Infof("report server listening addr=%s", policy.App.HTTPAddr)
	return srv.Start(ctx)
}

// launchRun 给报表服务一个发起回测的入口：同步登记 run，回放在后台完成。
func launchRun(policy *config.Policy, results *result.Store, verdicts *verdict.Store) reporthttp.LaunchFunc {
	return func(ctx context.Context, req reporthttp.LaunchRequest) (string, error) {
		mode := req.Mode
		if mode == "" {
			mode = "dev"
		}
		limit := req.Limit
		if limit <= 0 {
			limit = 1500
		}
		policyJSON, err := json.Marshal(policy)
		if err != nil {
			return "", err
		}
		runID, err := results.CreateRun(ctx, policy.Data.Symbol, mode, policyJSON)
		if err != nil {
			return "", err
		}

		go func() {
			bg := context.Background()
			bars, err := fetchBars(bg, policy, limit)
			if err != nil {
				failRun(bg, results, runID, err)
				return
			}
			summaries, err := replay(policy, bars)
			if err != nil {
				failRun(bg, results, runID, err)
				return
			}
			v := judge.Evaluate(summaries, policy, mode)
			if err := results.CompleteRun(bg, runID, v, summaries); err != nil {
				logger.Errorf("complete run %s failed: %v", runID, err)
				return
			}
			if _, err := verdicts.Save(bg, runID, policy.Data.Symbol, v, map[string]any{
				"days": len(summaries),
			}); err != nil {
				logger.Errorf("save verdict for run %s failed: %v", runID, err)
			}
			logger.Infof("launched run finished id=%s status=%s", runID, v.Status)
		}()
		return runID, nil
	}
}

func failRun(ctx context.Context, results *result.Store, runID string, cause error) {
	logger.Errorf("launched run failed id=%s: %v", runID, cause)
	if err := results.FailRun(ctx, runID, cause.Error()); err != nil {
		logger.Errorf("mark run %s failed: %v", runID, err)
	}
}

func fetchBars(ctx context.Context, policy *config.Policy, limit int) ([]types.Bar, error) {
	source, err := binance.New(binance.Config{})
	if err != nil {
		return nil, err
	}
	defer source.Close()
	bars, err := source.FetchBars(ctx, policy.Data.Symbol, policy.Data.Timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars for %s", policy.Data.Symbol)
	}
	logger.Infof("fetched %d bars symbol=%s interval=%s", len(bars), policy.Data.Symbol, policy.Data.Timeframe)
	return bars, nil
}

func replay(policy *config.Policy, bars []types.Bar) ([]types.DaySummary, error) {
	strat, err := strategy.ForName(policy.Strategy.Name)
	if err != nil {
		return nil, err
	}
	runner, err := backtest.NewRunner(policy, strat)
	if err != nil {
		return nil, err
	}
	return runner.Run(bars)
}

func persist(ctx context.Context, policy *config.Policy, mode string, v types.Verdict, summaries []types.DaySummary) error {
	results, verdicts, err := openStores(policy)
	if err != nil {
		return err
	}
	defer results.Close()
	defer verdicts.Close()

	policyJSON, err := json.Marshal(policy)
	if err != nil {
		return err
	}
	runID, err := results.CreateRun(ctx, policy.Data.Symbol, mode, policyJSON)
	if err != nil {
		return err
	}
	if err := results.CompleteRun(ctx, runID, v, summaries); err != nil {
		return err
	}
	if _, err := verdicts.Save(ctx, runID, policy.Data.Symbol, v, map[string]any{
		"days": len(summaries),
	}); err != nil {
		return err
	}
	logger.Infof("run persisted id=%s status=%s", runID, v.Status)
	return nil
}

func openStores(policy *config.Policy) (*result.Store, *verdict.Store, error) {
	root := policy.Data.StoreRoot
	if root == "" {
		root = "data"
	}
	results, err := result.Open(root)
	if err != nil {
		return nil, nil, err
	}
	dbPath := policy.Data.VerdictDB
	if dbPath == "" {
		dbPath = filepath.Join(root, "verdicts.db")
	}
	verdicts, err := verdict.Open(dbPath)
	if err != nil {
		results.Close()
		return nil, nil, err
	}
	return results, verdicts, nil
}

func logVerdict(v types.Verdict, summaries []types.DaySummary) {
	logger.InfoBlock("verdict", func() {
		logger.Infof("status=%s mode=%s", v.Status, v.Mode)
		if len(v.Reasons) > 0 {
			logger.Infof("reasons=%v", v.Reasons)
		}
		logger.Infof("days=%d trades=%d avg_r=%.3f max_dd=%.2f%%",
			len(summaries), v.Metrics.TradeCount, v.Metrics.AvgR, v.Metrics.MaxDDPct)
	})
}

// writeChart 把回放结果渲染成 HTML 文件，路径为空则跳过。
func writeChart(path, title string, summaries []types.DaySummary) error {
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return chart.RenderRun(f, title, summaries)
}
