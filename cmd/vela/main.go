package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"vela/internal/app"
	"vela/internal/config"
	"vela/internal/logger"
)

const usage = `usage: vela <command> [flags]

commands:
  backtest   在历史 K 线上回放策略并产出裁决
  autofix    搜索能让裁决变为 GO 的参数变体
  live       订阅实时行情驱动纸面交易状态机
  serve      启动结果查询 HTTP API
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	cfgPath := fs.String("config", "", "policy 文件路径（默认读 VELA_CONFIG，再退 configs/policy.yaml）")
	mode := fs.String("mode", "dev", "裁决阈值模式（dev/prod）")
	limit := fs.Int("limit", 1500, "回测拉取的 K 线根数")
	chartPath := fs.String("chart", "", "回测结果图表输出路径（HTML），为空不输出")
	_ = fs.Parse(os.Args[2:])

	path := strings.TrimSpace(*cfgPath)
	if path == "" {
		path = os.Getenv("VELA_CONFIG")
	}
	if path == "" {
		path = "configs/policy.yaml"
	}

	policy, err := config.Load(path)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logFile, err := setupLogOutput(policy.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(policy.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，策略=%s）", policy.App.Env, policy.Strategy.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := app.Options{
		PolicyPath: path,
		Mode:       *mode,
		Limit:      *limit,
		ChartPath:  *chartPath,
	}

	switch command {
	case "backtest":
		err = app.RunBacktest(ctx, policy, opts)
	case "autofix":
		err = app.RunAutoFix(ctx, policy, opts)
	case "live":
		err = app.RunLive(ctx, opts)
	case "serve":
		err = app.Serve(ctx, policy)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("运行失败: %v", err)
	}
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
