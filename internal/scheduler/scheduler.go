// Package scheduler 提供对齐到周期边界的定时执行器，
// 用于实盘侧的心跳与对账类任务。
package scheduler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"vela/internal/logger"
)

// ParseInterval 把 "1m"、"15m"、"1h"、"1d" 解析成 time.Duration。
// 非法输入返回 (0, false)。
func ParseInterval(interval string) (time.Duration, bool) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return 0, false
	}
	unit := interval[len(interval)-1]
	numStr := strings.TrimSpace(interval[:len(interval)-1])
	if numStr == "" {
		return 0, false
	}
	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Aligned 在每个 Interval 的整数边界（加 Offset）执行任务。
// Start 阻塞直到 ctx 取消；任务在调用方 goroutine 内串行执行。
type Aligned struct {
	Name     string
	Interval time.Duration
	Offset   time.Duration

	nowFn func() time.Time
}

// Start 进入调度循环。
func (s *Aligned) Start(ctx context.Context, task func(now time.Time)) {
	if task == nil || s.Interval <= 0 {
		logger.Warnf("scheduler %s: nothing to run interval=%s", s.Name, s.Interval)
		return
	}
	if s.Offset < 0 {
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	logger.Infof("scheduler %s: started interval=%s offset=%s", s.Name, s.Interval, s.Offset)
	next := nextAlignedAfter(s.nowFn().UTC(), s.Interval, s.Offset)
	for {
		if !waitUntil(ctx, s.nowFn, next) {
			logger.Infof("scheduler %s: stopped", s.Name)
			return
		}
		task(next)
		// 从刚触发的边界推进，时钟落后时不会重复同一个边界；
		// 唤醒过晚则跳过已错过的边界
		next = nextAlignedAfter(next, s.Interval, s.Offset)
		if now := s.nowFn().UTC(); next.Before(now) {
			next = nextAlignedAfter(now, s.Interval, s.Offset)
		}
	}
}

// nextAlignedAfter 返回 now 之后第一个落在 interval 边界加 offset 上的时刻。
func nextAlignedAfter(now time.Time, interval, offset time.Duration) time.Time {
	aligned := now.Truncate(interval).Add(offset)
	for !aligned.After(now) {
		aligned = aligned.Add(interval)
	}
	return aligned
}

func waitUntil(ctx context.Context, nowFn func() time.Time, target time.Time) bool {
	wait := target.Sub(nowFn())
	if wait <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
