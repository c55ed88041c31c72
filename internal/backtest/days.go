package backtest

import (
	"time"

	"vela/internal/types"
)

// SplitDays 把按时间排好的 K 线序列切成自然日分组。
func SplitDays(bars []types.Bar, loc *time.Location) [][]types.Bar {
	if len(bars) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	var (
		out     [][]types.Bar
		current []types.Bar
		curDay  time.Time
	)
	for _, b := range bars {
		day := dayOf(b.Time, loc)
		if current == nil || !day.Equal(curDay) {
			if current != nil {
				out = append(out, current)
			}
			current = nil
			curDay = day
		}
		current = append(current, b)
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// Run 按自然日切分后逐日回放，返回每日汇总。
func (r *Runner) Run(bars []types.Bar) ([]types.DaySummary, error) {
	loc, err := time.LoadLocation(r.policy.Session.Timezone)
	if err != nil {
		loc = time.UTC
	}
	days := SplitDays(bars, loc)
	out := make([]types.DaySummary, 0, len(days))
	for _, day := range days {
		summary, err := r.RunDay(day)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}
