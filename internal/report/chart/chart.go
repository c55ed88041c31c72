// Package chart 把一次回测的逐日结果渲染成自包含的 HTML 图表页。
package chart

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"vela/internal/types"
)

// RenderRun 输出累计盈亏曲线与逐日盈亏柱状图。
func RenderRun(w io.Writer, title string, summaries []types.DaySummary) error {
	if len(summaries) == 0 {
		return fmt.Errorf("no day summaries to render")
	}

	dates := make([]string, 0, len(summaries))
	equity := make([]opts.LineData, 0, len(summaries))
	daily := make([]opts.BarData, 0, len(summaries))
	var cum float64
	for _, day := range summaries {
		dates = append(dates, day.Date.Format("01-02"))
		cum += day.TotalPnL
		equity = append(equity, opts.LineData{Value: cum})
		daily = append(daily, opts.BarData{Value: day.TotalPnL})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "cumulative pnl"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	line.SetXAxis(dates).
		AddSeries("equity", equity).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "daily pnl"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(dates).AddSeries("pnl", daily)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(line, bar)
	return page.Render(w)
}
