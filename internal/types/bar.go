package types

import "time"

// Bar 是一根固定周期的 OHLCV K 线，附带 VWAP 参考价。
// 由数据网关或 livebar.Builder 产出后不再修改。
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	VWAP   float64   `json:"vwap"`
}

// Range 返回当根振幅。
func (b Bar) Range() float64 { return b.High - b.Low }

// Bullish 判断是否为阳线。
func (b Bar) Bullish() bool { return b.Close > b.Open }

// Tick 是一笔逐笔成交，Volume 可为 0（部分数据源不带量）。
type Tick struct {
	Time   time.Time `json:"time"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume,omitempty"`
}
