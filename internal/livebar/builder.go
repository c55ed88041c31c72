// Package livebar 把逐笔 tick 聚合成一分钟 K 线，供实盘准入检查使用。
package livebar

import (
	"time"

	"vela/internal/types"
)

// MinuteBarBuilder 是纯聚合器：同一分钟内的 tick 累积到当前 K 线，
// 跨入新的一分钟时把已完成的 K 线吐出并以该 tick 开启下一根。
// 没有 tick 的分钟不会产生 K 线，任何一根也不会被吐出两次。
type MinuteBarBuilder struct {
	cur      *types.Bar
	notional float64
	volume   float64
}

func NewMinuteBarBuilder() *MinuteBarBuilder {
	return &MinuteBarBuilder{}
}

// Update 喂入一个 tick。当 tick 属于新的一分钟时返回上一根完成的 K 线。
func (b *MinuteBarBuilder) Update(tick types.Tick) (types.Bar, bool) {
	minute := tick.Time.Truncate(time.Minute)

	if b.cur == nil {
		b.start(minute, tick)
		return types.Bar{}, false
	}

	if minute.After(b.cur.Time) {
		done := b.finish()
		b.start(minute, tick)
		return done, true
	}

	b.cur.Close = tick.Price
	if tick.Price > b.cur.High {
		b.cur.High = tick.Price
	}
	if tick.Price < b.cur.Low {
		b.cur.Low = tick.Price
	}
	b.cur.Volume += tick.Volume
	b.notional += tick.Price * tick.Volume
	b.volume += tick.Volume
	return types.Bar{}, false
}

// Flush 吐出尚未完成的当前 K 线并清空状态，用于收盘收尾。
func (b *MinuteBarBuilder) Flush() (types.Bar, bool) {
	if b.cur == nil {
		return types.Bar{}, false
	}
	done := b.finish()
	b.cur = nil
	return done, true
}

func (b *MinuteBarBuilder) start(minute time.Time, tick types.Tick) {
	b.cur = &types.Bar{
		Time:   minute,
		Open:   tick.Price,
		High:   tick.Price,
		Low:    tick.Price,
		Close:  tick.Price,
		Volume: tick.Volume,
	}
	b.notional = tick.Price * tick.Volume
	b.volume = tick.Volume
}

func (b *MinuteBarBuilder) finish() types.Bar {
	done := *b.cur
	if b.volume > 0 {
		done.VWAP = b.notional / b.volume
	} else {
		// 零成交量分钟退化为收盘价
		done.VWAP = done.Close
	}
	b.notional = 0
	b.volume = 0
	return done
}
