package binance

import (
	"errors"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vela/internal/types"
)

func TestFillVWAPResetsPerDay(t *testing.T) {
	day1 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	bars := []types.Bar{
		{Time: day1, High: 101, Low: 99, Close: 100, Volume: 100},
		{Time: day1.Add(time.Minute), High: 103, Low: 101, Close: 102, Volume: 100},
		{Time: day2, High: 51, Low: 49, Close: 50, Volume: 100},
	}
	fillVWAP(bars)

	assert.InDelta(t, 100.0, bars[0].VWAP, 1e-9)
	assert.InDelta(t, 101.0, bars[1].VWAP, 1e-9)
	// 跨日后累计量清零
	assert.InDelta(t, 50.0, bars[2].VWAP, 1e-9)
}

func TestFillVWAPZeroVolume(t *testing.T) {
	bars := []types.Bar{{Time: time.Now().UTC(), High: 10, Low: 9, Close: 9.5}}
	fillVWAP(bars)
	assert.Equal(t, 9.5, bars[0].VWAP)
}

func TestStatsRecording(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, Stats{}, s.Stats())

	s.recordSubscribeError(errors.New("dial refused"))
	s.recordReconnect(errors.New("stream closed"))
	s.recordReconnect(nil)

	got := s.Stats()
	assert.Equal(t, int64(1), got.SubscribeErrors)
	assert.Equal(t, int64(2), got.Reconnects)
	// nil 错误不覆盖最近一次的错误文本
	assert.Equal(t, "stream closed", got.LastError)
}

func TestConvertAggTrade(t *testing.T) {
	tick, ok := convertAggTrade(&futures.WsAggTradeEvent{
		Price:     "100.5",
		Quantity:  "3",
		TradeTime: 1790000000000,
	})
	require.True(t, ok)
	assert.Equal(t, 100.5, tick.Price)
	assert.Equal(t, 3.0, tick.Volume)
	assert.Equal(t, int64(1790000000000), tick.Time.UnixMilli())

	_, ok = convertAggTrade(&futures.WsAggTradeEvent{Price: "0"})
	assert.False(t, ok)
	_, ok = convertAggTrade(nil)
	assert.False(t, ok)
}
