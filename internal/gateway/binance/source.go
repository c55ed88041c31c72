// Package binance 基于 go-binance SDK 提供历史 K 线与逐笔 tick。
// 引擎本身不拉数据，这里是它的外部行情协作方。
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"vela/internal/logger"
	"vela/internal/types"
)

const maxHistoryLimit = 1500

// Stats 记录订阅侧的健康状况。
type Stats struct {
	SubscribeErrors int64
	Reconnects      int64
	LastError       string
}

// Source 通过 REST 取历史 K 线、通过 websocket 订阅逐笔成交。
type Source struct {
	cfg    Config
	client *futures.Client

	mu         sync.Mutex
	tickCancel context.CancelFunc

	statsMu sync.Mutex
	stats   Stats
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	if final.ProxyEnabled {
		wsProxy := final.WSProxyURL
		if wsProxy == "" {
			wsProxy = final.RESTProxyURL
		}
		if wsProxy != "" {
			futures.SetWsProxyUrl(wsProxy)
		}
	}
	return &Source{cfg: final, client: client}, nil
}

// FetchBars 拉取最近 limit 根 K 线并换算成引擎的 Bar。
// 交易所 K 线不带 VWAP，这里用典型价按自然日累计补上。
func (s *Source) FetchBars(ctx context.Context, symbol, interval string, limit int) ([]types.Bar, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		interval = "1m"
	}
	if limit <= 0 {
		limit = 500
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	kls, err := s.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, err
	}
	bars := make([]types.Bar, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		bars = append(bars, types.Bar{
			Time:   time.UnixMilli(kl.OpenTime).UTC(),
			Open:   parseFloat(kl.Open),
			High:   parseFloat(kl.High),
			Low:    parseFloat(kl.Low),
			Close:  parseFloat(kl.Close),
			Volume: parseFloat(kl.Volume),
		})
	}
	fillVWAP(bars)
	return bars, nil
}

// fillVWAP 按自然日累计典型价×量，逐根写入 VWAP。
func fillVWAP(bars []types.Bar) {
	var notional, volume float64
	var day time.Time
	for i := range bars {
		d := bars[i].Time.Truncate(24 * time.Hour)
		if !d.Equal(day) {
			day = d
			notional, volume = 0, 0
		}
		typical := (bars[i].High + bars[i].Low + bars[i].Close) / 3
		notional += typical * bars[i].Volume
		volume += bars[i].Volume
		if volume > 0 {
			bars[i].VWAP = notional / volume
		} else {
			bars[i].VWAP = bars[i].Close
		}
	}
}

// SubscribeTicks 订阅单标的的逐笔成交流。断线按指数退避自动重连，
// 通道写满时丢弃而不是阻塞行情回调。
func (s *Source) SubscribeTicks(ctx context.Context, symbol string, buffer int) (<-chan types.Tick, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if buffer <= 0 {
		buffer = 1024
	}
	out := make(chan types.Tick, buffer)
	subCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.tickCancel != nil {
		s.tickCancel()
	}
	s.tickCancel = cancel
	s.mu.Unlock()

	go func() {
		defer close(out)
		s.runTickLoop(subCtx, symbol, out)
	}()
	return out, nil
}

func (s *Source) runTickLoop(ctx context.Context, symbol string, out chan<- types.Tick) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		var errMu sync.Mutex
		var lastErr error
		handler := func(event *futures.WsAggTradeEvent) {
			tick, ok := convertAggTrade(event)
			if !ok {
				return
			}
			select {
			case <-ctx.Done():
			case out <- tick:
			default:
				logger.Warnf("[binance] tick channel full, drop %s", symbol)
			}
		}
		errHandler := func(err error) {
			if err == nil {
				return
			}
			errMu.Lock()
			lastErr = err
			errMu.Unlock()
		}
		doneC, stopC, err := futures.WsAggTradeServe(symbol, handler, errHandler)
		if err != nil {
			s.recordSubscribeError(err)
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}
		delay = time.Second
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
		}
		close(stopC)
		errMu.Lock()
		errCopy := lastErr
		errMu.Unlock()
		s.recordReconnect(errCopy)
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func (s *Source) recordSubscribeError(err error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.SubscribeErrors++
	if err != nil {
		s.stats.LastError = err.Error()
	}
}

func (s *Source) recordReconnect(err error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Reconnects++
	if err != nil {
		s.stats.LastError = err.Error()
	}
}

func (s *Source) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tickCancel != nil {
		s.tickCancel()
		s.tickCancel = nil
	}
	return nil
}

func convertAggTrade(ev *futures.WsAggTradeEvent) (types.Tick, bool) {
	if ev == nil {
		return types.Tick{}, false
	}
	price := parseFloat(ev.Price)
	if price <= 0 {
		return types.Tick{}, false
	}
	ts := ev.TradeTime
	if ts <= 0 {
		ts = ev.Time
	}
	return types.Tick{
		Time:   time.UnixMilli(ts).UTC(),
		Price:  price,
		Volume: parseFloat(ev.Quantity),
	}, true
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}
