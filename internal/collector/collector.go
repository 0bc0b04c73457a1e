// Package collector wraps the request/response collaborators shown next to
// the live market view: candles, 24h totals, news and sentiment. None of
// them touch the streaming pipeline.
package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"

	"marketview/config"
	"marketview/internal/metrics"
	"marketview/logger"
)

var ErrNoGlobalStats = errors.New("global stats not fetched yet")

// Candle is one kline of the price chart.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// GlobalStats is the exchange wide 24h quote volume.
type GlobalStats struct {
	TotalQuoteVolume float64   `json:"total_quote_volume"`
	Pairs            int       `json:"pairs"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Collector struct {
	cfg     config.CollectorConfig
	client  *binance.Client
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log

	mu      sync.RWMutex
	global  GlobalStats
	fetched bool
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg config.CollectorConfig) *Collector {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	client := binance.NewClient("", "")
	if cfg.APIURL != "" {
		client.BaseURL = strings.TrimRight(cfg.APIURL, "/")
	}
	client.HTTPClient = httpClient

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Collector{
		cfg:     cfg,
		client:  client,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     logger.GetLogger(),
	}
}

// call applies the per request timeout and the shared rate limit, then runs fn.
func (c *Collector) call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := c.limiter.Wait(ctx)
	if err == nil {
		err = fn(ctx)
	}
	metrics.IncrementCollector(name, err)

	log := c.log.WithComponent("collector").WithFields(logger.Fields{"collaborator": name})
	if err != nil {
		log.WithError(err).Warn("collaborator request failed")
		return err
	}
	logger.LogPerformanceEntry(log, "collector", name, time.Since(start), nil)
	return nil
}

// Chart returns the recent klines for symbol.
func (c *Collector) Chart(ctx context.Context, symbol string) ([]Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	var candles []Candle
	err := c.call(ctx, "klines", func(ctx context.Context) error {
		klines, err := c.client.NewKlinesService().
			Symbol(symbol).
			Interval(c.cfg.ChartInterval).
			Limit(c.cfg.ChartLimit).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("fetch klines for %s: %w", symbol, err)
		}

		candles = make([]Candle, 0, len(klines))
		for _, k := range klines {
			candles = append(candles, Candle{
				OpenTime: time.UnixMilli(k.OpenTime),
				Open:     parseOrZero(k.Open),
				High:     parseOrZero(k.High),
				Low:      parseOrZero(k.Low),
				Close:    parseOrZero(k.Close),
				Volume:   parseOrZero(k.Volume),
			})
		}
		return nil
	})
	return candles, err
}

// RefreshGlobal sums the 24h quote volume over every pair and keeps the result.
func (c *Collector) RefreshGlobal(ctx context.Context) (GlobalStats, error) {
	var stats GlobalStats
	err := c.call(ctx, "ticker_24hr", func(ctx context.Context) error {
		all, err := c.client.NewListPriceChangeStatsService().Do(ctx)
		if err != nil {
			return fmt.Errorf("fetch 24h stats: %w", err)
		}
		for _, s := range all {
			stats.TotalQuoteVolume += parseOrZero(s.QuoteVolume)
		}
		stats.Pairs = len(all)
		stats.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return GlobalStats{}, err
	}

	c.mu.Lock()
	c.global = stats
	c.fetched = true
	c.mu.Unlock()
	return stats, nil
}

// Global returns the last successful RefreshGlobal result.
func (c *Collector) Global() (GlobalStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.fetched {
		return GlobalStats{}, ErrNoGlobalStats
	}
	return c.global, nil
}

// Start refreshes global stats now and then every GlobalStatsInterval on its
// own goroutine.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("collector already running")
	}
	c.running = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	interval := c.cfg.GlobalStatsInterval
	if interval <= 0 {
		interval = time.Minute
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		c.RefreshGlobal(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.RefreshGlobal(ctx)
			}
		}
	}()
	return nil
}

func (c *Collector) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.running = false
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

func parseOrZero(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
