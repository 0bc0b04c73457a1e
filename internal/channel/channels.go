package channel

import (
	"context"
	"time"

	"marketview/internal/channel/depth"
	"marketview/internal/channel/ticker"
	"marketview/internal/metrics"
	"marketview/logger"
)

type Channels struct {
	Ticker *ticker.Channels
	Depth  *depth.Channels
}

func NewChannels(tickerBufferSize, depthBufferSize int) *Channels {
	return &Channels{
		Ticker: ticker.NewChannels(tickerBufferSize),
		Depth:  depth.NewChannels(depthBufferSize),
	}
}

func (c *Channels) Close() {
	if c.Ticker != nil {
		c.Ticker.Close()
	}
	if c.Depth != nil {
		c.Depth.Close()
	}
}

// StartMetricsReporting emits buffer occupancy and send/drop totals every
// interval until ctx is cancelled. A non-positive interval means 30s.
func (c *Channels) StartMetricsReporting(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	log := logger.GetLogger()
	tick := time.NewTicker(interval)

	go func() {
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				c.reportSizes(log)
			}
		}
	}()
}

func (c *Channels) reportSizes(log *logger.Log) {
	if c.Ticker != nil {
		stats := c.Ticker.GetStats()
		metrics.ReportBufferLength(log, metrics.TickerBufferLength, "ticker",
			len(c.Ticker.Batches), cap(c.Ticker.Batches), stats.Sent, stats.Dropped)
	}
	if c.Depth != nil {
		stats := c.Depth.GetStats()
		metrics.ReportBufferLength(log, metrics.DepthBufferLength, "depth",
			len(c.Depth.Raw), cap(c.Depth.Raw), stats.Sent, stats.Dropped)
	}
}
