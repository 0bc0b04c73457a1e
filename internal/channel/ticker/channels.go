package ticker

import (
	"context"
	"sync"

	"marketview/internal/metrics"
	"marketview/logger"
	"marketview/models"
)

type ChannelStats struct {
	Sent    int64
	Dropped int64
}

// Channels carries decoded ticker batches from the reader to the processor.
type Channels struct {
	Batches chan models.TickerBatch

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(bufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Batches: make(chan models.TickerBatch, bufferSize),
		log:     log,
	}

	log.WithComponent("ticker_channels").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("ticker channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Batches)
	c.log.WithComponent("ticker_channels").Info("ticker channels closed")
}

func (c *Channels) IncrementSent() {
	c.statsMutex.Lock()
	c.stats.Sent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementDropped() {
	c.statsMutex.Lock()
	c.stats.Dropped++
	c.statsMutex.Unlock()
}

// Send never blocks. A full buffer drops the batch; the next full-market
// batch supersedes it anyway.
func (c *Channels) Send(ctx context.Context, batch models.TickerBatch) bool {
	select {
	case c.Batches <- batch:
		c.IncrementSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementDropped()
		metrics.ReportDropped("ticker", "batches")
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
