package depth

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

// Channels carries raw depth frames from the depth reader to the book
// processor.
type Channels struct {
	Raw chan models.RawDepthMessage

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(bufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw: make(chan models.RawDepthMessage, bufferSize),
		log: log,
	}

	log.WithComponent("depth_channels").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("depth channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Raw)
	c.log.WithComponent("depth_channels").Info("depth channels closed")
}

func (c *Channels) SendRaw(ctx context.Context, msg models.RawDepthMessage) bool {
	select {
	case c.Raw <- msg:
		c.statsMutex.Lock()
		c.stats.Sent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.Dropped++
		c.statsMutex.Unlock()
		metrics.ReportDropped("depth", "raw")
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
