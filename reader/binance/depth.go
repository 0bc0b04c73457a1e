package binance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketview/config"
	"marketview/internal/channel/depth"
	"marketview/internal/metrics"
	"marketview/internal/stream"
	"marketview/internal/symbols"
	"marketview/logger"
	"marketview/models"
)

var (
	ErrEmptySymbol = errors.New("symbol is required")
	ErrSuperseded  = errors.New("depth subscription replaced while dialing")
)

type depthSubscription struct {
	id     string
	symbol string
	conn   stream.Conn
	state  models.ConnectionState
}

// DepthReader holds at most one @depth10 subscription. Selecting a symbol
// closes the previous connection first; a dropped connection is not retried.
type DepthReader struct {
	cfg    config.StreamConfig
	dialer stream.Dialer
	out    *depth.Channels
	log    *logger.Log
	newID  func() string

	mu      sync.Mutex
	ctx     context.Context
	running bool
	current *depthSubscription
	wg      sync.WaitGroup
}

func NewDepthReader(cfg config.StreamConfig, dialer stream.Dialer, out *depth.Channels) *DepthReader {
	return &DepthReader{
		cfg:    cfg,
		dialer: dialer,
		out:    out,
		log:    logger.GetLogger(),
		newID:  uuid.NewString,
	}
}

// Start binds subscriptions opened later by Select to ctx.
func (d *DepthReader) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("depth reader: %w", ErrAlreadyRunning)
	}
	d.running = true
	d.ctx = ctx
	d.log.WithComponent("depth_reader").WithFields(logger.Fields{
		"base_url": d.cfg.DepthBaseURL,
		"levels":   d.cfg.DepthLevels,
	}).Info("depth reader ready")
	return nil
}

func (d *DepthReader) Stop() {
	d.mu.Lock()
	d.running = false
	d.closeLocked()
	d.mu.Unlock()

	d.wg.Wait()
	d.log.WithComponent("depth_reader").Info("depth reader stopped")
}

// Select replaces the current subscription with one for symbol and returns
// the new subscription id. ctx bounds the handshake only. The lock is not
// held while dialing; if another Select or Close replaces the subscription
// meanwhile, the new connection is closed and ErrSuperseded returned.
func (d *DepthReader) Select(ctx context.Context, symbol string) (string, error) {
	symbol, err := symbols.Normalize(symbol)
	if err != nil {
		return "", ErrEmptySymbol
	}

	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return "", fmt.Errorf("depth reader: %w", ErrNotRunning)
	}
	d.closeLocked()
	sub := &depthSubscription{id: d.newID(), symbol: symbol, state: models.StateConnecting}
	d.current = sub
	metrics.SetConnectionState("depth", int(models.StateConnecting))
	d.mu.Unlock()

	log := d.log.WithComponent("depth_reader").WithFields(logger.Fields{
		"symbol":          symbol,
		"subscription_id": sub.id,
	})

	url := d.streamURL(symbol)
	conn, err := d.dialer.Dial(ctx, url)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current != sub || !d.running {
		if conn != nil {
			conn.Close()
		}
		log.Debug("depth subscription replaced while dialing")
		return "", fmt.Errorf("subscribe %s: %w", symbol, ErrSuperseded)
	}

	if err != nil {
		sub.state = models.StateIdle
		metrics.SetConnectionState("depth", int(models.StateIdle))
		log.WithError(err).Warn("failed to open depth stream")
		return "", fmt.Errorf("subscribe %s: %w", symbol, err)
	}

	sub.conn = conn
	sub.state = models.StateConnected
	metrics.SetConnectionState("depth", int(models.StateConnected))
	log.WithFields(logger.Fields{"url": url}).Info("depth stream connected")

	d.wg.Add(1)
	go d.read(d.ctx, sub)
	return sub.id, nil
}

// Close ends the current subscription, if any.
func (d *DepthReader) Close() {
	d.mu.Lock()
	d.closeLocked()
	d.mu.Unlock()
}

// Current reports the selected symbol, its subscription id and state.
func (d *DepthReader) Current() models.ConnectionStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return models.ConnectionStatus{State: models.StateIdle}
	}
	return models.ConnectionStatus{
		State:  d.current.state,
		Symbol: d.current.symbol,
		ID:     d.current.id,
	}
}

// CurrentID returns the id of the live subscription or "".
func (d *DepthReader) CurrentID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return ""
	}
	return d.current.id
}

func (d *DepthReader) streamURL(symbol string) string {
	levels := d.cfg.DepthLevels
	if levels <= 0 {
		levels = 10
	}
	return fmt.Sprintf("%s/%s@depth%d", strings.TrimRight(d.cfg.DepthBaseURL, "/"), symbols.StreamName(symbol), levels)
}

func (d *DepthReader) closeLocked() {
	if d.current == nil {
		return
	}
	if d.current.conn != nil {
		d.current.conn.Close()
	}
	d.log.WithComponent("depth_reader").WithFields(logger.Fields{
		"symbol":          d.current.symbol,
		"subscription_id": d.current.id,
	}).Info("depth stream closed")
	d.current = nil
	metrics.SetConnectionState("depth", int(models.StateIdle))
}

func (d *DepthReader) isCurrent(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current != nil && d.current.id == id
}

func (d *DepthReader) read(ctx context.Context, sub *depthSubscription) {
	defer d.wg.Done()

	stop := context.AfterFunc(ctx, func() { sub.conn.Close() })
	defer stop()

	log := d.log.WithComponent("depth_reader").WithFields(logger.Fields{
		"symbol":          sub.symbol,
		"subscription_id": sub.id,
	})

	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			d.mu.Lock()
			if d.current == sub {
				sub.state = models.StateIdle
				metrics.SetConnectionState("depth", int(models.StateIdle))
				log.WithError(err).Warn("depth stream dropped; select the symbol again to resume")
			}
			d.mu.Unlock()
			return
		}

		if !d.isCurrent(sub.id) {
			log.Debug("dropping message from superseded depth subscription")
			continue
		}

		logger.IncrementDepthRead(len(data))
		metrics.IncrementMessages("depth")

		msg := models.RawDepthMessage{
			SubscriptionID: sub.id,
			Symbol:         sub.symbol,
			Data:           data,
			Timestamp:      time.Now(),
		}
		if !d.out.SendRaw(ctx, msg) && ctx.Err() == nil {
			log.Warn("depth channel full, dropping message")
		}
	}
}
