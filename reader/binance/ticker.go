package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"marketview/config"
	"marketview/internal/channel/ticker"
	"marketview/internal/metrics"
	"marketview/internal/stream"
	"marketview/logger"
	"marketview/models"
)

var (
	ErrAlreadyRunning = errors.New("reader already running")
	ErrNotRunning     = errors.New("reader not running")
)

// StatusListener is called from the reader's state goroutine on every state
// change. It must not block.
type StatusListener func(models.ConnectionStatus)

// TimerFunc runs f after d and returns a function that cancels it.
type TimerFunc func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type eventKind int

const (
	evOpened eventKind = iota
	evClosed
	evRetry
	evReset
)

type event struct {
	kind   eventKind
	connID uint64
	gen    uint64
	conn   stream.Conn
	err    error
}

// TickerReader keeps the !ticker@arr subscription alive. Dial failures and
// closed connections are retried after ReconnectBaseDelay × attempt, up to
// MaxReconnectAttempts times; after that the reader stays Exhausted until
// Reconnect is called.
type TickerReader struct {
	cfg      config.StreamConfig
	dialer   stream.Dialer
	out      *ticker.Channels
	log      *logger.Log
	timer    TimerFunc
	listener StatusListener

	events chan event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	// guarded by mu
	running bool
	status  models.ConnectionStatus

	// owned by the run goroutine
	state     models.ConnectionState
	attempts  int
	gen       uint64
	connID    uint64
	conn      stream.Conn
	stopTimer func() bool
}

type TickerOption func(*TickerReader)

// WithTimer replaces time.AfterFunc for reconnect scheduling.
func WithTimer(fn TimerFunc) TickerOption {
	return func(r *TickerReader) { r.timer = fn }
}

func WithStatusListener(fn StatusListener) TickerOption {
	return func(r *TickerReader) { r.listener = fn }
}

func NewTickerReader(cfg config.StreamConfig, dialer stream.Dialer, out *ticker.Channels, opts ...TickerOption) *TickerReader {
	r := &TickerReader{
		cfg:    cfg,
		dialer: dialer,
		out:    out,
		log:    logger.GetLogger(),
		timer:  afterFunc,
		events: make(chan event, 16),
		status: models.ConnectionStatus{State: models.StateIdle, MaxAttempts: cfg.MaxReconnectAttempts},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start connects and returns immediately; connection progress is reported
// through Status and the status listener.
func (r *TickerReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("ticker reader: %w", ErrAlreadyRunning)
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.log.WithComponent("ticker_reader").WithFields(logger.Fields{
		"url":          r.cfg.TickerURL,
		"max_attempts": r.cfg.MaxReconnectAttempts,
		"base_delay":   r.cfg.ReconnectBaseDelay.String(),
	}).Info("starting ticker reader")

	r.wg.Add(1)
	go r.run(r.ctx)
	return nil
}

func (r *TickerReader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	r.log.WithComponent("ticker_reader").Info("stopping ticker reader")
	cancel()
	r.wg.Wait()
	r.log.WithComponent("ticker_reader").Info("ticker reader stopped")
}

// Reconnect resets the attempt counter and opens a fresh connection,
// whatever the current state. It is the only way out of Exhausted.
func (r *TickerReader) Reconnect() error {
	r.mu.RLock()
	running, ctx := r.running, r.ctx
	r.mu.RUnlock()
	if !running {
		return fmt.Errorf("ticker reader: %w", ErrNotRunning)
	}
	if !r.post(ctx, event{kind: evReset}) {
		return fmt.Errorf("ticker reader: %w", ErrNotRunning)
	}
	return nil
}

func (r *TickerReader) Status() models.ConnectionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *TickerReader) post(ctx context.Context, ev event) bool {
	select {
	case r.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *TickerReader) run(ctx context.Context) {
	defer r.wg.Done()

	r.connect(ctx)
	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return
		case ev := <-r.events:
			r.handle(ctx, ev)
		}
	}
}

func (r *TickerReader) handle(ctx context.Context, ev event) {
	log := r.log.WithComponent("ticker_reader")

	switch ev.kind {
	case evOpened:
		if ev.connID != r.connID {
			ev.conn.Close()
			return
		}
		r.conn = ev.conn
		r.attempts = 0
		r.setState(models.StateConnected)
		log.Info("ticker stream connected")

	case evClosed:
		if ev.connID != r.connID {
			return
		}
		if r.conn != nil {
			r.conn.Close()
			r.conn = nil
		}
		if ev.err != nil && !stream.IsNormalClose(ev.err) {
			log.WithError(ev.err).Warn("ticker stream disconnected")
		} else {
			log.Info("ticker stream closed")
		}
		r.scheduleReconnect(ctx)

	case evRetry:
		if ev.gen != r.gen || r.state != models.StateReconnecting {
			log.WithFields(logger.Fields{"generation": ev.gen}).Debug("ignoring stale reconnect timer")
			return
		}
		r.stopTimer = nil
		r.connect(ctx)

	case evReset:
		r.cancelTimer()
		r.gen++
		if r.conn != nil {
			r.conn.Close()
			r.conn = nil
		}
		r.attempts = 0
		log.Info("manual reconnect requested")
		r.connect(ctx)
	}
}

func (r *TickerReader) connect(ctx context.Context) {
	r.connID++
	id := r.connID
	r.setState(models.StateConnecting)

	r.wg.Add(1)
	go r.dialAndRead(ctx, id)
}

func (r *TickerReader) scheduleReconnect(ctx context.Context) {
	log := r.log.WithComponent("ticker_reader")

	if r.attempts >= r.cfg.MaxReconnectAttempts {
		r.setState(models.StateExhausted)
		log.WithFields(logger.Fields{"attempts": r.attempts}).Error("reconnect attempts exhausted; waiting for manual reconnect")
		return
	}

	r.attempts++
	r.gen++
	gen := r.gen
	delay := r.cfg.ReconnectBaseDelay * time.Duration(r.attempts)
	r.setState(models.StateReconnecting)

	r.stopTimer = r.timer(delay, func() {
		r.post(ctx, event{kind: evRetry, gen: gen})
	})

	logger.IncrementReconnect()
	metrics.IncrementReconnect()
	log.WithFields(logger.Fields{
		"attempt":  r.attempts,
		"delay_ms": delay.Milliseconds(),
	}).Info("scheduling reconnect")
}

func (r *TickerReader) cancelTimer() {
	if r.stopTimer != nil {
		r.stopTimer()
		r.stopTimer = nil
	}
}

func (r *TickerReader) shutdown() {
	r.cancelTimer()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	r.attempts = 0
	r.setState(models.StateIdle)
}

func (r *TickerReader) setState(s models.ConnectionState) {
	r.state = s
	status := models.ConnectionStatus{
		State:       s,
		Attempts:    r.attempts,
		MaxAttempts: r.cfg.MaxReconnectAttempts,
	}

	r.mu.Lock()
	r.status = status
	r.mu.Unlock()

	metrics.SetConnectionState("ticker", int(s))
	if r.listener != nil {
		r.listener(status)
	}
}

// dialAndRead owns one connection attempt. Every exit path reports evClosed
// for its connection id unless the reader is shutting down.
func (r *TickerReader) dialAndRead(ctx context.Context, id uint64) {
	defer r.wg.Done()

	conn, err := r.dialer.Dial(ctx, r.cfg.TickerURL)
	if err != nil {
		r.post(ctx, event{kind: evClosed, connID: id, err: err})
		return
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if !r.post(ctx, event{kind: evOpened, connID: id, conn: conn}) {
		conn.Close()
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			r.post(ctx, event{kind: evClosed, connID: id, err: err})
			return
		}
		r.handleMessage(ctx, data)
	}
}

func (r *TickerReader) handleMessage(ctx context.Context, data []byte) {
	logger.IncrementTickerRead(len(data))
	metrics.IncrementMessages("ticker")

	var entries []models.RawTicker
	if err := json.Unmarshal(data, &entries); err != nil {
		metrics.IncrementMalformed("ticker")
		r.log.WithComponent("ticker_reader").WithError(err).WithFields(logger.Fields{
			"bytes": len(data),
		}).Warn("dropping malformed ticker payload")
		return
	}

	if !r.out.Send(ctx, models.TickerBatch{Entries: entries, ReceivedAt: time.Now()}) {
		if ctx.Err() == nil {
			r.log.WithComponent("ticker_reader").Warn("ticker channel full, dropping batch")
		}
		return
	}

	if r.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		logger.LogDataFlowEntry(r.log.WithComponent("ticker_reader"), "ticker_ws", "ticker_channel", len(entries), "ticker_entries")
	}
}
