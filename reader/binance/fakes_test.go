package binance

import (
	"context"
	"errors"
	"sync"
	"time"

	"marketview/config"
	"marketview/internal/stream"
)

var errDialRefused = errors.New("connection refused")

func minimalStreamConfig() config.StreamConfig {
	cfg := config.Default().Stream
	cfg.TickerURL = "wss://example.test/ws/!ticker@arr"
	cfg.DepthBaseURL = "wss://example.test/ws"
	return cfg
}

// fakeConn delivers scripted frames until it is closed or fails.
type fakeConn struct {
	frames    chan []byte
	failures  chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames:   make(chan []byte, 16),
		failures: make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.frames:
		return 1, data, nil
	case err := <-c.failures:
		return 0, nil, err
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out the scripted results in order; once the script runs
// out every dial fails.
type fakeDialer struct {
	mu      sync.Mutex
	results []dialResult
	urls    []string
}

type dialResult struct {
	conn *fakeConn
	err  error
}

func (d *fakeDialer) push(results ...dialResult) {
	d.mu.Lock()
	d.results = append(d.results, results...)
	d.mu.Unlock()
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (stream.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if len(d.results) == 0 {
		return nil, errDialRefused
	}
	res := d.results[0]
	d.results = d.results[1:]
	if res.err != nil {
		return nil, res.err
	}
	return res.conn, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

// fakeTimer records scheduled reconnects instead of sleeping.
type fakeTimer struct {
	scheduled chan scheduledTimer
}

type scheduledTimer struct {
	delay time.Duration
	fire  func()
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{scheduled: make(chan scheduledTimer, 16)}
}

func (f *fakeTimer) afterFunc(d time.Duration, fn func()) func() bool {
	f.scheduled <- scheduledTimer{delay: d, fire: fn}
	return func() bool { return true }
}

// gatedDialer blocks each Dial until the test releases a result for its url.
type gatedDialer struct {
	mu      sync.Mutex
	gates   map[string]chan dialResult
	started chan string
}

func newGatedDialer() *gatedDialer {
	return &gatedDialer{gates: make(map[string]chan dialResult), started: make(chan string, 8)}
}

func (d *gatedDialer) gate(url string) chan dialResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.gates[url]
	if !ok {
		g = make(chan dialResult, 1)
		d.gates[url] = g
	}
	return g
}

func (d *gatedDialer) release(url string, res dialResult) {
	d.gate(url) <- res
}

func (d *gatedDialer) Dial(ctx context.Context, url string) (stream.Conn, error) {
	g := d.gate(url)
	d.started <- url
	select {
	case res := <-g:
		if res.err != nil {
			return nil, res.err
		}
		return res.conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
