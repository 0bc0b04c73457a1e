package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync"

	"marketview/internal/collector"
	"marketview/internal/view"
	"marketview/models"
	"marketview/processor"
)

type fakeMarkets struct {
	mu      sync.Mutex
	records map[string]models.MarketRecord
	view    processor.MarketView
	calls   int
	err     error
}

func newFakeMarkets(records ...models.MarketRecord) *fakeMarkets {
	m := &fakeMarkets{records: make(map[string]models.MarketRecord)}
	for _, rec := range records {
		m.records[rec.Symbol] = rec
	}
	m.view = processor.MarketView{Records: records, Params: view.DefaultParams(), Version: 1}
	return m
}

func (m *fakeMarkets) View() processor.MarketView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

func (m *fakeMarkets) SetParams(ctx context.Context, query *string, filter, sort, direction string) (processor.MarketView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return processor.MarketView{}, m.err
	}
	params, err := m.view.Params.Merge(query, filter, sort, direction)
	if err != nil {
		return processor.MarketView{}, err
	}
	m.view.Params = params
	return m.view, nil
}

func (m *fakeMarkets) ToggleSort(ctx context.Context, column string) (processor.MarketView, error) {
	col, err := view.ParseColumn(column)
	if err != nil {
		return processor.MarketView{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view.Params = m.view.Params.ToggleSort(col)
	return m.view, nil
}

func (m *fakeMarkets) Lookup(ctx context.Context, symbol string) (models.MarketRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.MarketRecord{}, false, m.err
	}
	rec, ok := m.records[symbol]
	return rec, ok, nil
}

func (m *fakeMarkets) Stats() processor.ProcessorStats {
	return processor.ProcessorStats{Batches: 3, Admitted: 2}
}

type fakeBooks struct {
	book models.Book
	ok   bool
}

func (b *fakeBooks) Latest() (models.Book, bool) { return b.book, b.ok }

type fakeDepth struct {
	mu       sync.Mutex
	selected []string
	closed   int
	err      error
	current  models.ConnectionStatus
}

func (d *fakeDepth) Select(ctx context.Context, symbol string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selected = append(d.selected, symbol)
	if d.err != nil {
		d.current = models.ConnectionStatus{State: models.StateIdle, Symbol: symbol}
		return "", d.err
	}
	id := "sub-" + strings.ToLower(symbol)
	d.current = models.ConnectionStatus{State: models.StateConnected, Symbol: symbol, ID: id}
	return id, nil
}

func (d *fakeDepth) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	d.current = models.ConnectionStatus{State: models.StateIdle}
}

func (d *fakeDepth) Current() models.ConnectionStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

type fakeTicker struct {
	status     models.ConnectionStatus
	reconnects int
	err        error
}

func (t *fakeTicker) Status() models.ConnectionStatus { return t.status }

func (t *fakeTicker) Reconnect() error {
	if t.err != nil {
		return t.err
	}
	t.reconnects++
	t.status.State = models.StateConnecting
	t.status.Attempts = 0
	return nil
}

var errUpstream = errors.New("upstream unavailable")

type fakeCollector struct {
	fail      bool
	global    collector.GlobalStats
	globalErr error
}

func (c *fakeCollector) Chart(ctx context.Context, symbol string) ([]collector.Candle, error) {
	if c.fail {
		return nil, errUpstream
	}
	return []collector.Candle{{Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}}, nil
}

func (c *fakeCollector) News(ctx context.Context) ([]collector.Article, error) {
	if c.fail {
		return nil, errUpstream
	}
	return []collector.Article{{Title: "Markets rally"}}, nil
}

func (c *fakeCollector) Sentiment(ctx context.Context) (collector.Sentiment, error) {
	if c.fail {
		return collector.Sentiment{}, errUpstream
	}
	return collector.Sentiment{Value: 20, Classification: "Extreme Fear", Zone: collector.Zone(20)}, nil
}

func (c *fakeCollector) Global() (collector.GlobalStats, error) {
	if c.globalErr != nil {
		return collector.GlobalStats{}, c.globalErr
	}
	return c.global, nil
}
