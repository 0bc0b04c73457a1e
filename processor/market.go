package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	appconfig "marketview/config"
	"marketview/internal/metrics"
	"marketview/internal/normalizer"
	"marketview/internal/snapshot"
	"marketview/internal/view"
	"marketview/logger"
	"marketview/models"
)

var (
	ErrAlreadyRunning = errors.New("processor already running")
	ErrNotRunning     = errors.New("processor not running")
)

// MarketView is an immutable published result of the view pipeline.
type MarketView struct {
	Records   []models.MarketRecord
	Params    view.Params
	Stats     view.QuickStats
	Version   uint64
	UpdatedAt time.Time
}

type ProcessorStats struct {
	Batches     int64 `json:"batches"`
	Admitted    int64 `json:"admitted"`
	Rejected    int64 `json:"rejected"`
	Capped      int64 `json:"capped"`
	FieldErrors int64 `json:"field_errors"`
}

// MarketProcessor owns the snapshot store and the view params. Ticker
// batches and external commands are both executed on its single goroutine;
// readers only ever see the published MarketView.
type MarketProcessor struct {
	in         <-chan models.TickerBatch
	normalizer *normalizer.Normalizer
	pipeline   *view.Pipeline
	store      *snapshot.Store
	params     view.Params

	commands chan func()
	latest   atomic.Pointer[MarketView]
	done     chan struct{}

	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	batches     atomic.Int64
	admitted    atomic.Int64
	rejected    atomic.Int64
	capped      atomic.Int64
	fieldErrors atomic.Int64
}

func NewMarketProcessor(cfg *appconfig.Config, in <-chan models.TickerBatch, store *snapshot.Store) (*MarketProcessor, error) {
	pipeline, err := view.New(cfg.View)
	if err != nil {
		return nil, fmt.Errorf("market processor: %w", err)
	}
	p := &MarketProcessor{
		in:         in,
		normalizer: normalizer.New(cfg.Admission),
		pipeline:   pipeline,
		store:      store,
		params:     pipeline.DefaultParams(),
		commands:   make(chan func()),
		log:        logger.GetLogger(),
	}
	p.latest.Store(&MarketView{Records: []models.MarketRecord{}, Params: p.params})
	return p, nil
}

func (p *MarketProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.running = true
	p.ctx = ctx
	done := make(chan struct{})
	p.done = done
	p.mu.Unlock()

	p.log.WithComponent("market_processor").WithFields(logger.Fields{"operation": "start"}).Info("starting market processor")

	p.wg.Add(1)
	go p.loop(ctx, done)
	return nil
}

// Stop waits for the owner goroutine, which exits when the Start context is
// cancelled or the input channel is closed.
func (p *MarketProcessor) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.log.WithComponent("market_processor").WithFields(p.statsFields()).Info("market processor stopped")
}

func (p *MarketProcessor) loop(ctx context.Context, done chan struct{}) {
	defer p.wg.Done()
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-p.in:
			if !ok {
				return
			}
			p.apply(batch)
		case cmd := <-p.commands:
			cmd()
		}
	}
}

func (p *MarketProcessor) apply(batch models.TickerBatch) {
	res := p.normalizer.Normalize(batch)

	p.batches.Add(1)
	p.admitted.Add(int64(len(res.Admitted)))
	p.rejected.Add(int64(res.Rejected))
	p.capped.Add(int64(res.Capped))
	p.fieldErrors.Add(int64(len(res.FieldErrors)))

	if len(res.FieldErrors) > 0 {
		p.log.WithComponent("market_processor").WithError(res.FieldErrors[0]).WithFields(logger.Fields{
			"field_errors": len(res.FieldErrors),
		}).Debug("ticker batch contained unparsable fields")
	}

	if p.store.UpsertAll(res.Admitted) == 0 {
		return
	}
	p.recompute()
}

func (p *MarketProcessor) recompute() {
	start := time.Now()
	records := p.store.Records()

	mv := &MarketView{
		Records:   p.pipeline.Compute(records, p.params),
		Params:    p.params,
		Stats:     view.Summarize(records),
		Version:   p.store.Version(),
		UpdatedAt: start,
	}
	p.latest.Store(mv)

	elapsed := time.Since(start)
	metrics.ObserveRecompute(elapsed)
	logger.LogPerformanceEntry(p.log.WithComponent("market_processor"), "market_processor", "recompute_view", elapsed, logger.Fields{
		"records": len(records),
		"visible": len(mv.Records),
	})
}

// View returns the latest published view. Callers must not modify it.
func (p *MarketProcessor) View() MarketView {
	return *p.latest.Load()
}

// exec runs fn on the owner goroutine and waits for it.
func (p *MarketProcessor) exec(ctx context.Context, fn func()) error {
	p.mu.RLock()
	running, done := p.running, p.done
	p.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}

	finished := make(chan struct{})
	select {
	case p.commands <- func() { fn(); close(finished) }:
	case <-done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetParams merges the non-empty arguments into the current params and
// recomputes the view. A nil query keeps the current search.
func (p *MarketProcessor) SetParams(ctx context.Context, query *string, filter, sort, direction string) (MarketView, error) {
	var (
		out MarketView
		err error
	)
	runErr := p.exec(ctx, func() {
		var next view.Params
		next, err = p.params.Merge(query, filter, sort, direction)
		if err != nil {
			return
		}
		p.params = next
		p.recompute()
		out = *p.latest.Load()
	})
	if runErr != nil {
		return MarketView{}, runErr
	}
	return out, err
}

// ToggleSort flips the direction of the current sort column or switches to
// a new column sorted descending.
func (p *MarketProcessor) ToggleSort(ctx context.Context, column string) (MarketView, error) {
	col, err := view.ParseColumn(column)
	if err != nil {
		return MarketView{}, err
	}

	var out MarketView
	if err := p.exec(ctx, func() {
		p.params = p.params.ToggleSort(col)
		p.recompute()
		out = *p.latest.Load()
	}); err != nil {
		return MarketView{}, err
	}
	return out, nil
}

// Lookup reads one record from the store.
func (p *MarketProcessor) Lookup(ctx context.Context, symbol string) (models.MarketRecord, bool, error) {
	var (
		rec models.MarketRecord
		ok  bool
	)
	if err := p.exec(ctx, func() {
		rec, ok = p.store.Get(symbol)
	}); err != nil {
		return models.MarketRecord{}, false, err
	}
	return rec, ok, nil
}

func (p *MarketProcessor) Stats() ProcessorStats {
	return ProcessorStats{
		Batches:     p.batches.Load(),
		Admitted:    p.admitted.Load(),
		Rejected:    p.rejected.Load(),
		Capped:      p.capped.Load(),
		FieldErrors: p.fieldErrors.Load(),
	}
}

func (p *MarketProcessor) statsFields() logger.Fields {
	s := p.Stats()
	return logger.Fields{
		"batches":      s.Batches,
		"admitted":     s.Admitted,
		"rejected":     s.Rejected,
		"capped":       s.Capped,
		"field_errors": s.FieldErrors,
	}
}
