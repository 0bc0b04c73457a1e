package processor

import (
	"context"
	"sync"
	"sync/atomic"

	"marketview/internal/metrics"
	"marketview/internal/orderbook"
	"marketview/logger"
	"marketview/models"
)

// SubscriptionSource reports the live depth subscription id.
type SubscriptionSource interface {
	CurrentID() string
}

// BookProcessor normalizes depth frames and keeps the latest book of the live
// subscription. Frames from any other subscription are discarded.
type BookProcessor struct {
	in     <-chan models.RawDepthMessage
	source SubscriptionSource
	depth  int
	latest atomic.Pointer[models.Book]

	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	log     *logger.Log

	processed atomic.Int64
	malformed atomic.Int64
	stale     atomic.Int64
}

func NewBookProcessor(in <-chan models.RawDepthMessage, source SubscriptionSource, depth int) *BookProcessor {
	return &BookProcessor{
		in:     in,
		source: source,
		depth:  depth,
		log:    logger.GetLogger(),
	}
}

func (p *BookProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrAlreadyRunning
	}
	p.running = true

	p.wg.Add(1)
	go p.worker(ctx)
	return nil
}

func (p *BookProcessor) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.log.WithComponent("book_processor").WithFields(logger.Fields{
		"processed": p.processed.Load(),
		"malformed": p.malformed.Load(),
		"stale":     p.stale.Load(),
	}).Info("book processor stopped")
}

func (p *BookProcessor) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-p.in:
			if !ok {
				return
			}
			p.handle(msg)
		}
	}
}

func (p *BookProcessor) handle(msg models.RawDepthMessage) {
	log := p.log.WithComponent("book_processor").WithFields(logger.Fields{
		"symbol":          msg.Symbol,
		"subscription_id": msg.SubscriptionID,
	})

	if msg.SubscriptionID != p.source.CurrentID() {
		p.stale.Add(1)
		log.Debug("dropping depth frame from a closed subscription")
		return
	}

	book, err := orderbook.Decode(msg.Data, p.depth)
	if err != nil {
		p.malformed.Add(1)
		metrics.IncrementMalformed("depth")
		log.WithError(err).Warn("dropping malformed depth frame")
		return
	}

	book.Symbol = msg.Symbol
	book.SubscriptionID = msg.SubscriptionID
	book.UpdatedAt = msg.Timestamp
	p.latest.Store(&book)
	p.processed.Add(1)
}

// Latest returns the newest book for the live subscription.
func (p *BookProcessor) Latest() (models.Book, bool) {
	book := p.latest.Load()
	if book == nil || book.SubscriptionID == "" || book.SubscriptionID != p.source.CurrentID() {
		return models.Book{}, false
	}
	return *book, true
}
