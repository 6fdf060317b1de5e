package usecase

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
	"github.com/atvirokodosprendimai/momentschema/internal/core/ports"
)

const (
	defaultDispatchInterval = 2 * time.Second
	defaultDispatchBatch    = 50
	defaultRetryBudget      = 5
	maxRetryBackoff         = 5 * time.Minute
)

// OutboxDispatcher delivers pending outbox events to a publisher. Failed
// deliveries are retried with backoff until the retry budget is spent, then
// the event is marked dead.
type OutboxDispatcher struct {
	repo      ports.OutboxRepository
	publisher ports.EventPublisher
	codec     *EventCodec
	interval  time.Duration
	batchSize int
	maxRetry  int

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dispatched atomic.Int64
	failed     atomic.Int64
	dead       atomic.Int64
}

type OutboxDispatcherMetrics struct {
	DispatchSuccessTotal int64
	DispatchFailureTotal int64
	DispatchDeadTotal    int64
}

type DispatcherOption func(*OutboxDispatcher)

func WithDispatchInterval(d time.Duration) DispatcherOption {
	return func(o *OutboxDispatcher) {
		if d > 0 {
			o.interval = d
		}
	}
}

func WithBatchSize(n int) DispatcherOption {
	return func(o *OutboxDispatcher) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

func WithRetryBudget(n int) DispatcherOption {
	return func(o *OutboxDispatcher) {
		if n > 0 {
			o.maxRetry = n
		}
	}
}

func WithEventCodec(c *EventCodec) DispatcherOption {
	return func(o *OutboxDispatcher) {
		if c != nil {
			o.codec = c
		}
	}
}

func NewOutboxDispatcher(repo ports.OutboxRepository, publisher ports.EventPublisher, opts ...DispatcherOption) *OutboxDispatcher {
	d := &OutboxDispatcher{
		repo:      repo,
		publisher: publisher,
		codec:     NewEventCodec(),
		interval:  defaultDispatchInterval,
		batchSize: defaultDispatchBatch,
		maxRetry:  defaultRetryBudget,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *OutboxDispatcher) Start(parent context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.wg.Add(1)
	go d.loop(ctx)
}

func (d *OutboxDispatcher) Close() error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	return nil
}

func (d *OutboxDispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.dispatchBatch(ctx); err != nil && ctx.Err() == nil {
			log.Printf("outbox dispatch batch error: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *OutboxDispatcher) dispatchBatch(ctx context.Context) error {
	events, err := d.repo.FetchPending(ctx, d.batchSize)
	if err != nil {
		return err
	}

	for _, event := range events {
		if err := d.dispatchOne(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// dispatchOne returns an error only when the outbox itself could not be
// updated. Delivery failures are recorded on the event.
func (d *OutboxDispatcher) dispatchOne(ctx context.Context, event domain.OutboxEvent) error {
	envelope, err := d.codec.Decode(event.PayloadJSON)
	if err == nil {
		err = d.publisher.Publish(ctx, event.Topic, envelope)
	}
	if err != nil {
		d.failed.Add(1)
		return d.markFailure(ctx, event, err.Error())
	}

	if err := d.repo.MarkDispatched(ctx, event.ID); err != nil {
		return err
	}
	d.dispatched.Add(1)
	return nil
}

func (d *OutboxDispatcher) markFailure(ctx context.Context, event domain.OutboxEvent, errMsg string) error {
	attempts := event.Attempts + 1
	if attempts >= d.maxRetry {
		if err := d.repo.MarkDead(ctx, event.ID, attempts, errMsg); err != nil {
			return err
		}
		d.dead.Add(1)
		log.Printf("outbox event dead event_id=%s topic=%s attempts=%d error=%q", event.EventID, event.Topic, attempts, errMsg)
		return nil
	}
	next := time.Now().UTC().Add(backoffDuration(attempts)).Format(time.RFC3339Nano)
	return d.repo.MarkFailed(ctx, event.ID, attempts, next, errMsg)
}

func (d *OutboxDispatcher) Metrics() OutboxDispatcherMetrics {
	return OutboxDispatcherMetrics{
		DispatchSuccessTotal: d.dispatched.Load(),
		DispatchFailureTotal: d.failed.Load(),
		DispatchDeadTotal:    d.dead.Load(),
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt <= 1 {
		return time.Second
	}
	d := time.Duration(attempt*attempt) * time.Second
	if d > maxRetryBackoff {
		return maxRetryBackoff
	}
	return d
}
