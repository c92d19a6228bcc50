package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"visitrack/internal/models"
	"visitrack/pkg/cache"
	"visitrack/pkg/logger"
	"visitrack/pkg/metrics"
)

const (
	flushTriggerSize     = "size"
	flushTriggerTime     = "time"
	flushTriggerShutdown = "shutdown"
)

// QueueBackend holds buffered events in FIFO order.
type QueueBackend interface {
	Push(ctx context.Context, events ...*models.Event) (int, error)
	Pop(ctx context.Context, max int) ([]*models.Event, error)
	Len(ctx context.Context) (int, error)
}

type memoryQueueBackend struct {
	mu    sync.Mutex
	items []*models.Event
}

func NewMemoryQueueBackend() QueueBackend {
	return &memoryQueueBackend{}
}

func (b *memoryQueueBackend) Push(ctx context.Context, events ...*models.Event) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, events...)
	return len(b.items), nil
}

func (b *memoryQueueBackend) Pop(ctx context.Context, max int) ([]*models.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if max <= 0 || max > len(b.items) {
		max = len(b.items)
	}
	out := make([]*models.Event, max)
	copy(out, b.items[:max])
	b.items = b.items[max:]
	return out, nil
}

func (b *memoryQueueBackend) Len(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items), nil
}

// redisQueueBackend shares one buffer between server instances.
type redisQueueBackend struct {
	redis *cache.RedisCache
	key   string
}

func NewRedisQueueBackend(redis *cache.RedisCache, key string) QueueBackend {
	return &redisQueueBackend{redis: redis, key: key}
}

func (b *redisQueueBackend) Push(ctx context.Context, events ...*models.Event) (int, error) {
	values := make([]interface{}, 0, len(events))
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return 0, fmt.Errorf("failed to encode queued event: %w", err)
		}
		values = append(values, data)
	}

	n, err := b.redis.RPush(ctx, b.key, values...)
	return int(n), err
}

func (b *redisQueueBackend) Pop(ctx context.Context, max int) ([]*models.Event, error) {
	raw, err := b.redis.LPopCount(ctx, b.key, max)
	if err != nil {
		return nil, err
	}

	events, skipped := decodeQueuedEvents(raw)
	if skipped > 0 {
		metrics.BackgroundErrors.WithLabelValues("queue_decode").Add(float64(skipped))
	}
	return events, nil
}

// decodeQueuedEvents drops items that no longer decode so the rest of the
// popped batch still reaches the flush function.
func decodeQueuedEvents(raw []string) ([]*models.Event, int) {
	events := make([]*models.Event, 0, len(raw))
	skipped := 0
	for _, item := range raw {
		var e models.Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			skipped++
			continue
		}
		events = append(events, &e)
	}
	return events, skipped
}

func (b *redisQueueBackend) Len(ctx context.Context) (int, error) {
	n, err := b.redis.LLen(ctx, b.key)
	return int(n), err
}

// FlushFunc writes one batch. An error means nothing was written and the
// batch is requeued.
type FlushFunc func(ctx context.Context, events []*models.Event) error

// EventQueue buffers events and flushes when the buffer reaches the size
// threshold or the interval has passed since the last flush.
type EventQueue struct {
	backend  QueueBackend
	flushFn  FlushFunc
	size     int
	interval time.Duration
	logger   *logger.Logger

	signal  chan struct{}
	flushMu sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewEventQueue(backend QueueBackend, flushFn FlushFunc, size int, interval time.Duration, logger *logger.Logger) *EventQueue {
	if size <= 0 {
		size = 50
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &EventQueue{
		backend:  backend,
		flushFn:  flushFn,
		size:     size,
		interval: interval,
		logger:   logger,
		signal:   make(chan struct{}, 1),
	}
}

func (q *EventQueue) Enqueue(ctx context.Context, events ...*models.Event) error {
	depth, err := q.backend.Push(ctx, events...)
	if err != nil {
		return fmt.Errorf("failed to enqueue events: %w", err)
	}
	metrics.QueueDepth.Set(float64(depth))

	if depth >= q.size {
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}
	return nil
}

// Start launches the flush loop. It returns immediately.
func (q *EventQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.stopped = make(chan struct{})

	go q.run(loopCtx, q.stopped)
}

func (q *EventQueue) run(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	timer := time.NewTimer(q.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.signal:
			q.flushLogged(ctx, flushTriggerSize)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(q.interval)
		case <-timer.C:
			q.flushLogged(ctx, flushTriggerTime)
			timer.Reset(q.interval)
		}
	}
}

// Stop ends the flush loop and drains whatever is still buffered.
func (q *EventQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	cancel, stopped := q.cancel, q.stopped
	q.cancel = nil
	q.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-stopped:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	_, err := q.Flush(ctx, flushTriggerShutdown)
	return err
}

func (q *EventQueue) flushLogged(ctx context.Context, trigger string) {
	if _, err := q.Flush(ctx, trigger); err != nil && ctx.Err() == nil {
		metrics.BackgroundErrors.WithLabelValues("queue_flush").Inc()
		q.logger.WithError(err).WithField("trigger", trigger).Error("Event queue flush failed")
	}
}

// Flush drains the buffer in batches of the configured size and returns the
// number of events handed to the flush function.
func (q *EventQueue) Flush(ctx context.Context, trigger string) (int, error) {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	flushed := 0
	for {
		batch, err := q.backend.Pop(ctx, q.size)
		if err != nil {
			return flushed, err
		}
		if len(batch) == 0 {
			break
		}

		start := time.Now()
		if err := q.flushFn(ctx, batch); err != nil {
			if _, pushErr := q.backend.Push(context.WithoutCancel(ctx), batch...); pushErr != nil {
				q.logger.WithError(pushErr).WithField("events", len(batch)).Error("Failed to requeue events, batch dropped")
			}
			return flushed, err
		}

		metrics.FlushDuration.Observe(time.Since(start).Seconds())
		metrics.QueueFlushes.WithLabelValues(trigger).Inc()
		flushed += len(batch)

		if len(batch) < q.size {
			break
		}
	}

	if depth, err := q.backend.Len(ctx); err == nil {
		metrics.QueueDepth.Set(float64(depth))
	}
	if flushed > 0 {
		q.logger.LogPerformanceMetric("event_queue_flush", float64(flushed), "events", map[string]string{"trigger": trigger})
	}
	return flushed, nil
}

func (q *EventQueue) Len(ctx context.Context) (int, error) {
	return q.backend.Len(ctx)
}
