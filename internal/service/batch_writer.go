package service

import (
	"context"
	"sync"
	"time"

	"studyhub/internal/observability"
)

const (
	defaultQueueSize     = 4096
	defaultBatchSize     = 100
	defaultFlushInterval = 2 * time.Second
)

// BatchWriter buffers records in a bounded queue and hands them to flush in
// batches, either when a batch fills up or when the interval elapses. Enqueue
// never blocks: a full queue drops the record and counts it.
type BatchWriter[T any] struct {
	name      string
	queue     chan T
	flush     func(ctx context.Context, batch []T) error
	batchSize int
	interval  time.Duration

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
}

// NewBatchWriter returns a writer; call Start before enqueuing.
func NewBatchWriter[T any](name string, queueSize, batchSize int, interval time.Duration, flush func(context.Context, []T) error) *BatchWriter[T] {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	return &BatchWriter[T]{
		name:      name,
		queue:     make(chan T, queueSize),
		flush:     flush,
		batchSize: batchSize,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

// Start launches the flush loop. It is safe to call more than once.
func (w *BatchWriter[T]) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	w.started = true
	go w.run()
}

// Enqueue adds item and reports whether it was accepted.
func (w *BatchWriter[T]) Enqueue(item T) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		observability.AsyncWriterDrops.WithLabelValues(w.name).Inc()
		return false
	}
	select {
	case w.queue <- item:
		return true
	default:
		observability.AsyncWriterDrops.WithLabelValues(w.name).Inc()
		return false
	}
}

// Close stops accepting records and waits for the queue to drain or ctx to end.
func (w *BatchWriter[T]) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	started := w.started
	w.mu.Unlock()

	if !started {
		w.drain()
		return nil
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *BatchWriter[T]) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	batch := make([]T, 0, w.batchSize)
	for {
		select {
		case item, ok := <-w.queue:
			if !ok {
				w.write(batch)
				return
			}
			batch = append(batch, item)
			if len(batch) >= w.batchSize {
				w.write(batch)
				batch = make([]T, 0, w.batchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.write(batch)
				batch = make([]T, 0, w.batchSize)
			}
		}
	}
}

func (w *BatchWriter[T]) drain() {
	batch := make([]T, 0, w.batchSize)
	for item := range w.queue {
		batch = append(batch, item)
		if len(batch) >= w.batchSize {
			w.write(batch)
			batch = make([]T, 0, w.batchSize)
		}
	}
	w.write(batch)
}

func (w *BatchWriter[T]) write(batch []T) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.flush(ctx, batch); err != nil {
		observability.AsyncWriterFlushes.WithLabelValues(w.name, "error").Inc()
		observability.LogAsyncOperationError(ctx, w.name+".flush", err, map[string]any{"batch_size": len(batch)})
		return
	}
	observability.AsyncWriterFlushes.WithLabelValues(w.name, "ok").Inc()
}
