package store

import (
	"context"
	"errors"
	"sync"

	"github.com/cerebrumd/cerebrum/logging"
)

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("operation queue closed")

type op struct {
	name string
	fn   func(ctx context.Context) error
	done chan error
}

// OpQueue serializes store mutations from independent timers through one
// FIFO worker goroutine: each operation runs only after the prior one has
// completed, so overlapping timer firings cannot interleave multi-field
// updates. Operations run exactly once; submitted closures are composite and
// not idempotent, so transient-failure retry lives at the store-call
// boundary (RetryStore), never here.
type OpQueue struct {
	ops    chan *op
	logger logging.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// OpQueueOptions configures an OpQueue.
type OpQueueOptions struct {
	// BufferSize bounds how many operations may wait before Submit blocks.
	BufferSize int
	// Logger records failed operations.
	Logger logging.Logger
}

// NewOpQueue constructs and starts the serialization queue.
func NewOpQueue(optFns ...func(o *OpQueueOptions)) *OpQueue {
	opts := OpQueueOptions{BufferSize: 64, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	q := &OpQueue{
		ops:    make(chan *op, opts.BufferSize),
		logger: opts.Logger,
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *OpQueue) run() {
	defer q.wg.Done()
	for o := range q.ops {
		err := o.fn(context.Background())
		if err != nil {
			q.logger.Error("store operation failed", "op", o.name, "error", err)
		}
		o.done <- err
	}
}

// Submit enqueues an operation and waits for it to finish. Operations run in
// submission order. The context only bounds the wait; an operation already
// handed to the worker still runs to completion.
func (q *OpQueue) Submit(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	o := &op{name: name, fn: fn, done: make(chan error, 1)}
	// The send happens under the lock so Close cannot close the channel
	// between the closed check and the send. The worker keeps draining, so
	// a full buffer cannot wedge Close behind this lock.
	select {
	case q.ops <- o:
		q.mu.Unlock()
	case <-ctx.Done():
		q.mu.Unlock()
		return ctx.Err()
	}

	select {
	case err := <-o.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains pending operations and stops the worker. Submit calls made
// after Close return ErrQueueClosed.
func (q *OpQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ops)
	q.mu.Unlock()
	q.wg.Wait()
}
