// Package eventq serializes host callbacks onto a single goroutine.
//
// Hosts that deliver events off the thread driving the synchronizer wrap
// their graph with Wrap. Every callback is then posted to a Queue and runs
// on the queue's goroutine in delivery order, so the synchronizer and its
// sub-parsers never see two events at once.
package eventq

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
)

// ErrClosed is returned when posting to a closed queue.
var ErrClosed = errors.New("event queue closed")

// Config holds queue settings.
type Config struct {
	Logger *log.Logger
}

// DefaultConfig returns the default queue settings.
func DefaultConfig() Config {
	return Config{Logger: log.New(os.Stderr, "[eventq] ", log.LstdFlags)}
}

// Queue runs posted functions one at a time, in order, on its own
// goroutine. Posting never blocks.
type Queue struct {
	logger *log.Logger

	mu      sync.Mutex
	pending []func()
	closed  bool
	ran     int
	dropped int
	panics  int

	wake chan struct{}
	done chan struct{}
}

// New starts a queue with default settings.
func New() *Queue {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig starts a queue with custom settings.
func NewWithConfig(cfg Config) *Queue {
	if cfg.Logger == nil {
		cfg.Logger = DefaultConfig().Logger
	}
	q := &Queue{
		logger: cfg.Logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.loop()
	return q
}

// Post schedules fn. It returns ErrClosed after Close.
func (q *Queue) Post(fn func()) error {
	q.mu.Lock()
	if q.closed {
		q.dropped++
		q.mu.Unlock()
		return ErrClosed
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do runs fn on the queue goroutine and waits for its result. It must not
// be called from the queue goroutine.
func (q *Queue) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if err := q.Post(func() { result <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until everything posted before the call has run. Functions
// posted while flushing are run too when they were posted by earlier work.
// It must not be called from the queue goroutine.
func (q *Queue) Flush(ctx context.Context) error {
	for {
		if err := q.Do(ctx, func() error { return nil }); err != nil {
			return err
		}
		if q.Len() == 0 {
			return nil
		}
	}
}

// Len returns the number of functions waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stats returns how many functions ran, were dropped after Close, and
// panicked.
func (q *Queue) Stats() (ran, dropped, panics int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ran, q.dropped, q.panics
}

// Close stops accepting work, runs what is already queued and waits for
// the goroutine to exit. Close is idempotent.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
	return nil
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		closed := q.closed
		q.mu.Unlock()

		for _, fn := range batch {
			q.run(fn)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}

// run executes one function. A panic is logged and does not stop the queue.
func (q *Queue) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.mu.Lock()
			q.panics++
			q.mu.Unlock()
			q.logger.Printf("Warning: recovered from panic in event handler: %v", r)
		}
	}()
	fn()
	q.mu.Lock()
	q.ran++
	q.mu.Unlock()
}
