// Package dispatch runs continuations one at a time on a single goroutine.
//
// Blocking collaborator calls run on their own goroutines through Go; only
// their continuations are serialized. Code that runs on the queue never needs
// a lock for state it shares with other continuations of the same queue.
package dispatch

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by Post once the queue has been stopped.
var ErrStopped = errors.New("dispatch: queue stopped")

type Queue struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	stopped bool
	done    chan struct{}
}

func NewQueue() *Queue {
	return &Queue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post schedules fn to run on the queue goroutine. Post never blocks.
func (q *Queue) Post(fn func()) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrStopped
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Go runs work on a new goroutine and posts then(err) back to the queue
// when work returns. If the queue has stopped by then, abandon(err) runs on
// the work goroutine instead. abandon may be nil.
func (q *Queue) Go(
	ctx context.Context,
	work func(ctx context.Context) error,
	then func(err error),
	abandon func(err error),
) {
	go func() {
		err := work(ctx)
		if q.Post(func() { then(err) }) != nil && abandon != nil {
			abandon(err)
		}
	}()
}

// Run drains continuations until ctx is done or Stop is called.
// It must be called exactly once.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)

	for {
		batch := q.take()
		for _, fn := range batch {
			fn()
		}
		if len(batch) > 0 {
			continue
		}

		if q.isStopped() {
			return
		}

		select {
		case <-ctx.Done():
			q.Stop()
		case <-q.wake:
		}
	}
}

// Stop rejects new work. Continuations already posted still run.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Done is closed when Run returns.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) take() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.pending
	q.pending = nil
	return batch
}

func (q *Queue) isStopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopped
}
