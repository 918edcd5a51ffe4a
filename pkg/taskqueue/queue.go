// Package taskqueue provides serial task queues. Each queue owns one
// goroutine, and everything dispatched to it runs on that goroutine in
// submission order. Objects with thread affinity are created, used and
// destroyed through their owner's queue.
package taskqueue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when dispatching to a queue that has shut down.
var ErrClosed = errors.New("taskqueue: queue closed")

// Task runs on the owner goroutine. ctx identifies that goroutine to
// nested Run calls.
type Task func(ctx context.Context)

type ownerKey struct{}

// Queue is a FIFO of tasks executed by a single goroutine.
type Queue struct {
	name string

	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []Task
	closing bool
	done    chan struct{}
	base    context.Context
}

// New starts a queue named name.
func New(name string) *Queue {
	q := &Queue{
		name: name,
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	q.base = context.WithValue(context.Background(), ownerKey{}, q)
	go q.loop()
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closing {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task(q.base)
	}
}

// Dispatch appends task to the queue without waiting for it.
func (q *Queue) Dispatch(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closing {
		return ErrClosed
	}
	q.tasks = append(q.tasks, task)
	q.cond.Signal()
	return nil
}

// IsCurrent reports whether ctx was handed out by this queue, i.e. the
// caller is running on the owner goroutine.
func (q *Queue) IsCurrent(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(ownerKey{}).(*Queue)
	return owner == q
}

// Shutdown stops accepting tasks. Tasks already queued still run. It does
// not wait, so it is safe to call from a task of the same queue.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.closing = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Wait blocks until the queue goroutine has exited after Shutdown.
func (q *Queue) Wait() {
	<-q.done
}

// Close is Shutdown followed by Wait.
func (q *Queue) Close() {
	q.Shutdown()
	q.Wait()
}
