// Package queue serialises work per partition key while letting distinct
// partitions proceed concurrently. A failed task settles its slot like any
// other; it never wedges the tasks queued behind it.
package queue

import (
	"context"
	"strings"
	"sync"
)

// Task is one unit of partition-ordered work.
type Task func(ctx context.Context) error

// PartitionKey derives the serialisation key for a domain and entity.
// Missing pieces fall back so unkeyed work still lands in a stable
// partition instead of a fresh one per call.
func PartitionKey(domain, entityID string) string {
	if strings.TrimSpace(domain) == "" {
		domain = "unknown"
	}
	if strings.TrimSpace(entityID) == "" {
		entityID = "entity"
	}
	return domain + "::" + entityID
}

// Queue chains tasks per partition key. The zero value is not usable; call
// New.
type Queue struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{tails: make(map[string]chan struct{})}
}

// Enqueue schedules the task behind any task already queued for the same
// key and returns a buffered channel that receives the task's outcome.
// Cancellation of ctx while waiting for predecessors settles the slot with
// ctx's error without running the task.
func (q *Queue) Enqueue(ctx context.Context, key string, task Task) <-chan error {
	result := make(chan error, 1)
	done := make(chan struct{})

	q.mu.Lock()
	prev := q.tails[key]
	q.tails[key] = done
	q.mu.Unlock()

	go func() {
		var err error
		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
				err = ctx.Err()
			}
		}
		if err == nil {
			err = task(ctx)
		}

		close(done)

		q.mu.Lock()
		if q.tails[key] == done {
			delete(q.tails, key)
		}
		q.mu.Unlock()

		result <- err
	}()

	return result
}

// BatchItem pairs a task with the partition key it serialises under.
type BatchItem struct {
	Key  string
	Task Task
}

// EnqueueBatch schedules every item and blocks until all of them settle.
// Outcomes are returned in input order; per-key ordering follows enqueue
// order within the batch.
func (q *Queue) EnqueueBatch(ctx context.Context, items []BatchItem) []error {
	pending := make([]<-chan error, len(items))
	for i, item := range items {
		pending[i] = q.Enqueue(ctx, item.Key, item.Task)
	}
	errs := make([]error, len(items))
	for i, ch := range pending {
		errs[i] = <-ch
	}
	return errs
}

// PendingPartitions reports how many partitions currently have unsettled
// tails.
func (q *Queue) PendingPartitions() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tails)
}
