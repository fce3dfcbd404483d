package memory

import (
	"context"
	"sync"

	"campusattend/internal/domain"
)

type pendingQueue struct {
	mu  sync.Mutex
	ops []*domain.PendingOperation
}

// NewPendingQueue returns an in-process FIFO of pending operations. Contents are lost on restart.
func NewPendingQueue() domain.PendingQueue {
	return &pendingQueue{}
}

func (q *pendingQueue) Enqueue(_ context.Context, op *domain.PendingOperation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, op)
	return nil
}

func (q *pendingQueue) Dequeue(_ context.Context) (*domain.PendingOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ops) == 0 {
		return nil, nil
	}
	op := q.ops[0]
	q.ops[0] = nil
	q.ops = q.ops[1:]
	return op, nil
}

func (q *pendingQueue) Requeue(_ context.Context, op *domain.PendingOperation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append([]*domain.PendingOperation{op}, q.ops...)
	return nil
}

func (q *pendingQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops), nil
}
