package domain

import (
	"context"
	"time"
)

// ConnectivityEvent is a network state change reported by a device or probe.
// IsInternetReachable is nil when reachability is unknown.
type ConnectivityEvent struct {
	IsConnected         bool  `json:"is_connected"`
	IsInternetReachable *bool `json:"is_internet_reachable,omitempty"`
}

// Online is true when connected and reachability is not known to be false.
func (e ConnectivityEvent) Online() bool {
	return e.IsConnected && (e.IsInternetReachable == nil || *e.IsInternetReachable)
}

// PendingOperationType names a replayable mutation. All types are idempotent.
type PendingOperationType string

const (
	OpAddRSVP    PendingOperationType = "rsvp.add"
	OpRemoveRSVP PendingOperationType = "rsvp.remove"
	OpCheckIn    PendingOperationType = "checkin.add"
)

// PendingPayload identifies the membership a pending operation mutates.
type PendingPayload struct {
	UserID  string `json:"user_id"`
	EventID string `json:"event_id"`
}

// PendingOperation is a mutation recorded while offline for later replay.
type PendingOperation struct {
	ID       string               `json:"id"`
	Type     PendingOperationType `json:"type"`
	Payload  PendingPayload       `json:"payload"`
	IssuedAt time.Time            `json:"issued_at"`
}

// PendingQueue stores pending operations in FIFO order.
type PendingQueue interface {
	Enqueue(ctx context.Context, op *PendingOperation) error
	// Dequeue pops the oldest operation, or returns (nil, nil) when empty.
	Dequeue(ctx context.Context) (*PendingOperation, error)
	// Requeue puts op back at the head of the queue.
	Requeue(ctx context.Context, op *PendingOperation) error
	Len(ctx context.Context) (int, error)
}

// ConnectivityMonitor derives the online signal and owns the offline queue.
type ConnectivityMonitor interface {
	Online() bool
	Observe(ev ConnectivityEvent)
	Subscribe() (<-chan bool, func())
	Enqueue(ctx context.Context, opType PendingOperationType, payload PendingPayload) (*PendingOperation, error)
	Pending(ctx context.Context) (int, error)
}
