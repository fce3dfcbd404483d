package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"campusattend/internal/clock"
	"campusattend/internal/domain"
	"campusattend/internal/resilience"
)

// Replayer applies one pending operation to the backing store.
type Replayer interface {
	Replay(ctx context.Context, op *domain.PendingOperation) error
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DrainResult summarizes one pass over the pending queue.
type DrainResult struct {
	Replayed int `json:"replayed"`
	Dropped  int `json:"dropped"`
	// Remaining is the queue length after the pass; non-zero when the pass stopped early.
	Remaining int `json:"remaining"`
}

// ConnectivityMonitor derives the online signal from connectivity events and
// replays the offline queue each time the signal goes from offline to online.
type ConnectivityMonitor struct {
	queue    domain.PendingQueue
	replayer Replayer
	clock    clock.Clock
	logger   *slog.Logger

	mu     sync.RWMutex
	online bool
	subs   map[chan bool]struct{}

	reconnected chan struct{}
	drainMu     sync.Mutex
}

// NewConnectivityMonitor returns a monitor that starts online.
func NewConnectivityMonitor(queue domain.PendingQueue, replayer Replayer, c clock.Clock, logger *slog.Logger) *ConnectivityMonitor {
	return &ConnectivityMonitor{
		queue:       queue,
		replayer:    replayer,
		clock:       c,
		logger:      logger,
		online:      true,
		subs:        make(map[chan bool]struct{}),
		reconnected: make(chan struct{}, 1),
	}
}

// Online reports the current derived signal.
func (m *ConnectivityMonitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Observe folds a connectivity event into the signal. Subscribers are only
// notified when the signal changes.
func (m *ConnectivityMonitor) Observe(ev domain.ConnectivityEvent) {
	online := ev.Online()

	m.mu.Lock()
	if online == m.online {
		m.mu.Unlock()
		return
	}
	m.online = online
	for ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- online
	}
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "online", online)
	if online {
		select {
		case m.reconnected <- struct{}{}:
		default:
		}
	}
}

// Subscribe returns a channel carrying the latest signal after each change, and its release function.
func (m *ConnectivityMonitor) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, ch)
			m.mu.Unlock()
		})
	}
}

// Enqueue records a mutation for replay once the monitor is back online.
func (m *ConnectivityMonitor) Enqueue(ctx context.Context, opType domain.PendingOperationType, payload domain.PendingPayload) (*domain.PendingOperation, error) {
	op := &domain.PendingOperation{
		ID:       uuid.NewString(),
		Type:     opType,
		Payload:  payload,
		IssuedAt: m.clock.Now(),
	}
	if err := m.queue.Enqueue(ctx, op); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", opType, err)
	}
	m.logger.InfoContext(ctx, "operation queued while offline",
		"pending_id", op.ID, "type", string(op.Type), "user_id", payload.UserID, "event_id", payload.EventID)
	return op, nil
}

// Pending returns the number of queued operations.
func (m *ConnectivityMonitor) Pending(ctx context.Context) (int, error) {
	return m.queue.Len(ctx)
}

// Drain replays queued operations in order. A non-retryable failure drops the
// operation; a retryable one that survived the retry policy is put back at
// the head and ends the pass, as does going offline.
func (m *ConnectivityMonitor) Drain(ctx context.Context) (DrainResult, error) {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	var res DrainResult
	for m.Online() {
		op, err := m.queue.Dequeue(ctx)
		if err != nil {
			return res, fmt.Errorf("dequeue pending operation: %w", err)
		}
		if op == nil {
			break
		}
		err = m.replayer.Replay(ctx, op)
		switch {
		case err == nil:
			res.Replayed++
		case resilience.IsRetryable(err) || ctx.Err() != nil:
			if rqErr := m.queue.Requeue(context.WithoutCancel(ctx), op); rqErr != nil {
				m.logger.ErrorContext(ctx, "pending operation lost", "pending_id", op.ID, "type", string(op.Type), "err", rqErr)
			}
			m.logger.WarnContext(ctx, "pending replay stopped", "pending_id", op.ID, "type", string(op.Type), "err", err)
			return m.finish(ctx, res)
		default:
			res.Dropped++
			m.logger.ErrorContext(ctx, "pending operation dropped", "pending_id", op.ID, "type", string(op.Type),
				"user_id", op.Payload.UserID, "event_id", op.Payload.EventID, "err", err)
		}
	}
	return m.finish(ctx, res)
}

func (m *ConnectivityMonitor) finish(ctx context.Context, res DrainResult) (DrainResult, error) {
	n, err := m.queue.Len(context.WithoutCancel(ctx))
	if err != nil {
		return res, err
	}
	res.Remaining = n
	if res.Replayed+res.Dropped > 0 {
		m.logger.InfoContext(ctx, "pending queue drained", "replayed", res.Replayed, "dropped", res.Dropped, "remaining", res.Remaining)
	}
	return res, nil
}

// Run drains the queue after every reconnect and, when pinger is non-nil,
// probes the store every interval, feeding the result into Observe. It
// returns when ctx is done.
func (m *ConnectivityMonitor) Run(ctx context.Context, pinger Pinger, interval time.Duration) {
	var tick <-chan time.Time
	if pinger != nil && interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	// Anything left over from a previous process is replayed right away.
	m.drainLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			m.probe(ctx, pinger, interval)
		case <-m.reconnected:
			m.drainLogged(ctx)
		}
	}
}

func (m *ConnectivityMonitor) drainLogged(ctx context.Context) {
	if _, err := m.Drain(ctx); err != nil && ctx.Err() == nil {
		m.logger.ErrorContext(ctx, "pending drain failed", "err", err)
	}
}

func (m *ConnectivityMonitor) probe(ctx context.Context, pinger Pinger, timeout time.Duration) {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := pinger.Ping(pctx)
	if ctx.Err() != nil {
		return
	}
	reachable := err == nil
	if err != nil {
		m.logger.DebugContext(ctx, "store probe failed", "err", err)
	}
	m.Observe(domain.ConnectivityEvent{IsConnected: true, IsInternetReachable: &reachable})
}
