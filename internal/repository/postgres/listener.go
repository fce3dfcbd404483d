package postgres

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
)

// EventsChannel is the NOTIFY channel fed by the events trigger.
const EventsChannel = "events_changed"

// Listener fans LISTEN/NOTIFY traffic on EventsChannel out to subscribers.
// A reconnect is reported as a change because notifications may have been missed.
type Listener struct {
	logger *slog.Logger
	pl     *pq.Listener

	mu   sync.Mutex
	subs map[chan struct{}]struct{}
	done chan struct{}
}

// NewListener opens a dedicated connection to dsn and listens on EventsChannel.
func NewListener(dsn string, logger *slog.Logger) (*Listener, error) {
	l := &Listener{
		logger: logger,
		subs:   make(map[chan struct{}]struct{}),
		done:   make(chan struct{}),
	}
	l.pl = pq.NewListener(dsn, time.Second, time.Minute, l.onEvent)
	if err := l.pl.Listen(EventsChannel); err != nil {
		_ = l.pl.Close()
		return nil, fmt.Errorf("listen %s: %w", EventsChannel, translate(err))
	}
	go l.run()
	return l, nil
}

func (l *Listener) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
		l.logger.Warn("postgres listener connection lost", "err", err)
	case pq.ListenerEventReconnected:
		l.logger.Info("postgres listener reconnected")
	}
}

func (l *Listener) run() {
	// pq recommends pinging an idle listener so dead connections are noticed.
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-l.done:
			return
		case _, ok := <-l.pl.Notify:
			if !ok {
				return
			}
			l.broadcast()
		case <-ping.C:
			go func() {
				if err := l.pl.Ping(); err != nil {
					l.logger.Debug("postgres listener ping failed", "err", err)
				}
			}()
		}
	}
}

func (l *Listener) broadcast() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe returns a coalescing change signal and its release function.
func (l *Listener) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	l.mu.Lock()
	l.subs[ch] = struct{}{}
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, ch)
			l.mu.Unlock()
		})
	}
}

// Close stops listening and releases the connection.
func (l *Listener) Close() error {
	close(l.done)
	return l.pl.Close()
}
