// Package watch holds the subscription plumbing shared by the store adapters.
package watch

import (
	"sort"
	"sync"
	"time"

	"campusattend/internal/domain"
)

// Feed is a domain.Subscription that only ever holds the latest snapshot.
// A slow reader skips intermediate snapshots instead of blocking the producer.
type Feed struct {
	mu      sync.Mutex
	ch      chan domain.EventsSnapshot
	done    chan struct{}
	closed  bool
	onClose func()
}

// NewFeed returns an open feed. onClose, if set, runs once when the feed is closed.
func NewFeed(onClose func()) *Feed {
	return &Feed{
		ch:      make(chan domain.EventsSnapshot, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// Updates returns the snapshot channel. It is closed by Close.
func (f *Feed) Updates() <-chan domain.EventsSnapshot { return f.ch }

// Done is closed when the feed is closed.
func (f *Feed) Done() <-chan struct{} { return f.done }

// Publish replaces any undelivered snapshot with s. It reports false once the feed is closed.
func (f *Feed) Publish(s domain.EventsSnapshot) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case <-f.ch:
	default:
	}
	f.ch <- s
	return true
}

// Close releases the feed. It is safe to call more than once.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.done)
	close(f.ch)
	f.mu.Unlock()

	if f.onClose != nil {
		f.onClose()
	}
	return nil
}

// Upcoming filters events to those dated at or after now, sorted ascending by date.
// Ties are broken by id so snapshots are stable.
func Upcoming(events []*domain.Event, now time.Time) []*domain.Event {
	out := make([]*domain.Event, 0, len(events))
	for _, e := range events {
		if !e.Date.Before(now) {
			out = append(out, e)
		}
	}
	SortByDate(out)
	return out
}

// SortByDate orders events ascending by date, then id.
func SortByDate(events []*domain.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Date.Equal(events[j].Date) {
			return events[i].ID < events[j].ID
		}
		return events[i].Date.Before(events[j].Date)
	})
}
