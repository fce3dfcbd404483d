package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"campusattend/internal/clock"
	"campusattend/internal/domain"
)

// EventLister is the read side of the attendance store used by the reminder job.
type EventLister interface {
	List() []*domain.Event
}

// ReminderScheduler notifies attendees once when an event is about to start.
type ReminderScheduler struct {
	events   EventLister
	notifier domain.NotificationService
	clock    clock.Clock
	window   time.Duration
	logger   *slog.Logger

	cron *cron.Cron

	mu sync.Mutex
	// sent records the start time each event was reminded for, so a
	// rescheduled event is reminded again.
	sent map[string]time.Time
}

// NewReminderScheduler validates spec (standard 5-field cron) and returns a stopped scheduler.
func NewReminderScheduler(events EventLister, notifier domain.NotificationService, c clock.Clock, spec string, window time.Duration, logger *slog.Logger) (*ReminderScheduler, error) {
	s := &ReminderScheduler{
		events:   events,
		notifier: notifier,
		clock:    c,
		window:   window,
		logger:   logger,
		cron:     cron.New(),
		sent:     make(map[string]time.Time),
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("reminder schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *ReminderScheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running pass to finish or ctx to end.
func (s *ReminderScheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce reminds the attendees of every cached event starting within the
// window that has not been reminded yet. It returns the number of events notified.
func (s *ReminderScheduler) RunOnce(ctx context.Context) int {
	now := s.clock.Now()
	events := s.events.List()

	s.mu.Lock()
	listed := make(map[string]struct{}, len(events))
	var due []*domain.Event
	for _, e := range events {
		listed[e.ID] = struct{}{}
		if e.RSVPs.Len() == 0 || e.Date.Before(now) || e.Date.Sub(now) > s.window {
			continue
		}
		if at, ok := s.sent[e.ID]; ok && at.Equal(e.Date) {
			continue
		}
		due = append(due, e)
	}
	for id := range s.sent {
		if _, ok := listed[id]; !ok {
			delete(s.sent, id)
		}
	}
	s.mu.Unlock()

	notified := 0
	for _, e := range due {
		title := "Reminder: " + e.Title
		body := fmt.Sprintf("%s starts %s at %s.", e.Title, e.Date.Format("Mon Jan 2, 15:04 MST"), e.Location)
		report, err := s.notifier.NotifyAttendees(ctx, e.ID, title, body)
		if err != nil {
			s.logger.WarnContext(ctx, "event reminder failed", "event_id", e.ID, "err", err)
			continue
		}
		s.mu.Lock()
		s.sent[e.ID] = e.Date
		s.mu.Unlock()
		notified++
		s.logger.InfoContext(ctx, "event reminder sent", "event_id", e.ID, "sent", report.Sent, "failed", report.Failed)
	}
	return notified
}
