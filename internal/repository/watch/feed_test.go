package watch

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/domain"
)

func TestFeed_KeepsLatestSnapshot(t *testing.T) {
	f := NewFeed(nil)
	defer f.Close()

	require.True(t, f.Publish(domain.EventsSnapshot{Err: errors.New("first")}))
	require.True(t, f.Publish(domain.EventsSnapshot{Events: []*domain.Event{{ID: "e1"}}}))

	got := <-f.Updates()
	require.NoError(t, got.Err)
	require.Len(t, got.Events, 1)
	assert.Equal(t, "e1", got.Events[0].ID)

	select {
	case s := <-f.Updates():
		t.Fatalf("unexpected extra snapshot %+v", s)
	default:
	}
}

func TestFeed_CloseIsIdempotent(t *testing.T) {
	calls := 0
	f := NewFeed(func() { calls++ })

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
	assert.Equal(t, 1, calls)
	assert.False(t, f.Publish(domain.EventsSnapshot{}))

	_, ok := <-f.Updates()
	assert.False(t, ok)
	<-f.Done()
}

func TestUpcoming(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []*domain.Event{
		{ID: "later", Date: now.Add(48 * time.Hour)},
		{ID: "past", Date: now.Add(-time.Minute)},
		{ID: "b-now", Date: now},
		{ID: "a-now", Date: now},
	}

	got := Upcoming(events, now)
	ids := make([]string, 0, len(got))
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"a-now", "b-now", "later"}, ids)
}
