package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/adapters/qrtoken"
	"campusattend/internal/domain"
)

// brokenUsers fails every lookup.
type brokenUsers struct {
	domain.UserRepository
}

func (brokenUsers) GetByID(context.Context, string) (*domain.User, error) {
	return nil, errors.New("users unavailable")
}

func newCheckInFixture(t *testing.T, gate OfflineGate) (*storeFixture, domain.CheckInService, domain.TokenCodec) {
	t.Helper()
	f := newStoreFixture(t, gate)
	codec := qrtoken.NewCodec(f.clock)
	return f, NewCheckInService(codec, f.store, f.users, testLogger, time.Second), codec
}

func TestCheckIn_Ordering(t *testing.T) {
	ctx := context.Background()
	f, svc, codec := newCheckInFixture(t, nil)
	e := f.seedEvent(t, "Career Fair", time.Hour, nil, nil)
	f.seedUser(t, "u1", "Ada Lovelace", "ada@campus.edu", "")

	tok, err := codec.Encode("u1", e.ID)
	require.NoError(t, err)

	out, err := svc.ValidateAndCheckIn(ctx, tok)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, domain.MsgNotRSVPd, out.Message)

	require.NoError(t, f.store.AddRSVP(ctx, "u1", e.ID))

	out, err = svc.ValidateAndCheckIn(ctx, tok)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, domain.MsgCheckInSuccessful, out.Message)
	require.NotNil(t, out.DisplayName)
	assert.Equal(t, "Ada Lovelace", *out.DisplayName)

	out, err = svc.ValidateAndCheckIn(ctx, tok)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, domain.MsgAlreadyCheckedIn, out.Message)
	require.NotNil(t, out.DisplayName)
	assert.Equal(t, "Ada Lovelace", *out.DisplayName)

	got, err := f.store.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, got.CheckedIn.Sorted())
	assert.True(t, got.CheckedIn.SubsetOf(got.RSVPs))
}

func TestCheckIn_InvalidTokenNeverReachesStore(t *testing.T) {
	f, svc, _ := newCheckInFixture(t, nil)

	out, err := svc.ValidateAndCheckIn(context.Background(), "not json at all")
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "invalid token format", out.Message)
	assert.Equal(t, 0, f.repo.count("GetByID"))
	assert.Equal(t, 0, f.repo.count("AddToSet"))
}

func TestCheckInUser_Outcomes(t *testing.T) {
	ctx := context.Background()
	f, svc, _ := newCheckInFixture(t, nil)
	e := f.seedEvent(t, "Career Fair", time.Hour, []string{"u1"}, nil)

	tests := []struct {
		name    string
		user    string
		event   string
		wantMsg string
	}{
		{"missing user", "", e.ID, domain.MsgMissingIDs},
		{"missing event", "u1", " ", domain.MsgMissingIDs},
		{"unknown event", "u1", "nope", domain.MsgEventNotFound},
		{"not rsvp'd", "u2", e.ID, domain.MsgNotRSVPd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := svc.CheckInUser(ctx, tt.user, tt.event)
			require.NoError(t, err)
			assert.False(t, out.Success)
			assert.Equal(t, tt.wantMsg, out.Message)
			assert.Nil(t, out.DisplayName)
		})
	}
	assert.Equal(t, 0, f.repo.count("AddToSet"))
}

func TestCheckInUser_NameLookupFailureIsNil(t *testing.T) {
	f := newStoreFixture(t, nil)
	e := f.seedEvent(t, "Career Fair", time.Hour, []string{"u1"}, nil)
	svc := NewCheckInService(qrtoken.NewCodec(f.clock), f.store, brokenUsers{}, testLogger, time.Second)

	out, err := svc.CheckInUser(context.Background(), "u1", e.ID)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Nil(t, out.DisplayName)
}

func TestCheckInUser_InfrastructureFailureIsError(t *testing.T) {
	f, svc, _ := newCheckInFixture(t, nil)
	e := f.seedEvent(t, "Career Fair", time.Hour, []string{"u1"}, nil)
	f.repo.failNext("AddToSet", errDown, errDown, errDown, errDown)

	out, err := svc.CheckInUser(context.Background(), "u1", e.ID)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, "The service is temporarily unavailable. Please try again.", err.Error())
}

func TestCheckInUser_OfflineIsQueued(t *testing.T) {
	gate := &fakeGate{}
	f, svc, _ := newCheckInFixture(t, gate)
	e := f.seedEvent(t, "Career Fair", time.Hour, []string{"u1"}, nil)
	gate.offline = true

	out, err := svc.CheckInUser(context.Background(), "u1", e.ID)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, domain.MsgCheckInQueued, out.Message)
	require.Len(t, gate.queued, 1)
	assert.Equal(t, domain.OpCheckIn, gate.queued[0].Type)
}
