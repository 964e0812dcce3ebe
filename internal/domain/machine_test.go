package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolve_IdleStartsNew(t *testing.T) {
	out, err := Resolve(nil, StateWorking, false)
	require.NoError(t, err)
	require.Equal(t, OutcomeStart, out.Kind)
	require.Equal(t, StateWorking, out.NewState)
	require.Nil(t, out.Direction)
}

func TestResolve_SameStateEnds(t *testing.T) {
	active := NewSession("u1", StateLunch, time.Now(), nil)
	out, err := Resolve(active, StateLunch, true)
	require.NoError(t, err)
	require.Equal(t, OutcomeEnd, out.Kind)
}

func TestResolve_DifferentStateSwitches(t *testing.T) {
	active := NewSession("u1", StateWorking, time.Now(), nil)
	out, err := Resolve(active, StateLunch, true)
	require.NoError(t, err)
	require.Equal(t, OutcomeSwitch, out.Kind)
	require.Equal(t, StateLunch, out.NewState)
	require.Nil(t, out.Direction)
}

func TestResolve_UnknownActivityRejected(t *testing.T) {
	_, err := Resolve(nil, ActivityState("sleeping"), false)
	require.Error(t, err)
	require.Equal(t, KindInvalidRequest, KindOf(err))
}

func TestResolve_CommuteDirectionInference(t *testing.T) {
	// First commute of the day heads to work.
	out, err := Resolve(nil, StateCommuting, false)
	require.NoError(t, err)
	require.NotNil(t, out.Direction)
	require.Equal(t, DirectionToWork, *out.Direction)

	// Any commute after the first working session heads home, even when
	// switching straight out of a working session.
	active := NewSession("u1", StateWorking, time.Now(), nil)
	out, err = Resolve(active, StateCommuting, true)
	require.NoError(t, err)
	require.Equal(t, OutcomeSwitch, out.Kind)
	require.Equal(t, DirectionToHome, *out.Direction)
}

func TestSessionCloseClampsNegativeDuration(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := NewSession("u1", StateWorking, start, nil)
	s.Close(start.Add(-time.Minute))
	require.Equal(t, start, *s.EndedAt)
	require.Equal(t, time.Duration(0), s.Duration(start))
}

func TestUserLocalDate(t *testing.T) {
	u := NewUser(42, false, time.Now())
	u.UTCOffsetMinutes = 120

	// 23:30 UTC is already the next local day at +2h.
	utc := time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)
	require.Equal(t, Date{2026, time.March, 3}, u.LocalDate(utc))
}

func TestHolidayCoversHalfOpen(t *testing.T) {
	h := Holiday{
		StartDate: Date{2026, time.July, 6},
		EndDate:   Date{2026, time.July, 10},
	}
	require.True(t, h.Covers(Date{2026, time.July, 6}))
	require.True(t, h.Covers(Date{2026, time.July, 9}))
	require.False(t, h.Covers(Date{2026, time.July, 10}))
	require.False(t, h.Covers(Date{2026, time.July, 5}))
}
