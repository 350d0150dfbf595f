package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// An overrunning visit pushes every later appointment of the provider into
// RESCHEDULE_PROPOSED, compacted back-to-back from the actual end.
func TestRecordVisit_CascadesDelay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	visit := env.seedAppointment(t, env.alice.ID, at(monday, 9, 0), at(monday, 9, 30), StatusConfirmed)
	b := env.seedAppointment(t, env.bob.ID, at(monday, 10, 15), at(monday, 10, 45), StatusConfirmed)
	// A long appointment: its proposal still uses the provider's 30-minute
	// slot granularity, not its own length.
	c := env.seedAppointment(t, env.alice.ID, at(monday, 11, 0), at(monday, 12, 0), StatusConfirmed)

	actualEnd := at(monday, 10, 0)
	_, err := env.svc.RecordVisit(ctx, env.provider.ID, visit.ID, nil, &actualEnd)
	require.NoError(t, err)

	gotB, err := env.svc.GetAppointment(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRescheduleProposed, gotB.Status)
	require.NotNil(t, gotB.ProposedStart)
	assert.True(t, gotB.ProposedStart.Equal(at(monday, 10, 0)))
	assert.True(t, gotB.ProposedEnd.Equal(at(monday, 10, 30)))
	require.NotNil(t, gotB.RescheduledFrom)
	assert.True(t, gotB.RescheduledFrom.Equal(at(monday, 10, 15)))

	gotC, err := env.svc.GetAppointment(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRescheduleProposed, gotC.Status)
	assert.True(t, gotC.ProposedStart.Equal(at(monday, 10, 30)))
	assert.True(t, gotC.ProposedEnd.Equal(at(monday, 11, 0)),
		"proposal shrinks the 60-minute appointment to slot granularity")

	var proposed int
	for _, ev := range env.repo.Events() {
		if ev.EventType == EventRescheduleProposed {
			proposed++
		}
	}
	assert.Equal(t, 2, proposed)
}

// The cascade only touches appointments starting strictly after the seed
// instant; an appointment ending exactly at it is untouched.
func TestPropagation_LeavesEarlierAppointmentsAlone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	visit := env.seedAppointment(t, env.alice.ID, at(monday, 9, 0), at(monday, 9, 30), StatusConfirmed)
	earlier := env.seedAppointment(t, env.bob.ID, at(monday, 9, 30), at(monday, 10, 0), StatusConfirmed)

	actualEnd := at(monday, 10, 0)
	_, err := env.svc.RecordVisit(ctx, env.provider.ID, visit.ID, nil, &actualEnd)
	require.NoError(t, err)

	got, err := env.svc.GetAppointment(ctx, earlier.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.True(t, got.ScheduledStart.Equal(at(monday, 9, 30)))
}

// The cascade does not discriminate by status: even a rejected appointment
// downstream of the shift receives a proposal.
func TestPropagation_HitsAnyStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	visit := env.seedAppointment(t, env.alice.ID, at(monday, 9, 0), at(monday, 9, 30), StatusConfirmed)
	rejected := env.seedAppointment(t, env.bob.ID, at(monday, 10, 30), at(monday, 11, 0), StatusRejected)

	actualEnd := at(monday, 10, 0)
	_, err := env.svc.RecordVisit(ctx, env.provider.ID, visit.ID, nil, &actualEnd)
	require.NoError(t, err)

	got, err := env.svc.GetAppointment(ctx, rejected.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRescheduleProposed, got.Status)
	assert.True(t, got.ProposedStart.Equal(at(monday, 10, 0)))
}

func TestExtend_CascadesNewEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.seedAppointment(t, env.alice.ID, at(monday, 9, 0), at(monday, 9, 30), StatusConfirmed)
	later := env.seedAppointment(t, env.bob.ID, at(monday, 10, 30), at(monday, 11, 0), StatusConfirmed)

	extended, err := env.svc.Extend(ctx, env.provider.ID, a.ID, 45)
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, extended.Status, "extend does not change status")
	assert.True(t, extended.ScheduledEnd.Equal(at(monday, 10, 15)))

	got, err := env.svc.GetAppointment(ctx, later.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRescheduleProposed, got.Status)
	assert.True(t, got.ProposedStart.Equal(at(monday, 10, 15)))
	assert.True(t, got.ProposedEnd.Equal(at(monday, 10, 45)))
}

func TestExtend_NegativeBeyondStartRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.seedAppointment(t, env.alice.ID, at(monday, 9, 0), at(monday, 9, 30), StatusConfirmed)

	_, err := env.svc.Extend(ctx, env.provider.ID, a.ID, -30)
	require.ErrorIs(t, err, ErrInvalidState)
}

// Overriding a confirm bumps each conflicting pending request to the next
// free slot after the confirmed end.
func TestConfirmOverride_ProposesNextFreeSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	winner, err := env.svc.Book(ctx, env.alice.ID, env.provider.ID, at(monday, 9, 0), "")
	require.NoError(t, err)
	loser, err := env.svc.Book(ctx, env.bob.ID, env.provider.ID, at(monday, 9, 0), "")
	require.NoError(t, err)

	confirmed, err := env.svc.ConfirmOverride(ctx, env.provider.ID, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	got, err := env.svc.GetAppointment(ctx, loser.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRescheduleProposed, got.Status)
	require.NotNil(t, got.ProposedStart)
	assert.True(t, got.ProposedStart.Equal(at(monday, 9, 30)))
	assert.True(t, got.ProposedEnd.Equal(at(monday, 10, 0)))
	require.NotNil(t, got.RescheduledFrom)
	assert.True(t, got.RescheduledFrom.Equal(at(monday, 9, 0)))

	env.requireNoConfirmedOverlap(t)
}

func TestConfirmOverride_NonConflictingPendingUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	winner, err := env.svc.Book(ctx, env.alice.ID, env.provider.ID, at(monday, 9, 0), "")
	require.NoError(t, err)
	unrelated, err := env.svc.Book(ctx, env.bob.ID, env.provider.ID, at(monday, 11, 0), "")
	require.NoError(t, err)

	_, err = env.svc.ConfirmOverride(ctx, env.provider.ID, winner.ID)
	require.NoError(t, err)

	got, err := env.svc.GetAppointment(ctx, unrelated.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Nil(t, got.ProposedStart)
}

// When the bounded forward search finds no free slot, the conflicting request
// stays pending instead of receiving an impossible proposal.
func TestConfirmOverride_NoFreeSlotLeavesPending(t *testing.T) {
	env := newTestEnv(t, WeeklyWindow{Day: time.Monday, StartMinute: 9 * 60, EndMinute: 9*60 + 30})
	ctx := context.Background()

	winner, err := env.svc.Book(ctx, env.alice.ID, env.provider.ID, at(monday, 9, 0), "")
	require.NoError(t, err)
	loser, err := env.svc.Book(ctx, env.bob.ID, env.provider.ID, at(monday, 9, 0), "")
	require.NoError(t, err)

	_, err = env.svc.ConfirmOverride(ctx, env.provider.ID, winner.ID)
	require.NoError(t, err)

	got, err := env.svc.GetAppointment(ctx, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Nil(t, got.ProposedStart)
}

func TestConfirmOverride_RequiresPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.seedAppointment(t, env.alice.ID, at(monday, 9, 0), at(monday, 9, 30), StatusConfirmed)

	_, err := env.svc.ConfirmOverride(ctx, env.provider.ID, a.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}
