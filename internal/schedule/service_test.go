package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// monday is a fixed reference Monday; all fixture times hang off it.
var monday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func at(day time.Time, h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func window(day time.Weekday, startHour, endHour int) WeeklyWindow {
	return WeeklyWindow{Day: day, StartMinute: startHour * 60, EndMinute: endHour * 60}
}

// inProcessLocker satisfies the provider-lock contract without Redis.
type inProcessLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newInProcessLocker() *inProcessLocker {
	return &inProcessLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *inProcessLocker) WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[providerID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[providerID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

type testEnv struct {
	svc      *Service
	repo     *MemoryRepository
	provider Provider
	alice    Patient
	bob      Patient
}

func newTestEnv(t *testing.T, windows ...WeeklyWindow) *testEnv {
	t.Helper()
	if len(windows) == 0 {
		windows = []WeeklyWindow{window(time.Monday, 9, 12)}
	}

	repo := NewMemoryRepository()
	provider := Provider{
		ID:                  uuid.New(),
		Name:                "Dr. Lang",
		SlotDurationMinutes: 30,
		WeeklyWindows:       windows,
	}
	repo.AddProvider(provider)

	alice := Patient{ID: uuid.New(), Name: "Alice"}
	bob := Patient{ID: uuid.New(), Name: "Bob"}
	repo.AddPatient(alice)
	repo.AddPatient(bob)

	slots := NewSlotCalculator(repo, time.UTC)
	svc := NewService(repo, newInProcessLocker(), slots, zerolog.Nop())

	return &testEnv{svc: svc, repo: repo, provider: provider, alice: alice, bob: bob}
}

func (e *testEnv) seedAppointment(t *testing.T, patientID uuid.UUID, start, end time.Time, status Status) *Appointment {
	t.Helper()
	a := &Appointment{
		ID:             uuid.New(),
		ProviderID:     e.provider.ID,
		PatientID:      patientID,
		ScheduledStart: start,
		ScheduledEnd:   end,
		Status:         status,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, e.repo.CreateAppointment(context.Background(), a))
	return a
}

// requireNoConfirmedOverlap asserts the global invariant: no two confirmed
// appointments for the provider overlap.
func (e *testEnv) requireNoConfirmedOverlap(t *testing.T) {
	t.Helper()
	confirmed, err := e.repo.ListByProviderAndStatus(context.Background(), e.provider.ID, StatusConfirmed)
	require.NoError(t, err)
	for i := range confirmed {
		for j := i + 1; j < len(confirmed); j++ {
			require.False(t, Overlaps(
				confirmed[i].ScheduledStart, confirmed[i].ScheduledEnd,
				confirmed[j].ScheduledStart, confirmed[j].ScheduledEnd,
			), "confirmed appointments %s and %s overlap", confirmed[i].ID, confirmed[j].ID)
		}
	}
}

func TestBook_CreatesPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.svc.Book(ctx, env.alice.ID, env.provider.ID, at(monday, 9, 0), "checkup")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, a.Status)
	assert.True(t, a.ScheduledStart.Equal(at(monday, 9, 0)))
	assert.True(t, a.ScheduledEnd.Equal(at(monday, 9, 30)))
	assert.Equal(t, "checkup", a.Reason)
	assert.Nil(t, a.ProposedStart)
	assert.Nil(t, a.ProposedEnd)
}

func TestBook_OutsideWorkingHours(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Before the window opens.
	_, err := env.svc.Book(ctx, env.alice.ID, env.provider.ID, at(monday, 8, 0), "")
	require.ErrorIs(t, err, ErrSlotUnavailable)

	// Straddling the window end: 11:45 + 30min spills past 12:00.
	_, err = env.svc.Book(ctx, env.alice.ID, env.provider.ID, at(monday, 11, 45), "")
	require.ErrorIs(t, err, ErrSlotUnavailable)

	// No window on Tuesday.
	_, err = env.svc.Book(ctx, env.alice.ID, env.provider.ID, at(monday.AddDate(0, 0, 1), 9, 0), "")
	require.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBook_ConfirmedOverlapBlocks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedAppointment(t, env.bob.ID, at(monday, 9, 0), at(monday, 9, 30), StatusConfirmed)

	_, err := env.svc.Book(ctx, env.alice.ID, env.provider.ID, at(monday, 9, 0), "")
	require.ErrorIs(t, err, ErrSlotUnavailable)

	// Adjacent slot is fine: intervals touch but do not overlap.
	_, err = env.svc.Book(ctx, env.alice.ID, env.provider.ID, at(monday, 9, 30), "")
	require.NoError(t, err)
}

func TestBook_UnknownIDs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Book(ctx, uuid.New(), env.provider.ID, at(monday, 9, 0), "")
	require.ErrorIs(t, err, ErrPatientNotFound)

	_, err = env.svc.Book(ctx, env.alice.ID, uuid.New(), at(monday, 9, 0), "")
	require.ErrorIs(t, err, ErrProviderNotFound)
}

// Two patients may hold pending requests for the same slot; the provider's
// first confirm wins and the second collides.
func TestConfirm_Arbitration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.Book(ctx, env.alice.ID, env.provider.ID, at(monday, 9, 0), "")
	require.NoError(t, err)
	second, err := env.svc.Book(ctx, env.bob.ID, env.provider.ID, at(monday, 9, 0), "")
	require.NoError(t, err, "pending requests do not reserve the slot")

	confirmed, err := env.svc.Confirm(ctx, env.provider.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	_, err = env.svc.Confirm(ctx, env.provider.ID, second.ID)
	require.ErrorIs(t, err, ErrConflict)

	// The loser is still pending, ready for an override or a reject.
	got, err := env.svc.GetAppointment(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	env.requireNoConfirmedOverlap(t)
}

func TestConfirm_Forbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.svc.Book(ctx, env.alice.ID, env.provider.ID, at(monday, 9, 0), "")
	require.NoError(t, err)

	_, err = env.svc.Confirm(ctx, uuid.New(), a.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestConfirm_AlreadyConfirmed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.svc.Book(ctx, env.alice.ID, env.provider.ID, at(monday, 9, 0), "")
	require.NoError(t, err)
	_, err = env.svc.Confirm(ctx, env.provider.ID, a.ID)
	require.NoError(t, err)

	_, err = env.svc.Confirm(ctx, env.provider.ID, a.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestReject_NotIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.svc.Book(ctx, env.alice.ID, env.provider.ID, at(monday, 9, 0), "")
	require.NoError(t, err)

	rejected, err := env.svc.Reject(ctx, env.provider.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)

	_, err = env.svc.Reject(ctx, env.provider.ID, a.ID)
	require.ErrorIs(t, err, ErrInvalidState, "rejecting twice must fail, not silently succeed")
}

func TestRecordVisit_OverwritesTimes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.seedAppointment(t, env.alice.ID, at(monday, 9, 0), at(monday, 9, 30), StatusConfirmed)

	actualStart := at(monday, 9, 5)
	actualEnd := at(monday, 9, 50)
	visited, err := env.svc.RecordVisit(ctx, env.provider.ID, a.ID, &actualStart, &actualEnd)
	require.NoError(t, err)

	assert.Equal(t, StatusVisited, visited.Status)
	assert.True(t, visited.ScheduledStart.Equal(actualStart))
	assert.True(t, visited.ScheduledEnd.Equal(actualEnd))
}

func TestRecordVisit_InvertedIntervalRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.seedAppointment(t, env.alice.ID, at(monday, 9, 0), at(monday, 9, 30), StatusConfirmed)

	badEnd := at(monday, 8, 0)
	_, err := env.svc.RecordVisit(ctx, env.provider.ID, a.ID, nil, &badEnd)
	require.ErrorIs(t, err, ErrInvalidState)

	// Nothing was committed.
	got, err := env.svc.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.True(t, got.ScheduledEnd.Equal(at(monday, 9, 30)))
}

func TestAcceptProposal_CommitsProposedTimes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.seedAppointment(t, env.alice.ID, at(monday, 9, 0), at(monday, 9, 30), StatusConfirmed)
	stored, err := env.repo.GetAppointmentByID(ctx, a.ID)
	require.NoError(t, err)
	stored.ForcePropose(at(monday, 10, 0), at(monday, 10, 30), time.Now().UTC())
	require.NoError(t, env.repo.UpdateAppointment(ctx, stored))

	accepted, err := env.svc.AcceptProposal(ctx, env.alice.ID, a.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, accepted.Status)
	assert.True(t, accepted.ScheduledStart.Equal(at(monday, 10, 0)))
	assert.True(t, accepted.ScheduledEnd.Equal(at(monday, 10, 30)))
	assert.Nil(t, accepted.ProposedStart, "proposal cleared after acceptance")
	assert.Nil(t, accepted.ProposedEnd)
	require.NotNil(t, accepted.RescheduledFrom)
	assert.True(t, accepted.RescheduledFrom.Equal(at(monday, 9, 0)))
}

func TestRejectProposal_CancelsAndLocksOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.seedAppointment(t, env.alice.ID, at(monday, 9, 0), at(monday, 9, 30), StatusConfirmed)
	stored, err := env.repo.GetAppointmentByID(ctx, a.ID)
	require.NoError(t, err)
	stored.ForcePropose(at(monday, 10, 0), at(monday, 10, 30), time.Now().UTC())
	require.NoError(t, env.repo.UpdateAppointment(ctx, stored))

	cancelled, err := env.svc.RejectProposal(ctx, env.alice.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.ProposedStart)
	assert.Nil(t, cancelled.ProposedEnd)

	// Accepting after rejection is a stale-UI mistake, not a no-op.
	_, err = env.svc.AcceptProposal(ctx, env.alice.ID, a.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestProposalOps_RequireProposedState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.svc.Book(ctx, env.alice.ID, env.provider.ID, at(monday, 9, 0), "")
	require.NoError(t, err)

	_, err = env.svc.AcceptProposal(ctx, env.alice.ID, a.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = env.svc.RejectProposal(ctx, env.alice.ID, a.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestProposalOps_PatientScoped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.seedAppointment(t, env.alice.ID, at(monday, 9, 0), at(monday, 9, 30), StatusRescheduleProposed)

	_, err := env.svc.AcceptProposal(ctx, env.bob.ID, a.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestListPatientAppointments_StatusFilter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedAppointment(t, env.alice.ID, at(monday, 9, 0), at(monday, 9, 30), StatusConfirmed)
	env.seedAppointment(t, env.alice.ID, at(monday, 10, 0), at(monday, 10, 30), StatusRejected)
	env.seedAppointment(t, env.bob.ID, at(monday, 11, 0), at(monday, 11, 30), StatusConfirmed)

	all, err := env.svc.ListPatientAppointments(ctx, env.alice.ID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	confirmed, err := env.svc.ListPatientAppointments(ctx, env.alice.ID, []Status{StatusConfirmed})
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, StatusConfirmed, confirmed[0].Status)
}

func TestGetAppointment_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.GetAppointment(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestMemoryRepository_StaleWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.seedAppointment(t, env.alice.ID, at(monday, 9, 0), at(monday, 9, 30), StatusPending)

	first, err := env.repo.GetAppointmentByID(ctx, a.ID)
	require.NoError(t, err)
	second, err := env.repo.GetAppointmentByID(ctx, a.ID)
	require.NoError(t, err)

	first.Reason = "updated"
	require.NoError(t, env.repo.UpdateAppointment(ctx, first))

	second.Reason = "lost update"
	require.ErrorIs(t, env.repo.UpdateAppointment(ctx, second), ErrStaleAppointment)
}
