package dispatch_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendazap/dispatcher/pkg/queue"
	"github.com/agendazap/dispatcher/svc/dispatch"
)

type schedulerFixture struct {
	store     *dispatch.MemoryStore
	lock      *dispatch.MemoryLock
	submitter *recordingSubmitter
	resolver  *countingResolver
	scheduler *dispatch.Scheduler
	logs      *logBuffer
}

func newFixture(t *testing.T, store dispatch.Store, mem *dispatch.MemoryStore) *schedulerFixture {
	t.Helper()

	f := &schedulerFixture{
		store:     mem,
		lock:      dispatch.NewMemoryLock(func() time.Time { return tickTime }),
		submitter: &recordingSubmitter{},
		resolver:  &countingResolver{calls: make(map[int64]int), next: mem},
	}
	log, buf := bufferLogger()
	f.logs = buf

	tracker, err := dispatch.NewQuotaTracker(mem, 65)
	require.NoError(t, err)

	f.scheduler, err = dispatch.NewScheduler(store, tracker, f.resolver, f.lock, f.submitter,
		dispatch.WithLocation(brt),
		dispatch.WithLogger(log),
	)
	require.NoError(t, err)
	return f
}

func memoryFixture(t *testing.T, defs ...dispatch.Definition) *schedulerFixture {
	t.Helper()

	mem := dispatch.NewMemoryStore(defs...)
	mem.SetCredentials(7, dispatch.Credentials{Host: "https://api.example.com", APIKey: "k", Instance: "main"})
	return newFixture(t, mem, mem)
}

func TestNewScheduler_Validation(t *testing.T) {
	t.Parallel()

	mem := dispatch.NewMemoryStore()
	tracker, _ := dispatch.NewQuotaTracker(mem, 65)
	lock := dispatch.NewMemoryLock(nil)
	sub := &recordingSubmitter{}

	_, err := dispatch.NewScheduler(nil, tracker, mem, lock, sub)
	assert.ErrorIs(t, err, dispatch.ErrStoreNil)
	_, err = dispatch.NewScheduler(mem, nil, mem, lock, sub)
	assert.ErrorIs(t, err, dispatch.ErrQuotaTrackerNil)
	_, err = dispatch.NewScheduler(mem, tracker, nil, lock, sub)
	assert.ErrorIs(t, err, dispatch.ErrCredentialsNil)
	_, err = dispatch.NewScheduler(mem, tracker, mem, nil, sub)
	assert.ErrorIs(t, err, dispatch.ErrLockerNil)
	_, err = dispatch.NewScheduler(mem, tracker, mem, lock, nil)
	assert.ErrorIs(t, err, dispatch.ErrSubmitterNil)
}

func TestRunTick_QuotaStopsBatch(t *testing.T) {
	t.Parallel()

	f := memoryFixture(t, dueDefinition(1, 7, dispatch.ModeText, 70))

	report := f.scheduler.RunTick(context.Background(), tickTime)

	assert.Equal(t, dispatch.StateDone, report.State)
	assert.NoError(t, report.Err)
	assert.Equal(t, 65, report.Records)
	assert.Equal(t, 65, report.Submitted)
	assert.Len(t, f.store.Records(), 65)

	ops := f.submitter.submitted()
	require.Len(t, ops, 65)
	assert.Equal(t, 64, ops[64].ContactIndex)
	assert.Equal(t, 1, f.logs.count("daily limit reached during batch, remaining contacts dropped"))
}

func TestRunTick_OffsetsAreSubmitted(t *testing.T) {
	t.Parallel()

	f := memoryFixture(t, dueDefinition(1, 7, dispatch.ModeText, 3))

	f.scheduler.RunTick(context.Background(), tickTime)

	ops := f.submitter.submitted()
	assert.Equal(t, []time.Duration{0, 3 * time.Second, 6 * time.Second}, delays(ops))
}

func TestRunTick_DefinitionsShareOwnerQuota(t *testing.T) {
	t.Parallel()

	f := memoryFixture(t,
		dueDefinition(1, 7, dispatch.ModeText, 40),
		dueDefinition(2, 7, dispatch.ModeText, 40),
	)
	for range 10 {
		require.NoError(t, f.store.CreateSendRecord(context.Background(), dispatch.SendRecord{OwnerID: 7, CreatedAt: tickTime}))
	}
	// yesterday's sends do not count
	require.NoError(t, f.store.CreateSendRecord(context.Background(), dispatch.SendRecord{OwnerID: 7, CreatedAt: tickTime.AddDate(0, 0, -1)}))

	report := f.scheduler.RunTick(context.Background(), tickTime)

	assert.Equal(t, 55, report.Records)
	assert.Len(t, f.store.Records(), 66)
}

func TestRunTick_ExhaustedOwnerSkipsDefinition(t *testing.T) {
	t.Parallel()

	f := memoryFixture(t, dueDefinition(1, 7, dispatch.ModeText, 3))
	f.store.SetQuotaPolicy(dispatch.QuotaPolicy{OwnerID: 7, DailyLimit: 0})

	report := f.scheduler.RunTick(context.Background(), tickTime)

	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Records)
	assert.Empty(t, f.submitter.submitted())
}

func TestRunTick_MediaMissing(t *testing.T) {
	t.Parallel()

	f := memoryFixture(t, dueDefinition(1, 7, dispatch.ModeMedia, 5))

	report := f.scheduler.RunTick(context.Background(), tickTime)

	assert.Equal(t, dispatch.StateDone, report.State)
	assert.Empty(t, f.submitter.submitted())
	assert.Empty(t, f.store.Records())
	assert.Equal(t, 1, f.logs.count("definition planned with warnings"))
}

func TestRunTick_BothModeRecordsOncePerContact(t *testing.T) {
	t.Parallel()

	def := dueDefinition(1, 7, dispatch.ModeBoth, 2)
	def.MediaID = mediaID(3)
	f := memoryFixture(t, def)

	report := f.scheduler.RunTick(context.Background(), tickTime)

	assert.Equal(t, 4, report.Submitted)
	assert.Equal(t, 2, report.Records)
}

func TestRunTick_PartialSubmitFailure(t *testing.T) {
	t.Parallel()

	def := dueDefinition(1, 7, dispatch.ModeBoth, 3)
	def.MediaID = mediaID(3)
	f := memoryFixture(t, def)
	f.submitter.fail = func(op dispatch.SendOperation) error {
		switch {
		case op.ContactIndex == 1:
			return errors.New("queue unavailable")
		case op.ContactIndex == 2 && op.Kind == dispatch.OpMedia:
			return errors.New("queue unavailable")
		}
		return nil
	}

	report := f.scheduler.RunTick(context.Background(), tickTime)

	assert.Equal(t, 3, report.Submitted)
	assert.Equal(t, 2, report.Records, "contact without any submission is not recorded")
	assert.Equal(t, 3, f.logs.count("failed to submit send operation"))
}

func TestRunTick_UnconfiguredOwner(t *testing.T) {
	t.Parallel()

	f := memoryFixture(t,
		dueDefinition(1, 8, dispatch.ModeText, 2),
		dueDefinition(2, 8, dispatch.ModeText, 2),
		dueDefinition(3, 7, dispatch.ModeText, 2),
	)

	report := f.scheduler.RunTick(context.Background(), tickTime)

	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 2, report.Records)
	assert.Equal(t, 1, f.resolver.calls[8], "credentials are resolved once per owner per tick")
	assert.Equal(t, 1, f.resolver.calls[7])
}

func TestRunTick_OnlyDueDefinitions(t *testing.T) {
	t.Parallel()

	otherMinute := dueDefinition(2, 7, dispatch.ModeText, 1)
	otherMinute.Time = dispatch.TimeOfDay{Hour: 9, Minute: 31}
	otherDay := dueDefinition(3, 7, dispatch.ModeText, 1)
	otherDay.Dates = []dispatch.Date{{Year: 2025, Month: time.March, Day: 11}}

	f := memoryFixture(t, dueDefinition(1, 7, dispatch.ModeText, 1), otherMinute, otherDay)

	report := f.scheduler.RunTick(context.Background(), tickTime)

	assert.Equal(t, 1, report.Definitions)
	ops := f.submitter.submitted()
	require.Len(t, ops, 1)
	assert.Equal(t, int64(1), ops[0].DefinitionID)
}

func TestRunTick_ConvertsToSchedulerLocation(t *testing.T) {
	t.Parallel()

	f := memoryFixture(t, dueDefinition(1, 7, dispatch.ModeText, 1))

	report := f.scheduler.RunTick(context.Background(), tickTime.UTC())

	assert.Equal(t, "dispatch:tick:202503100930", report.WindowKey)
	assert.Equal(t, 1, report.Records)
}

func TestRunTick_LockContention(t *testing.T) {
	t.Parallel()

	f := memoryFixture(t, dueDefinition(1, 7, dispatch.ModeText, 3))
	key := dispatch.WindowKey(tickTime)
	ok, err := f.lock.Acquire(context.Background(), key, "other-node", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	report := f.scheduler.RunTick(context.Background(), tickTime)

	assert.Equal(t, dispatch.StateSkipped, report.State)
	assert.ErrorIs(t, report.Err, dispatch.ErrLockContention)
	assert.Empty(t, f.submitter.submitted())
	assert.True(t, f.lock.Held(key), "skipped tick must not release a foreign lock")
}

func TestRunTick_ReleasesLock(t *testing.T) {
	t.Parallel()

	f := memoryFixture(t, dueDefinition(1, 7, dispatch.ModeText, 3))

	report := f.scheduler.RunTick(context.Background(), tickTime)

	assert.Equal(t, dispatch.StateDone, report.State)
	assert.False(t, f.lock.Held(report.WindowKey))
}

func TestRunTick_ReleasesLockOnPanic(t *testing.T) {
	t.Parallel()

	f := memoryFixture(t, dueDefinition(1, 7, dispatch.ModeText, 3))
	f.submitter.panic = true

	var report dispatch.TickReport
	require.NotPanics(t, func() {
		report = f.scheduler.RunTick(context.Background(), tickTime)
	})

	require.Error(t, report.Err)
	assert.Contains(t, report.Err.Error(), "queue exploded")
	assert.False(t, f.lock.Held(report.WindowKey))
	assert.Equal(t, 1, f.logs.count("dispatch tick panicked"))
}

type failingStore struct {
	*dispatch.MemoryStore
}

func (failingStore) ListDue(context.Context, dispatch.Date, dispatch.TimeOfDay) ([]dispatch.Definition, error) {
	return nil, errors.New("relation does not exist")
}

func TestRunTick_LoadFailureReleasesLock(t *testing.T) {
	t.Parallel()

	mem := dispatch.NewMemoryStore()
	f := newFixture(t, failingStore{mem}, mem)

	report := f.scheduler.RunTick(context.Background(), tickTime)

	assert.Equal(t, dispatch.StateDone, report.State)
	require.Error(t, report.Err)
	assert.False(t, f.lock.Held(report.WindowKey))
}

// unrecordedStore accepts definitions but cannot persist send records.
type unrecordedStore struct {
	*dispatch.MemoryStore
}

func (unrecordedStore) CreateSendRecord(context.Context, dispatch.SendRecord) error {
	return errors.New("connection reset by peer")
}

func TestRunTick_RecordFailureStopsDefinition(t *testing.T) {
	t.Parallel()

	mem := dispatch.NewMemoryStore(
		dueDefinition(1, 7, dispatch.ModeText, 70),
		dueDefinition(2, 8, dispatch.ModeText, 3),
	)
	mem.SetCredentials(7, dispatch.Credentials{Host: "https://api.example.com", APIKey: "k", Instance: "main"})
	mem.SetCredentials(8, dispatch.Credentials{Host: "https://api.example.com", APIKey: "k", Instance: "other"})
	mem.SetQuotaPolicy(dispatch.QuotaPolicy{OwnerID: 7, DailyLimit: 5})
	f := newFixture(t, unrecordedStore{mem}, mem)

	report := f.scheduler.RunTick(context.Background(), tickTime)

	assert.Equal(t, dispatch.StateDone, report.State)
	assert.Zero(t, report.Records)
	assert.Empty(t, mem.Records())

	// one contact per definition goes out before the failed record stops it
	ops := f.submitter.submitted()
	require.Len(t, ops, 2)
	assert.Equal(t, int64(7), ops[0].OwnerID)
	assert.Equal(t, int64(8), ops[1].OwnerID)
	assert.Equal(t, 2, report.Submitted)
	assert.Equal(t, 2, f.logs.count("failed to record send, stopping definition"))
}

func TestRunTick_SingleTickPerWindow(t *testing.T) {
	t.Parallel()

	const callers = 8

	mem := dispatch.NewMemoryStore(dueDefinition(1, 7, dispatch.ModeText, 3))
	mem.SetCredentials(7, dispatch.Credentials{Host: "h", APIKey: "k", Instance: "i"})
	gated := &gatedStore{MemoryStore: mem, gate: make(chan struct{})}
	f := newFixture(t, gated, mem)

	results := make(chan dispatch.TickReport, callers)
	for range callers {
		go func() {
			results <- f.scheduler.RunTick(context.Background(), tickTime)
		}()
	}

	// Every loser returns while the winner is held inside ListDue.
	states := map[dispatch.TickState]int{}
	for range callers - 1 {
		states[(<-results).State]++
	}
	close(gated.gate)
	states[(<-results).State]++

	assert.Equal(t, callers-1, states[dispatch.StateSkipped])
	assert.Equal(t, 1, states[dispatch.StateDone])
	assert.Len(t, f.submitter.submitted(), 3)
	assert.Len(t, mem.Records(), 3)
}

func TestQueueSubmitter(t *testing.T) {
	t.Parallel()

	_, err := dispatch.NewQueueSubmitter(nil, "dispatch", 3)
	assert.ErrorIs(t, err, dispatch.ErrEnqueuerNil)

	storage := queue.NewMemoryStorage()
	enqueuer, err := queue.NewEnqueuer(storage, queue.WithClock(func() time.Time { return tickTime }))
	require.NoError(t, err)
	submitter, err := dispatch.NewQueueSubmitter(enqueuer, "dispatch", 3)
	require.NoError(t, err)

	ops := dispatch.NewPlanner(0).Plan(dueDefinition(1, 7, dispatch.ModeText, 3)).Operations
	for _, op := range ops {
		require.NoError(t, submitter.Submit(context.Background(), op))
	}

	tasks := storage.Tasks()
	require.Len(t, tasks, 3)
	scheduled := map[time.Time]bool{}
	for _, task := range tasks {
		assert.Equal(t, "dispatch", task.Queue)
		assert.Equal(t, "dispatch.SendOperation", task.TaskName)
		assert.Equal(t, int8(3), task.MaxRetries)
		assert.Equal(t, queue.TaskStatusPending, task.Status)
		scheduled[task.ScheduledAt] = true
	}
	assert.True(t, scheduled[tickTime])
	assert.True(t, scheduled[tickTime.Add(3*time.Second)])
	assert.True(t, scheduled[tickTime.Add(6*time.Second)])
}

func TestWithConfig(t *testing.T) {
	t.Parallel()

	cfg := dispatch.Config{
		LockTTL:           30 * time.Second,
		DefaultDailyLimit: 65,
		MediaOffset:       4 * time.Second,
		Queue:             "dispatch",
		MaxRetries:        3,
		Timezone:          "UTC",
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.UTC, cfg.Location())

	def := dueDefinition(1, 7, dispatch.ModeBoth, 1)
	def.MediaID = mediaID(1)
	def.Time = dispatch.TimeOf(tickTime.UTC())
	def.Dates = []dispatch.Date{dispatch.DateOf(tickTime.UTC())}

	mem := dispatch.NewMemoryStore(def)
	mem.SetCredentials(7, dispatch.Credentials{})
	tracker, _ := dispatch.NewQuotaTracker(mem, cfg.DefaultDailyLimit)
	sub := &recordingSubmitter{}
	s, err := dispatch.NewScheduler(mem, tracker, mem, dispatch.NewMemoryLock(nil), sub,
		dispatch.WithConfig(cfg),
		dispatch.WithLogger(slog.New(slog.DiscardHandler)),
	)
	require.NoError(t, err)

	report := s.RunTick(context.Background(), tickTime)
	assert.Equal(t, "dispatch:tick:202503101230", report.WindowKey)
	assert.Equal(t, []time.Duration{0, 4 * time.Second}, delays(sub.submitted()))
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	base := dispatch.Config{LockTTL: 50 * time.Second, Queue: "dispatch", MaxRetries: 3, Timezone: "UTC"}

	bad := base
	bad.Timezone = "Mars/Olympus_Mons"
	assert.ErrorIs(t, bad.Validate(), dispatch.ErrInvalidTimezone)

	bad = base
	bad.LockTTL = 2 * time.Minute
	assert.Error(t, bad.Validate())

	bad = base
	bad.Queue = ""
	assert.Error(t, bad.Validate())

	assert.NoError(t, base.Validate())
}
