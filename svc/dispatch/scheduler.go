package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agendazap/dispatcher/pkg/logger"
)

// Store is the message store as seen by the scheduler.
type Store interface {
	// ListDue returns definitions scheduled for day at the given hour and minute.
	ListDue(ctx context.Context, day Date, at TimeOfDay) ([]Definition, error)
	CreateSendRecord(ctx context.Context, rec SendRecord) error
}

// CredentialResolver returns ErrConfigurationMissing for owners without an
// active instance.
type CredentialResolver interface {
	ResolveCredentials(ctx context.Context, ownerID int64) (Credentials, error)
}

// Submitter hands an operation to the asynchronous worker pool.
type Submitter interface {
	Submit(ctx context.Context, op SendOperation) error
}

// TickState is the lifecycle of one tick.
type TickState string

const (
	StateLockPending TickState = "lock_pending"
	StateLocked      TickState = "locked"
	StateLoading     TickState = "loading"
	StateDispatching TickState = "dispatching"
	StateDone        TickState = "done"
	StateSkipped     TickState = "skipped"
)

// TickReport summarises a tick. It is informational only.
type TickReport struct {
	State       TickState
	WindowKey   string
	Definitions int
	Submitted   int
	Records     int
	Skipped     int
	Err         error
}

// Scheduler runs the minute tick: lock the window, load due definitions,
// fan them out under the owner's quota and submit every operation.
type Scheduler struct {
	store     Store
	quota     *QuotaTracker
	creds     CredentialResolver
	locker    Locker
	submitter Submitter
	planner   *Planner

	lockTTL        time.Duration
	releaseTimeout time.Duration
	loc            *time.Location
	log            *slog.Logger
}

// NewScheduler wires a scheduler from its collaborators.
func NewScheduler(store Store, quota *QuotaTracker, creds CredentialResolver, locker Locker, submitter Submitter, opts ...SchedulerOption) (*Scheduler, error) {
	switch {
	case store == nil:
		return nil, ErrStoreNil
	case quota == nil:
		return nil, ErrQuotaTrackerNil
	case creds == nil:
		return nil, ErrCredentialsNil
	case locker == nil:
		return nil, ErrLockerNil
	case submitter == nil:
		return nil, ErrSubmitterNil
	}

	s := &Scheduler{
		store:          store,
		quota:          quota,
		creds:          creds,
		locker:         locker,
		submitter:      submitter,
		planner:        NewPlanner(DefaultMediaOffset),
		lockTTL:        DefaultLockTTL,
		releaseTimeout: 5 * time.Second,
		loc:            time.Local,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("dispatch.scheduler"))
	return s, nil
}

// RunTick executes one tick for now's minute in the scheduler's location.
// It never returns an error; failures are logged and reflected in the report.
// The window lock is released on every path, panics included.
func (s *Scheduler) RunTick(ctx context.Context, now time.Time) (report TickReport) {
	now = now.In(s.loc)
	key := WindowKey(now)
	token := uuid.NewString()
	log := s.log.With(logger.WindowKey(key))
	report = TickReport{State: StateLockPending, WindowKey: key}

	acquired, err := s.locker.Acquire(ctx, key, token, s.lockTTL)
	if err != nil {
		log.ErrorContext(ctx, "failed to acquire dispatch lock", logger.Error(err))
		report.State, report.Err = StateSkipped, err
		return report
	}
	if !acquired {
		log.WarnContext(ctx, "dispatch window already locked, skipping tick")
		report.State, report.Err = StateSkipped, ErrLockContention
		return report
	}
	report.State = StateLocked
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			report.Err = fmt.Errorf("tick panic: %v", r)
			log.ErrorContext(ctx, "dispatch tick panicked", slog.Any("panic", r))
		}

		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.releaseTimeout)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			log.ErrorContext(ctx, "failed to release dispatch lock", logger.Error(err))
		}

		log.InfoContext(ctx, "dispatch tick finished",
			slog.String("state", string(report.State)),
			slog.Int("definitions", report.Definitions),
			slog.Int("submitted", report.Submitted),
			slog.Int("records", report.Records),
			slog.Int("skipped", report.Skipped),
			logger.Duration(time.Since(started)),
		)
	}()

	report.State = StateLoading
	defs, err := s.store.ListDue(ctx, DateOf(now), TimeOf(now))
	if err != nil {
		log.ErrorContext(ctx, "failed to load due definitions", logger.Error(err))
		report.State, report.Err = StateDone, err
		return report
	}
	report.Definitions = len(defs)
	log.InfoContext(ctx, "due definitions loaded", slog.Int("count", len(defs)))

	report.State = StateDispatching
	configured := make(map[int64]error)
	for _, def := range defs {
		s.dispatchDefinition(ctx, def, now, configured, &report)
	}

	report.State = StateDone
	return report
}

func (s *Scheduler) dispatchDefinition(ctx context.Context, def Definition, now time.Time, configured map[int64]error, report *TickReport) {
	log := s.log.With(logger.DefinitionID(def.ID), logger.Owner(def.OwnerID))

	if err := s.ownerConfigured(ctx, def.OwnerID, configured); err != nil {
		if errors.Is(err, ErrConfigurationMissing) {
			log.WarnContext(ctx, "owner has no active configuration, definition skipped")
		} else {
			log.ErrorContext(ctx, "failed to resolve credentials, definition skipped", logger.Error(err))
		}
		report.Skipped++
		return
	}

	remaining, err := s.quota.Remaining(ctx, def.OwnerID, now)
	if err != nil {
		log.ErrorContext(ctx, "failed to read quota, definition skipped", logger.Error(err))
		report.Skipped++
		return
	}
	if remaining <= 0 {
		log.WarnContext(ctx, "daily limit reached, definition skipped", logger.Error(ErrQuotaExceeded))
		report.Skipped++
		return
	}

	plan := s.planner.Plan(def)
	for _, w := range plan.Warnings {
		log.WarnContext(ctx, "definition planned with warnings", logger.Error(w))
	}

	for _, ops := range plan.Contacts() {
		remaining, err := s.quota.Remaining(ctx, def.OwnerID, now)
		if err != nil {
			log.ErrorContext(ctx, "failed to read quota, stopping definition", logger.Error(err))
			return
		}
		if remaining <= 0 {
			log.WarnContext(ctx, "daily limit reached during batch, remaining contacts dropped",
				slog.Int("contact_index", ops[0].ContactIndex),
				logger.Error(ErrQuotaExceeded),
			)
			return
		}

		submitted := 0
		for _, op := range ops {
			if err := s.submitter.Submit(ctx, op); err != nil {
				log.ErrorContext(ctx, "failed to submit send operation",
					logger.Recipient(op.Recipient),
					logger.CorrelationID(op.CorrelationID),
					logger.Error(err),
				)
				continue
			}
			submitted++
		}
		if submitted == 0 {
			continue
		}
		report.Submitted += submitted

		rec := SendRecord{
			OwnerID:     def.OwnerID,
			Description: fmt.Sprintf("Scheduled %d - Contact: %s", def.ID, ops[0].Recipient),
			CreatedAt:   now,
		}
		// Unrecorded contacts are invisible to the quota check.
		if err := s.store.CreateSendRecord(ctx, rec); err != nil {
			log.ErrorContext(ctx, "failed to record send, stopping definition",
				logger.Recipient(ops[0].Recipient),
				logger.Error(err),
			)
			return
		}
		report.Records++
	}
}

// ownerConfigured resolves credentials once per owner per tick.
func (s *Scheduler) ownerConfigured(ctx context.Context, ownerID int64, cache map[int64]error) error {
	if err, ok := cache[ownerID]; ok {
		return err
	}
	_, err := s.creds.ResolveCredentials(ctx, ownerID)
	cache[ownerID] = err
	return err
}
