// Package workout runs a single in-progress workout: the session state
// machine, the session, exercise and rest timers, the set ledger and the
// recovery of a session left live by an earlier process.
package workout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/pubsub"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultRemoteTimeout = 10 * time.Second
	DefaultRest          = 90 * time.Second
	DefaultHistoryLimit  = 20

	sessionDateLayout = "Jan 2, 2006"
)

// Config tunes an Engine. Zero fields take the package defaults.
type Config struct {
	Clock         clockwork.Clock
	RemoteTimeout time.Duration
	DefaultRest   time.Duration
	RestPresets   []RestPreset
	HistoryLimit  int
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = DefaultRemoteTimeout
	}
	if c.DefaultRest <= 0 {
		c.DefaultRest = DefaultRest
	}
	if len(c.RestPresets) == 0 {
		c.RestPresets = DefaultRestPresets
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	return c
}

// state is everything the engine knows about the live session. It is only
// read or written with Engine.mu held, and every change is applied to the
// whole value before the lock is released.
type state struct {
	session *models.WorkoutSession // nil means NONE
	routine *models.Routine

	clock      Stopwatch
	exerciseID uuid.UUID
	exercise   Stopwatch
	rest       RestTimer
	ledger     Ledger
}

func (st *state) live() bool { return st.session != nil }

func (st *state) active() bool {
	return st.session != nil && st.session.Status == models.StatusActive
}

// Engine is the workout session engine for one user. Construct one per user
// with NewEngine; it holds no package-level state.
type Engine struct {
	store      Store
	selections SelectionCache
	userID     int
	cfg        Config
	log        *slog.Logger
	broker     *pubsub.Broker[Snapshot]

	mu       sync.Mutex
	st       state
	inFlight bool
	history  []models.WorkoutSession
}

// NewEngine creates an engine in the NONE state. Call Load before anything
// else so a session left live by an earlier run is recovered.
func NewEngine(store Store, selections SelectionCache, userID int, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:      store,
		selections: selections,
		userID:     userID,
		cfg:        cfg.withDefaults(),
		log:        log.With("user_id", userID),
		broker:     pubsub.NewBroker[Snapshot](),
	}
}

// UserID returns the user this engine serves.
func (e *Engine) UserID() int { return e.userID }

// Subscribe streams a snapshot on every transition, ledger change and tick
// until ctx is done. The current snapshot is delivered first.
func (e *Engine) Subscribe(ctx context.Context) <-chan pubsub.Event[Snapshot] {
	return e.broker.Subscribe(ctx)
}

// Close stops all subscriptions.
func (e *Engine) Close() {
	e.broker.Close()
}

// Snapshot returns the current view of the engine.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.snapshot(e.cfg.Clock.Now())
}

// Routine returns the routine of the live session, or nil.
func (e *Engine) Routine() *models.Routine {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.routine
}

// History returns the most recently fetched session history.
func (e *Engine) History() []models.WorkoutSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.WorkoutSession(nil), e.history...)
}

// RestPresets lists the configured quick-pick rest durations.
func (e *Engine) RestPresets() []RestPreset {
	return append([]RestPreset(nil), e.cfg.RestPresets...)
}

// DefaultRest is the countdown started after each recorded set.
func (e *Engine) DefaultRest() time.Duration { return e.cfg.DefaultRest }

// begin reserves the engine for one remote-backed operation. check runs
// against the current state under the lock; a non-nil error aborts without
// reserving. On success the caller must end with commit or abort.
func (e *Engine) begin(check func(st *state, now time.Time) error) (state, time.Time, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		return state{}, time.Time{}, ErrOperationInProgress
	}
	now := e.cfg.Clock.Now()
	if check != nil {
		if err := check(&e.st, now); err != nil {
			return state{}, time.Time{}, err
		}
	}
	e.inFlight = true
	return e.st, now, nil
}

// commit applies a confirmed change to the current state, releases the
// reservation and broadcasts the result.
func (e *Engine) commit(ev pubsub.EventType, apply func(st *state)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.st
	apply(&next)
	e.st = next
	e.inFlight = false
	e.publishLocked(ev)
}

func (e *Engine) abort() {
	e.mu.Lock()
	e.inFlight = false
	e.mu.Unlock()
}

func (e *Engine) publishLocked(ev pubsub.EventType) {
	e.broker.Publish(ev, e.st.snapshot(e.cfg.Clock.Now()))
}

// call runs one remote store request under the configured timeout.
func (e *Engine) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RemoteTimeout)
	defer cancel()
	return fn(ctx)
}

func requireLive(st *state, _ time.Time) error {
	if !st.live() {
		return ErrNoActiveSession
	}
	return nil
}

func requireActive(st *state, _ time.Time) error {
	if !st.live() {
		return ErrNoActiveSession
	}
	if !st.active() {
		return ErrSessionNotActive
	}
	return nil
}

// Start begins a session against a routine. nameOverride replaces the
// default "<routine> - <date>" label when non-empty.
//
// When the store already holds a live session the engine reconciles with it
// as Load does: an orphan is repaired and the start goes ahead, and a session
// matching this request (an earlier start whose reply was lost) is adopted.
func (e *Engine) Start(ctx context.Context, routineID uuid.UUID, nameOverride string) (*models.WorkoutSession, error) {
	s, err := e.start(ctx, routineID, nameOverride)
	if !errors.Is(err, errStoredSessionLive) {
		return s, err
	}

	if err := e.Load(ctx); err != nil {
		return nil, err
	}
	e.mu.Lock()
	live, routine := e.st.session.Clone(), e.st.routine
	e.mu.Unlock()

	if live == nil {
		s, err := e.start(ctx, routineID, nameOverride)
		if errors.Is(err, errStoredSessionLive) {
			return nil, ErrSessionLive
		}
		return s, err
	}
	if live.Status != models.StatusActive || live.RoutineID == nil || *live.RoutineID != routineID ||
		live.Name != sessionName(routine, nameOverride, live.StartedAt) {
		return nil, ErrSessionLive
	}

	e.log.Info("adopted session already started in the store", "session_id", live.ID, "name", live.Name)
	e.clearSelection(ctx)
	return live, nil
}

func (e *Engine) start(ctx context.Context, routineID uuid.UUID, nameOverride string) (*models.WorkoutSession, error) {
	_, now, err := e.begin(func(st *state, _ time.Time) error {
		if st.live() {
			return ErrSessionLive
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var (
		remoteLive *models.WorkoutSession
		routine    *models.Routine
	)
	if err := e.call(ctx, func(ctx context.Context) error {
		var err error
		remoteLive, err = e.store.ActiveSession(ctx, e.userID)
		return err
	}); err != nil {
		e.abort()
		return nil, persistErr("check active session", err)
	}
	if remoteLive != nil {
		e.abort()
		return nil, errStoredSessionLive
	}

	if err := e.call(ctx, func(ctx context.Context) error {
		var err error
		routine, err = e.store.GetRoutine(ctx, e.userID, routineID)
		return err
	}); err != nil {
		e.abort()
		return nil, persistErr("get routine", err)
	}
	if len(routine.Exercises) == 0 {
		e.abort()
		return nil, fmt.Errorf("%w: %s", ErrInvalidRoutine, routine.Name)
	}

	rid := routine.ID
	session := &models.WorkoutSession{
		UserID:    e.userID,
		RoutineID: &rid,
		Name:      sessionName(routine, nameOverride, now),
		Status:    models.StatusActive,
		StartedAt: now,
	}
	if err := e.call(ctx, func(ctx context.Context) error {
		return e.store.CreateSession(ctx, session)
	}); err != nil {
		e.abort()
		if errors.Is(err, ErrSessionLive) {
			return nil, errStoredSessionLive
		}
		return nil, persistErr("start session", err)
	}

	first := firstExercise(routine)
	e.commit(EventStarted, func(st *state) {
		*st = state{
			session:    session.Clone(),
			routine:    routine,
			clock:      NewStopwatch(now),
			exerciseID: first,
			exercise:   NewStopwatch(now),
		}
	})
	e.log.Info("session started", "session_id", session.ID, "routine_id", routine.ID, "name", session.Name)
	e.clearSelection(ctx)
	return session.Clone(), nil
}

func sessionName(routine *models.Routine, override string, startedAt time.Time) string {
	if name := strings.TrimSpace(override); name != "" {
		return name
	}
	return fmt.Sprintf("%s - %s", routine.Name, startedAt.Format(sessionDateLayout))
}

func (e *Engine) clearSelection(ctx context.Context) {
	if e.selections == nil {
		return
	}
	if err := e.selections.Clear(ctx, e.userID); err != nil {
		e.log.Warn("clearing selected routine", "error", err)
	}
}

// Pause freezes the session clock, the exercise timer and the rest timer.
// Pausing an already paused session succeeds without doing anything.
func (e *Engine) Pause(ctx context.Context) error {
	noop := false
	cur, now, err := e.begin(func(st *state, _ time.Time) error {
		if !st.live() {
			return ErrNoActiveSession
		}
		noop = st.session.Status == models.StatusPaused
		if noop {
			return errNoop
		}
		return nil
	})
	if noop {
		return nil
	}
	if err != nil {
		return err
	}

	update := cur.session.Update()
	update.Status = models.StatusPaused
	update.PausedAt = &now
	if err := e.call(ctx, func(ctx context.Context) error {
		return e.store.UpdateSession(ctx, e.userID, cur.session.ID, update)
	}); err != nil {
		e.abort()
		return persistErr("pause session", err)
	}

	e.commit(EventPaused, func(st *state) {
		s := st.session.Clone()
		s.Status = models.StatusPaused
		s.PausedAt = &now
		st.session = s
		st.clock.Pause(now)
		st.exercise.Pause(now)
		st.rest.Suspend(now)
	})
	e.log.Info("session paused", "session_id", cur.session.ID)
	return nil
}

// Resume continues accumulation from the frozen values. Resuming an active
// session succeeds without doing anything.
func (e *Engine) Resume(ctx context.Context) error {
	noop := false
	cur, now, err := e.begin(func(st *state, _ time.Time) error {
		if !st.live() {
			return ErrNoActiveSession
		}
		noop = st.session.Status == models.StatusActive
		if noop {
			return errNoop
		}
		return nil
	})
	if noop {
		return nil
	}
	if err != nil {
		return err
	}

	resumed := cur.clock
	resumed.Resume(now)
	update := cur.session.Update()
	update.Status = models.StatusActive
	update.PausedAt = nil
	update.PausedSeconds = Seconds(resumed.PausedTotal())
	if err := e.call(ctx, func(ctx context.Context) error {
		return e.store.UpdateSession(ctx, e.userID, cur.session.ID, update)
	}); err != nil {
		e.abort()
		return persistErr("resume session", err)
	}

	e.commit(EventResumed, func(st *state) {
		s := st.session.Clone()
		s.Status = models.StatusActive
		s.PausedAt = nil
		s.PausedSeconds = update.PausedSeconds
		st.session = s
		st.clock.Resume(now)
		st.exercise.Resume(now)
		st.rest.Continue(now)
	})
	e.log.Info("session resumed", "session_id", cur.session.ID, "paused_seconds", update.PausedSeconds)
	return nil
}

// Complete finishes the session. explicitDurationSeconds, when non-nil,
// replaces the measured active time.
func (e *Engine) Complete(ctx context.Context, explicitDurationSeconds *int) (*models.WorkoutSession, error) {
	if explicitDurationSeconds != nil && *explicitDurationSeconds < 0 {
		verr := &ValidationError{}
		verr.add("total_duration_seconds", "must be >= 0, got %d", *explicitDurationSeconds)
		return nil, verr
	}
	return e.finish(ctx, models.StatusCompleted, explicitDurationSeconds)
}

// Cancel abandons the session, keeping the accumulated duration for audit.
func (e *Engine) Cancel(ctx context.Context) (*models.WorkoutSession, error) {
	return e.finish(ctx, models.StatusCancelled, nil)
}

func (e *Engine) finish(ctx context.Context, status models.SessionStatus, explicit *int) (*models.WorkoutSession, error) {
	cur, now, err := e.begin(requireLive)
	if err != nil {
		return nil, err
	}

	final := cur.session.Clone()
	clock := cur.clock
	clock.Resume(now)
	final.Status = status
	final.CompletedAt = &now
	final.PausedAt = nil
	final.PausedSeconds = Seconds(clock.PausedTotal())
	final.ExerciseSeconds = cur.session.ExerciseSeconds + Seconds(cur.exercise.Elapsed(now))
	final.TotalDurationSeconds = Seconds(cur.clock.Elapsed(now))
	if explicit != nil {
		final.TotalDurationSeconds = *explicit
	}

	op := "complete session"
	ev := EventCompleted
	if status == models.StatusCancelled {
		op, ev = "cancel session", EventCancelled
	}
	if err := e.call(ctx, func(ctx context.Context) error {
		return e.store.UpdateSession(ctx, e.userID, final.ID, final.Update())
	}); err != nil {
		if !errors.Is(err, ErrNotFound) {
			e.abort()
			return nil, persistErr(op, err)
		}
		// A terminal row no longer matches. If the store has no live session
		// with this id, an earlier attempt was saved and only its reply lost.
		settled, lerr := e.settledRemotely(ctx, final.ID)
		if lerr != nil || !settled {
			e.abort()
			if lerr != nil {
				return nil, persistErr(op, lerr)
			}
			return nil, persistErr(op, err)
		}
		e.log.Warn("session already finished in the store", "session_id", final.ID, "status", status)
	}

	e.commit(ev, func(st *state) { *st = state{} })
	e.log.Info("session finished",
		"session_id", final.ID,
		"status", final.Status,
		"duration_seconds", final.TotalDurationSeconds,
		"sets", cur.ledger.Len(),
	)
	e.RefreshHistory(ctx)
	return final, nil
}

// settledRemotely reports whether the store no longer holds id as the live
// session.
func (e *Engine) settledRemotely(ctx context.Context, id uuid.UUID) (bool, error) {
	var live *models.WorkoutSession
	if err := e.call(ctx, func(ctx context.Context) error {
		var err error
		live, err = e.store.ActiveSession(ctx, e.userID)
		return err
	}); err != nil {
		return false, err
	}
	return live == nil || live.ID != id, nil
}

// RefreshHistory re-fetches recent sessions. Failures are logged and the
// previous history is kept.
func (e *Engine) RefreshHistory(ctx context.Context) {
	var sessions []models.WorkoutSession
	if err := e.call(ctx, func(ctx context.Context) error {
		var err error
		sessions, err = e.store.RecentSessions(ctx, e.userID, e.cfg.HistoryLimit)
		return err
	}); err != nil {
		e.log.Error("refreshing session history", "error", err)
		return
	}
	e.mu.Lock()
	e.history = sessions
	e.mu.Unlock()
}

// SelectExercise makes a routine exercise current and restarts the exercise
// timer from zero.
func (e *Engine) SelectExercise(exerciseID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.st.live() {
		return ErrNoActiveSession
	}
	if !e.st.routine.HasExercise(exerciseID) {
		return fmt.Errorf("exercise %s: %w", exerciseID, ErrNotFound)
	}
	e.st.exerciseID = exerciseID
	e.st.exercise.Reset(e.cfg.Clock.Now())
	e.publishLocked(EventExerciseSelected)
	return nil
}

// FinishExercise adds the exercise timer to the session's cumulative
// exercising time and resets it. It returns the seconds added.
func (e *Engine) FinishExercise() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.st.live() {
		return 0, ErrNoActiveSession
	}
	now := e.cfg.Clock.Now()
	added := Seconds(e.st.exercise.Elapsed(now))
	s := e.st.session.Clone()
	s.ExerciseSeconds += added
	e.st.session = s
	e.st.exercise.Reset(now)
	e.publishLocked(EventExerciseFinished)
	return added, nil
}

// StartRest starts a rest countdown of d. Only allowed while ACTIVE.
func (e *Engine) StartRest(d time.Duration) error {
	if d <= 0 {
		verr := &ValidationError{}
		verr.add("duration", "must be > 0, got %s", d)
		return verr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := requireActive(&e.st, time.Time{}); err != nil {
		return err
	}
	e.st.rest.Start(e.cfg.Clock.Now(), d)
	e.publishLocked(EventRestChanged)
	return nil
}

// StartRestPreset starts a rest countdown using a named preset.
func (e *Engine) StartRestPreset(name string) error {
	for _, p := range e.cfg.RestPresets {
		if p.Name == name {
			return e.StartRest(p.Duration)
		}
	}
	return fmt.Errorf("rest preset %q: %w", name, ErrNotFound)
}

// SkipRest stops a running rest countdown early.
func (e *Engine) SkipRest() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.st.live() {
		return ErrNoActiveSession
	}
	if !e.st.rest.Skip() {
		return fmt.Errorf("%w: rest timer is %s", ErrInvalidTransition, e.st.rest.State())
	}
	e.publishLocked(EventRestChanged)
	return nil
}

// Tick advances the rest timer and broadcasts a fresh snapshot. Elapsed
// values are recomputed from timestamps, so missed ticks lose nothing.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.st.live() {
		return
	}
	if e.st.rest.Advance(e.cfg.Clock.Now()) {
		e.publishLocked(EventRestChanged)
		return
	}
	e.publishLocked(EventTick)
}

// Run ticks once per second until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := e.cfg.Clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			e.Tick()
		}
	}
}

// RecordSet validates and persists a set for an exercise, appends it to the
// ledger and starts the default rest countdown.
func (e *Engine) RecordSet(ctx context.Context, exerciseID uuid.UUID, in SetInput) (*models.ExerciseSet, error) {
	if in.SetType == "" {
		in.SetType = models.SetNormal
	}
	if err := validateInput(exerciseID, in); err != nil {
		return nil, err
	}

	cur, now, err := e.begin(requireActive)
	if err != nil {
		return nil, err
	}

	set := &models.ExerciseSet{
		SessionID:     cur.session.ID,
		ExerciseID:    exerciseID,
		SetNumber:     cur.ledger.NextSetNumber(exerciseID),
		SetType:       in.SetType,
		WeightKg:      in.WeightKg,
		RepsCompleted: in.Reps,
		RPEScore:      in.RPE,
		Notes:         in.Notes,
		CompletedAt:   now,
	}
	if err := e.call(ctx, func(ctx context.Context) error {
		return e.store.CreateSet(ctx, e.userID, set)
	}); err != nil {
		e.abort()
		return nil, persistErr("record set", err)
	}

	recorded := *set
	e.commit(EventSetRecorded, func(st *state) {
		st.ledger = st.ledger.append(recorded)
		if st.active() {
			st.rest.Start(e.cfg.Clock.Now(), e.cfg.DefaultRest)
		}
	})
	e.log.Debug("set recorded", "set_id", recorded.ID, "exercise_id", exerciseID, "set_number", recorded.SetNumber)
	return &recorded, nil
}

func validateInput(exerciseID uuid.UUID, in SetInput) error {
	err := ValidateSet(in.SetType, in.WeightKg, in.Reps, in.RPE)
	if exerciseID != uuid.Nil {
		return err
	}
	verr, ok := err.(*ValidationError)
	if !ok {
		verr = &ValidationError{}
	}
	verr.add("exercise_id", "is required")
	return verr
}

// UpdateSet changes a recorded set of the active session.
func (e *Engine) UpdateSet(ctx context.Context, setID uuid.UUID, patch SetPatch) (*models.ExerciseSet, error) {
	var merged models.ExerciseSet
	_, _, err := e.begin(func(st *state, _ time.Time) error {
		if err := requireActive(st, time.Time{}); err != nil {
			return err
		}
		existing, ok := st.ledger.Find(setID)
		if !ok {
			return fmt.Errorf("set %s: %w", setID, ErrNotFound)
		}
		merged = patch.apply(existing)
		return ValidateSet(merged.SetType, merged.WeightKg, merged.RepsCompleted, merged.RPEScore)
	})
	if err != nil {
		return nil, err
	}

	if err := e.call(ctx, func(ctx context.Context) error {
		return e.store.UpdateSet(ctx, e.userID, &merged)
	}); err != nil {
		e.abort()
		return nil, persistErr("update set", err)
	}

	e.commit(EventSetUpdated, func(st *state) {
		st.ledger = st.ledger.replace(merged)
	})
	return &merged, nil
}

// DeleteSet removes a recorded set of the active session.
func (e *Engine) DeleteSet(ctx context.Context, setID uuid.UUID) error {
	_, _, err := e.begin(func(st *state, _ time.Time) error {
		if err := requireActive(st, time.Time{}); err != nil {
			return err
		}
		if _, ok := st.ledger.Find(setID); !ok {
			return fmt.Errorf("set %s: %w", setID, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := e.call(ctx, func(ctx context.Context) error {
		return e.store.DeleteSet(ctx, e.userID, setID)
	}); err != nil {
		e.abort()
		return persistErr("delete set", err)
	}

	e.commit(EventSetDeleted, func(st *state) {
		st.ledger = st.ledger.remove(setID)
	})
	return nil
}

// Ledger returns a copy of the active session's ledger.
func (e *Engine) Ledger() Ledger {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.ledger
}

// firstExercise returns the exercise with the lowest position.
func firstExercise(r *models.Routine) uuid.UUID {
	exs := append([]models.RoutineExercise(nil), r.Exercises...)
	sort.SliceStable(exs, func(i, j int) bool { return exs[i].Position < exs[j].Position })
	return exs[0].ExerciseID
}
