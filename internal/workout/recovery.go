package workout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/google/uuid"
)

// Load reconciles the engine with the remote store. It must run before any
// timer starts: on a cold start and whenever the engine is reused.
//
// A session with no routine, or whose routine no longer exists, is completed
// with zero duration and never exposed. Per-exercise and rest timing is not
// persisted, so those timers restart from zero after a reload.
func (e *Engine) Load(ctx context.Context) error {
	_, now, err := e.begin(nil)
	if err != nil {
		return err
	}

	e.revalidateSelection(ctx)

	var active *models.WorkoutSession
	if err := e.call(ctx, func(ctx context.Context) error {
		var err error
		active, err = e.store.ActiveSession(ctx, e.userID)
		return err
	}); err != nil {
		e.abort()
		return persistErr("load active session", err)
	}

	if active == nil {
		e.commit(EventLoaded, func(st *state) { *st = state{} })
		e.RefreshHistory(ctx)
		return nil
	}

	var routine *models.Routine
	orphan := active.IsOrphan()
	if !orphan {
		err := e.call(ctx, func(ctx context.Context) error {
			var err error
			routine, err = e.store.GetRoutine(ctx, e.userID, *active.RoutineID)
			return err
		})
		switch {
		case errors.Is(err, ErrNotFound):
			orphan = true
		case err != nil:
			e.abort()
			return persistErr("load session routine", err)
		}
	}
	if orphan {
		return e.repairOrphan(ctx, active, now)
	}

	var sets []models.ExerciseSet
	if err := e.call(ctx, func(ctx context.Context) error {
		var err error
		sets, err = e.store.ListSets(ctx, e.userID, active.ID)
		return err
	}); err != nil {
		e.abort()
		return persistErr("load session sets", err)
	}

	e.commit(EventLoaded, func(st *state) {
		*st = hydrate(active, routine, sets, now)
	})
	e.log.Info("session recovered",
		"session_id", active.ID,
		"status", active.Status,
		"sets", len(sets),
	)
	e.RefreshHistory(ctx)
	return nil
}

// hydrate rebuilds the local state of a live session from its stored record.
func hydrate(s *models.WorkoutSession, routine *models.Routine, sets []models.ExerciseSet, now time.Time) state {
	session := s.Clone()
	st := state{
		session:  session,
		routine:  routine,
		clock:    RestoreStopwatch(session.StartedAt, time.Duration(session.PausedSeconds)*time.Second, session.PausedAt),
		exercise: NewStopwatch(now),
		ledger:   NewLedger(sets),
	}
	if len(routine.Exercises) > 0 {
		st.exerciseID = firstExercise(routine)
	}
	if session.Status == models.StatusPaused {
		st.exercise.Pause(now)
	}
	return st
}

// repairOrphan completes a live session that lost its routine. The engine
// reports NONE whether or not the repair could be saved.
func (e *Engine) repairOrphan(ctx context.Context, s *models.WorkoutSession, now time.Time) error {
	e.log.Warn("repairing orphan session",
		"session_id", s.ID,
		"status", s.Status,
		"error", ErrOrphanSession,
	)

	update := s.Update()
	update.Status = models.StatusCompleted
	update.PausedAt = nil
	update.CompletedAt = &now
	update.TotalDurationSeconds = 0
	err := e.call(ctx, func(ctx context.Context) error {
		return e.store.UpdateSession(ctx, e.userID, s.ID, update)
	})

	e.commit(EventLoaded, func(st *state) { *st = state{} })
	if err != nil {
		e.log.Error("saving orphan session repair", "session_id", s.ID, "error", err)
		return persistErr("repair orphan session", err)
	}
	e.RefreshHistory(ctx)
	return nil
}

// revalidateSelection drops a cached routine id that no longer resolves.
// Transport failures keep the cache as it is.
func (e *Engine) revalidateSelection(ctx context.Context) {
	if e.selections == nil {
		return
	}
	id, ok, err := e.selections.Get(ctx, e.userID)
	if err != nil {
		e.log.Warn("reading selected routine", "error", err)
		return
	}
	if !ok {
		return
	}

	err = e.call(ctx, func(ctx context.Context) error {
		_, err := e.store.GetRoutine(ctx, e.userID, id)
		return err
	})
	switch {
	case errors.Is(err, ErrNotFound):
		if err := e.selections.Clear(ctx, e.userID); err != nil {
			e.log.Warn("clearing stale selected routine", "routine_id", id, "error", err)
			return
		}
		e.log.Info("cleared stale selected routine", "routine_id", id)
	case err != nil:
		e.log.Warn("validating selected routine", "routine_id", id, "error", err)
	}
}

// SelectRoutine remembers the routine the user intends to start next.
func (e *Engine) SelectRoutine(ctx context.Context, routineID uuid.UUID) (*models.Routine, error) {
	var routine *models.Routine
	if err := e.call(ctx, func(ctx context.Context) error {
		var err error
		routine, err = e.store.GetRoutine(ctx, e.userID, routineID)
		return err
	}); err != nil {
		return nil, persistErr("get routine", err)
	}
	if len(routine.Exercises) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRoutine, routine.Name)
	}
	if e.selections == nil {
		return routine, nil
	}
	if err := e.selections.Set(ctx, e.userID, routine.ID); err != nil {
		return nil, fmt.Errorf("caching selected routine: %w", err)
	}
	return routine, nil
}

// SelectedRoutine returns the cached routine id, if any.
func (e *Engine) SelectedRoutine(ctx context.Context) (uuid.UUID, bool, error) {
	if e.selections == nil {
		return uuid.Nil, false, nil
	}
	return e.selections.Get(ctx, e.userID)
}
