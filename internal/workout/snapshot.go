package workout

import (
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/pubsub"
	"github.com/google/uuid"
)

// Status is what the engine exposes to consumers. Terminal sessions are never
// exposed: after complete or cancel the engine reports NONE.
type Status string

const (
	StatusNone   Status = "NONE"
	StatusActive Status = "ACTIVE"
	StatusPaused Status = "PAUSED"
)

// Events published on the snapshot broker.
const (
	EventLoaded           pubsub.EventType = "session.loaded"
	EventStarted          pubsub.EventType = "session.started"
	EventPaused           pubsub.EventType = "session.paused"
	EventResumed          pubsub.EventType = "session.resumed"
	EventCompleted        pubsub.EventType = "session.completed"
	EventCancelled        pubsub.EventType = "session.cancelled"
	EventExerciseSelected pubsub.EventType = "exercise.selected"
	EventExerciseFinished pubsub.EventType = "exercise.finished"
	EventSetRecorded      pubsub.EventType = "set.recorded"
	EventSetUpdated       pubsub.EventType = "set.updated"
	EventSetDeleted       pubsub.EventType = "set.deleted"
	EventRestChanged      pubsub.EventType = "rest.changed"
	EventTick             pubsub.EventType = "tick"
)

// Snapshot is a consistent view of the engine at one instant. All fields are
// derived from the same state under one lock.
type Snapshot struct {
	Status   Status                 `json:"status"`
	Session  *models.WorkoutSession `json:"session,omitempty"`
	IsActive bool                   `json:"is_active"`
	IsPaused bool                   `json:"is_paused"`

	ElapsedSeconds int `json:"elapsed_seconds"`

	ExerciseID        uuid.UUID `json:"exercise_id"`
	ExerciseName      string    `json:"exercise_name,omitempty"`
	ExerciseSeconds   int       `json:"exercise_seconds"`
	ExercisingSeconds int       `json:"exercising_seconds"`

	RestState            RestState `json:"rest_state"`
	RestRemainingSeconds int       `json:"rest_remaining_seconds"`
	RestDurationSeconds  int       `json:"rest_duration_seconds"`

	Ledger LedgerView `json:"ledger"`

	At time.Time `json:"at"`
}

func (st *state) snapshot(now time.Time) Snapshot {
	snap := Snapshot{Status: StatusNone, RestState: RestIdle, At: now}
	if st.session == nil {
		return snap
	}

	snap.Session = st.session.Clone()
	switch st.session.Status {
	case models.StatusActive:
		snap.Status, snap.IsActive = StatusActive, true
	case models.StatusPaused:
		snap.Status, snap.IsPaused = StatusPaused, true
	}
	snap.ElapsedSeconds = Seconds(st.clock.Elapsed(now))

	snap.ExerciseID = st.exerciseID
	if st.routine != nil {
		snap.ExerciseName = st.routine.ExerciseName(st.exerciseID)
	}
	snap.ExerciseSeconds = Seconds(st.exercise.Elapsed(now))
	snap.ExercisingSeconds = st.session.ExerciseSeconds

	snap.RestState = st.rest.State()
	snap.RestRemainingSeconds = ceilSeconds(st.rest.Remaining(now))
	snap.RestDurationSeconds = Seconds(st.rest.Duration())

	snap.Ledger = st.ledger.View(st.exerciseID)
	return snap
}

// ceilSeconds rounds a countdown up so "0" only shows once it has finished.
func ceilSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
