package models

import (
	"time"

	"github.com/google/uuid"
)

// Routine is a named, ordered list of exercises a session is executed against.
type Routine struct {
	ID        uuid.UUID         `json:"id"`
	UserID    int               `json:"user_id"`
	Name      string            `json:"name"`
	Exercises []RoutineExercise `json:"exercises"`
	CreatedAt time.Time         `json:"created_at"`
}

// RoutineExercise is one entry of a routine.
type RoutineExercise struct {
	ExerciseID uuid.UUID `json:"exercise_id"`
	Name       string    `json:"name"`
	Position   int       `json:"position"`
	TargetSets int       `json:"target_sets"`
	TargetReps int       `json:"target_reps"`
}

// HasExercise reports whether the routine lists the given exercise.
func (r *Routine) HasExercise(id uuid.UUID) bool {
	for _, ex := range r.Exercises {
		if ex.ExerciseID == id {
			return true
		}
	}
	return false
}

// ExerciseName returns the display name of an exercise in the routine, or "".
func (r *Routine) ExerciseName(id uuid.UUID) string {
	for _, ex := range r.Exercises {
		if ex.ExerciseID == id {
			return ex.Name
		}
	}
	return ""
}
