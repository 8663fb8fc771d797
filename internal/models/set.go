package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SetType classifies a recorded set.
type SetType string

const (
	SetNormal  SetType = "NORMAL"
	SetWarmup  SetType = "WARMUP"
	SetDropset SetType = "DROPSET"
	SetFailure SetType = "FAILURE"
)

// ParseSetType validates a set type; an empty string means NORMAL.
func ParseSetType(s string) (SetType, error) {
	switch st := SetType(s); st {
	case "":
		return SetNormal, nil
	case SetNormal, SetWarmup, SetDropset, SetFailure:
		return st, nil
	}
	return "", fmt.Errorf("unknown set type %q", s)
}

// ExerciseSet is one recorded performance event (weight x reps) within a session.
type ExerciseSet struct {
	ID            uuid.UUID `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	ExerciseID    uuid.UUID `json:"exercise_id"`
	SetNumber     int       `json:"set_number"`
	SetType       SetType   `json:"set_type"`
	WeightKg      *float64  `json:"weight_kg,omitempty"`
	RepsCompleted int       `json:"reps_completed"`
	RPEScore      *int      `json:"rpe_score,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Weight returns the set weight, treating a missing weight as bodyweight (0 kg).
func (s ExerciseSet) Weight() float64 {
	if s.WeightKg == nil {
		return 0
	}
	return *s.WeightKg
}

// Volume is weight x reps for this set.
func (s ExerciseSet) Volume() float64 {
	return s.Weight() * float64(s.RepsCompleted)
}
