package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the persisted lifecycle state of a workout session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "ACTIVE"
	StatusPaused    SessionStatus = "PAUSED"
	StatusCompleted SessionStatus = "COMPLETED"
	StatusCancelled SessionStatus = "CANCELLED"
)

// IsLive reports whether the session can still be mutated (ACTIVE or PAUSED).
func (s SessionStatus) IsLive() bool {
	return s == StatusActive || s == StatusPaused
}

// IsTerminal reports whether the session has been completed or cancelled.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ParseSessionStatus validates a status string from the wire or the database.
func ParseSessionStatus(s string) (SessionStatus, error) {
	switch st := SessionStatus(s); st {
	case StatusActive, StatusPaused, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown session status %q", s)
}

// WorkoutSession is one continuous (possibly paused) workout against a routine.
type WorkoutSession struct {
	ID                   uuid.UUID     `json:"id"`
	UserID               int           `json:"user_id"`
	RoutineID            *uuid.UUID    `json:"routine_id"`
	Name                 string        `json:"name"`
	Status               SessionStatus `json:"status"`
	StartedAt            time.Time     `json:"started_at"`
	PausedAt             *time.Time    `json:"paused_at,omitempty"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
	PausedSeconds        int           `json:"paused_seconds"`
	ExerciseSeconds      int           `json:"exercise_seconds"`
	TotalDurationSeconds int           `json:"total_duration_seconds"`
}

// IsOrphan reports whether a live session has lost its routine reference.
func (s *WorkoutSession) IsOrphan() bool {
	return s.Status.IsLive() && (s.RoutineID == nil || *s.RoutineID == uuid.Nil)
}

// Clone returns a deep copy so callers never share the pointer fields.
func (s *WorkoutSession) Clone() *WorkoutSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.RoutineID != nil {
		id := *s.RoutineID
		c.RoutineID = &id
	}
	if s.PausedAt != nil {
		t := *s.PausedAt
		c.PausedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// SessionUpdate carries the mutable columns of a session for the remote store.
type SessionUpdate struct {
	Status               SessionStatus `json:"status"`
	PausedAt             *time.Time    `json:"paused_at"`
	CompletedAt          *time.Time    `json:"completed_at"`
	PausedSeconds        int           `json:"paused_seconds"`
	ExerciseSeconds      int           `json:"exercise_seconds"`
	TotalDurationSeconds int           `json:"total_duration_seconds"`
}

// Update extracts the mutable columns of s.
func (s *WorkoutSession) Update() SessionUpdate {
	return SessionUpdate{
		Status:               s.Status,
		PausedAt:             s.PausedAt,
		CompletedAt:          s.CompletedAt,
		PausedSeconds:        s.PausedSeconds,
		ExerciseSeconds:      s.ExerciseSeconds,
		TotalDurationSeconds: s.TotalDurationSeconds,
	}
}
