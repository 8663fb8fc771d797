package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, user_id, routine_id, name, status, started_at, paused_at, completed_at,
	paused_seconds, exercise_seconds, total_duration_seconds`

func scanSession(row pgx.Row) (*models.WorkoutSession, error) {
	var s models.WorkoutSession
	var status string
	if err := row.Scan(&s.ID, &s.UserID, &s.RoutineID, &s.Name, &status, &s.StartedAt,
		&s.PausedAt, &s.CompletedAt, &s.PausedSeconds, &s.ExerciseSeconds, &s.TotalDurationSeconds); err != nil {
		return nil, err
	}
	st, err := models.ParseSessionStatus(status)
	if err != nil {
		return nil, err
	}
	s.Status = st
	return &s, nil
}

func scanSessions(rows pgx.Rows) ([]models.WorkoutSession, error) {
	defer rows.Close()
	var result []models.WorkoutSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

// CreateSession inserts a live session. The routine must belong to the user.
// A second live session for the same user violates the partial unique index
// and is reported as workout.ErrSessionLive.
func (db *DB) CreateSession(ctx context.Context, s *models.WorkoutSession) error {
	if s.RoutineID == nil {
		return fmt.Errorf("session without routine: %w", workout.ErrInvalidRoutine)
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	if s.Status == "" {
		s.Status = models.StatusActive
	}

	tag, err := db.Pool.Exec(ctx,
		`INSERT INTO workout_sessions (id, user_id, routine_id, name, status, started_at)
		 SELECT $1, $2, r.id, $4, $5, $6
		 FROM routines r
		 WHERE r.id = $3 AND r.user_id = $2`,
		s.ID, s.UserID, *s.RoutineID, s.Name, string(s.Status), s.StartedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return workout.ErrSessionLive
		}
		return fmt.Errorf("inserting session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("routine %s: %w", *s.RoutineID, workout.ErrNotFound)
	}
	return nil
}

// ActiveSession returns the user's ACTIVE or PAUSED session, or nil.
func (db *DB) ActiveSession(ctx context.Context, userID int) (*models.WorkoutSession, error) {
	s, err := scanSession(db.Pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM workout_sessions
		 WHERE user_id = $1 AND status IN ('ACTIVE', 'PAUSED')
		 LIMIT 1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying active session: %w", err)
	}
	return s, nil
}

// GetSession returns one of the user's sessions.
func (db *DB) GetSession(ctx context.Context, userID int, sessionID uuid.UUID) (*models.WorkoutSession, error) {
	s, err := scanSession(db.Pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM workout_sessions WHERE id = $1 AND user_id = $2`,
		sessionID, userID))
	if err != nil {
		return nil, notFound(err, "session "+sessionID.String())
	}
	return s, nil
}

// UpdateSession writes the mutable columns of a live session. Terminal
// sessions are archived and never match.
func (db *DB) UpdateSession(ctx context.Context, userID int, sessionID uuid.UUID, u models.SessionUpdate) error {
	if _, err := models.ParseSessionStatus(string(u.Status)); err != nil {
		return err
	}
	tag, err := db.Pool.Exec(ctx,
		`UPDATE workout_sessions
		 SET status = $3, paused_at = $4, completed_at = $5,
		     paused_seconds = $6, exercise_seconds = $7, total_duration_seconds = $8
		 WHERE id = $1 AND user_id = $2 AND status IN ('ACTIVE', 'PAUSED')`,
		sessionID, userID, string(u.Status), u.PausedAt, u.CompletedAt,
		u.PausedSeconds, u.ExerciseSeconds, u.TotalDurationSeconds)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return workout.ErrSessionLive
		}
		return fmt.Errorf("updating session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("live session %s: %w", sessionID, workout.ErrNotFound)
	}
	return nil
}

// RecentSessions returns the user's completed and cancelled sessions, newest first.
func (db *DB) RecentSessions(ctx context.Context, userID int, limit int) ([]models.WorkoutSession, error) {
	if limit <= 0 {
		limit = workout.DefaultHistoryLimit
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM workout_sessions
		 WHERE user_id = $1 AND status IN ('COMPLETED', 'CANCELLED')
		 ORDER BY started_at DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent sessions: %w", err)
	}
	return scanSessions(rows)
}

// QuerySessions returns every session of the user started in [start, end).
func (db *DB) QuerySessions(ctx context.Context, start, end time.Time, userID int) ([]models.WorkoutSession, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM workout_sessions
		 WHERE user_id = $1 AND started_at >= $2 AND started_at < $3
		 ORDER BY started_at DESC`, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	return scanSessions(rows)
}
