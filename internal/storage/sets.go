package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Set mutations only match sets whose session is ACTIVE and owned by the
// user, so an archived session's ledger cannot change.

const setColumns = `es.id, es.session_id, es.exercise_id, es.set_number, es.set_type, es.weight_kg,
	es.reps_completed, es.rpe_score, es.notes, es.completed_at`

// CreateSet inserts a set into the user's active session.
func (db *DB) CreateSet(ctx context.Context, userID int, set *models.ExerciseSet) error {
	if set.ID == uuid.Nil {
		set.ID = uuid.New()
	}
	if set.CompletedAt.IsZero() {
		set.CompletedAt = time.Now()
	}
	if set.SetType == "" {
		set.SetType = models.SetNormal
	}

	tag, err := db.Pool.Exec(ctx,
		`INSERT INTO exercise_sets (id, session_id, exercise_id, set_number, set_type, weight_kg,
		 reps_completed, rpe_score, notes, completed_at)
		 SELECT $1, ws.id, $3, $4, $5, $6, $7, $8, $9, $10
		 FROM workout_sessions ws
		 WHERE ws.id = $2 AND ws.user_id = $11 AND ws.status = 'ACTIVE'`,
		set.ID, set.SessionID, set.ExerciseID, set.SetNumber, string(set.SetType), set.WeightKg,
		set.RepsCompleted, set.RPEScore, set.Notes, set.CompletedAt, userID)
	if err != nil {
		return fmt.Errorf("inserting set: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.whyNotActive(ctx, userID, set.SessionID)
	}
	return nil
}

// whyNotActive distinguishes a missing session from one that is not ACTIVE.
func (db *DB) whyNotActive(ctx context.Context, userID int, sessionID uuid.UUID) error {
	s, err := db.GetSession(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	return fmt.Errorf("session %s is %s: %w", sessionID, s.Status, workout.ErrSessionNotActive)
}

// UpdateSet rewrites a set of the user's active session.
func (db *DB) UpdateSet(ctx context.Context, userID int, set *models.ExerciseSet) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE exercise_sets es
		 SET set_type = $3, weight_kg = $4, reps_completed = $5, rpe_score = $6, notes = $7
		 FROM workout_sessions ws
		 WHERE es.id = $1 AND ws.id = es.session_id AND ws.user_id = $2 AND ws.status = 'ACTIVE'`,
		set.ID, userID, string(set.SetType), set.WeightKg, set.RepsCompleted, set.RPEScore, set.Notes)
	if err != nil {
		return fmt.Errorf("updating set: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set %s in an active session: %w", set.ID, workout.ErrNotFound)
	}
	return nil
}

// DeleteSet removes a set of the user's active session.
func (db *DB) DeleteSet(ctx context.Context, userID int, setID uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM exercise_sets es
		 USING workout_sessions ws
		 WHERE es.id = $1 AND ws.id = es.session_id AND ws.user_id = $2 AND ws.status = 'ACTIVE'`,
		setID, userID)
	if err != nil {
		return fmt.Errorf("deleting set: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set %s in an active session: %w", setID, workout.ErrNotFound)
	}
	return nil
}

// GetSet returns one set owned by the user.
func (db *DB) GetSet(ctx context.Context, userID int, setID uuid.UUID) (*models.ExerciseSet, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+setColumns+`
		 FROM exercise_sets es
		 JOIN workout_sessions ws ON ws.id = es.session_id
		 WHERE es.id = $1 AND ws.user_id = $2`, setID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying set: %w", err)
	}
	sets, err := scanSets(rows)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("set %s: %w", setID, workout.ErrNotFound)
	}
	return &sets[0], nil
}

// ListSets returns a session's sets in recording order.
func (db *DB) ListSets(ctx context.Context, userID int, sessionID uuid.UUID) ([]models.ExerciseSet, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+setColumns+`
		 FROM exercise_sets es
		 JOIN workout_sessions ws ON ws.id = es.session_id
		 WHERE es.session_id = $1 AND ws.user_id = $2
		 ORDER BY es.completed_at, es.set_number`, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying sets: %w", err)
	}
	return scanSets(rows)
}

func scanSets(rows pgx.Rows) ([]models.ExerciseSet, error) {
	defer rows.Close()
	var result []models.ExerciseSet
	for rows.Next() {
		var s models.ExerciseSet
		var setType string
		if err := rows.Scan(&s.ID, &s.SessionID, &s.ExerciseID, &s.SetNumber, &setType, &s.WeightKg,
			&s.RepsCompleted, &s.RPEScore, &s.Notes, &s.CompletedAt); err != nil {
			return nil, fmt.Errorf("scanning set: %w", err)
		}
		st, err := models.ParseSetType(setType)
		if err != nil {
			return nil, err
		}
		s.SetType = st
		result = append(result, s)
	}
	return result, rows.Err()
}
