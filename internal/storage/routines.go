package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateRoutine inserts a routine and its exercises in one transaction.
// Missing ids are assigned and positions default to list order.
func (db *DB) CreateRoutine(ctx context.Context, r *models.Routine) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	normalizeExercises(r.Exercises)

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning routine tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO routines (id, user_id, name) VALUES ($1, $2, $3) RETURNING created_at`,
		r.ID, r.UserID, r.Name).Scan(&r.CreatedAt)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return fmt.Errorf("user %d: %w", r.UserID, workout.ErrNotFound)
		}
		return fmt.Errorf("inserting routine: %w", err)
	}

	batch := &pgx.Batch{}
	for _, ex := range r.Exercises {
		batch.Queue(
			`INSERT INTO routine_exercises (routine_id, exercise_id, name, position, target_sets, target_reps)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			r.ID, ex.ExerciseID, ex.Name, ex.Position, ex.TargetSets, ex.TargetReps)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting routine exercises: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing routine: %w", err)
	}
	return nil
}

// normalizeExercises assigns missing exercise ids and positions.
func normalizeExercises(exs []models.RoutineExercise) {
	for i := range exs {
		if exs[i].ExerciseID == uuid.Nil {
			exs[i].ExerciseID = uuid.New()
		}
		if exs[i].Position == 0 {
			exs[i].Position = i + 1
		}
	}
	sort.SliceStable(exs, func(i, j int) bool { return exs[i].Position < exs[j].Position })
}

// GetRoutine returns a user's routine with its exercises ordered by position.
func (db *DB) GetRoutine(ctx context.Context, userID int, routineID uuid.UUID) (*models.Routine, error) {
	var r models.Routine
	err := db.Pool.QueryRow(ctx,
		`SELECT id, user_id, name, created_at FROM routines WHERE id = $1 AND user_id = $2`,
		routineID, userID).Scan(&r.ID, &r.UserID, &r.Name, &r.CreatedAt)
	if err != nil {
		return nil, notFound(err, "routine "+routineID.String())
	}

	exercises, err := db.routineExercises(ctx, []uuid.UUID{r.ID})
	if err != nil {
		return nil, err
	}
	r.Exercises = exercises[r.ID]
	return &r, nil
}

// ListRoutines returns all of a user's routines.
func (db *DB) ListRoutines(ctx context.Context, userID int) ([]models.Routine, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, name, created_at FROM routines WHERE user_id = $1 ORDER BY name`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying routines: %w", err)
	}
	defer rows.Close()

	var result []models.Routine
	var ids []uuid.UUID
	for rows.Next() {
		var r models.Routine
		if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning routine: %w", err)
		}
		result = append(result, r)
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	exercises, err := db.routineExercises(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Exercises = exercises[result[i].ID]
	}
	return result, nil
}

func (db *DB) routineExercises(ctx context.Context, routineIDs []uuid.UUID) (map[uuid.UUID][]models.RoutineExercise, error) {
	out := make(map[uuid.UUID][]models.RoutineExercise, len(routineIDs))
	if len(routineIDs) == 0 {
		return out, nil
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT routine_id, exercise_id, name, position, target_sets, target_reps
		 FROM routine_exercises
		 WHERE routine_id = ANY($1)
		 ORDER BY routine_id, position`,
		routineIDs)
	if err != nil {
		return nil, fmt.Errorf("querying routine exercises: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rid uuid.UUID
		var ex models.RoutineExercise
		if err := rows.Scan(&rid, &ex.ExerciseID, &ex.Name, &ex.Position, &ex.TargetSets, &ex.TargetReps); err != nil {
			return nil, fmt.Errorf("scanning routine exercise: %w", err)
		}
		out[rid] = append(out[rid], ex)
	}
	return out, rows.Err()
}

// DeleteRoutine removes a routine. A live session that referenced it keeps
// running with a NULL routine and is repaired as an orphan on next load.
func (db *DB) DeleteRoutine(ctx context.Context, userID int, routineID uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM routines WHERE id = $1 AND user_id = $2`, routineID, userID)
	if err != nil {
		return fmt.Errorf("deleting routine: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("routine %s: %w", routineID, workout.ErrNotFound)
	}
	return nil
}
