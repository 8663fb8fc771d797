package workout

import (
	"context"

	"github.com/claude/liftlog/internal/models"
	"github.com/google/uuid"
)

// Store is the authoritative remote store. Both *storage.DB (server side) and
// remote.Client (over HTTP) satisfy it. Lookups that do not resolve return
// an error matching ErrNotFound.
type Store interface {
	GetRoutine(ctx context.Context, userID int, routineID uuid.UUID) (*models.Routine, error)

	CreateSession(ctx context.Context, session *models.WorkoutSession) error
	// ActiveSession returns the user's live session, or nil when there is none.
	ActiveSession(ctx context.Context, userID int) (*models.WorkoutSession, error)
	UpdateSession(ctx context.Context, userID int, sessionID uuid.UUID, update models.SessionUpdate) error
	RecentSessions(ctx context.Context, userID int, limit int) ([]models.WorkoutSession, error)

	CreateSet(ctx context.Context, userID int, set *models.ExerciseSet) error
	UpdateSet(ctx context.Context, userID int, set *models.ExerciseSet) error
	DeleteSet(ctx context.Context, userID int, setID uuid.UUID) error
	ListSets(ctx context.Context, userID int, sessionID uuid.UUID) ([]models.ExerciseSet, error)
}

// SelectionCache persists the routine a user picked but has not started yet.
// It survives restarts and is namespaced per user.
type SelectionCache interface {
	// Get returns the cached routine id; ok is false on a miss.
	Get(ctx context.Context, userID int) (routineID uuid.UUID, ok bool, err error)
	Set(ctx context.Context, userID int, routineID uuid.UUID) error
	Clear(ctx context.Context, userID int) error
}
