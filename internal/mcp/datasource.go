package mcp

import (
	"context"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/remote"
	"github.com/claude/liftlog/internal/storage"
	"github.com/google/uuid"
)

// DataSource abstracts the data layer for MCP tools. Both *storage.DB (local)
// and *remote.Client (remote via REST API) satisfy this interface.
type DataSource interface {
	ListRoutines(ctx context.Context, userID int) ([]models.Routine, error)
	ActiveSession(ctx context.Context, userID int) (*models.WorkoutSession, error)
	RecentSessions(ctx context.Context, userID int, limit int) ([]models.WorkoutSession, error)
	QuerySessions(ctx context.Context, start, end time.Time, userID int) ([]models.WorkoutSession, error)
	ListSets(ctx context.Context, userID int, sessionID uuid.UUID) ([]models.ExerciseSet, error)
	GetTrainingSummary(ctx context.Context, start, end time.Time, bucket string, userID int) ([]models.TrainingSummaryPeriod, error)
}

// Compile-time checks.
var (
	_ DataSource = (*storage.DB)(nil)
	_ DataSource = (*remote.Client)(nil)
)
