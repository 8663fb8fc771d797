package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/liftlog/internal/models"
)

// GetTrainingSummary returns session and strength volume totals per period
// over finished sessions started in [start, end). bucket is a date_trunc unit.
func (db *DB) GetTrainingSummary(ctx context.Context, start, end time.Time, bucket string, userID int) ([]models.TrainingSummaryPeriod, error) {
	bucket, err := models.ParseSummaryBucket(bucket)
	if err != nil {
		return nil, err
	}

	// Query 1: session counts and durations per period
	sessionRows, err := db.Pool.Query(ctx,
		`SELECT date_trunc($1, started_at)::date AS period,
		        COUNT(*)::int,
		        COUNT(*) FILTER (WHERE status = 'COMPLETED')::int,
		        COUNT(*) FILTER (WHERE status = 'CANCELLED')::int,
		        COALESCE(SUM(total_duration_seconds) FILTER (WHERE status = 'COMPLETED'), 0)::int,
		        COALESCE(SUM(exercise_seconds), 0)::int
		 FROM workout_sessions
		 WHERE started_at >= $2 AND started_at < $3 AND user_id = $4
		   AND status IN ('COMPLETED', 'CANCELLED')
		 GROUP BY period
		 ORDER BY period DESC`,
		bucket, start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("querying session summary: %w", err)
	}
	defer sessionRows.Close()

	periods := newPeriodSet()
	for sessionRows.Next() {
		var periodTime time.Time
		var sp models.TrainingSummaryPeriod
		if err := sessionRows.Scan(&periodTime, &sp.Sessions, &sp.Completed, &sp.Cancelled,
			&sp.TotalDurationSec, &sp.ExerciseTimeSec); err != nil {
			return nil, fmt.Errorf("scanning session summary: %w", err)
		}
		p := periods.get(periodTime)
		p.Sessions, p.Completed, p.Cancelled = sp.Sessions, sp.Completed, sp.Cancelled
		p.TotalDurationSec, p.ExerciseTimeSec = sp.TotalDurationSec, sp.ExerciseTimeSec
		if p.Completed > 0 {
			p.AvgDurationSec = float64(p.TotalDurationSec) / float64(p.Completed)
		}
	}
	if err := sessionRows.Err(); err != nil {
		return nil, err
	}

	// Query 2: set volume per period, bucketed by the owning session's start
	strengthRows, err := db.Pool.Query(ctx,
		`SELECT date_trunc($1, ws.started_at)::date AS period,
		        COUNT(*) FILTER (WHERE es.set_type <> 'WARMUP')::int,
		        COUNT(*) FILTER (WHERE es.set_type = 'WARMUP')::int,
		        COALESCE(SUM(es.reps_completed) FILTER (WHERE es.set_type <> 'WARMUP'), 0)::int,
		        COALESCE(SUM(COALESCE(es.weight_kg, 0) * es.reps_completed) FILTER (WHERE es.set_type <> 'WARMUP'), 0),
		        COUNT(DISTINCT ws.id)::int
		 FROM exercise_sets es
		 JOIN workout_sessions ws ON ws.id = es.session_id
		 WHERE ws.started_at >= $2 AND ws.started_at < $3 AND ws.user_id = $4
		   AND ws.status IN ('COMPLETED', 'CANCELLED')
		 GROUP BY period
		 ORDER BY period DESC`,
		bucket, start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("querying strength summary: %w", err)
	}
	defer strengthRows.Close()

	for strengthRows.Next() {
		var periodTime time.Time
		var sv models.StrengthVolumeSummary
		var sessions int
		if err := strengthRows.Scan(&periodTime, &sv.WorkingSets, &sv.WarmupSets, &sv.TotalReps,
			&sv.TonnageKg, &sessions); err != nil {
			return nil, fmt.Errorf("scanning strength summary: %w", err)
		}
		if sessions > 0 {
			sv.AvgSetsPerSession = float64(sv.WorkingSets) / float64(sessions)
		}
		periods.get(periodTime).Strength = &sv
	}
	if err := strengthRows.Err(); err != nil {
		return nil, err
	}

	return periods.list(), nil
}

// periodSet collects summary rows keyed by period, keeping first-seen order.
type periodSet struct {
	byKey map[string]*models.TrainingSummaryPeriod
	order []string
}

func newPeriodSet() *periodSet {
	return &periodSet{byKey: make(map[string]*models.TrainingSummaryPeriod)}
}

func (ps *periodSet) get(t time.Time) *models.TrainingSummaryPeriod {
	key := t.Format("2006-01-02")
	p, ok := ps.byKey[key]
	if !ok {
		p = &models.TrainingSummaryPeriod{Period: key}
		ps.byKey[key] = p
		ps.order = append(ps.order, key)
	}
	return p
}

func (ps *periodSet) list() []models.TrainingSummaryPeriod {
	result := make([]models.TrainingSummaryPeriod, 0, len(ps.order))
	for _, key := range ps.order {
		result = append(result, *ps.byKey[key])
	}
	return result
}
