package workout

import (
	"testing"

	"github.com/claude/liftlog/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func mkSet(exerciseID uuid.UUID, typ models.SetType, weight float64, reps int) models.ExerciseSet {
	return models.ExerciseSet{
		ID:            uuid.New(),
		ExerciseID:    exerciseID,
		SetType:       typ,
		WeightKg:      ptr(weight),
		RepsCompleted: reps,
	}
}

func TestValidateSet_ReportsEveryField(t *testing.T) {
	err := ValidateSet(models.SetNormal, ptr(-5.0), 0, ptr(11))
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 3)
	require.True(t, verr.Has("weight_kg"))
	require.True(t, verr.Has("reps_completed"))
	require.True(t, verr.Has("rpe_score"))
}

func TestValidateSet_OptionalFields(t *testing.T) {
	require.NoError(t, ValidateSet(models.SetWarmup, nil, 5, nil))
	require.NoError(t, ValidateSet(models.SetFailure, ptr(0.0), 1, ptr(10)))
	require.Error(t, ValidateSet("SUPERSET", nil, 5, nil))
	require.Error(t, ValidateSet(models.SetNormal, nil, 5, ptr(0)))
}

func TestLedger_VolumeAndBestSet(t *testing.T) {
	bench, squat := uuid.New(), uuid.New()
	l := NewLedger([]models.ExerciseSet{
		mkSet(bench, models.SetNormal, 50, 10),
		mkSet(squat, models.SetNormal, 100, 5),
		mkSet(bench, models.SetNormal, 52.5, 8),
		mkSet(bench, models.SetNormal, 52.5, 9),
	})

	require.InDelta(t, 500+420+472.5, l.Volume(bench), 1e-9)
	best, ok := l.BestSet(bench)
	require.True(t, ok)
	require.Equal(t, 52.5, best.Weight())
	require.Equal(t, 9, best.RepsCompleted, "ties go to more reps")

	_, ok = l.BestSet(uuid.New())
	require.False(t, ok)
}

func TestLedger_BodyweightSetsCountAsZero(t *testing.T) {
	pullup := uuid.New()
	l := NewLedger([]models.ExerciseSet{
		{ID: uuid.New(), ExerciseID: pullup, SetType: models.SetNormal, RepsCompleted: 8},
		{ID: uuid.New(), ExerciseID: pullup, SetType: models.SetNormal, RepsCompleted: 12},
	})
	require.Zero(t, l.Volume(pullup))
	best, ok := l.BestSet(pullup)
	require.True(t, ok)
	require.Equal(t, 12, best.RepsCompleted)
}

func TestLedger_LabelsSkipWarmups(t *testing.T) {
	ex := uuid.New()
	l := NewLedger([]models.ExerciseSet{
		mkSet(ex, models.SetWarmup, 20, 10),
		mkSet(ex, models.SetWarmup, 40, 5),
		mkSet(ex, models.SetNormal, 60, 5),
		mkSet(ex, models.SetDropset, 50, 8),
		mkSet(ex, models.SetFailure, 40, 12),
	})
	require.Equal(t, []string{"W1", "W2", "1", "2", "3"}, l.Labels(ex))
}

func TestLedger_MutationsDoNotAlias(t *testing.T) {
	ex := uuid.New()
	first := mkSet(ex, models.SetNormal, 50, 10)
	base := NewLedger([]models.ExerciseSet{first})

	grown := base.append(mkSet(ex, models.SetNormal, 60, 5))
	require.Equal(t, 1, base.Len())
	require.Equal(t, 2, grown.Len())

	changed := first
	changed.RepsCompleted = 12
	replaced := grown.replace(changed)
	got, _ := grown.Find(first.ID)
	require.Equal(t, 10, got.RepsCompleted)
	got, _ = replaced.Find(first.ID)
	require.Equal(t, 12, got.RepsCompleted)

	removed := replaced.remove(first.ID)
	require.Equal(t, 1, removed.Len())
	require.Equal(t, 2, replaced.Len())
}

func TestLedger_Summary(t *testing.T) {
	bench, row := uuid.New(), uuid.New()
	l := NewLedger([]models.ExerciseSet{
		mkSet(bench, models.SetWarmup, 20, 10),
		mkSet(row, models.SetNormal, 60, 10),
		mkSet(bench, models.SetNormal, 60, 8),
	})

	sum := l.Summary()
	require.Len(t, sum, 2)
	require.Equal(t, bench, sum[0].ExerciseID)
	require.Equal(t, 2, sum[0].Sets)
	require.Equal(t, 1, sum[0].WorkingSets)
	require.Equal(t, 18, sum[0].TotalReps)
	require.InDelta(t, 680.0, sum[0].VolumeKg, 1e-9)
	require.NotNil(t, sum[0].Best)
	require.Equal(t, 60.0, sum[0].Best.Weight())
	require.Equal(t, row, sum[1].ExerciseID)
}

func TestSetPatch_Apply(t *testing.T) {
	s := mkSet(uuid.New(), models.SetNormal, 50, 10)
	s.RPEScore = ptr(8)

	typ := models.SetFailure
	got := SetPatch{SetType: &typ, Reps: ptr(12), ClearRPE: true}.apply(s)
	require.Equal(t, models.SetFailure, got.SetType)
	require.Equal(t, 12, got.RepsCompleted)
	require.Nil(t, got.RPEScore)
	require.Equal(t, 50.0, got.Weight())
}
