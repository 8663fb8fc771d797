package storage

import (
	"testing"

	"github.com/claude/liftlog/internal/models"
	"github.com/google/uuid"
)

func TestNormalizeExercises(t *testing.T) {
	keep := uuid.New()
	exs := []models.RoutineExercise{
		{Name: "Squat", Position: 2},
		{Name: "Bench", ExerciseID: keep, Position: 1},
		{Name: "Row"},
	}

	normalizeExercises(exs)

	wantNames := []string{"Bench", "Squat", "Row"}
	for i, ex := range exs {
		if ex.Name != wantNames[i] {
			t.Errorf("exs[%d] = %s, want %s", i, ex.Name, wantNames[i])
		}
		if ex.ExerciseID == uuid.Nil {
			t.Errorf("%s has no id", ex.Name)
		}
	}
	if exs[0].ExerciseID != keep {
		t.Error("existing exercise id was replaced")
	}
	if exs[2].Position != 3 {
		t.Errorf("Row position = %d, want 3", exs[2].Position)
	}
}
