package workout

import (
	"math"
	"strconv"

	"github.com/claude/liftlog/internal/models"
	"github.com/google/uuid"
)

// SetInput is the user-entered data for a new set.
type SetInput struct {
	SetType  models.SetType
	WeightKg *float64
	Reps     int
	RPE      *int
	Notes    *string
}

// SetPatch changes some fields of a recorded set; nil fields are left as-is.
type SetPatch struct {
	SetType  *models.SetType
	WeightKg *float64
	Reps     *int
	RPE      *int
	Notes    *string

	ClearWeight bool
	ClearRPE    bool
}

func (p SetPatch) apply(s models.ExerciseSet) models.ExerciseSet {
	if p.SetType != nil {
		s.SetType = *p.SetType
	}
	if p.ClearWeight {
		s.WeightKg = nil
	} else if p.WeightKg != nil {
		w := *p.WeightKg
		s.WeightKg = &w
	}
	if p.Reps != nil {
		s.RepsCompleted = *p.Reps
	}
	if p.ClearRPE {
		s.RPEScore = nil
	} else if p.RPE != nil {
		r := *p.RPE
		s.RPEScore = &r
	}
	if p.Notes != nil {
		n := *p.Notes
		s.Notes = &n
	}
	return s
}

// ValidateSet checks every field of a set and reports all failures together.
func ValidateSet(setType models.SetType, weightKg *float64, reps int, rpe *int) error {
	verr := &ValidationError{}
	if _, err := models.ParseSetType(string(setType)); err != nil {
		verr.add("set_type", "must be one of NORMAL, WARMUP, DROPSET, FAILURE")
	}
	if weightKg != nil && (*weightKg < 0 || math.IsNaN(*weightKg) || math.IsInf(*weightKg, 0)) {
		verr.add("weight_kg", "must be >= 0, got %v", *weightKg)
	}
	if reps <= 0 {
		verr.add("reps_completed", "must be > 0, got %d", reps)
	}
	if rpe != nil && (*rpe < 1 || *rpe > 10) {
		verr.add("rpe_score", "must be between 1 and 10, got %d", *rpe)
	}
	return verr.orNil()
}

// Ledger is the ordered log of sets recorded in one session. It is treated as
// a value: mutations return a new Ledger so the engine can swap state whole.
type Ledger struct {
	sets []models.ExerciseSet
}

// NewLedger builds a ledger from sets loaded from the store.
func NewLedger(sets []models.ExerciseSet) Ledger {
	return Ledger{sets: append([]models.ExerciseSet(nil), sets...)}
}

// Len returns the number of sets across all exercises.
func (l Ledger) Len() int { return len(l.sets) }

// All returns a copy of every set in recording order.
func (l Ledger) All() []models.ExerciseSet {
	return append([]models.ExerciseSet(nil), l.sets...)
}

// Sets returns the sets recorded for one exercise, in recording order.
func (l Ledger) Sets(exerciseID uuid.UUID) []models.ExerciseSet {
	var out []models.ExerciseSet
	for _, s := range l.sets {
		if s.ExerciseID == exerciseID {
			out = append(out, s)
		}
	}
	return out
}

// Find returns the set with the given id.
func (l Ledger) Find(setID uuid.UUID) (models.ExerciseSet, bool) {
	for _, s := range l.sets {
		if s.ID == setID {
			return s, true
		}
	}
	return models.ExerciseSet{}, false
}

// NextSetNumber is the count of prior sets for the exercise plus one.
func (l Ledger) NextSetNumber(exerciseID uuid.UUID) int {
	return len(l.Sets(exerciseID)) + 1
}

func (l Ledger) append(s models.ExerciseSet) Ledger {
	out := make([]models.ExerciseSet, 0, len(l.sets)+1)
	out = append(out, l.sets...)
	return Ledger{sets: append(out, s)}
}

func (l Ledger) replace(s models.ExerciseSet) Ledger {
	out := l.All()
	for i := range out {
		if out[i].ID == s.ID {
			out[i] = s
		}
	}
	return Ledger{sets: out}
}

func (l Ledger) remove(setID uuid.UUID) Ledger {
	out := make([]models.ExerciseSet, 0, len(l.sets))
	for _, s := range l.sets {
		if s.ID != setID {
			out = append(out, s)
		}
	}
	return Ledger{sets: out}
}

// Volume is the sum of weight x reps over an exercise's sets.
func (l Ledger) Volume(exerciseID uuid.UUID) float64 {
	return volume(l.Sets(exerciseID))
}

func volume(sets []models.ExerciseSet) float64 {
	var v float64
	for _, s := range sets {
		v += s.Volume()
	}
	return v
}

// BestSet returns the heaviest set for an exercise; equal weights are broken
// by more reps, then by the earlier set.
func (l Ledger) BestSet(exerciseID uuid.UUID) (models.ExerciseSet, bool) {
	return bestSet(l.Sets(exerciseID))
}

func bestSet(sets []models.ExerciseSet) (models.ExerciseSet, bool) {
	if len(sets) == 0 {
		return models.ExerciseSet{}, false
	}
	best := sets[0]
	for _, s := range sets[1:] {
		if s.Weight() > best.Weight() ||
			(s.Weight() == best.Weight() && s.RepsCompleted > best.RepsCompleted) {
			best = s
		}
	}
	return best, true
}

// Labels returns the display label of each of the exercise's sets in order.
// Warm-ups are numbered W1, W2, ... and do not consume a working-set ordinal.
func (l Ledger) Labels(exerciseID uuid.UUID) []string {
	return labels(l.Sets(exerciseID))
}

func labels(sets []models.ExerciseSet) []string {
	out := make([]string, len(sets))
	warm, work := 0, 0
	for i, s := range sets {
		if s.SetType == models.SetWarmup {
			warm++
			out[i] = "W" + strconv.Itoa(warm)
			continue
		}
		work++
		out[i] = strconv.Itoa(work)
	}
	return out
}

// ExerciseSummary aggregates one exercise's sets.
type ExerciseSummary struct {
	ExerciseID  uuid.UUID           `json:"exercise_id"`
	Sets        int                 `json:"sets"`
	WorkingSets int                 `json:"working_sets"`
	TotalReps   int                 `json:"total_reps"`
	VolumeKg    float64             `json:"volume_kg"`
	Best        *models.ExerciseSet `json:"best,omitempty"`
}

// Summary aggregates every exercise in order of first appearance.
func (l Ledger) Summary() []ExerciseSummary {
	var order []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, s := range l.sets {
		if !seen[s.ExerciseID] {
			seen[s.ExerciseID] = true
			order = append(order, s.ExerciseID)
		}
	}

	out := make([]ExerciseSummary, 0, len(order))
	for _, id := range order {
		sets := l.Sets(id)
		sum := ExerciseSummary{ExerciseID: id, Sets: len(sets), VolumeKg: volume(sets)}
		for _, s := range sets {
			sum.TotalReps += s.RepsCompleted
			if s.SetType != models.SetWarmup {
				sum.WorkingSets++
			}
		}
		if best, ok := bestSet(sets); ok {
			sum.Best = &best
		}
		out = append(out, sum)
	}
	return out
}

// LedgerView is the ledger of a single exercise as shown to the user.
type LedgerView struct {
	ExerciseID uuid.UUID            `json:"exercise_id"`
	Sets       []models.ExerciseSet `json:"sets"`
	Labels     []string             `json:"labels"`
	VolumeKg   float64              `json:"volume_kg"`
	Best       *models.ExerciseSet  `json:"best,omitempty"`
}

// View renders one exercise's ledger.
func (l Ledger) View(exerciseID uuid.UUID) LedgerView {
	sets := l.Sets(exerciseID)
	v := LedgerView{
		ExerciseID: exerciseID,
		Sets:       sets,
		Labels:     labels(sets),
		VolumeKg:   volume(sets),
	}
	if best, ok := bestSet(sets); ok {
		v.Best = &best
	}
	return v
}
