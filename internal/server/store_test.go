package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
)

// fakeStore is an in-memory Store that enforces the same ownership and
// liveness rules as the PostgreSQL implementation.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]int
	routines map[uuid.UUID]*models.Routine
	sessions map[uuid.UUID]*models.WorkoutSession
	sets     map[uuid.UUID]models.ExerciseSet
	failAll  error
}

var _ Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]int{"local": 1},
		routines: make(map[uuid.UUID]*models.Routine),
		sessions: make(map[uuid.UUID]*models.WorkoutSession),
		sets:     make(map[uuid.UUID]models.ExerciseSet),
	}
}

func (f *fakeStore) setCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sets)
}

func (f *fakeStore) GetOrCreateUser(_ context.Context, login, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.users[login]; ok {
		return id, nil
	}
	id := len(f.users) + 1
	f.users[login] = id
	return id, nil
}

func (f *fakeStore) GetUser(_ context.Context, userID int) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for login, id := range f.users {
		if id == userID {
			return &models.User{ID: id, Login: login}, nil
		}
	}
	return nil, fmt.Errorf("user %d: %w", userID, workout.ErrNotFound)
}

func (f *fakeStore) ListRoutines(_ context.Context, userID int) ([]models.Routine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Routine
	for _, r := range f.routines {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) CreateRoutine(_ context.Context, r *models.Routine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	for i := range r.Exercises {
		if r.Exercises[i].ExerciseID == uuid.Nil {
			r.Exercises[i].ExerciseID = uuid.New()
		}
		if r.Exercises[i].Position == 0 {
			r.Exercises[i].Position = i + 1
		}
	}
	cp := *r
	f.routines[r.ID] = &cp
	return nil
}

func (f *fakeStore) GetRoutine(_ context.Context, userID int, routineID uuid.UUID) (*models.Routine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.routines[routineID]
	if !ok || r.UserID != userID {
		return nil, fmt.Errorf("routine %s: %w", routineID, workout.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) DeleteRoutine(_ context.Context, userID int, routineID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.routines[routineID]
	if !ok || r.UserID != userID {
		return fmt.Errorf("routine %s: %w", routineID, workout.ErrNotFound)
	}
	delete(f.routines, routineID)
	for _, s := range f.sessions {
		if s.RoutineID != nil && *s.RoutineID == routineID {
			s.RoutineID = nil
		}
	}
	return nil
}

func (f *fakeStore) CreateSession(_ context.Context, s *models.WorkoutSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return f.failAll
	}
	if s.RoutineID == nil {
		return workout.ErrInvalidRoutine
	}
	if r, ok := f.routines[*s.RoutineID]; !ok || r.UserID != s.UserID {
		return fmt.Errorf("routine %s: %w", *s.RoutineID, workout.ErrNotFound)
	}
	for _, other := range f.sessions {
		if other.UserID == s.UserID && other.Status.IsLive() {
			return workout.ErrSessionLive
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	f.sessions[s.ID] = s.Clone()
	return nil
}

func (f *fakeStore) ActiveSession(_ context.Context, userID int) (*models.WorkoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	for _, s := range f.sessions {
		if s.UserID == userID && s.Status.IsLive() {
			return s.Clone(), nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetSession(_ context.Context, userID int, id uuid.UUID) (*models.WorkoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.UserID != userID {
		return nil, fmt.Errorf("session %s: %w", id, workout.ErrNotFound)
	}
	return s.Clone(), nil
}

func (f *fakeStore) UpdateSession(_ context.Context, userID int, id uuid.UUID, u models.SessionUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.UserID != userID || !s.Status.IsLive() {
		return fmt.Errorf("live session %s: %w", id, workout.ErrNotFound)
	}
	s.Status = u.Status
	s.PausedAt = u.PausedAt
	s.CompletedAt = u.CompletedAt
	s.PausedSeconds = u.PausedSeconds
	s.ExerciseSeconds = u.ExerciseSeconds
	s.TotalDurationSeconds = u.TotalDurationSeconds
	return nil
}

func (f *fakeStore) RecentSessions(_ context.Context, userID int, limit int) ([]models.WorkoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WorkoutSession
	for _, s := range f.sessions {
		if s.UserID == userID && s.Status.IsTerminal() {
			out = append(out, *s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) QuerySessions(_ context.Context, start, end time.Time, userID int) ([]models.WorkoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WorkoutSession
	for _, s := range f.sessions {
		if s.UserID == userID && !s.StartedAt.Before(start) && s.StartedAt.Before(end) {
			out = append(out, *s.Clone())
		}
	}
	return out, nil
}

func (f *fakeStore) activeSessionLocked(userID int, id uuid.UUID) (*models.WorkoutSession, error) {
	s, ok := f.sessions[id]
	if !ok || s.UserID != userID {
		return nil, fmt.Errorf("session %s: %w", id, workout.ErrNotFound)
	}
	if s.Status != models.StatusActive {
		return nil, fmt.Errorf("session %s is %s: %w", id, s.Status, workout.ErrSessionNotActive)
	}
	return s, nil
}

func (f *fakeStore) CreateSet(_ context.Context, userID int, set *models.ExerciseSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.activeSessionLocked(userID, set.SessionID); err != nil {
		return err
	}
	if set.ID == uuid.Nil {
		set.ID = uuid.New()
	}
	f.sets[set.ID] = *set
	return nil
}

func (f *fakeStore) UpdateSet(_ context.Context, userID int, set *models.ExerciseSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.sets[set.ID]
	if !ok {
		return fmt.Errorf("set %s: %w", set.ID, workout.ErrNotFound)
	}
	if _, err := f.activeSessionLocked(userID, old.SessionID); err != nil {
		return fmt.Errorf("set %s in an active session: %w", set.ID, workout.ErrNotFound)
	}
	old.SetType, old.WeightKg, old.RepsCompleted = set.SetType, set.WeightKg, set.RepsCompleted
	old.RPEScore, old.Notes = set.RPEScore, set.Notes
	f.sets[set.ID] = old
	return nil
}

func (f *fakeStore) DeleteSet(_ context.Context, userID int, setID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.sets[setID]
	if !ok {
		return fmt.Errorf("set %s: %w", setID, workout.ErrNotFound)
	}
	if _, err := f.activeSessionLocked(userID, old.SessionID); err != nil {
		return fmt.Errorf("set %s in an active session: %w", setID, workout.ErrNotFound)
	}
	delete(f.sets, setID)
	return nil
}

func (f *fakeStore) GetSet(_ context.Context, userID int, setID uuid.UUID) (*models.ExerciseSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.sets[setID]
	if !ok {
		return nil, fmt.Errorf("set %s: %w", setID, workout.ErrNotFound)
	}
	if s, ok := f.sessions[set.SessionID]; !ok || s.UserID != userID {
		return nil, fmt.Errorf("set %s: %w", setID, workout.ErrNotFound)
	}
	return &set, nil
}

func (f *fakeStore) ListSets(_ context.Context, userID int, sessionID uuid.UUID) ([]models.ExerciseSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ExerciseSet
	for _, set := range f.sets {
		if set.SessionID == sessionID {
			out = append(out, set)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out, nil
}

func (f *fakeStore) GetTrainingSummary(_ context.Context, start, end time.Time, bucket string, userID int) ([]models.TrainingSummaryPeriod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := models.TrainingSummaryPeriod{Period: start.Format("2006-01-02")}
	for _, s := range f.sessions {
		if s.UserID != userID || !s.Status.IsTerminal() || s.StartedAt.Before(start) || !s.StartedAt.Before(end) {
			continue
		}
		p.Sessions++
		if s.Status == models.StatusCompleted {
			p.Completed++
			p.TotalDurationSec += s.TotalDurationSeconds
		} else {
			p.Cancelled++
		}
	}
	if p.Sessions == 0 {
		return nil, nil
	}
	return []models.TrainingSummaryPeriod{p}, nil
}
