package workout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var testStart = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

// memStore is an in-memory Store. Calls can be failed per operation or held
// at a gate to observe the engine mid-flight.
type memStore struct {
	mu       sync.Mutex
	routines map[uuid.UUID]*models.Routine
	sessions map[uuid.UUID]*models.WorkoutSession
	sets     map[uuid.UUID]models.ExerciseSet
	setOrder []uuid.UUID
	calls    map[string]int
	fail     map[string]error
	lose     map[string]error

	gate    chan struct{}
	entered chan string
}

func newMemStore() *memStore {
	return &memStore{
		routines: make(map[uuid.UUID]*models.Routine),
		sessions: make(map[uuid.UUID]*models.WorkoutSession),
		sets:     make(map[uuid.UUID]models.ExerciseSet),
		calls:    make(map[string]int),
		fail:     make(map[string]error),
		lose:     make(map[string]error),
	}
}

func (m *memStore) enter(ctx context.Context, op string) error {
	m.mu.Lock()
	m.calls[op]++
	err := m.fail[op]
	gate, entered := m.gate, m.entered
	m.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- op
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (m *memStore) callCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *memStore) failOp(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, op)
		return
	}
	m.fail[op] = err
}

// loseReply makes the next op apply its change and then fail with err, as a
// request whose response never arrives.
func (m *memStore) loseReply(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lose[op] = err
}

// lostReply pops the pending lost reply for op. m.mu must be held.
func (m *memStore) lostReply(op string) error {
	err := m.lose[op]
	delete(m.lose, op)
	return err
}

func (m *memStore) hold() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
	m.entered = make(chan string, 8)
}

func (m *memStore) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	close(m.gate)
	m.gate = nil
}

func (m *memStore) addRoutine(name string, exercises ...string) *models.Routine {
	r := &models.Routine{ID: uuid.New(), UserID: 1, Name: name, CreatedAt: testStart}
	for i, ex := range exercises {
		r.Exercises = append(r.Exercises, models.RoutineExercise{
			ExerciseID: uuid.New(),
			Name:       ex,
			Position:   i + 1,
			TargetSets: 3,
			TargetReps: 10,
		})
	}
	m.mu.Lock()
	m.routines[r.ID] = r
	m.mu.Unlock()
	return r
}

func (m *memStore) deleteRoutine(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.routines, id)
}

func (m *memStore) putSession(s *models.WorkoutSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
}

func (m *memStore) putSet(set models.ExerciseSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[set.ID] = set
	m.setOrder = append(m.setOrder, set.ID)
}

func (m *memStore) session(id uuid.UUID) *models.WorkoutSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id].Clone()
}

func (m *memStore) GetRoutine(ctx context.Context, userID int, routineID uuid.UUID) (*models.Routine, error) {
	if err := m.enter(ctx, "GetRoutine"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routines[routineID]
	if !ok || r.UserID != userID {
		return nil, fmt.Errorf("routine %s: %w", routineID, ErrNotFound)
	}
	return r, nil
}

func (m *memStore) CreateSession(ctx context.Context, s *models.WorkoutSession) error {
	if err := m.enter(ctx, "CreateSession"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.UserID == s.UserID && existing.Status.IsLive() {
			return ErrSessionLive
		}
	}
	s.ID = uuid.New()
	m.sessions[s.ID] = s.Clone()
	return m.lostReply("CreateSession")
}

func (m *memStore) ActiveSession(ctx context.Context, userID int) (*models.WorkoutSession, error) {
	if err := m.enter(ctx, "ActiveSession"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.Status.IsLive() {
			return s.Clone(), nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateSession(ctx context.Context, userID int, id uuid.UUID, u models.SessionUpdate) error {
	if err := m.enter(ctx, "UpdateSession"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID || !s.Status.IsLive() {
		return fmt.Errorf("live session %s: %w", id, ErrNotFound)
	}
	s.Status = u.Status
	s.PausedAt = u.PausedAt
	s.CompletedAt = u.CompletedAt
	s.PausedSeconds = u.PausedSeconds
	s.ExerciseSeconds = u.ExerciseSeconds
	s.TotalDurationSeconds = u.TotalDurationSeconds
	return m.lostReply("UpdateSession")
}

func (m *memStore) RecentSessions(ctx context.Context, userID int, limit int) ([]models.WorkoutSession, error) {
	if err := m.enter(ctx, "RecentSessions"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkoutSession
	for _, s := range m.sessions {
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

func (m *memStore) CreateSet(ctx context.Context, userID int, set *models.ExerciseSet) error {
	if err := m.enter(ctx, "CreateSet"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[set.SessionID]
	if !ok || s.UserID != userID || s.Status != models.StatusActive {
		return fmt.Errorf("session %s: %w", set.SessionID, ErrNotFound)
	}
	set.ID = uuid.New()
	m.sets[set.ID] = *set
	m.setOrder = append(m.setOrder, set.ID)
	return nil
}

func (m *memStore) UpdateSet(ctx context.Context, userID int, set *models.ExerciseSet) error {
	if err := m.enter(ctx, "UpdateSet"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sets[set.ID]; !ok {
		return fmt.Errorf("set %s: %w", set.ID, ErrNotFound)
	}
	m.sets[set.ID] = *set
	return nil
}

func (m *memStore) DeleteSet(ctx context.Context, userID int, setID uuid.UUID) error {
	if err := m.enter(ctx, "DeleteSet"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sets[setID]; !ok {
		return fmt.Errorf("set %s: %w", setID, ErrNotFound)
	}
	delete(m.sets, setID)
	return nil
}

func (m *memStore) ListSets(ctx context.Context, userID int, sessionID uuid.UUID) ([]models.ExerciseSet, error) {
	if err := m.enter(ctx, "ListSets"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ExerciseSet
	for _, id := range m.setOrder {
		if s, ok := m.sets[id]; ok && s.SessionID == sessionID {
			out = append(out, s)
		}
	}
	return out, nil
}

// memSelections is an in-memory SelectionCache.
type memSelections struct {
	mu  sync.Mutex
	ids map[int]uuid.UUID
}

func newMemSelections() *memSelections {
	return &memSelections{ids: make(map[int]uuid.UUID)}
}

func (s *memSelections) Get(_ context.Context, userID int) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ids[userID]
	return id, ok, nil
}

func (s *memSelections) Set(_ context.Context, userID int, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[userID] = id
	return nil
}

func (s *memSelections) Clear(_ context.Context, userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, userID)
	return nil
}

type testEnv struct {
	engine     *Engine
	store      *memStore
	selections *memSelections
	clock      *clockwork.FakeClock
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	env := &testEnv{
		store:      newMemStore(),
		selections: newMemSelections(),
		clock:      clockwork.NewFakeClockAt(testStart),
	}
	cfg.Clock = env.clock
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.engine = NewEngine(env.store, env.selections, 1, cfg, log)
	t.Cleanup(env.engine.Close)
	return env
}

// advanceTo moves the fake clock to testStart+offset.
func (env *testEnv) advanceTo(offset time.Duration) {
	env.clock.Advance(testStart.Add(offset).Sub(env.clock.Now()))
}

func ptr[T any](v T) *T { return &v }
