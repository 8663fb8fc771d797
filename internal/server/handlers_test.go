package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/google/uuid"
)

func newTestServer(t *testing.T) (*Server, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	return New(store, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode error: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func seedRoutine(t *testing.T, store *fakeStore) *models.Routine {
	t.Helper()
	r := &models.Routine{
		UserID: 1,
		Name:   "Push Day",
		Exercises: []models.RoutineExercise{
			{Name: "Bench Press"},
			{Name: "Overhead Press"},
		},
	}
	if err := store.CreateRoutine(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	return r
}

// TestHandleMeDefault verifies the /api/v1/me endpoint returns the dev user
// identity when no Tailscale middleware is active.
func TestHandleMeDefault(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/v1/me", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	u := decode[models.User](t, rec)
	if u.ID != 1 || u.Login != "local" {
		t.Errorf("user = %+v, want local user 1", u)
	}
}

// TestHandleMeWithoutStore verifies the identity is echoed when the user has
// no row yet.
func TestHandleMeWithoutStore(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req = withIdentity(req, 5, UserInfo{Login: "alice@example.com", DisplayName: "Alice"})
	rec := httptest.NewRecorder()

	s.handleMe(rec, req)

	u := decode[models.User](t, rec)
	if u.ID != 5 || u.Login != "alice@example.com" || u.DisplayName != "Alice" {
		t.Errorf("user = %+v", u)
	}
}

func TestRoutines(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/routines", models.Routine{
		Name:      "Legs",
		Exercises: []models.RoutineExercise{{Name: "Squat"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	created := decode[models.Routine](t, rec)
	if created.ID == uuid.Nil || created.Exercises[0].ExerciseID == uuid.Nil {
		t.Fatalf("ids not assigned: %+v", created)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/routines", nil)
	list := decode[struct {
		Routines []models.Routine `json:"routines"`
	}](t, rec)
	if len(list.Routines) != 1 || list.Routines[0].Name != "Legs" {
		t.Errorf("routines = %+v", list.Routines)
	}

	rec = do(t, s, http.MethodDelete, "/api/v1/routines/"+created.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	rec = do(t, s, http.MethodGet, "/api/v1/routines/"+created.ID.String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted status = %d, want 404", rec.Code)
	}
}

func TestCreateRoutineRequiresName(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/v1/routines", models.Routine{Name: "  "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestInvalidPathID(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/v1/routines/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s, store := newTestServer(t)
	r := seedRoutine(t, store)

	rec := do(t, s, http.MethodGet, "/api/v1/sessions/active", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("active with none = %d, want 204", rec.Code)
	}

	started := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	rec = do(t, s, http.MethodPost, "/api/v1/sessions", models.WorkoutSession{
		RoutineID: &r.ID,
		Name:      "Push Day - Oct 16, 2026",
		StartedAt: started,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	sess := decode[models.WorkoutSession](t, rec)
	if sess.Status != models.StatusActive || sess.UserID != 1 {
		t.Errorf("session = %+v", sess)
	}

	rec = do(t, s, http.MethodPost, "/api/v1/sessions", models.WorkoutSession{RoutineID: &r.ID, Name: "again"})
	if rec.Code != http.StatusConflict {
		t.Errorf("second live session status = %d, want 409", rec.Code)
	}

	done := started.Add(25 * time.Minute)
	rec = do(t, s, http.MethodPatch, "/api/v1/sessions/"+sess.ID.String(), models.SessionUpdate{
		Status:               models.StatusCompleted,
		CompletedAt:          &done,
		TotalDurationSeconds: 1500,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", rec.Code, rec.Body)
	}

	rec = do(t, s, http.MethodPatch, "/api/v1/sessions/"+sess.ID.String(), models.SessionUpdate{
		Status:      models.StatusCancelled,
		CompletedAt: &done,
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("patching a finished session = %d, want 404", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/sessions?limit=5", nil)
	hist := decode[struct {
		Sessions []models.WorkoutSession `json:"sessions"`
	}](t, rec)
	if len(hist.Sessions) != 1 || hist.Sessions[0].TotalDurationSeconds != 1500 {
		t.Errorf("history = %+v", hist.Sessions)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/v1/sessions", models.WorkoutSession{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := rec.Body.String()
	for _, field := range []string{"name", "routine_id"} {
		if !strings.Contains(body, `"field":"`+field+`"`) {
			t.Errorf("body %s does not report %s", body, field)
		}
	}
}

func TestUpdateSessionValidation(t *testing.T) {
	tests := []struct {
		name   string
		update models.SessionUpdate
		field  string
	}{
		{"unknown status", models.SessionUpdate{Status: "DONE"}, "status"},
		{"finish without completed_at", models.SessionUpdate{Status: models.StatusCompleted}, "completed_at"},
		{"pause without paused_at", models.SessionUpdate{Status: models.StatusPaused}, "paused_at"},
		{"negative duration", models.SessionUpdate{Status: models.StatusActive, TotalDurationSeconds: -1}, "total_duration_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSessionUpdate(tt.update)
			if err == nil || !strings.Contains(err.Error(), tt.field) {
				t.Errorf("validateSessionUpdate = %v, want failure on %s", err, tt.field)
			}
		})
	}
	if err := validateSessionUpdate(models.SessionUpdate{Status: models.StatusActive}); err != nil {
		t.Errorf("plain resume rejected: %v", err)
	}
}

func TestSets(t *testing.T) {
	s, store := newTestServer(t)
	r := seedRoutine(t, store)
	sess := &models.WorkoutSession{UserID: 1, RoutineID: &r.ID, Name: "Push", Status: models.StatusActive}
	if err := store.CreateSession(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	base := "/api/v1/sessions/" + sess.ID.String() + "/sets"
	weight := 60.0

	rec := do(t, s, http.MethodPost, base, models.ExerciseSet{
		ExerciseID:    r.Exercises[0].ExerciseID,
		SetNumber:     1,
		WeightKg:      &weight,
		RepsCompleted: 8,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create set = %d, body %s", rec.Code, rec.Body)
	}
	set := decode[models.ExerciseSet](t, rec)
	if set.SetType != models.SetNormal {
		t.Errorf("set type = %q, want NORMAL", set.SetType)
	}

	rec = do(t, s, http.MethodPost, base, models.ExerciseSet{ExerciseID: r.Exercises[0].ExerciseID, RepsCompleted: 0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero reps = %d, want 400", rec.Code)
	}

	set.RepsCompleted = 10
	rec = do(t, s, http.MethodPatch, "/api/v1/sets/"+set.ID.String(), set)
	if rec.Code != http.StatusOK {
		t.Fatalf("update set = %d, body %s", rec.Code, rec.Body)
	}
	if got := decode[models.ExerciseSet](t, rec); got.RepsCompleted != 10 {
		t.Errorf("reps = %d, want 10", got.RepsCompleted)
	}

	rec = do(t, s, http.MethodGet, base, nil)
	list := decode[struct {
		Sets []models.ExerciseSet `json:"sets"`
	}](t, rec)
	if len(list.Sets) != 1 {
		t.Errorf("sets = %+v", list.Sets)
	}

	rec = do(t, s, http.MethodDelete, "/api/v1/sets/"+set.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rec.Code)
	}
}

func TestCreateSetReportsEveryInvalidField(t *testing.T) {
	s, store := newTestServer(t)
	r := seedRoutine(t, store)
	sess := &models.WorkoutSession{UserID: 1, RoutineID: &r.ID, Name: "Push", Status: models.StatusActive}
	if err := store.CreateSession(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	base := "/api/v1/sessions/" + sess.ID.String() + "/sets"

	tests := []struct {
		name string
		body map[string]any
		want []string
	}{
		{
			name: "bad type hides nothing",
			body: map[string]any{"set_type": "BOGUS", "reps_completed": 0, "weight_kg": -5, "rpe_score": 11},
			want: []string{"set_type", "weight_kg", "reps_completed", "rpe_score", "exercise_id"},
		},
		{
			name: "missing exercise alongside reps",
			body: map[string]any{"reps_completed": 0},
			want: []string{"reps_completed", "exercise_id"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, base, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body)
			}
			resp := decode[struct {
				Fields []struct {
					Field string `json:"field"`
				} `json:"fields"`
			}](t, rec)
			var got []string
			for _, f := range resp.Fields {
				got = append(got, f.Field)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("fields = %v, want %v", got, tt.want)
			}
		})
	}
	if store.setCount() != 0 {
		t.Error("an invalid set reached the store")
	}
}

func TestCreateSetOnPausedSession(t *testing.T) {
	s, store := newTestServer(t)
	r := seedRoutine(t, store)
	sess := &models.WorkoutSession{UserID: 1, RoutineID: &r.ID, Name: "Push", Status: models.StatusPaused}
	if err := store.CreateSession(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	rec := do(t, s, http.MethodPost, "/api/v1/sessions/"+sess.ID.String()+"/sets", models.ExerciseSet{
		ExerciseID:    r.Exercises[0].ExerciseID,
		RepsCompleted: 5,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestStoreFailureIs500(t *testing.T) {
	s, store := newTestServer(t)
	store.failAll = errors.New("connection refused")

	rec := do(t, s, http.MethodGet, "/api/v1/sessions/active", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestTrainingSummary(t *testing.T) {
	s, store := newTestServer(t)
	r := seedRoutine(t, store)
	done := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	store.sessions[uuid.New()] = &models.WorkoutSession{
		UserID: 1, RoutineID: &r.ID, Status: models.StatusCompleted,
		StartedAt: done.Add(-time.Hour), CompletedAt: &done, TotalDurationSeconds: 3600,
	}

	rec := do(t, s, http.MethodGet, "/api/v1/summary?start=2026-10-01&end=2026-10-16&bucket=month", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	resp := decode[struct {
		Periods []models.TrainingSummaryPeriod `json:"periods"`
	}](t, rec)
	if len(resp.Periods) != 1 || resp.Periods[0].Completed != 1 {
		t.Errorf("periods = %+v", resp.Periods)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/summary?bucket=fortnight", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad bucket = %d, want 400", rec.Code)
	}
}

func TestParseTimeRange(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?start=2026-10-01&end=2026-10-15", nil)
	start, end, err := parseTimeRange(req, 7)
	if err != nil {
		t.Fatal(err)
	}
	if start.Day() != 1 || end.Day() != 16 {
		t.Errorf("range = %v..%v, want whole days 1..15", start, end)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	start, end, err = parseTimeRange(req, 7)
	if err != nil {
		t.Fatal(err)
	}
	if d := end.Sub(start); d != 7*24*time.Hour {
		t.Errorf("default range = %v, want 7 days", d)
	}

	req = httptest.NewRequest(http.MethodGet, "/?start=yesterday", nil)
	if _, _, err := parseTimeRange(req, 7); err == nil {
		t.Error("expected error for invalid start")
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := do(t, s, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestMCPMountedBehindIdentity(t *testing.T) {
	s, _ := newTestServer(t)
	var gotUser int
	s.SetMCP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromRequest(r)
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}"))
	req.Header.Set(UserHeader, "3")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted || gotUser != 3 {
		t.Errorf("status = %d, user = %d", rec.Code, gotUser)
	}
}
