package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 200
	summaryDefaultDays  = 90
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	uid := userIDFromContext(r)
	info := userInfoFromContext(r)

	if s.store != nil {
		u, err := s.store.GetUser(r.Context(), uid)
		if err == nil {
			writeJSON(w, http.StatusOK, u)
			return
		}
		if !errors.Is(err, workout.ErrNotFound) {
			s.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, models.User{ID: uid, Login: info.Login, DisplayName: info.DisplayName})
}

// --- Routines ---

func (s *Server) handleListRoutines(w http.ResponseWriter, r *http.Request) {
	routines, err := s.store.ListRoutines(r.Context(), userIDFromContext(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if routines == nil {
		routines = []models.Routine{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"routines": routines})
}

func (s *Server) handleCreateRoutine(w http.ResponseWriter, r *http.Request) {
	var rt models.Routine
	if !decodeBody(w, r, &rt) {
		return
	}
	rt.Name = strings.TrimSpace(rt.Name)
	if rt.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "routine name is required"})
		return
	}
	for _, ex := range rt.Exercises {
		if strings.TrimSpace(ex.Name) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exercise name is required"})
			return
		}
	}
	rt.UserID = userIDFromContext(r)

	if err := s.store.CreateRoutine(r.Context(), &rt); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rt)
}

func (s *Server) handleGetRoutine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "routine")
	if !ok {
		return
	}
	rt, err := s.store.GetRoutine(r.Context(), userIDFromContext(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (s *Server) handleDeleteRoutine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "routine")
	if !ok {
		return
	}
	if err := s.store.DeleteRoutine(r.Context(), userIDFromContext(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Sessions ---

// handleListSessions returns finished sessions newest first, or every session
// in a range when start or end is given.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	uid := userIDFromContext(r)
	q := r.URL.Query()

	var sessions []models.WorkoutSession
	var err error
	if q.Get("start") != "" || q.Get("end") != "" {
		start, end, perr := parseTimeRange(r, 7)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": perr.Error()})
			return
		}
		sessions, err = s.store.QuerySessions(r.Context(), start, end, uid)
	} else {
		limit := defaultSessionLimit
		if l := q.Get("limit"); l != "" {
			if parsed, perr := strconv.Atoi(l); perr == nil && parsed > 0 {
				limit = min(parsed, maxSessionLimit)
			}
		}
		sessions, err = s.store.RecentSessions(r.Context(), uid, limit)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []models.WorkoutSession{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var sess models.WorkoutSession
	if !decodeBody(w, r, &sess) {
		return
	}
	sess.UserID = userIDFromContext(r)
	sess.Name = strings.TrimSpace(sess.Name)

	verr := &workout.ValidationError{}
	if sess.Name == "" {
		verr.Fields = append(verr.Fields, workout.FieldError{Field: "name", Message: "is required"})
	}
	if sess.RoutineID == nil || *sess.RoutineID == uuid.Nil {
		verr.Fields = append(verr.Fields, workout.FieldError{Field: "routine_id", Message: "is required"})
	}
	if sess.Status != "" && sess.Status != models.StatusActive {
		verr.Fields = append(verr.Fields, workout.FieldError{Field: "status", Message: "a new session must be ACTIVE"})
	}
	if len(verr.Fields) > 0 {
		s.writeError(w, r, verr)
		return
	}
	sess.Status = models.StatusActive

	if err := s.store.CreateSession(r.Context(), &sess); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.ActiveSession(r.Context(), userIDFromContext(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sess == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "session")
	if !ok {
		return
	}
	sess, err := s.store.GetSession(r.Context(), userIDFromContext(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "session")
	if !ok {
		return
	}
	var u models.SessionUpdate
	if !decodeBody(w, r, &u) {
		return
	}
	if err := validateSessionUpdate(u); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.UpdateSession(r.Context(), userIDFromContext(r), id, u); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func validateSessionUpdate(u models.SessionUpdate) error {
	verr := &workout.ValidationError{}
	if _, err := models.ParseSessionStatus(string(u.Status)); err != nil {
		verr.Fields = append(verr.Fields, workout.FieldError{Field: "status", Message: err.Error()})
	}
	if u.Status.IsTerminal() && u.CompletedAt == nil {
		verr.Fields = append(verr.Fields, workout.FieldError{Field: "completed_at", Message: "is required when finishing"})
	}
	if u.Status == models.StatusPaused && u.PausedAt == nil {
		verr.Fields = append(verr.Fields, workout.FieldError{Field: "paused_at", Message: "is required when pausing"})
	}
	for field, v := range map[string]int{
		"paused_seconds":         u.PausedSeconds,
		"exercise_seconds":       u.ExerciseSeconds,
		"total_duration_seconds": u.TotalDurationSeconds,
	} {
		if v < 0 {
			verr.Fields = append(verr.Fields, workout.FieldError{Field: field, Message: "must not be negative"})
		}
	}
	if len(verr.Fields) == 0 {
		return nil
	}
	return verr
}

// --- Sets ---

func (s *Server) handleListSets(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "session")
	if !ok {
		return
	}
	sets, err := s.store.ListSets(r.Context(), userIDFromContext(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sets == nil {
		sets = []models.ExerciseSet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sets": sets})
}

func (s *Server) handleCreateSet(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "session")
	if !ok {
		return
	}
	var set models.ExerciseSet
	if !decodeBody(w, r, &set) {
		return
	}
	set.SessionID = sessionID
	if err := validateSet(&set); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.store.CreateSet(r.Context(), userIDFromContext(r), &set); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, set)
}

func (s *Server) handleUpdateSet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "set")
	if !ok {
		return
	}
	var set models.ExerciseSet
	if !decodeBody(w, r, &set) {
		return
	}
	set.ID = id
	if err := validateSet(&set); err != nil {
		s.writeError(w, r, err)
		return
	}

	uid := userIDFromContext(r)
	if err := s.store.UpdateSet(r.Context(), uid, &set); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.store.GetSet(r.Context(), uid, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteSet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "set")
	if !ok {
		return
	}
	if err := s.store.DeleteSet(r.Context(), userIDFromContext(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validateSet normalizes the set type and applies the ledger rules. Every
// failing field is reported in one error.
func validateSet(set *models.ExerciseSet) error {
	if st, err := models.ParseSetType(string(set.SetType)); err == nil {
		set.SetType = st
	}
	verr := &workout.ValidationError{}
	if err := workout.ValidateSet(set.SetType, set.WeightKg, set.RepsCompleted, set.RPEScore); err != nil {
		if !errors.As(err, &verr) {
			return err
		}
	}
	if set.SessionID != uuid.Nil && set.ExerciseID == uuid.Nil {
		verr.Fields = append(verr.Fields, workout.FieldError{Field: "exercise_id", Message: "is required"})
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// --- Summary ---

func (s *Server) handleTrainingSummary(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseTimeRange(r, summaryDefaultDays)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	bucket, err := models.ParseSummaryBucket(r.URL.Query().Get("bucket"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	periods, err := s.store.GetTrainingSummary(r.Context(), start, end, bucket, userIDFromContext(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if periods == nil {
		periods = []models.TrainingSummaryPeriod{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"periods": periods})
}

// --- Helpers ---

// writeError maps domain errors onto HTTP statuses. Anything unrecognized
// is logged and reported as a 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *workout.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr.Error(), "fields": verr.Fields})
	case errors.Is(err, workout.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, workout.ErrSessionLive):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, workout.ErrSessionNotActive), errors.Is(err, workout.ErrInvalidRoutine):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + what + " ID"})
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseTimeRange reads start/end as RFC3339 or YYYY-MM-DD. A missing start
// means defaultDays before end; a date-only end includes that whole day.
func parseTimeRange(r *http.Request, defaultDays int) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if endStr == "" {
		end = time.Now()
	} else {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			end, err = time.Parse("2006-01-02", endStr)
			if err != nil {
				return time.Time{}, time.Time{}, err
			}
			end = end.Add(24 * time.Hour)
		}
	}

	if startStr == "" {
		start = end.AddDate(0, 0, -defaultDays)
		return start, end, nil
	}
	start, err = time.Parse(time.RFC3339, startStr)
	if err != nil {
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return start, end, nil
}
