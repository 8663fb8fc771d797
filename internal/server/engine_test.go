package server

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/prefs"
	"github.com/claude/liftlog/internal/remote"
	"github.com/claude/liftlog/internal/workout"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// TestEngineOverHTTP drives a training engine through the remote client
// against the real router, then recovers the session in a second engine.
func TestEngineOverHTTP(t *testing.T) {
	s, store := newTestServer(t)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	r := seedRoutine(t, store)

	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))

	state, err := prefs.OpenStateDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = state.Close() })

	newEngine := func() *workout.Engine {
		e := workout.NewEngine(remote.NewClient(ts.URL, remote.WithLogger(log)), state, 1,
			workout.Config{Clock: clock}, log)
		t.Cleanup(e.Close)
		return e
	}

	e := newEngine()
	require.NoError(t, e.Load(ctx))
	require.Equal(t, workout.StatusNone, e.Snapshot().Status)

	_, err = e.SelectRoutine(ctx, r.ID)
	require.NoError(t, err)
	sess, err := e.Start(ctx, r.ID, "")
	require.NoError(t, err)
	require.Equal(t, "Push Day - Oct 16, 2026", sess.Name)

	weight := 52.5
	_, err = e.RecordSet(ctx, r.Exercises[0].ExerciseID, workout.SetInput{WeightKg: &weight, Reps: 8})
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	require.NoError(t, e.Pause(ctx))
	clock.Advance(3 * time.Minute)

	// A fresh engine sees the paused session with its set.
	e2 := newEngine()
	require.NoError(t, e2.Load(ctx))
	snap := e2.Snapshot()
	require.Equal(t, workout.StatusPaused, snap.Status)
	require.Equal(t, 300, snap.ElapsedSeconds)
	require.Equal(t, 1, e2.Ledger().Len())

	require.NoError(t, e2.Resume(ctx))
	clock.Advance(10 * time.Minute)
	done, err := e2.Complete(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, done.Status)
	require.Equal(t, 900, done.TotalDurationSeconds)
	require.Equal(t, 180, done.PausedSeconds)

	stored, err := store.GetSession(ctx, 1, sess.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, stored.Status)
	require.Equal(t, 900, stored.TotalDurationSeconds)

	require.Len(t, e2.History(), 1)
	require.Equal(t, workout.StatusNone, e2.Snapshot().Status)
}

// TestEngineOverHTTP_SecondClientConflict checks the server rejects a
// second live session started from another client.
func TestEngineOverHTTP_SecondClientConflict(t *testing.T) {
	s, store := newTestServer(t)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	r := seedRoutine(t, store)
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	state, err := prefs.OpenStateDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = state.Close() })

	a := workout.NewEngine(remote.NewClient(ts.URL), state, 1, workout.Config{}, log)
	b := workout.NewEngine(remote.NewClient(ts.URL), state, 1, workout.Config{}, log)
	t.Cleanup(a.Close)
	t.Cleanup(b.Close)

	_, err = a.Start(ctx, r.ID, "")
	require.NoError(t, err)

	_, err = b.Start(ctx, r.ID, "")
	require.ErrorIs(t, err, workout.ErrSessionLive)
}
