package prefs

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *StateDB {
	t.Helper()
	db, err := OpenStateDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSelection_RoundTripPerUser(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, ok, err := db.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)

	a, b := uuid.New(), uuid.New()
	require.NoError(t, db.Set(ctx, 1, a))
	require.NoError(t, db.Set(ctx, 2, b))

	got, ok, err := db.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a, got)

	require.NoError(t, db.Clear(ctx, 1))
	_, ok, err = db.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)

	got, ok, err = db.Get(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok, "clearing one user leaves the others")
	require.Equal(t, b, got)
}

func TestSelection_OverwriteKeepsLatest(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first, second := uuid.New(), uuid.New()
	require.NoError(t, db.Set(ctx, 1, first))
	require.NoError(t, db.Set(ctx, 1, second))

	got, _, err := db.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, second, got)
}

func TestSelection_MalformedValueIsAMiss(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Store(ctx, 1, KeySelectedRoutine, "not-a-uuid"))

	_, ok, err := db.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = db.Lookup(ctx, 1, KeySelectedRoutine)
	require.NoError(t, err)
	require.False(t, ok, "malformed value was dropped")
}

func TestSelection_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	id := uuid.New()

	db, err := OpenStateDB(dir)
	require.NoError(t, err)
	require.NoError(t, db.Set(ctx, 7, id))
	require.NoError(t, db.SetLastUser(ctx, 7))
	require.NoError(t, db.Close())

	db, err = OpenStateDB(dir)
	require.NoError(t, err)
	defer db.Close()

	got, ok, err := db.Get(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id, got)

	user, ok, err := db.LastUser(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 7, user)
}

func TestDelete_AbsentKey(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Delete(context.Background(), 3, KeySelectedRoutine))
}
