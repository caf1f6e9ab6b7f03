package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosspost/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	assert.Error(t, err)
	_, err = Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
}

func exerciseStore(t *testing.T, open func() Store) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	st := open()
	ok, err := st.HasPost(ctx, "a1", "bluesky")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.PutPost(ctx, "a1", "bluesky", at))
	require.NoError(t, st.PutPost(ctx, "a1", "bluesky", at.Add(time.Minute)))
	for i := 0; i < 3; i++ {
		require.NoError(t, st.AppendRun(ctx, RunRecord{
			RunID: fmt.Sprintf("r%d", i), Trigger: "schedule", StartedAt: at, Articles: i, Posted: i,
		}))
	}
	require.NoError(t, st.Close())

	// Reopen: ledger and history survive.
	st = open()
	defer st.Close()
	ok, err = st.HasPost(ctx, "a1", "bluesky")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.HasPost(ctx, "a1", "twitter")
	require.NoError(t, err)
	assert.False(t, ok)

	runs, err := st.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].RunID)
	assert.Equal(t, "r1", runs[1].RunID)
	assert.Equal(t, "schedule", runs[0].Trigger)
	assert.True(t, runs[0].StartedAt.Equal(at))
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data", "crosspost.db")
	exerciseStore(t, func() Store {
		st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
		require.NoError(t, err)
		return st
	})
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "crosspost.sqlite")
	exerciseStore(t, func() Store {
		st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
		require.NoError(t, err)
		return st
	})
}

func TestFileStoreClosed(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "x.db")}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Close())
	_, err = st.HasPost(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, st.AppendRun(context.Background(), RunRecord{}), ErrClosed)
}
