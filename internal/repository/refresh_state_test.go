package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshStateRepository_TimestampsMerge(t *testing.T) {
	ctx := context.Background()
	repo := NewRefreshStateRepository(newTestDB(t))

	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	require.NoError(t, repo.MarkRequest(ctx, -100, "history", t0))
	require.NoError(t, repo.MarkSuccess(ctx, -100, "history", t0))
	require.NoError(t, repo.MarkRequest(ctx, -100, "history", t1))
	require.NoError(t, repo.MarkError(ctx, -100, "history", t1, 420, errors.New("boom")))

	st, err := repo.Get(ctx, -100, "history")
	require.NoError(t, err)
	require.NotNil(t, st.LastSuccessAt)
	assert.True(t, st.LastSuccessAt.Equal(t0), "success survives a later error")
	assert.True(t, st.LastRequestAt.Equal(t1))
	assert.True(t, st.LastErrorAt.Equal(t1))
	require.NotNil(t, st.LastErrorCode)
	assert.Equal(t, 420, *st.LastErrorCode)
	assert.Equal(t, "boom", *st.LastError)

	// success overwrites the error code but keeps the error timestamp
	require.NoError(t, repo.MarkSuccess(ctx, -100, "history", t1))
	st, err = repo.Get(ctx, -100, "history")
	require.NoError(t, err)
	assert.Nil(t, st.LastErrorCode)
	assert.True(t, st.LastErrorAt.Equal(t1))
	assert.True(t, st.LastSuccessAt.Equal(t1))
}

func TestRefreshStateRepository_ForChat(t *testing.T) {
	ctx := context.Background()
	repo := NewRefreshStateRepository(newTestDB(t))
	now := time.Now()

	require.NoError(t, repo.MarkSuccess(ctx, -100, "history", now))
	require.NoError(t, repo.MarkSuccess(ctx, -100, "similar", now))
	require.NoError(t, repo.MarkSuccess(ctx, -200, "history", now))

	states, err := repo.ForChat(ctx, -100)
	require.NoError(t, err)
	assert.Len(t, states, 2)
	assert.Contains(t, states, "similar")

	_, err = repo.Get(ctx, -300, "history")
	assert.ErrorIs(t, err, ErrNotFound)
}
