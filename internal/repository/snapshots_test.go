package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/chanscope/internal/models"
)

func TestSnapshotsRepository_HistoryIsReplaced(t *testing.T) {
	ctx := context.Background()
	repo := NewSnapshotsRepository(newTestDB(t))

	first := models.HistoryDocument{
		ChatID:   -100,
		Limit:    10,
		Messages: []models.MessageRecord{{ID: 3, ChatID: -100}, {ID: 2, ChatID: -100}},
	}
	require.NoError(t, repo.SaveHistory(ctx, first))

	second := models.HistoryDocument{
		ChatID:      -100,
		Limit:       10,
		CollectedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Batches:     []models.HistoryBatch{{FromMessageID: 0, Requested: 10, Received: 1}},
		Messages: []models.MessageRecord{{
			ID:           9,
			ChatID:       -100,
			TextMarkdown: strPtr("**hi**"),
			ViewCount:    50,
			Reactions:    &models.ReactionTotals{Total: 3, Free: 3},
		}},
	}
	require.NoError(t, repo.SaveHistory(ctx, second))

	got, err := repo.GetHistory(ctx, -100)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, int64(9), got.Messages[0].ID)
	assert.Equal(t, "**hi**", got.Messages[0].Text())
	assert.Equal(t, 3, got.Messages[0].ReactionsTotal())
	assert.Equal(t, 1, got.FetchedCount)
	assert.True(t, second.CollectedAt.Equal(got.CollectedAt))

	_, err = repo.GetHistory(ctx, -5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotsRepository_NullComments(t *testing.T) {
	ctx := context.Background()
	repo := NewSnapshotsRepository(newTestDB(t))

	require.NoError(t, repo.SaveComments(ctx, -100, []models.CommentRecord{{Text: "first"}}))
	require.NoError(t, repo.SaveComments(ctx, -100, nil))

	got, err := repo.GetComments(ctx, -100)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = repo.GetComments(ctx, -200)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotsRepository_Similar(t *testing.T) {
	ctx := context.Background()
	repo := NewSnapshotsRepository(newTestDB(t))

	require.NoError(t, repo.SaveSimilar(ctx, -100, []models.SimilarItem{
		{ChatID: -1005, SupergroupID: int64Ptr(5)},
		{ChatID: 77},
	}))

	got, err := repo.GetSimilar(ctx, -100)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(5), *got[0].SupergroupID)
	assert.Nil(t, got[1].SupergroupID)

	require.NoError(t, repo.SaveSimilar(ctx, -100, nil))
	got, err = repo.GetSimilar(ctx, -100)
	require.NoError(t, err)
	assert.Empty(t, got)
}
