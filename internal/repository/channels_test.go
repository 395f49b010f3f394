package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/chanscope/internal/models"
)

func TestChannelsRepository_UpsertMergesKnownFields(t *testing.T) {
	ctx := context.Background()
	repo := NewChannelsRepository(newTestDB(t))

	require.NoError(t, repo.Upsert(ctx, models.Channel{
		ChatID:         -1001,
		Title:          strPtr("Original"),
		MemberCount:    intPtr(100),
		Description:    strPtr("about"),
		ActiveUsername: strPtr("chan"),
		IsTarget:       boolPtr(true),
	}))

	// nulls for title, description and member count keep stored values
	require.NoError(t, repo.Upsert(ctx, models.Channel{
		ChatID:     -1001,
		BoostLevel: intPtr(2),
	}))

	got, err := repo.GetByID(ctx, -1001)
	require.NoError(t, err)
	assert.Equal(t, "Original", *got.Title)
	assert.Equal(t, "about", *got.Description)
	assert.Equal(t, 100, *got.MemberCount)
	assert.Equal(t, 2, *got.BoostLevel)
	assert.True(t, *got.IsTarget)

	// a known value always replaces
	require.NoError(t, repo.Upsert(ctx, models.Channel{
		ChatID:      -1001,
		Title:       strPtr("Renamed"),
		MemberCount: intPtr(0),
		IsTarget:    boolPtr(false),
	}))

	got, err = repo.GetByID(ctx, -1001)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", *got.Title)
	assert.Equal(t, 0, *got.MemberCount)
	assert.False(t, *got.IsTarget)
	assert.Equal(t, "about", *got.Description)
}

func TestChannelsRepository_ForceColumnsOverwriteWithNull(t *testing.T) {
	ctx := context.Background()
	repo := NewChannelsRepository(newTestDB(t))

	require.NoError(t, repo.Upsert(ctx, models.Channel{
		ChatID:       -1002,
		SupergroupID: int64Ptr(2),
		IsTarget:     boolPtr(true),
		Title:        strPtr("t"),
	}))
	require.NoError(t, repo.Upsert(ctx, models.Channel{ChatID: -1002}, ForceColumns("supergroup_id", "is_target")))

	got, err := repo.GetByID(ctx, -1002)
	require.NoError(t, err)
	assert.Nil(t, got.SupergroupID)
	assert.Nil(t, got.IsTarget)
	assert.Equal(t, "t", *got.Title)
}

func TestChannelsRepository_UpsertRequiresKey(t *testing.T) {
	repo := NewChannelsRepository(newTestDB(t))
	err := repo.Upsert(context.Background(), models.Channel{Title: strPtr("x")})
	assert.True(t, errors.Is(err, ErrMissingKey))
}

func TestChannelsRepository_GetByUsername(t *testing.T) {
	ctx := context.Background()
	repo := NewChannelsRepository(newTestDB(t))
	require.NoError(t, repo.Upsert(ctx, models.Channel{ChatID: -1003, ActiveUsername: strPtr("GoNews")}))

	got, err := repo.GetByUsername(ctx, "@gonews")
	require.NoError(t, err)
	assert.Equal(t, int64(-1003), got.ChatID)

	_, err = repo.GetByUsername(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetByID(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChannelsRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := NewChannelsRepository(newTestDB(t))
	require.NoError(t, repo.Upsert(ctx, models.Channel{ChatID: -1, MemberCount: intPtr(10), IsTarget: boolPtr(true)}))
	require.NoError(t, repo.Upsert(ctx, models.Channel{ChatID: -2, MemberCount: intPtr(500), IsTarget: boolPtr(true)}))
	require.NoError(t, repo.Upsert(ctx, models.Channel{ChatID: -3, MemberCount: intPtr(900)}))

	all, err := repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	targets, err := repo.List(ctx, ListFilter{TargetsOnly: true})
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, int64(-2), targets[0].ChatID)

	some, err := repo.List(ctx, ListFilter{IDs: []int64{-1, -3}})
	require.NoError(t, err)
	assert.Len(t, some, 2)
}
