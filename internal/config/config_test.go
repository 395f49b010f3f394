package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CHANNEL_REFRESH_DAYS", "")
	t.Setenv("TG_REQUEST_DELAY_MS", "")
	t.Setenv("CHANNEL_REFRESH_ONLY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Refresh.TTLDays)
	assert.Equal(t, time.Second, cfg.Refresh.RequestDelay)
	assert.Equal(t, 100, cfg.Refresh.HistoryPageSize)
	assert.Equal(t, 200, cfg.Refresh.CommentTarget)
	assert.Equal(t, 30*24*time.Hour, cfg.Refresh.CommentMaxAge)
	assert.Nil(t, cfg.Refresh.Only)
	assert.False(t, cfg.Refresh.Force)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("CHANNEL_REFRESH_DAYS", "0")
	t.Setenv("CHANNEL_FORCE_REFRESH", "yes")
	t.Setenv("CHANNEL_REFRESH_ONLY", "history, comments,,")
	t.Setenv("CHANNEL_REFRESH_SKIP", "similar")
	t.Setenv("TG_REQUEST_DELAY_MS", "250")
	t.Setenv("CHANNEL_COMMENT_MAX_AGE_SECONDS", "60")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Refresh.TTLDays)
	assert.True(t, cfg.Refresh.Force)
	assert.Equal(t, []string{"history", "comments"}, cfg.Refresh.Only)
	assert.Equal(t, []string{"similar"}, cfg.Refresh.Skip)
	assert.Equal(t, 250*time.Millisecond, cfg.Refresh.RequestDelay)
	assert.Equal(t, time.Minute, cfg.Refresh.CommentMaxAge)
}

func TestLoad_InvalidPageSize(t *testing.T) {
	t.Setenv("CHANNEL_HISTORY_PAGE_SIZE", "500")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HistoryPageSize")
}

func TestGetEnvInt_IgnoresGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	assert.Equal(t, 7, getEnvInt("SOME_INT", 7))
}

func TestTelegramConfigured(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.TelegramConfigured())

	cfg.TGApiID = 1
	cfg.TGApiHash = "hash"
	assert.True(t, cfg.TelegramConfigured())
}
