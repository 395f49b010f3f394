package migrator

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/chanscope/migrations"
)

func openEmbedded(t *testing.T) source.Driver {
	t.Helper()
	src, err := iofs.New(migrations.FS, ".")
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func readUp(t *testing.T, src source.Driver, version uint) (string, string) {
	t.Helper()
	r, name, err := src.ReadUp(version)
	require.NoError(t, err)
	defer r.Close()
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	return name, string(body)
}

func TestEmbeddedMigrations_Order(t *testing.T) {
	src := openEmbedded(t)

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	next, err := src.Next(first)
	require.NoError(t, err)
	assert.Equal(t, uint(2), next)

	_, err = src.Next(next)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEmbeddedMigrations_InitCreatesTables(t *testing.T) {
	src := openEmbedded(t)
	name, body := readUp(t, src, 1)
	assert.Equal(t, "init", name)

	for _, table := range []string{"channels", "channel_messages", "channel_comments", "channel_similar", "refresh_state", "llm_passports", "tg_sessions"} {
		assert.Contains(t, body, "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}

func TestEmbeddedMigrations_ChannelTargetsIsAdditive(t *testing.T) {
	src := openEmbedded(t)
	name, body := readUp(t, src, 2)
	assert.Equal(t, "channel_targets", name)

	assert.Contains(t, body, "ADD COLUMN IF NOT EXISTS is_target BOOLEAN")
	assert.Contains(t, body, "ADD COLUMN IF NOT EXISTS direct_messages_chat_id BIGINT")
	assert.NotContains(t, strings.ToUpper(body), "DROP")

	r, _, err := src.ReadDown(2)
	require.NoError(t, err)
	r.Close()
}

func TestNewWithFS_NilFS(t *testing.T) {
	m, err := NewWithFS(nil)
	assert.Error(t, err)
	assert.Nil(t, m)
}

func TestMigrator_Up_EmptyURL(t *testing.T) {
	m, err := NewWithFS(migrations.FS)
	require.NoError(t, err)

	err = m.Up(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestMigrator_Version_UnknownScheme(t *testing.T) {
	m, err := NewWithFS(migrations.FS)
	require.NoError(t, err)

	_, _, err = m.Version(context.Background(), "invalid://url")
	assert.Error(t, err)
}

func TestConvertToPgx5URL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"postgres://chanscope:secret@db:5432/chanscope?sslmode=disable", "pgx5://chanscope:secret@db:5432/chanscope?sslmode=disable"},
		{"postgresql://chanscope@localhost/chanscope", "pgx5://chanscope@localhost/chanscope"},
		{"pgx5://chanscope@localhost/chanscope", "pgx5://chanscope@localhost/chanscope"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, convertToPgx5URL(tt.input))
		})
	}
}
