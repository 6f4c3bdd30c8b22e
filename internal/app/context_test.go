package app

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchline/internal/config"
	"dispatchline/internal/migrate"
)

func TestInitWritesConfigOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path, err := Init(ctx, dir, "ops-east", false)
	require.NoError(t, err)
	assert.Equal(t, config.Path(dir), path)

	_, err = Init(ctx, dir, "ops-east", false)
	assert.Error(t, err)
	_, err = Init(ctx, dir, "ops-west", true)
	require.NoError(t, err)

	ws, err := Open(ctx, Options{Workspace: dir})
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, "ops-west", ws.Config.Operator.ID)
	v, err := migrate.Version(ctx, ws.DB)
	require.NoError(t, err)
	assert.Positive(t, v)
}

func TestOpenFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	ws, err := Open(ctx, Options{Workspace: t.TempDir(), OperatorID: "ops-1", LogLevel: "debug"})
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, "ops-1", ws.Config.Operator.ID)
	assert.Equal(t, "debug", ws.Config.Log.Level)
	assert.Equal(t, 4, ws.Engine.Calendar.RolloverHour)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("operator:\n  id: \"\"\n"), 0o644))
	_, err := Open(context.Background(), Options{Workspace: dir})
	assert.Error(t, err)
}
