package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "fundbook.db", cfg.DatabasePath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 500.0, cfg.ContributionTarget)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_PATH", "/tmp/test_fundbook.db")
	t.Setenv("CONTRIBUTION_TARGET", "750")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "/tmp/test_fundbook.db", cfg.DatabasePath)
	assert.Equal(t, 750.0, cfg.ContributionTarget)
}

func TestLoad_RejectsNegativeTarget(t *testing.T) {
	t.Setenv("CONTRIBUTION_TARGET", "-10")

	_, err := Load(t.TempDir())
	require.Error(t, err)
}
