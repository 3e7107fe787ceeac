package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarworks/lineage-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "console", cfg.App.LogFormat)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Server.AllowedOrigins)
	assert.Empty(t, cfg.Data.LedgerPath)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LINEAGE_LOG_LEVEL", "debug")
	t.Setenv("LINEAGE_SERVER_PORT", "9090")
	t.Setenv("LINEAGE_ALLOWED_ORIGINS", "https://bi.example.com")
	t.Setenv("LINEAGE_LEDGER_PATH", "/data/transactions.csv")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://bi.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "/data/transactions.csv", cfg.Data.LedgerPath)
}
