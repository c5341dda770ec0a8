package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	// Empty variables are ignored by viper, so the defaults apply.
	t.Setenv("MONZO_CLIENT_ID", "")
	t.Setenv("MONZO_API_ROOT", "")
	t.Setenv("MONZO_PAGE_LIMIT", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "https://api.monzo.com/", cfg.MonzoAPIRoot)
	assert.Equal(t, "http://localhost:8080/callback", cfg.MonzoRedirectURI)
	assert.Equal(t, ".monzo_token", cfg.MonzoTokenFile)
	assert.Equal(t, 100, cfg.MonzoPageLimit)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Error(t, cfg.RequireOAuthClient())
}

func TestLoadConfig_EnvFileOverridesEnvironment(t *testing.T) {
	t.Setenv("MONZO_CLIENT_ID", "from-environment")
	t.Setenv("MONZO_CLIENT_SECRET", "secret")
	t.Setenv("MONZO_API_ROOT", "http://127.0.0.1:9999")
	t.Setenv("LOG_LEVEL", "debug")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("MONZO_CLIENT_ID=from-dotenv\n"), 0o600))

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", cfg.MonzoClientID)
	assert.Equal(t, "http://127.0.0.1:9999/", cfg.MonzoAPIRoot, "API root gets a trailing slash")
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.NoError(t, cfg.RequireOAuthClient())
}

func TestLoadConfig_InvalidRateLimit(t *testing.T) {
	t.Setenv("MONZO_RATE_LIMIT", "lots")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MONZO_RATE_LIMIT")
}

func TestParseImportersFile(t *testing.T) {
	doc := []byte(`
accounts:
  acc_00009abc: monzo_personal
payees:
  Pret A Manger: Expenses:EatingOut:Coffee
importers:
  - source: monzo
    account: Assets:Monzo:Cash
    currency: GBP
    params:
      ignore_bank_categories: true
      by_payee:
        Landlord Ltd: Expenses:Rent
  - source: nationwide
    account: Assets:Nationwide:Personal
    currency: GBP
`)

	f, err := ParseImportersFile(doc)
	require.NoError(t, err)

	assert.Equal(t, "monzo_personal", f.Accounts["acc_00009abc"])
	assert.Equal(t, "Expenses:EatingOut:Coffee", f.Payees["Pret A Manger"], "payee keys keep their case")
	require.Len(t, f.Importers, 2)
	assert.True(t, f.Importers[0].Params.IgnoreBankCategories)
	assert.Equal(t, "Expenses:Rent", f.Importers[0].Params.ByPayee["Landlord Ltd"])
	assert.Equal(t, "nationwide", f.Importers[1].Source)
}

func TestParseImportersFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown source", "importers:\n  - source: barclays\n    account: Assets:Bank\n    currency: GBP\n"},
		{"account without hierarchy", "importers:\n  - source: monzo\n    account: Cash\n    currency: GBP\n"},
		{"lowercase currency", "importers:\n  - source: monzo\n    account: Assets:Monzo\n    currency: gbp\n"},
		{"not yaml", "importers: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseImportersFile([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadImportersFile_Missing(t *testing.T) {
	f, err := LoadImportersFile(filepath.Join(t.TempDir(), "importers.yaml"))
	require.NoError(t, err)
	assert.Empty(t, f.Importers)
}
