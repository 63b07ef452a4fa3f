package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
sync:
  updateFrequency: "0 */2 * * *"
  users: ["user-1", "user-2"]
  initialWindowDays: 14
  providerTimeout: 5s
plaid:
  environment: production
classifier:
  backend: rules
  fallback: misc
  rules:
    - label: coffee
      keywords: ["starbucks", "cafe"]
influx:
  enabled: true
  database: finance
`

func TestReadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	conf, err := readConfig("", path)
	require.NoError(t, err)

	assert.Equal(t, "0 */2 * * *", conf.Sync.UpdateFrequency)
	assert.Equal(t, []string{"user-1", "user-2"}, conf.Sync.Users)
	assert.Equal(t, 14, conf.Sync.InitialWindowDays)
	assert.Equal(t, 5*time.Second, conf.Sync.Timeout())
	assert.Equal(t, "production", conf.Plaid.Environment)
	assert.Equal(t, "misc", conf.Classifier.Fallback)
	require.Len(t, conf.Classifier.Rules, 1)
	assert.Equal(t, []string{"starbucks", "cafe"}, conf.Classifier.Rules[0].Keywords)
	assert.True(t, conf.Influx.Enabled)
	assert.Equal(t, "spending", conf.Influx.Measurement)
}

func TestReadConfigPrefersEnvironment(t *testing.T) {
	t.Setenv("PLAIDSYNC_CONFIG", "sync:\n  maxConcurrentAccounts: 9\n")

	conf, err := readConfig("PLAIDSYNC_CONFIG", filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, 9, conf.Sync.MaxConcurrentAccounts)
}

func TestReadConfigDefaults(t *testing.T) {
	conf, err := readConfig("", filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, defaultUpdateFrequency, conf.Sync.UpdateFrequency)
	assert.Equal(t, 30, conf.Sync.InitialWindowDays)
	assert.Equal(t, 30*time.Second, conf.Sync.Timeout())
	assert.Equal(t, defaultMaxConcurrentAccounts, conf.Sync.MaxConcurrentAccounts)
	assert.Equal(t, "sandbox", conf.Plaid.Environment)
	assert.Equal(t, []string{"US"}, conf.Plaid.CountryCodes)
	assert.Equal(t, 500, conf.Plaid.PageSize)
	assert.Equal(t, "rules", conf.Classifier.Backend)
}

func TestReadConfigClampsPlaidPageSize(t *testing.T) {
	t.Setenv("PLAIDSYNC_CONFIG", "plaid:\n  pageSize: 100\n")
	conf, err := readConfig("PLAIDSYNC_CONFIG", "")
	require.NoError(t, err)
	assert.Equal(t, 100, conf.Plaid.PageSize)

	t.Setenv("PLAIDSYNC_CONFIG", "plaid:\n  pageSize: 5000\n")
	conf, err = readConfig("PLAIDSYNC_CONFIG", "")
	require.NoError(t, err)
	assert.Equal(t, 500, conf.Plaid.PageSize)
}

func TestReadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("PLAIDSYNC_CONFIG", "sync:\n  providerTimeout: soon\n")
	_, err := readConfig("PLAIDSYNC_CONFIG", "")
	assert.Error(t, err)

	t.Setenv("PLAIDSYNC_CONFIG", "classifier:\n  backend: tensorflow\n")
	_, err = readConfig("PLAIDSYNC_CONFIG", "")
	assert.Error(t, err)
}

func TestReadSecretsFallsBackToEnvironment(t *testing.T) {
	t.Setenv("PLAID_CLIENT_ID", "client")
	t.Setenv("PLAID_SECRET", "shh")
	t.Setenv("DATABASE_URL", "postgres://localhost/plaidsync")

	secrets, err := readSecrets(filepath.Join(t.TempDir(), "missing.ejson"))
	require.NoError(t, err)

	assert.Equal(t, "client", secrets.Plaid.ClientID)
	assert.Equal(t, "shh", secrets.Plaid.Secret)
	assert.Equal(t, "postgres://localhost/plaidsync", secrets.DatabaseURL)
}

func TestLoadReadsDotenv(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("GEMINI_API_KEY=from-dotenv\n"), 0o644))
	t.Setenv("GEMINI_API_KEY", "")
	os.Unsetenv("GEMINI_API_KEY")

	_, secrets, err := Load("", filepath.Join(dir, "config.yml"), filepath.Join(dir, "secrets.ejson"), dotenv)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", secrets.Gemini.APIKey)
}
