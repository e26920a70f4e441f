package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("TOOLKIT_TEST_HOST", "db.internal")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"set variable", "host: ${TOOLKIT_TEST_HOST}", "host: db.internal"},
		{"set variable ignores default", "host: ${TOOLKIT_TEST_HOST:localhost}", "host: db.internal"},
		{"unset uses default", "port: ${TOOLKIT_TEST_UNSET:5432}", "port: 5432"},
		{"empty default", "password: ${TOOLKIT_TEST_UNSET:}", "password: "},
		{"unset without default kept", "key: ${TOOLKIT_TEST_UNSET}", "key: ${TOOLKIT_TEST_UNSET}"},
		{"default with url", "url: ${TOOLKIT_TEST_UNSET:https://api.openai.com/v1}", "url: https://api.openai.com/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnv(tt.in))
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadFromMergesEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "staging")
	t.Setenv("TOOLKIT_TEST_PORT", "9090")

	writeFile(t, dir, "config.yaml", `
server:
  http:
    port: ${TOOLKIT_TEST_PORT:8080}
database:
  driver: postgres
credits:
  initial_balance: 50
toolkit:
  costs:
    competitor-analysis: 8
    sentiment-analysis: 1
`)
	writeFile(t, dir, "config.staging.yaml", `
database:
  driver: memory
toolkit:
  costs:
    competitor-analysis: 10
`)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTP.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, int64(50), cfg.Credits.InitialBalance)
	assert.Equal(t, int64(10), cfg.Toolkit.Costs["competitor-analysis"])
	assert.Equal(t, int64(1), cfg.Toolkit.Costs["sentiment-analysis"])

	// 未配置项取默认值
	assert.Equal(t, "ai-toolkit-api", cfg.App.Name)
	assert.Equal(t, 30*time.Second, cfg.Cache.BalanceTTL)
	assert.Equal(t, 5, cfg.Messaging.RedisStream.RetryLimit)
}

func TestLoadFromRejectsInvalidConfig(t *testing.T) {
	t.Setenv("APP_ENV", "none")

	tests := []struct {
		name    string
		content string
	}{
		{"unknown driver", "database:\n  driver: sqlite\n"},
		{"negative cost", "toolkit:\n  costs:\n    release-notes: -1\n"},
		{"jwt without secret", "security:\n  jwt:\n    enabled: true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "config.yaml", tt.content)
			_, err := LoadFrom(dir)
			assert.Error(t, err)
		})
	}
}

func TestLoadFromMissingBaseFile(t *testing.T) {
	_, err := LoadFrom(t.TempDir())
	assert.Error(t, err)
}
