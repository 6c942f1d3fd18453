package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEYS", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("EXPORT_S3_ENDPOINT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost:8084", cfg.Address())
	assert.Equal(t, 10, cfg.Dashboard.DefaultTopN)
	assert.Equal(t, ".cache", cfg.Database.CacheDir)
	assert.Equal(t, 20*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 4000, cfg.AI.MaxPromptChars)
	assert.False(t, cfg.AI.Enabled())
	assert.False(t, cfg.Export.Enabled())
	assert.Equal(t, 15*time.Minute, cfg.Export.URLExpiry)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("CSV_FILE", "/data/amazon.csv")
	t.Setenv("DASHBOARD_TOP_N", "5")
	t.Setenv("AI_TIMEOUT", "45s")
	t.Setenv("AI_RPS", "0.5")
	t.Setenv("GEMINI_API_KEYS", "key-a, ,key-b")
	t.Setenv("EXPORT_S3_ENDPOINT", "localhost:9000")
	t.Setenv("EXPORT_S3_ACCESS_KEY", "minio")
	t.Setenv("EXPORT_S3_SECRET_KEY", "minio123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/data/amazon.csv", cfg.Database.CSVFile)
	assert.Equal(t, 5, cfg.Dashboard.DefaultTopN)
	assert.Equal(t, 45*time.Second, cfg.AI.Timeout)
	assert.InDelta(t, 0.5, cfg.AI.RPS, 1e-9)
	assert.Equal(t, []string{"key-a", "key-b"}, cfg.AI.APIKeys)
	assert.True(t, cfg.Export.Enabled())
}

func TestLoad_SingleAPIKeyFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEYS", "")
	t.Setenv("GEMINI_API_KEY", "only-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"only-key"}, cfg.AI.APIKeys)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"port", map[string]string{"SERVER_PORT": "70000"}, "server port"},
		{"top n", map[string]string{"DASHBOARD_TOP_N": "0"}, "top N"},
		{"prompt budget", map[string]string{"AI_MAX_PROMPT_CHARS": "100"}, "prompt chars"},
		{"negative rps", map[string]string{"AI_RPS": "-1"}, "RPS"},
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, "log level"},
		{"export without keys", map[string]string{"EXPORT_S3_ENDPOINT": "localhost:9000", "EXPORT_S3_ACCESS_KEY": "", "EXPORT_S3_SECRET_KEY": ""}, "EXPORT_S3_ACCESS_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
