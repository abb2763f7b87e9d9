package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearRunnerEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MOONLIGHT_BUILD_MODE", "MOONLIGHT_AUTHOR_ID", "MOONLIGHT_AUTHOR_USERNAME", "MOONLIGHT_AUTHOR_PR",
		"MOONLIGHT_MANIFESTS_PATH", "MOONLIGHT_DIST_PATH", "MOONLIGHT_WORK_PATH", "MOONLIGHT_WORK_HOST_PATH",
		"MOONLIGHT_GROUP_PATH", "MOONLIGHT_STORE_PATH", "EXTRUNNER_SANDBOX_CONCURRENCY", "EXTRUNNER_LOG_LEVEL",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	clearRunnerEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultManifestsPath, cfg.Paths.Manifests)
	assert.Equal(t, DefaultDistPath, cfg.Paths.Dist)
	assert.Equal(t, DefaultWorkPath, cfg.Paths.Work)
	assert.Equal(t, DefaultGroupPath, cfg.Paths.Group)
	assert.Equal(t, DefaultStorePath, cfg.Paths.Store)
	assert.Empty(t, cfg.Paths.WorkHost)
	assert.Equal(t, DefaultImage, cfg.Sandbox.Image)
	assert.Equal(t, 1, cfg.Sandbox.Concurrency)
	assert.Equal(t, LogLevelInfo, cfg.Logging.Level)
	assert.Equal(t, Mode(""), cfg.Mode)
}

func TestLoad_YAMLThenEnvironment(t *testing.T) {
	clearRunnerEnv(t)

	path := filepath.Join(t.TempDir(), "extrunner.yaml")
	yml := `mode: push
paths:
  manifests: /srv/manifests
  work: ${TEST_WORK_DIR}
sandbox:
  concurrency: 4
  phase_timeout: 10m
logging:
  level: DEBUG
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("TEST_WORK_DIR", "/srv/work")
	t.Setenv("MOONLIGHT_BUILD_MODE", "PR")
	t.Setenv("MOONLIGHT_AUTHOR_USERNAME", "NotNite")
	t.Setenv("MOONLIGHT_AUTHOR_ID", "123")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModePR, cfg.Mode, "environment wins over the file")
	assert.Equal(t, "/srv/manifests", cfg.Paths.Manifests)
	assert.Equal(t, "/srv/work", cfg.Paths.Work)
	assert.Equal(t, 4, cfg.Sandbox.Concurrency)
	assert.Equal(t, LogLevelDebug, cfg.Logging.Level)
	assert.Equal(t, "NotNite", cfg.Author.Username)
	assert.Equal(t, "123", cfg.Author.ID)

	timeout, err := cfg.Sandbox.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, timeout)
}

func TestLoad_InvalidMode(t *testing.T) {
	clearRunnerEnv(t)
	t.Setenv("MOONLIGHT_BUILD_MODE", "deploy")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid build mode")
}

func TestValidateOrchestrator(t *testing.T) {
	t.Run("missing mode", func(t *testing.T) {
		cfg := Default()
		require.Error(t, cfg.ValidateOrchestrator())
	})

	t.Run("group phase rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Mode = ModeFetch
		require.Error(t, cfg.ValidateOrchestrator())
	})

	t.Run("work host falls back to work", func(t *testing.T) {
		cfg := Default()
		cfg.Mode = ModePush
		require.NoError(t, cfg.ValidateOrchestrator())
		assert.Equal(t, cfg.Paths.Work, cfg.Paths.WorkHost)
	})

	t.Run("relative work host", func(t *testing.T) {
		cfg := Default()
		cfg.Mode = ModeAll
		cfg.Paths.WorkHost = "work"
		require.Error(t, cfg.ValidateOrchestrator())
	})

	t.Run("bad timeout", func(t *testing.T) {
		cfg := Default()
		cfg.Mode = ModePush
		cfg.Sandbox.PhaseTimeout = "soon"
		require.Error(t, cfg.ValidateOrchestrator())
	})

	t.Run("publish without bucket", func(t *testing.T) {
		cfg := Default()
		cfg.Mode = ModePush
		cfg.Publish.Endpoint = "s3.example.com"
		require.Error(t, cfg.ValidateOrchestrator())
	})
}

func TestValidateGroupPhase(t *testing.T) {
	cfg := Default()
	cfg.Mode = ModeBuild
	require.NoError(t, cfg.ValidateGroupPhase())

	cfg.Mode = ModePush
	require.Error(t, cfg.ValidateGroupPhase())
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, ModePR, NormalizeMode(" pull-request "))
	assert.Equal(t, Mode(""), NormalizeMode("nope"))
	assert.True(t, ModeFetch.IsGroupPhase())
	assert.False(t, ModeAll.IsGroupPhase())
	assert.True(t, ModeAll.ForcesRebuild())

	assert.Equal(t, LogLevelWarn, NormalizeLogLevel("WARN"))
	assert.Equal(t, LogLevelInfo, NormalizeLogLevel("verbose"))
	assert.Equal(t, LogFormatJSON, NormalizeLogFormat("Json"))
	assert.Equal(t, RetryBackoffLinear, NormalizeRetryBackoff("linear"))
	assert.Equal(t, RetryBackoffMode(""), NormalizeRetryBackoff("random"))
}

func TestRetryDurations(t *testing.T) {
	initial, maxDelay, err := RetryConfig{Initial: "500ms", Max: "5s"}.Durations()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, initial)
	assert.Equal(t, 5*time.Second, maxDelay)

	_, _, err = RetryConfig{Initial: "5s", Max: "1s"}.Durations()
	require.Error(t, err)
}
