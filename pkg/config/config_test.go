package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfig_DefaultValues проверяет загрузку значений по умолчанию
func TestLoadConfig_DefaultValues(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "dev", config.Environment)
	assert.Equal(t, 1, config.ComputeEngine.WorkerCount)
	assert.False(t, config.ComputeEngine.CanSetWorkerCount)
	assert.Equal(t, "postgres", config.ComputeEngine.LockBackend)
	assert.Equal(t, "reset-unknown-workers", config.ComputeEngine.Reconciliation)
	assert.True(t, config.QualityGate.IgnoreSmallChanges)
	assert.Equal(t, 20, config.QualityGate.SmallChangesetLines)
}

// TestLoadConfig_FileOverride проверяет переопределение значений из файла
func TestLoadConfig_FileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `server:
  host: "127.0.0.1"
  port: 9090
database:
  host: "prod-db"
  port: 5433
  name: "ce"
  user: "ce"
  password: "secret"
environment: "prod"
compute_engine:
  worker_count: 4
  lock_backend: "redis"
  reconciliation: "manual"
quality_gate:
  ignore_small_changes: false
  small_changeset_lines: 20
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "prod-db", config.Database.Host)
	assert.Equal(t, 4, config.ComputeEngine.WorkerCount)
	assert.Equal(t, "redis", config.ComputeEngine.LockBackend)
	assert.Equal(t, "manual", config.ComputeEngine.Reconciliation)
	assert.False(t, config.QualityGate.IgnoreSmallChanges)
	// Незаданные в файле значения остаются по умолчанию
	assert.Equal(t, "@every 1m", config.ComputeEngine.ReconcileSchedule)
}

// TestLoadConfig_EnvOverride проверяет приоритет переменных окружения над файлом
func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("CE_WORKER_COUNT", "3")
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("QG_IGNORE_SMALL_CHANGES", "false")

	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 3, config.ComputeEngine.WorkerCount)
	assert.Equal(t, "staging", config.Environment)
	assert.False(t, config.QualityGate.IgnoreSmallChanges)
}

func TestLoadConfig_InvalidEnvNumber(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")

	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "does not exist")
}

func TestValidateConfig_Errors(t *testing.T) {
	cases := map[string]func(c *Config){
		"environment":    func(c *Config) { c.Environment = "qa" },
		"worker count":   func(c *Config) { c.ComputeEngine.WorkerCount = 0 },
		"lock backend":   func(c *Config) { c.ComputeEngine.LockBackend = "zookeeper" },
		"reconciliation": func(c *Config) { c.ComputeEngine.Reconciliation = "retry" },
		"poll interval":  func(c *Config) { c.ComputeEngine.PollInterval = "soon" },
		"server port":    func(c *Config) { c.Server.Port = 70000 },
		"database name":  func(c *Config) { c.Database.Name = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(c)
			assert.Error(t, validateConfig(c))
		})
	}
}

func TestDurationOr(t *testing.T) {
	assert.Equal(t, 5*time.Second, DurationOr("5s", time.Second))
	assert.Equal(t, time.Second, DurationOr("", time.Second))
	assert.Equal(t, time.Second, DurationOr("bogus", time.Second))
	assert.Equal(t, time.Second, DurationOr("-1s", time.Second))
}

func TestConfig_Save(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, Default().Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, Default().ComputeEngine, loaded.ComputeEngine)
}
