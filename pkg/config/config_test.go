package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rarestuff/mboxd/pkg/mailbox/lock"
)

func TestGetDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, lock.DefaultReadMethods, cfg.Lock.ReadMethods)
	assert.Equal(t, lock.DefaultWriteMethods, cfg.Lock.WriteMethods)
	assert.Equal(t, lock.DefaultLockTimeout, cfg.Lock.LockTimeout)
	assert.Equal(t, lock.DefaultStaleTimeout, cfg.Lock.StaleTimeout)
	assert.Equal(t, "/var/mail", cfg.Spool.Directory)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Logging: LoggingConfig{Level: "debug"},
		Lock:    LockConfig{WriteMethods: "dotlock flock", LockTimeout: time.Minute},
		Metrics: MetricsConfig{Enabled: true},
	}
	ApplyDefaults(cfg)

	assert.Equal(t, "DEBUG", cfg.Logging.Level, "levels are normalized to uppercase")
	assert.Equal(t, "dotlock flock", cfg.Lock.WriteMethods)
	assert.Equal(t, time.Minute, cfg.Lock.LockTimeout)
	assert.Equal(t, lock.DefaultReadMethods, cfg.Lock.ReadMethods)
	assert.Equal(t, 9090, cfg.Metrics.Port, "port defaults when metrics enabled")
}

func TestValidateDefaultConfig(t *testing.T) {
	t.Parallel()

	require.NoError(t, Validate(GetDefaultConfig()))
}

func TestValidateInvalidLogLevel(t *testing.T) {
	t.Parallel()

	cfg := GetDefaultConfig()
	cfg.Logging.Level = "LOUD"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")
}

func TestValidateInvalidLogFormat(t *testing.T) {
	t.Parallel()

	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	require.Error(t, Validate(cfg))
}

func TestValidateInvalidMetricsPort(t *testing.T) {
	t.Parallel()

	cfg := GetDefaultConfig()
	cfg.Metrics.Port = 70000

	require.Error(t, Validate(cfg))
}

func TestValidateRejectsBadLockMethods(t *testing.T) {
	t.Parallel()

	cfg := GetDefaultConfig()
	cfg.Lock.ReadMethods = "liblock"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "liblock")
}

func TestValidateRejectsOrderingViolation(t *testing.T) {
	t.Parallel()

	cfg := GetDefaultConfig()
	cfg.Lock.ReadMethods = "flock"
	cfg.Lock.WriteMethods = "dotlock fcntl"

	require.Error(t, Validate(cfg))
}

func TestMethodTableFromConfig(t *testing.T) {
	t.Parallel()

	cfg := GetDefaultConfig()
	cfg.Lock.ReadMethods = "fcntl"
	cfg.Lock.WriteMethods = "dotlock fcntl"
	cfg.Lock.LockTimeout = 45 * time.Second

	table, err := cfg.MethodTable()
	require.NoError(t, err)
	assert.Equal(t, []lock.BackendID{lock.BackendFcntl}, table.ReadOrder())
	assert.Equal(t, 45*time.Second, table.LockTimeout())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), cfg)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logging:
  level: debug
  format: json
lock:
  read_methods: "fcntl"
  write_methods: "dotlock fcntl flock"
  lock_timeout: 90s
spool:
  directory: /srv/mail
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "dotlock fcntl flock", cfg.Lock.WriteMethods)
	assert.Equal(t, 90*time.Second, cfg.Lock.LockTimeout)
	assert.Equal(t, lock.DefaultStaleTimeout, cfg.Lock.StaleTimeout, "missing values get defaults")
	assert.Equal(t, "/srv/mail", cfg.Spool.Directory)
}

func TestLoadRejectsInvalidConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
lock:
  read_methods: "flock"
  write_methods: "dotlock fcntl"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Lock.ReadMethods = "flock"
	cfg.Lock.WriteMethods = "dotlock flock"
	cfg.Spool.Directory = "/srv/spool"
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "flock", loaded.Lock.ReadMethods)
	assert.Equal(t, "dotlock flock", loaded.Lock.WriteMethods)
	assert.Equal(t, "/srv/spool", loaded.Spool.Directory)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("MBOXD_LOGGING_LEVEL", "ERROR")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ERROR", cfg.Logging.Level)
}
