package config

import (
	"strings"

	"github.com/rarestuff/mboxd/pkg/mailbox/lock"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyLockDefaults(&cfg.Lock)
	applySpoolDefaults(&cfg.Spool)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyLockDefaults sets lock protocol defaults. The defaults match the
// conventional mbox locking setup so mboxd interoperates with other mail
// software on the same spool out of the box.
func applyLockDefaults(cfg *LockConfig) {
	if cfg.ReadMethods == "" {
		cfg.ReadMethods = lock.DefaultReadMethods
	}
	if cfg.WriteMethods == "" {
		cfg.WriteMethods = lock.DefaultWriteMethods
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = lock.DefaultLockTimeout
	}
	if cfg.StaleTimeout == 0 {
		cfg.StaleTimeout = lock.DefaultStaleTimeout
	}
}

// applySpoolDefaults sets spool defaults.
func applySpoolDefaults(cfg *SpoolConfig) {
	if cfg.Directory == "" {
		cfg.Directory = "/var/mail"
	}
}

// GetDefaultConfig returns a configuration populated entirely from defaults.
func GetDefaultConfig() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// MethodTable builds the immutable lock method table from the lock section.
// Returns a configuration error if the method lists are invalid.
func (c *Config) MethodTable() (*lock.MethodTable, error) {
	return lock.NewMethodTable(lock.MethodTableConfig{
		ReadMethods:  c.Lock.ReadMethods,
		WriteMethods: c.Lock.WriteMethods,
		LockTimeout:  c.Lock.LockTimeout,
		StaleTimeout: c.Lock.StaleTimeout,
	})
}
