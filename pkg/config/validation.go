package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for structural and semantic errors.
//
// Struct tags cover the field-level rules (required values, enum fields,
// port ranges). The lock method lists need cross-field validation beyond
// what tags express: parseable backend names and the ordered-subsequence
// rule between read and write lists, both checked by building the method
// table.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return err
	}

	if _, err := cfg.MethodTable(); err != nil {
		return fmt.Errorf("lock: %w", err)
	}

	return nil
}
