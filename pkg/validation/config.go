package validation

import (
	"errors"
	"fmt"
)

// FieldError is one failed check on a configuration field
type FieldError struct {
	Config string
	Field  string
	Msg    string
	Cause  error
}

func (e *FieldError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s.%s: %v", e.Config, e.Field, e.Cause)
	}
	return fmt.Sprintf("%s.%s: %s", e.Config, e.Field, e.Msg)
}

func (e *FieldError) Unwrap() error { return e.Cause }

// ConfigValidator chains checks over a configuration struct and reports
// every failure at once
type ConfigValidator struct {
	name   string
	errors []error
}

// NewConfigValidator starts a chain; name prefixes every field in errors
func NewConfigValidator(configName string) *ConfigValidator {
	return &ConfigValidator{name: configName}
}

func (cv *ConfigValidator) fail(field, format string, args ...any) *ConfigValidator {
	cv.errors = append(cv.errors, &FieldError{Config: cv.name, Field: field, Msg: fmt.Sprintf(format, args...)})
	return cv
}

// Required rejects an empty string
func (cv *ConfigValidator) Required(field, value string) *ConfigValidator {
	if value == "" {
		return cv.fail(field, "required field is empty")
	}
	return cv
}

// MinInt rejects value below min
func (cv *ConfigValidator) MinInt(field string, value, min int) *ConfigValidator {
	if value < min {
		return cv.fail(field, "value %d is below minimum %d", value, min)
	}
	return cv
}

// RangeInt rejects value outside [min, max]
func (cv *ConfigValidator) RangeInt(field string, value, min, max int) *ConfigValidator {
	if value < min || value > max {
		return cv.fail(field, "value %d is outside range [%d, %d]", value, min, max)
	}
	return cv
}

// MultipleOf requires a positive whole multiple of unit, e.g. a page size
// holding whole records
func (cv *ConfigValidator) MultipleOf(field string, value, unit int) *ConfigValidator {
	if value <= 0 || value%unit != 0 {
		return cv.fail(field, "value %d is not a positive multiple of %d", value, unit)
	}
	return cv
}

// Custom records the error fn returns, if any
func (cv *ConfigValidator) Custom(field string, fn func() error) *ConfigValidator {
	if err := fn(); err != nil {
		cv.errors = append(cv.errors, &FieldError{Config: cv.name, Field: field, Cause: err})
	}
	return cv
}

// When runs validations only if condition holds
func (cv *ConfigValidator) When(condition bool, validations func(*ConfigValidator)) *ConfigValidator {
	if condition {
		validations(cv)
	}
	return cv
}

// Validate joins every failure, or returns nil
func (cv *ConfigValidator) Validate() error {
	return errors.Join(cv.errors...)
}

// DefaultOr returns value unless it is the zero value
func DefaultOr[T comparable](value, defaultValue T) T {
	var zero T
	if value == zero {
		return defaultValue
	}
	return value
}
