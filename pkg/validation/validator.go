package validation

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// Validation constants
	MaxDatabaseNameLength = 64

	// Regular expressions
	databaseNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.-]*$`)
)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("dbname", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return databaseNamePattern.MatchString(name) && name != "." && name != ".."
	})
}

// OpenRequest names a database to open
type OpenRequest struct {
	Name string `validate:"required,max=64,dbname"`
}

// WriteRequest is a put or update of one key
type WriteRequest struct {
	Key   int32
	Value int32 `validate:"ne=-2147483648"`
}

// Struct validates any struct carrying validate tags
func Struct(v any) error {
	if v == nil {
		return errors.New("cannot validate nil")
	}
	return formatValidationError(validate.Struct(v))
}

// ValidateOpenRequest validates a database name
func ValidateOpenRequest(req *OpenRequest) error {
	if req == nil {
		return errors.New("open request cannot be nil")
	}
	return Struct(req)
}

// ValidateWriteRequest rejects the value reserved as the deletion marker
func ValidateWriteRequest(req *WriteRequest) error {
	if req == nil {
		return errors.New("write request cannot be nil")
	}
	return Struct(req)
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := e.Field()
		tag := e.Tag()
		param := e.Param()

		switch tag {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min", "gte":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max", "lte":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, param)
		case "ne":
			return fmt.Errorf("%s: %s is reserved", field, param)
		case "dbname":
			return fmt.Errorf("%s: %q is not a valid database name (letters, digits, '_', '-', '.')", field, e.Value())
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, tag)
		}
	}

	return err
}
