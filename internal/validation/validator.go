// Package validation wraps go-playground/validator v10 and translates its
// errors into domain.ValidationError issues.
//
// Struct fields are reported by their json tag name, and nested structs by
// their dotted path without the root type, e.g. "bbox.minLon".
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/mcraigtyler/map-editor/internal/domain"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator returns the shared validator instance. It is safe for
// concurrent use and caches struct metadata.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// ValidateStruct validates s and returns a *domain.ValidationError listing
// every failing field, or nil.
func ValidateStruct(s any, message string) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &domain.ValidationError{
			Message: message,
			Issues:  []domain.FieldIssue{{Field: "request", Message: err.Error(), Rule: "invalid"}},
		}
	}

	issues := make([]domain.FieldIssue, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		issues = append(issues, domain.FieldIssue{
			Field:   fieldPath(fe.Namespace()),
			Message: translateError(fe),
			Rule:    fe.Tag(),
		})
	}
	return &domain.ValidationError{Message: message, Issues: issues}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func translateError(fe validator.FieldError) string {
	field := fieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must contain exactly %s values", field, fe.Param())
	case "longitude":
		return fmt.Sprintf("%s must be a longitude between -180 and 180", field)
	case "latitude":
		return fmt.Sprintf("%s must be a latitude between -90 and 90", field)
	case "ltfield":
		return fmt.Sprintf("%s must be less than %s", field, lowerFirst(fe.Param()))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
