// Package validation wraps go-playground/validator and converts its field errors into
// domain validation errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	"github.com/go-playground/validator/v10"
)

// Validator checks engine input structs.
type Validator struct {
	v *validator.Validate
}

// New creates a validator that reports fields by their json tag and treats
// whitespace-only strings as missing for the "notblank" tag.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return &Validator{v: v}
}

// Struct validates value and returns a *domain.Error of KindValidation on failure.
func (v *Validator) Struct(operation string, value any) error {
	err := v.v.Struct(value)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domain.Validation(operation, "invalid_input", err.Error())
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		fields[fieldErr.Field()] = friendlyMessage(fieldErr)
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	first := names[0]
	validationErr := domain.Validation(operation, "invalid_"+first, first+" "+fields[first])
	validationErr.Fields = fields
	return validationErr
}

func friendlyMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required", "notblank":
		return "is required"
	case "max":
		return fmt.Sprintf("must not exceed %s characters", fieldErr.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fieldErr.Param())
	case "gte":
		return "must be greater than or equal to " + fieldErr.Param()
	case "url":
		return "must be a valid URL"
	default:
		return "is invalid"
	}
}
