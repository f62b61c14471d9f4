// Package validation provides request validation using the validator/v10 library.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	ledgererrors "github.com/libraryledger/ledger-server/internal/errors"
)

// Validator wraps go-playground/validator with ledger error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator with the ledger's custom tags registered:
//
//	isbn      10 or 13 digits, hyphens and spaces ignored, trailing X allowed for ISBN-10
//	notblank  rejects strings made only of whitespace
func New() *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("isbn", func(fl validator.FieldLevel) bool {
		return ValidISBN(fl.Field().String())
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return &Validator{v: v}
}

// Validate validates a struct and returns a VALIDATION_ERROR with per-field details.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// ValidISBN reports whether s looks like an ISBN-10 or ISBN-13.
// Checksums are not verified; the catalog accepts publisher data as given.
func ValidISBN(s string) bool {
	digits := 0
	for i, r := range s {
		switch {
		case r == '-' || r == ' ':
		case unicode.IsDigit(r):
			digits++
		case (r == 'X' || r == 'x') && i == len(s)-1 && digits == 9:
			digits++
		default:
			return false
		}
	}
	return digits == 10 || digits == 13
}

func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	fieldErrors := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		fieldErrors[e.Field()] = friendlyMessage(e)
	}

	return ledgererrors.ValidationWithDetails("validation failed", fieldErrors)
}

//nolint:gocyclo // Switch statement covering validation tags is intentionally exhaustive.
func friendlyMessage(e validator.FieldError) string {
	isString := e.Kind() == reflect.String
	switch e.Tag() {
	case "required", "notblank":
		return "is required"
	case "required_if":
		return "is required for this role"
	case "min":
		if isString {
			return fmt.Sprintf("must be at least %s characters", e.Param())
		}
		return "must be at least " + e.Param()
	case "max":
		if isString {
			return fmt.Sprintf("must not exceed %s characters", e.Param())
		}
		return "must not exceed " + e.Param()
	case "url", "http_url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + e.Param()
	case "isbn":
		return "must be a valid ISBN-10 or ISBN-13"
	case "eqfield":
		return "must match " + lowerFirst(e.Param())
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "gtefield":
		return "must not be before " + lowerFirst(e.Param())
	default:
		return "is invalid"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
