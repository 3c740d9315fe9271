// Package validator provides validation infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package validator

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var crmIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Validator wraps the go-playground validator for structured validation.
type Validator struct {
	v *validator.Validate
}

// New creates a new Validator with the portal's custom rules registered:
//
//	crmid - an external CRM record identifier (alphanumeric, dash, underscore)
func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("crmid", func(fl validator.FieldLevel) bool {
		return crmIDPattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	return &Validator{v: v}
}

// Struct validates a struct based on validation tags.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}

// RegisterValidation registers a custom validation function.
func (val *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return val.v.RegisterValidation(tag, fn)
}

// FieldErrors flattens validation errors into field -> failed rule, suitable for
// the "details" of an error response. Non-validation errors yield nil.
func FieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
