// Package validator wraps struct-tag validation for request DTOs.
package validator

import (
	"sync"

	"github.com/go-playground/validator/v10"
	ierr "github.com/meterline/meterline/internal/errors"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateRequest checks a request struct against its validate tags and
// converts violations into a single validation error listing every field.
func ValidateRequest(req interface{}) error {
	err := instance().Struct(req)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return ierr.WithError(err).
			WithHint("Request validation failed").
			Mark(ierr.ErrValidation)
	}

	var issues ierr.ValidationIssues
	for _, fe := range fieldErrs {
		issues.Addf(fe.Field(), "failed on the %s rule", fe.Tag())
	}
	return issues.Err(ierr.ErrValidation)
}
