// Package errors provides the error taxonomy and fluent error builder used
// across the codebase. It is conventionally imported as ierr.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers classify failures with errors.Is against these,
// never by string matching.
var (
	// ErrValidation marks input that fails schema or invariant checks.
	ErrValidation = errors.New("validation_error")
	// ErrConfiguration marks a malformed or self-inconsistent pricing configuration.
	ErrConfiguration = errors.New("configuration_error")
	// ErrTierNotFound marks the defensive failure when a quantity falls outside
	// every tier despite the configuration having passed validation.
	ErrTierNotFound = errors.New("tier_not_found")
	// ErrStateTransition marks a lifecycle transition invalid for the current state.
	ErrStateTransition = errors.New("state_transition_error")
	// ErrTransient marks an infrastructure failure that is safe to retry with
	// backoff and must never be read as a business decision.
	ErrTransient = errors.New("transient_error")

	ErrNotFound         = errors.New("not_found")
	ErrAlreadyExists    = errors.New("already_exists")
	ErrDatabase         = errors.New("database_error")
	ErrSystem           = errors.New("system_error")
	ErrPermissionDenied = errors.New("permission_denied")
)

// InternalError is the concrete error produced by the builder. It carries a
// human hint, structured reportable details, and the sentinel it was marked with.
type InternalError struct {
	cause             error
	mark              error
	hint              string
	reportableDetails map[string]interface{}
}

func (e *InternalError) Error() string {
	switch {
	case e.cause != nil && e.mark != nil:
		return fmt.Sprintf("%s: %s", e.mark.Error(), e.cause.Error())
	case e.cause != nil:
		return e.cause.Error()
	case e.mark != nil:
		return e.mark.Error()
	default:
		return "internal error"
	}
}

func (e *InternalError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	if e.mark != nil {
		errs = append(errs, e.mark)
	}
	return errs
}

// Hint returns the human-readable hint attached to the error, if any.
func (e *InternalError) Hint() string {
	return e.hint
}

// ReportableDetails returns the structured details attached to the error.
func (e *InternalError) ReportableDetails() map[string]interface{} {
	return e.reportableDetails
}

// Hint extracts the deepest hint from an error chain.
func Hint(err error) string {
	var ie *InternalError
	if errors.As(err, &ie) {
		return ie.hint
	}
	return ""
}

// Details extracts the reportable details from an error chain.
func Details(err error) map[string]interface{} {
	var ie *InternalError
	if errors.As(err, &ie) {
		return ie.reportableDetails
	}
	return nil
}

// Classification helpers.

func IsValidation(err error) bool      { return errors.Is(err, ErrValidation) }
func IsConfiguration(err error) bool   { return errors.Is(err, ErrConfiguration) }
func IsTierNotFound(err error) bool    { return errors.Is(err, ErrTierNotFound) }
func IsStateTransition(err error) bool { return errors.Is(err, ErrStateTransition) }
func IsTransient(err error) bool       { return errors.Is(err, ErrTransient) }
func IsNotFound(err error) bool        { return errors.Is(err, ErrNotFound) }
func IsAlreadyExists(err error) bool   { return errors.Is(err, ErrAlreadyExists) }
func IsDatabase(err error) bool        { return errors.Is(err, ErrDatabase) }
func IsSystem(err error) bool          { return errors.Is(err, ErrSystem) }
