package errors

import (
	"fmt"

	cerrors "github.com/cockroachdb/errors"
)

// ErrorBuilder assembles an InternalError fluently:
//
//	ierr.NewError("plan version not found").
//		WithHint("Please provide a valid plan version ID").
//		WithReportableDetails(map[string]interface{}{"id": id}).
//		Mark(ierr.ErrNotFound)
type ErrorBuilder struct {
	err *InternalError
}

// NewError starts a builder from a message. The call site's stack is
// captured on the cause.
func NewError(message string) *ErrorBuilder {
	return &ErrorBuilder{
		err: &InternalError{cause: cerrors.NewWithDepth(1, message)},
	}
}

// NewErrorf starts a builder from a formatted message.
func NewErrorf(format string, args ...interface{}) *ErrorBuilder {
	return NewError(fmt.Sprintf(format, args...))
}

// WithError starts a builder wrapping an existing error, capturing the call
// site's stack alongside it.
func WithError(err error) *ErrorBuilder {
	return &ErrorBuilder{
		err: &InternalError{cause: cerrors.WithStackDepth(err, 1)},
	}
}

// WithHint attaches a human-readable hint suitable for API consumers.
func (b *ErrorBuilder) WithHint(hint string) *ErrorBuilder {
	b.err.hint = hint
	return b
}

// WithHintf attaches a formatted hint.
func (b *ErrorBuilder) WithHintf(format string, args ...interface{}) *ErrorBuilder {
	b.err.hint = fmt.Sprintf(format, args...)
	return b
}

// WithReportableDetails attaches structured details that are safe to surface.
func (b *ErrorBuilder) WithReportableDetails(details map[string]interface{}) *ErrorBuilder {
	b.err.reportableDetails = details
	return b
}

// Mark classifies the error with a sentinel and finalizes the builder.
func (b *ErrorBuilder) Mark(sentinel error) error {
	b.err.mark = sentinel
	return b.err
}
