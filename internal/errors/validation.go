package errors

import "fmt"

// FieldIssue is one (field path, message) pair produced by a validation pass.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationIssues accumulates field issues so a validation pass can report
// every offending field at once instead of stopping at the first.
type ValidationIssues struct {
	issues []FieldIssue
}

// Add records a violation at the given field path.
func (v *ValidationIssues) Add(field, message string) {
	v.issues = append(v.issues, FieldIssue{Field: field, Message: message})
}

// Addf records a violation with a formatted message.
func (v *ValidationIssues) Addf(field, format string, args ...interface{}) {
	v.Add(field, fmt.Sprintf(format, args...))
}

// HasIssues reports whether any violation was recorded.
func (v *ValidationIssues) HasIssues() bool {
	return len(v.issues) > 0
}

// Issues returns the recorded violations in order.
func (v *ValidationIssues) Issues() []FieldIssue {
	return v.issues
}

// Err finalizes the accumulator into a single error carrying every issue,
// or nil when nothing was recorded.
func (v *ValidationIssues) Err(sentinel error) error {
	if !v.HasIssues() {
		return nil
	}
	return NewErrorf("%d validation issue(s)", len(v.issues)).
		WithHint("One or more fields failed validation").
		WithReportableDetails(map[string]interface{}{
			"issues": v.issues,
		}).
		Mark(sentinel)
}

// Issues extracts the field issues from an error chain, if present.
func Issues(err error) []FieldIssue {
	details := Details(err)
	if details == nil {
		return nil
	}
	issues, ok := details["issues"].([]FieldIssue)
	if !ok {
		return nil
	}
	return issues
}
