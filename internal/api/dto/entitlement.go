package dto

import (
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/types"
	"github.com/meterline/meterline/internal/validator"
)

// CheckAccessRequest asks whether a customer may use a feature right now.
// When ConsumeUnits is positive the check also schedules a usage increment
// keyed by ActionRef; retried requests with the same ActionRef are counted
// once.
type CheckAccessRequest struct {
	CustomerID  string `json:"customer_id" validate:"required"`
	FeatureSlug string `json:"feature_slug" validate:"required"`

	// SkipCache forces resolution from the store. Used by correctness-
	// critical paths where a stale cached decision is unacceptable.
	SkipCache bool `json:"skip_cache,omitempty"`

	ConsumeUnits uint64 `json:"consume_units,omitempty"`
	ActionRef    string `json:"action_ref,omitempty"`
}

func (r *CheckAccessRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	// Without a distinct action reference every consuming check for the pair
	// would share one idempotency key and collapse into a single increment.
	if r.ConsumeUnits > 0 && r.ActionRef == "" {
		var issues ierr.ValidationIssues
		issues.Add("action_ref", "action ref is required when consuming units")
		return issues.Err(ierr.ErrValidation)
	}
	return nil
}

// CheckAccessResponse is the guard's decision.
type CheckAccessResponse struct {
	Access       bool               `json:"access"`
	DeniedReason types.DeniedReason `json:"denied_reason,omitempty"`

	// Remaining is the units left before the limit; nil for unlimited.
	Remaining *uint64 `json:"remaining,omitempty"`

	// Source records whether the decision came from cache or store.
	Source types.AccessSource `json:"source"`

	// AggregationMethod is the usage feature's configured aggregation,
	// carried so scheduled increments apply it without another version
	// lookup. Empty for non-usage features.
	AggregationMethod types.AggregationMethod `json:"aggregation_method,omitempty"`
}
