package dto

import (
	"time"

	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/validator"
)

// PhaseItemRequest sets the quantity for one feature in a phase. Quantity
// is only accepted for tier-typed features; flat and usage quantities are
// derived server-side.
type PhaseItemRequest struct {
	FeatureSlug string  `json:"feature_slug" validate:"required"`
	Quantity    *uint64 `json:"quantity,omitempty"`
}

// CreatePhaseRequest appends a phase to a subscription.
type CreatePhaseRequest struct {
	SubscriptionID string             `json:"subscription_id" validate:"required"`
	PlanVersionID  string             `json:"plan_version_id" validate:"required"`
	StartDate      time.Time          `json:"start_date" validate:"required"`
	EndDate        *time.Time         `json:"end_date,omitempty"`
	Items          []PhaseItemRequest `json:"items,omitempty"`
}

func (r *CreatePhaseRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.EndDate != nil && !r.StartDate.Before(*r.EndDate) {
		return ierr.NewError("end date must be after start date").
			WithHint("Phase end date must be after its start date").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// UpdatePhaseRequest mutates a current or future phase. Nil fields are
// left unchanged; a non-nil Items slice replaces the item list.
type UpdatePhaseRequest struct {
	SubscriptionID string             `json:"subscription_id" validate:"required"`
	PhaseID        string             `json:"phase_id" validate:"required"`
	StartDate      *time.Time         `json:"start_date,omitempty"`
	EndDate        *time.Time         `json:"end_date,omitempty"`
	Items          []PhaseItemRequest `json:"items,omitempty"`
}

func (r *UpdatePhaseRequest) Validate() error {
	return validator.ValidateRequest(r)
}
