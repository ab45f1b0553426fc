package types

import ierr "github.com/meterline/meterline/internal/errors"

// PlanVersionStatus is the lifecycle state of a plan version.
// draft -> published -> archived; archived is terminal.
type PlanVersionStatus string

const (
	PlanVersionStatusDraft     PlanVersionStatus = "draft"
	PlanVersionStatusPublished PlanVersionStatus = "published"
	PlanVersionStatusArchived  PlanVersionStatus = "archived"
)

func (s PlanVersionStatus) Validate() error {
	switch s {
	case PlanVersionStatusDraft, PlanVersionStatusPublished, PlanVersionStatusArchived:
		return nil
	}
	return ierr.NewError("invalid plan version status").
		WithHint("Status must be one of draft, published, archived").
		WithReportableDetails(map[string]interface{}{
			"status": s,
		}).
		Mark(ierr.ErrValidation)
}

// BillingPeriod is the recurrence of a plan version's charges.
type BillingPeriod string

const (
	BILLING_PERIOD_MONTHLY BillingPeriod = "monthly"
	BILLING_PERIOD_ANNUAL  BillingPeriod = "annual"
	BILLING_PERIOD_WEEKLY  BillingPeriod = "weekly"
)

func (p BillingPeriod) Validate() error {
	switch p {
	case BILLING_PERIOD_MONTHLY, BILLING_PERIOD_ANNUAL, BILLING_PERIOD_WEEKLY:
		return nil
	}
	return ierr.NewError("invalid billing period").
		WithHint("Billing period must be one of monthly, annual, weekly").
		WithReportableDetails(map[string]interface{}{
			"billing_period": p,
		}).
		Mark(ierr.ErrValidation)
}
