// Package planversion models immutable versioned pricing: a plan version is
// the unit of publication, and its features carry the pricing configuration.
package planversion

import (
	"context"
	"fmt"
	"time"

	"github.com/meterline/meterline/internal/domain/pricing"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/types"
)

// PlanVersion is one immutable revision of a plan's pricing in one currency.
// Version numbers are sequential per (plan, currency) pair.
type PlanVersion struct {
	ID      string `json:"id"`
	PlanID  string `json:"plan_id"`
	Version int    `json:"version"`

	VersionStatus types.PlanVersionStatus `json:"version_status"`

	// Latest marks the published version new subscriptions are offered.
	// At most one version per (plan, currency) carries the flag.
	Latest bool `json:"latest"`

	// Deactivated stops new subscriptions without retiring the version;
	// existing subscribers keep being priced against it.
	Deactivated bool `json:"deactivated"`

	Currency      string              `json:"currency"`
	BillingPeriod types.BillingPeriod `json:"billing_period"`
	PublishedAt   *time.Time          `json:"published_at,omitempty"`

	Features []*PlanVersionFeature `json:"features,omitempty"`

	types.BaseModel
}

// PlanVersionFeature attaches one priced feature to a plan version.
type PlanVersionFeature struct {
	ID            string `json:"id"`
	PlanVersionID string `json:"plan_version_id"`

	FeatureSlug string            `json:"feature_slug"`
	FeatureName string            `json:"feature_name"`
	FeatureType types.FeatureType `json:"feature_type"`

	Config *pricing.Config `json:"config"`

	// DefaultQuantity seeds tier-typed phase items when the subscriber
	// does not supply a quantity.
	DefaultQuantity uint64 `json:"default_quantity"`

	// Limit caps aggregated usage for the entitlement guard; nil is unlimited.
	Limit *uint64 `json:"limit,omitempty"`

	// Hidden features are priced but not shown on pricing pages.
	Hidden bool `json:"hidden"`

	// Order controls display position within the version.
	Order int `json:"order"`

	// ExternalID references the payment provider's product, set on publish.
	ExternalID string `json:"external_id,omitempty"`

	types.BaseModel
}

func (v *PlanVersion) IsDraft() bool {
	return v.VersionStatus == types.PlanVersionStatusDraft
}

func (v *PlanVersion) IsPublished() bool {
	return v.VersionStatus == types.PlanVersionStatusPublished
}

func (v *PlanVersion) IsArchived() bool {
	return v.VersionStatus == types.PlanVersionStatusArchived
}

// AcceptsNewSubscriptions reports whether a new subscription may be opened
// against this version.
func (v *PlanVersion) AcceptsNewSubscriptions() bool {
	return v.IsPublished() && !v.Deactivated
}

// Feature returns the feature with the given slug, or nil.
func (v *PlanVersion) Feature(slug string) *PlanVersionFeature {
	for _, f := range v.Features {
		if f.FeatureSlug == slug {
			return f
		}
	}
	return nil
}

// FlatEquivalentTotal sums the flat-price contribution of every feature at
// its default quantity. Publish uses it to enforce that free plans stay free.
func (v *PlanVersion) FlatEquivalentTotal() (types.Money, error) {
	total := types.ZeroMoney(v.Currency)
	for _, f := range v.Features {
		breakdown, err := pricing.Compute(f.Config, f.DefaultQuantity)
		if err != nil {
			return types.Money{}, err
		}
		total, err = total.Add(breakdown.TotalPrice)
		if err != nil {
			return types.Money{}, err
		}
	}
	return total, nil
}

// Validate checks the version's own fields and every attached feature.
func (v *PlanVersion) Validate() error {
	var issues ierr.ValidationIssues

	if v.PlanID == "" {
		issues.Add("plan_id", "plan id is required")
	}
	if !types.IsValidCurrency(v.Currency) {
		issues.Add("currency", "invalid currency code")
	}
	if err := v.VersionStatus.Validate(); err != nil {
		issues.Add("version_status", "invalid version status")
	}
	if err := v.BillingPeriod.Validate(); err != nil {
		issues.Add("billing_period", "invalid billing period")
	}

	seen := make(map[string]struct{}, len(v.Features))
	for i, f := range v.Features {
		field := func(name string) string {
			return fmt.Sprintf("features[%d].%s", i, name)
		}

		if f.FeatureSlug == "" {
			issues.Add(field("feature_slug"), "feature slug is required")
			continue
		}
		if _, ok := seen[f.FeatureSlug]; ok {
			issues.Addf(field("feature_slug"), "duplicate feature slug %s", f.FeatureSlug)
		}
		seen[f.FeatureSlug] = struct{}{}

		if f.Config == nil {
			issues.Add(field("config"), "pricing configuration is required")
			continue
		}
		if f.FeatureType != f.Config.FeatureType {
			issues.Addf(field("feature_type"), "feature type %s does not match configuration type %s", f.FeatureType, f.Config.FeatureType)
		}
		if err := f.Config.Validate(); err != nil {
			for _, issue := range ierr.Issues(err) {
				issues.Add(field("config."+issue.Field), issue.Message)
			}
		}
	}

	return issues.Err(ierr.ErrValidation)
}

// Repository provides access to plan versions and their features.
type Repository interface {
	Create(ctx context.Context, version *PlanVersion) error
	CreateFeature(ctx context.Context, feature *PlanVersionFeature) error
	Get(ctx context.Context, id string) (*PlanVersion, error)
	GetWithFeatures(ctx context.Context, id string) (*PlanVersion, error)
	GetLatest(ctx context.Context, planID, currency string) (*PlanVersion, error)
	CountByPlanAndCurrency(ctx context.Context, planID, currency string) (int, error)
	ListByPlan(ctx context.Context, planID string) ([]*PlanVersion, error)
	Update(ctx context.Context, version *PlanVersion) error
	UpdateFeature(ctx context.Context, feature *PlanVersionFeature) error
	Delete(ctx context.Context, id string) error
}
