// Package subscription models a customer's subscription as an ordered
// sequence of non-overlapping, time-bounded phases, each pinned to one
// immutable plan version.
package subscription

import (
	"context"
	"fmt"
	"sort"
	"time"

	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/types"
)

type Subscription struct {
	ID         string   `json:"id"`
	CustomerID string   `json:"customer_id"`
	Phases     []*Phase `json:"phases,omitempty"`

	types.BaseModel
}

// Phase binds a subscription to one plan version for a time window.
// EndDate is exclusive; nil means open-ended.
type Phase struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscription_id"`
	PlanVersionID  string `json:"plan_version_id"`

	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	Items []*PhaseItem `json:"items,omitempty"`

	types.BaseModel
}

// PhaseItem carries the subscribed quantity for one feature of the phase's
// plan version. Only tier-typed features accept a user-supplied quantity;
// flat and usage quantities are derived.
type PhaseItem struct {
	ID          string `json:"id"`
	PhaseID     string `json:"phase_id"`
	FeatureSlug string `json:"feature_slug"`
	Quantity    uint64 `json:"quantity"`

	types.BaseModel
}

// Contains reports whether t falls inside the phase's window.
func (p *Phase) Contains(t time.Time) bool {
	if t.Before(p.StartDate) {
		return false
	}
	return p.EndDate == nil || t.Before(*p.EndDate)
}

// Elapsed reports whether the phase's window has fully passed. Elapsed
// phases are immutable.
func (p *Phase) Elapsed(now time.Time) bool {
	return p.EndDate != nil && !now.Before(*p.EndDate)
}

// Overlaps reports whether two phase windows intersect.
func (p *Phase) Overlaps(other *Phase) bool {
	if p.EndDate != nil && !other.StartDate.Before(*p.EndDate) {
		return false
	}
	if other.EndDate != nil && !p.StartDate.Before(*other.EndDate) {
		return false
	}
	return true
}

// Item returns the phase item for a feature slug, or nil.
func (p *Phase) Item(slug string) *PhaseItem {
	for _, item := range p.Items {
		if item.FeatureSlug == slug {
			return item
		}
	}
	return nil
}

// CurrentPhase returns the phase whose window contains now, or nil. Phases
// never overlap, so at most one phase is current at any instant.
func (s *Subscription) CurrentPhase(now time.Time) *Phase {
	for _, phase := range s.Phases {
		if phase.Contains(now) {
			return phase
		}
	}
	return nil
}

// SortPhases orders phases by start date in place.
func (s *Subscription) SortPhases() {
	sort.Slice(s.Phases, func(i, j int) bool {
		return s.Phases[i].StartDate.Before(s.Phases[j].StartDate)
	})
}

// ValidatePhases checks ordering and non-overlap across the subscription's
// phases. Phases must already be sorted by start date.
func (s *Subscription) ValidatePhases() error {
	var issues ierr.ValidationIssues

	for i, phase := range s.Phases {
		field := func(name string) string {
			return fmt.Sprintf("phases[%d].%s", i, name)
		}

		if phase.EndDate != nil && !phase.StartDate.Before(*phase.EndDate) {
			issues.Add(field("end_date"), "end date must be after start date")
		}
		if i == 0 {
			continue
		}
		prev := s.Phases[i-1]
		if phase.StartDate.Before(prev.StartDate) {
			issues.Add(field("start_date"), "phases must be ordered by start date")
		}
		if prev.Overlaps(phase) {
			issues.Addf(field("start_date"), "phase overlaps the preceding phase starting %s", prev.StartDate.Format(time.RFC3339))
		}
	}

	return issues.Err(ierr.ErrValidation)
}

// Repository provides access to subscriptions and their phases.
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	GetByCustomer(ctx context.Context, customerID string) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
}
