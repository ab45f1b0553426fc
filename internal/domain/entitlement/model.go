// Package entitlement holds the per-customer access records consulted by
// the entitlement guard and updated by the usage reporting pipeline.
package entitlement

import (
	"context"

	"github.com/meterline/meterline/internal/types"
)

// Entitlement is the usage ledger for one (customer, feature) pair. The
// access decision itself is recomputed per check from the subscription and
// plan version; only the counter and limit live here.
type Entitlement struct {
	ID          string `json:"id"`
	CustomerID  string `json:"customer_id"`
	FeatureSlug string `json:"feature_slug"`

	// UsedQuantity is the aggregated usage counter. Increments are applied
	// idempotently; duplicate deliveries of one event change nothing.
	UsedQuantity uint64 `json:"used_quantity"`

	// Limit caps usage; nil means unlimited.
	Limit *uint64 `json:"limit,omitempty"`

	types.BaseModel
}

// Remaining returns the units left before the limit is reached, or nil for
// unlimited entitlements.
func (e *Entitlement) Remaining() *uint64 {
	if e.Limit == nil {
		return nil
	}
	var remaining uint64
	if *e.Limit > e.UsedQuantity {
		remaining = *e.Limit - e.UsedQuantity
	}
	return &remaining
}

// LimitReached reports whether aggregated usage has consumed the limit.
func (e *Entitlement) LimitReached() bool {
	return e.Limit != nil && e.UsedQuantity >= *e.Limit
}

// Repository provides access to entitlements. IncrementUsage must be
// idempotent per key: re-applying an already-seen idempotency key returns
// applied=false and leaves the counter untouched. The aggregation method
// controls how the amount folds into the counter (sum adds, max keeps the
// larger value, last overwrites); empty folds as sum.
type Repository interface {
	Get(ctx context.Context, customerID, featureSlug string) (*Entitlement, error)
	Upsert(ctx context.Context, ent *Entitlement) error
	IncrementUsage(ctx context.Context, customerID, featureSlug string, amount uint64, method types.AggregationMethod, idempotencyKey string) (applied bool, err error)
}
