package plan

import (
	"context"

	"github.com/meterline/meterline/internal/types"
)

// Plan is the top-level product offering. Pricing lives on its versions;
// a plan itself only carries identity and subscription policy.
type Plan struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	LookupKey   string `json:"lookup_key"`
	Description string `json:"description"`

	// IsDefault marks the plan customers land on without an explicit choice.
	IsDefault bool `json:"is_default"`

	// PaymentMethodRequired controls whether subscribing to this plan
	// requires a payment method on file.
	PaymentMethodRequired bool `json:"payment_method_required"`

	types.BaseModel
}

// AllowsDuplication reports whether versions of this plan may be
// duplicated. Default plans that do not require a payment method are the
// free tier; their pricing is managed in place rather than forked.
func (p *Plan) AllowsDuplication() bool {
	return !(p.IsDefault && !p.PaymentMethodRequired)
}

// Repository provides access to plans.
type Repository interface {
	Create(ctx context.Context, plan *Plan) error
	Get(ctx context.Context, id string) (*Plan, error)
	GetByLookupKey(ctx context.Context, lookupKey string) (*Plan, error)
	List(ctx context.Context) ([]*Plan, error)
	Update(ctx context.Context, plan *Plan) error
	Delete(ctx context.Context, id string) error
}
