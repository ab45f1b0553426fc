package testutil

import (
	"context"
	"sync"

	"github.com/meterline/meterline/internal/domain/entitlement"
	"github.com/meterline/meterline/internal/domain/pricing"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/types"
)

// InMemoryEntitlementStore implements entitlement.Repository keyed by
// (customer, feature). Applied idempotency keys are tracked so duplicate
// increments are rejected the way the production store does it.
type InMemoryEntitlementStore struct {
	mu      sync.Mutex
	items   map[string]*entitlement.Entitlement
	applied map[string]struct{}

	// FailIncrements makes IncrementUsage fail transiently for that many
	// calls; used to exercise consumer retry behavior.
	FailIncrements int
}

func NewInMemoryEntitlementStore() *InMemoryEntitlementStore {
	return &InMemoryEntitlementStore{
		items:   make(map[string]*entitlement.Entitlement),
		applied: make(map[string]struct{}),
	}
}

func entKey(customerID, featureSlug string) string {
	return customerID + ":" + featureSlug
}

func (s *InMemoryEntitlementStore) Get(_ context.Context, customerID, featureSlug string) (*entitlement.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.items[entKey(customerID, featureSlug)]
	if !ok {
		return nil, ierr.NewError("entitlement not found").
			WithReportableDetails(map[string]interface{}{
				"customer_id":  customerID,
				"feature_slug": featureSlug,
			}).
			Mark(ierr.ErrNotFound)
	}
	out := *ent
	return &out, nil
}

func (s *InMemoryEntitlementStore) Upsert(_ context.Context, ent *entitlement.Entitlement) error {
	if ent == nil {
		return ierr.NewError("entitlement cannot be nil").Mark(ierr.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *ent
	s.items[entKey(ent.CustomerID, ent.FeatureSlug)] = &stored
	return nil
}

func (s *InMemoryEntitlementStore) IncrementUsage(ctx context.Context, customerID, featureSlug string, amount uint64, method types.AggregationMethod, idempotencyKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailIncrements > 0 {
		s.FailIncrements--
		return false, ierr.NewError("store temporarily unavailable").
			Mark(ierr.ErrTransient)
	}

	if _, seen := s.applied[idempotencyKey]; seen {
		return false, nil
	}

	key := entKey(customerID, featureSlug)
	ent, ok := s.items[key]
	if !ok {
		ent = &entitlement.Entitlement{
			ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ENTITLEMENT),
			CustomerID:  customerID,
			FeatureSlug: featureSlug,
			BaseModel:   types.GetDefaultBaseModel(ctx),
		}
		s.items[key] = ent
	}

	// Fold the increment per the feature's aggregation method.
	ent.UsedQuantity = pricing.Aggregate(method, []uint64{ent.UsedQuantity, amount})
	s.applied[idempotencyKey] = struct{}{}
	return true, nil
}
