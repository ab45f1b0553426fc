package testutil

import (
	"context"
	"sort"
	"strings"

	"github.com/meterline/meterline/internal/domain/planversion"
	ierr "github.com/meterline/meterline/internal/errors"
)

// InMemoryPlanVersionStore implements planversion.Repository with versions
// and features held in separate generic stores.
type InMemoryPlanVersionStore struct {
	versions *InMemoryStore[*planversion.PlanVersion]
	features *InMemoryStore[*planversion.PlanVersionFeature]
}

func NewInMemoryPlanVersionStore() *InMemoryPlanVersionStore {
	return &InMemoryPlanVersionStore{
		versions: NewInMemoryStore[*planversion.PlanVersion](),
		features: NewInMemoryStore[*planversion.PlanVersionFeature](),
	}
}

func (s *InMemoryPlanVersionStore) Create(ctx context.Context, version *planversion.PlanVersion) error {
	if version == nil {
		return ierr.NewError("plan version cannot be nil").Mark(ierr.ErrValidation)
	}
	stored := *version
	stored.Features = nil
	return s.versions.Create(ctx, version.ID, &stored)
}

func (s *InMemoryPlanVersionStore) CreateFeature(ctx context.Context, feature *planversion.PlanVersionFeature) error {
	if feature == nil {
		return ierr.NewError("feature cannot be nil").Mark(ierr.ErrValidation)
	}
	return s.features.Create(ctx, feature.ID, feature)
}

func (s *InMemoryPlanVersionStore) Get(ctx context.Context, id string) (*planversion.PlanVersion, error) {
	version, err := s.versions.Get(ctx, id)
	if err != nil {
		return nil, versionNotFound(id)
	}
	out := *version
	return &out, nil
}

func (s *InMemoryPlanVersionStore) GetWithFeatures(ctx context.Context, id string) (*planversion.PlanVersion, error) {
	version, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	features := s.features.List(ctx, func(f *planversion.PlanVersionFeature) bool {
		return f.PlanVersionID == id
	})
	sort.Slice(features, func(i, j int) bool { return features[i].Order < features[j].Order })
	version.Features = features
	return version, nil
}

func (s *InMemoryPlanVersionStore) GetLatest(ctx context.Context, planID, currency string) (*planversion.PlanVersion, error) {
	matches := s.versions.List(ctx, func(v *planversion.PlanVersion) bool {
		return v.PlanID == planID && strings.EqualFold(v.Currency, currency) && v.Latest
	})
	if len(matches) == 0 {
		return nil, ierr.NewError("no latest version").
			WithReportableDetails(map[string]interface{}{
				"plan_id":  planID,
				"currency": currency,
			}).
			Mark(ierr.ErrNotFound)
	}
	out := *matches[0]
	return &out, nil
}

func (s *InMemoryPlanVersionStore) CountByPlanAndCurrency(ctx context.Context, planID, currency string) (int, error) {
	matches := s.versions.List(ctx, func(v *planversion.PlanVersion) bool {
		return v.PlanID == planID && strings.EqualFold(v.Currency, currency)
	})
	return len(matches), nil
}

func (s *InMemoryPlanVersionStore) ListByPlan(ctx context.Context, planID string) ([]*planversion.PlanVersion, error) {
	matches := s.versions.List(ctx, func(v *planversion.PlanVersion) bool {
		return v.PlanID == planID
	})
	sort.Slice(matches, func(i, j int) bool { return matches[i].Version < matches[j].Version })
	return matches, nil
}

func (s *InMemoryPlanVersionStore) Update(ctx context.Context, version *planversion.PlanVersion) error {
	if version == nil {
		return ierr.NewError("plan version cannot be nil").Mark(ierr.ErrValidation)
	}
	stored := *version
	stored.Features = nil
	return s.versions.Update(ctx, version.ID, &stored)
}

func (s *InMemoryPlanVersionStore) UpdateFeature(ctx context.Context, feature *planversion.PlanVersionFeature) error {
	if feature == nil {
		return ierr.NewError("feature cannot be nil").Mark(ierr.ErrValidation)
	}
	return s.features.Update(ctx, feature.ID, feature)
}

func (s *InMemoryPlanVersionStore) Delete(ctx context.Context, id string) error {
	if err := s.versions.Delete(ctx, id); err != nil {
		return versionNotFound(id)
	}
	for _, f := range s.features.List(ctx, func(f *planversion.PlanVersionFeature) bool {
		return f.PlanVersionID == id
	}) {
		_ = s.features.Delete(ctx, f.ID)
	}
	return nil
}

func versionNotFound(id string) error {
	return ierr.NewError("plan version not found").
		WithReportableDetails(map[string]interface{}{"id": id}).
		Mark(ierr.ErrNotFound)
}
