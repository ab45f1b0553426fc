package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/meterline/meterline/internal/domain/planversion"
	"github.com/meterline/meterline/internal/domain/pricing"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/logger"
	pgclient "github.com/meterline/meterline/internal/postgres"
	"github.com/meterline/meterline/internal/types"
)

type planVersionRepository struct {
	client *pgclient.Client
	log    *logger.Logger
}

func NewPlanVersionRepository(client *pgclient.Client, log *logger.Logger) planversion.Repository {
	return &planVersionRepository{client: client, log: log}
}

const versionColumns = `id, plan_id, version, version_status, latest, deactivated,
	currency, billing_period, published_at,
	tenant_id, environment_id, status, created_at, updated_at, created_by, updated_by`

const featureColumns = `id, plan_version_id, feature_slug, feature_name, feature_type,
	config, default_quantity, usage_limit, hidden, display_order, external_id,
	tenant_id, environment_id, status, created_at, updated_at, created_by, updated_by`

func (r *planVersionRepository) Create(ctx context.Context, v *planversion.PlanVersion) error {
	_, err := r.client.Querier(ctx).ExecContext(ctx, `
		INSERT INTO plan_versions (`+versionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		v.ID, v.PlanID, v.Version, v.VersionStatus, v.Latest, v.Deactivated,
		v.Currency, v.BillingPeriod, v.PublishedAt,
		v.TenantID, v.EnvironmentID, v.Status, v.CreatedAt, v.UpdatedAt, v.CreatedBy, v.UpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("A version with this number already exists for the plan and currency").
				WithReportableDetails(map[string]interface{}{
					"plan_id":  v.PlanID,
					"currency": v.Currency,
					"version":  v.Version,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create plan version").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *planVersionRepository) CreateFeature(ctx context.Context, f *planversion.PlanVersionFeature) error {
	configJSON, err := json.Marshal(f.Config)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode pricing configuration").
			Mark(ierr.ErrSystem)
	}

	_, err = r.client.Querier(ctx).ExecContext(ctx, `
		INSERT INTO plan_version_features (`+featureColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		f.ID, f.PlanVersionID, f.FeatureSlug, f.FeatureName, f.FeatureType,
		configJSON, int64(f.DefaultQuantity), nullableUint(f.Limit), f.Hidden, f.Order, f.ExternalID,
		f.TenantID, f.EnvironmentID, f.Status, f.CreatedAt, f.UpdatedAt, f.CreatedBy, f.UpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("The version already carries this feature").
				WithReportableDetails(map[string]interface{}{
					"plan_version_id": f.PlanVersionID,
					"feature_slug":    f.FeatureSlug,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create plan version feature").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *planVersionRepository) Get(ctx context.Context, id string) (*planversion.PlanVersion, error) {
	row := r.client.Querier(ctx).QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM plan_versions
		WHERE id = $1 AND tenant_id = $2 AND environment_id = $3 AND status != $4
	`, id, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), types.StatusDeleted)

	v, err := scanVersion(row)
	if err != nil {
		if isNoRows(err) {
			return nil, versionNotFound(id)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get plan version").
			Mark(ierr.ErrDatabase)
	}
	return v, nil
}

func (r *planVersionRepository) GetWithFeatures(ctx context.Context, id string) (*planversion.PlanVersion, error) {
	v, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.client.Querier(ctx).QueryContext(ctx, `
		SELECT `+featureColumns+`
		FROM plan_version_features
		WHERE plan_version_id = $1 AND tenant_id = $2 AND environment_id = $3 AND status != $4
		ORDER BY display_order
	`, id, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to load plan version features").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan plan version feature").
				Mark(ierr.ErrDatabase)
		}
		v.Features = append(v.Features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to load plan version features").
			Mark(ierr.ErrDatabase)
	}
	return v, nil
}

func (r *planVersionRepository) GetLatest(ctx context.Context, planID, currency string) (*planversion.PlanVersion, error) {
	row := r.client.Querier(ctx).QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM plan_versions
		WHERE plan_id = $1 AND currency = $2 AND latest = true
			AND tenant_id = $3 AND environment_id = $4 AND status != $5
	`, planID, currency, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), types.StatusDeleted)

	v, err := scanVersion(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.NewError("no latest version").
				WithHint("The plan has no published version in this currency").
				WithReportableDetails(map[string]interface{}{
					"plan_id":  planID,
					"currency": currency,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get latest plan version").
			Mark(ierr.ErrDatabase)
	}
	return v, nil
}

func (r *planVersionRepository) CountByPlanAndCurrency(ctx context.Context, planID, currency string) (int, error) {
	var count int
	err := r.client.Querier(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM plan_versions
		WHERE plan_id = $1 AND currency = $2 AND tenant_id = $3 AND environment_id = $4
	`, planID, currency, types.GetTenantID(ctx), types.GetEnvironmentID(ctx)).Scan(&count)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count plan versions").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func (r *planVersionRepository) ListByPlan(ctx context.Context, planID string) ([]*planversion.PlanVersion, error) {
	rows, err := r.client.Querier(ctx).QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM plan_versions
		WHERE plan_id = $1 AND tenant_id = $2 AND environment_id = $3 AND status != $4
		ORDER BY currency, version
	`, planID, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list plan versions").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var versions []*planversion.PlanVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan plan version").
				Mark(ierr.ErrDatabase)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list plan versions").
			Mark(ierr.ErrDatabase)
	}
	return versions, nil
}

func (r *planVersionRepository) Update(ctx context.Context, v *planversion.PlanVersion) error {
	result, err := r.client.Querier(ctx).ExecContext(ctx, `
		UPDATE plan_versions
		SET version_status = $1, latest = $2, deactivated = $3, published_at = $4,
			updated_at = $5, updated_by = $6
		WHERE id = $7 AND tenant_id = $8 AND environment_id = $9 AND status != $10
	`,
		v.VersionStatus, v.Latest, v.Deactivated, v.PublishedAt,
		v.UpdatedAt, v.UpdatedBy,
		v.ID, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), types.StatusDeleted,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update plan version").
			Mark(ierr.ErrDatabase)
	}
	return requireRowAffected(result, "plan version", v.ID)
}

func (r *planVersionRepository) UpdateFeature(ctx context.Context, f *planversion.PlanVersionFeature) error {
	configJSON, err := json.Marshal(f.Config)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode pricing configuration").
			Mark(ierr.ErrSystem)
	}

	result, err := r.client.Querier(ctx).ExecContext(ctx, `
		UPDATE plan_version_features
		SET feature_name = $1, config = $2, default_quantity = $3, usage_limit = $4,
			hidden = $5, display_order = $6, external_id = $7, updated_at = $8, updated_by = $9
		WHERE id = $10 AND tenant_id = $11 AND environment_id = $12 AND status != $13
	`,
		f.FeatureName, configJSON, int64(f.DefaultQuantity), nullableUint(f.Limit),
		f.Hidden, f.Order, f.ExternalID, f.UpdatedAt, f.UpdatedBy,
		f.ID, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), types.StatusDeleted,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update plan version feature").
			Mark(ierr.ErrDatabase)
	}
	return requireRowAffected(result, "plan version feature", f.ID)
}

func (r *planVersionRepository) Delete(ctx context.Context, id string) error {
	return r.client.WithTx(ctx, func(ctx context.Context) error {
		result, err := r.client.Querier(ctx).ExecContext(ctx, `
			UPDATE plan_versions
			SET status = $1, updated_at = now(), updated_by = $2
			WHERE id = $3 AND tenant_id = $4 AND environment_id = $5 AND status != $1
		`, types.StatusDeleted, types.GetUserID(ctx), id, types.GetTenantID(ctx), types.GetEnvironmentID(ctx))
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to delete plan version").
				Mark(ierr.ErrDatabase)
		}
		if err := requireRowAffected(result, "plan version", id); err != nil {
			return err
		}

		_, err = r.client.Querier(ctx).ExecContext(ctx, `
			UPDATE plan_version_features
			SET status = $1, updated_at = now(), updated_by = $2
			WHERE plan_version_id = $3 AND tenant_id = $4 AND environment_id = $5 AND status != $1
		`, types.StatusDeleted, types.GetUserID(ctx), id, types.GetTenantID(ctx), types.GetEnvironmentID(ctx))
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to delete plan version features").
				Mark(ierr.ErrDatabase)
		}
		return nil
	})
}

func versionNotFound(id string) error {
	return ierr.NewError("plan version not found").
		WithHint("The plan version does not exist").
		WithReportableDetails(map[string]interface{}{"plan_version_id": id}).
		Mark(ierr.ErrNotFound)
}

func scanVersion(row rowScanner) (*planversion.PlanVersion, error) {
	var v planversion.PlanVersion
	var publishedAt sql.NullTime
	err := row.Scan(
		&v.ID, &v.PlanID, &v.Version, &v.VersionStatus, &v.Latest, &v.Deactivated,
		&v.Currency, &v.BillingPeriod, &publishedAt,
		&v.TenantID, &v.EnvironmentID, &v.Status, &v.CreatedAt, &v.UpdatedAt, &v.CreatedBy, &v.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		v.PublishedAt = &t
	}
	return &v, nil
}

func scanFeature(row rowScanner) (*planversion.PlanVersionFeature, error) {
	var f planversion.PlanVersionFeature
	var configJSON []byte
	var defaultQuantity int64
	var limit sql.NullInt64
	err := row.Scan(
		&f.ID, &f.PlanVersionID, &f.FeatureSlug, &f.FeatureName, &f.FeatureType,
		&configJSON, &defaultQuantity, &limit, &f.Hidden, &f.Order, &f.ExternalID,
		&f.TenantID, &f.EnvironmentID, &f.Status, &f.CreatedAt, &f.UpdatedAt, &f.CreatedBy, &f.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	f.DefaultQuantity = uint64(defaultQuantity)
	f.Limit = uintFromNull(limit)

	var cfg pricing.Config
	if err := json.Unmarshal(configJSON, &cfg); err != nil {
		return nil, err
	}
	f.Config = &cfg
	return &f, nil
}
