package postgres

import (
	"context"
	"database/sql"

	"github.com/meterline/meterline/internal/domain/entitlement"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/logger"
	pgclient "github.com/meterline/meterline/internal/postgres"
	"github.com/meterline/meterline/internal/types"
)

type entitlementRepository struct {
	client *pgclient.Client
	log    *logger.Logger
}

func NewEntitlementRepository(client *pgclient.Client, log *logger.Logger) entitlement.Repository {
	return &entitlementRepository{client: client, log: log}
}

const entitlementColumns = `id, customer_id, feature_slug, used_quantity, usage_limit,
	tenant_id, environment_id, status, created_at, updated_at, created_by, updated_by`

func (r *entitlementRepository) Get(ctx context.Context, customerID, featureSlug string) (*entitlement.Entitlement, error) {
	row := r.client.Querier(ctx).QueryRowContext(ctx, `
		SELECT `+entitlementColumns+`
		FROM entitlements
		WHERE customer_id = $1 AND feature_slug = $2
			AND tenant_id = $3 AND environment_id = $4 AND status != $5
	`, customerID, featureSlug, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), types.StatusDeleted)

	var ent entitlement.Entitlement
	var usedQuantity int64
	var limit sql.NullInt64
	err := row.Scan(
		&ent.ID, &ent.CustomerID, &ent.FeatureSlug, &usedQuantity, &limit,
		&ent.TenantID, &ent.EnvironmentID, &ent.Status, &ent.CreatedAt, &ent.UpdatedAt, &ent.CreatedBy, &ent.UpdatedBy,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.NewError("entitlement not found").
				WithReportableDetails(map[string]interface{}{
					"customer_id":  customerID,
					"feature_slug": featureSlug,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get entitlement").
			Mark(ierr.ErrDatabase)
	}
	ent.UsedQuantity = uint64(usedQuantity)
	ent.Limit = uintFromNull(limit)
	return &ent, nil
}

func (r *entitlementRepository) Upsert(ctx context.Context, ent *entitlement.Entitlement) error {
	_, err := r.client.Querier(ctx).ExecContext(ctx, `
		INSERT INTO entitlements (`+entitlementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tenant_id, environment_id, customer_id, feature_slug)
		DO UPDATE SET usage_limit = EXCLUDED.usage_limit,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by
	`,
		ent.ID, ent.CustomerID, ent.FeatureSlug, int64(ent.UsedQuantity), nullableUint(ent.Limit),
		ent.TenantID, ent.EnvironmentID, ent.Status, ent.CreatedAt, ent.UpdatedAt, ent.CreatedBy, ent.UpdatedBy,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to upsert entitlement").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

// IncrementUsage applies one usage event exactly once. The receipt insert and
// the counter update commit together; a replayed idempotency key hits the
// receipt's primary key and the counter is left untouched. The fold
// expression follows the feature's aggregation method.
func (r *entitlementRepository) IncrementUsage(ctx context.Context, customerID, featureSlug string, amount uint64, method types.AggregationMethod, idempotencyKey string) (bool, error) {
	applied := false
	err := r.client.WithTx(ctx, func(ctx context.Context) error {
		result, err := r.client.Querier(ctx).ExecContext(ctx, `
			INSERT INTO usage_receipts (idempotency_key, tenant_id, environment_id, created_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (idempotency_key) DO NOTHING
		`, idempotencyKey, types.GetTenantID(ctx), types.GetEnvironmentID(ctx))
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to record usage receipt").
				Mark(ierr.ErrDatabase)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to read affected rows").
				Mark(ierr.ErrDatabase)
		}
		if n == 0 {
			return nil
		}

		var fold string
		switch method {
		case types.AGGREGATION_MAX:
			fold = "GREATEST(entitlements.used_quantity, EXCLUDED.used_quantity)"
		case types.AGGREGATION_LAST:
			fold = "EXCLUDED.used_quantity"
		default:
			fold = "entitlements.used_quantity + EXCLUDED.used_quantity"
		}

		base := types.GetDefaultBaseModel(ctx)
		_, err = r.client.Querier(ctx).ExecContext(ctx, `
			INSERT INTO entitlements (`+entitlementColumns+`)
			VALUES ($1, $2, $3, $4, NULL, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (tenant_id, environment_id, customer_id, feature_slug)
			DO UPDATE SET used_quantity = `+fold+`,
				updated_at = EXCLUDED.updated_at,
				updated_by = EXCLUDED.updated_by
		`,
			types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ENTITLEMENT), customerID, featureSlug, int64(amount),
			base.TenantID, base.EnvironmentID, base.Status, base.CreatedAt, base.UpdatedAt, base.CreatedBy, base.UpdatedBy,
		)
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to increment usage counter").
				Mark(ierr.ErrDatabase)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
