package postgres

import (
	"context"

	"github.com/meterline/meterline/internal/domain/plan"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/logger"
	pgclient "github.com/meterline/meterline/internal/postgres"
	"github.com/meterline/meterline/internal/types"
)

type planRepository struct {
	client *pgclient.Client
	log    *logger.Logger
}

func NewPlanRepository(client *pgclient.Client, log *logger.Logger) plan.Repository {
	return &planRepository{client: client, log: log}
}

const planColumns = `id, name, lookup_key, description, is_default, payment_method_required,
	tenant_id, environment_id, status, created_at, updated_at, created_by, updated_by`

func (r *planRepository) Create(ctx context.Context, p *plan.Plan) error {
	_, err := r.client.Querier(ctx).ExecContext(ctx, `
		INSERT INTO plans (`+planColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		p.ID, p.Name, p.LookupKey, p.Description, p.IsDefault, p.PaymentMethodRequired,
		p.TenantID, p.EnvironmentID, p.Status, p.CreatedAt, p.UpdatedAt, p.CreatedBy, p.UpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("A plan with this identifier already exists").
				WithReportableDetails(map[string]interface{}{
					"plan_id":    p.ID,
					"lookup_key": p.LookupKey,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create plan").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *planRepository) Get(ctx context.Context, id string) (*plan.Plan, error) {
	row := r.client.Querier(ctx).QueryRowContext(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE id = $1 AND tenant_id = $2 AND environment_id = $3 AND status != $4
	`, id, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), types.StatusDeleted)

	p, err := scanPlan(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.NewError("plan not found").
				WithHint("The plan does not exist").
				WithReportableDetails(map[string]interface{}{"plan_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get plan").
			Mark(ierr.ErrDatabase)
	}
	return p, nil
}

func (r *planRepository) GetByLookupKey(ctx context.Context, lookupKey string) (*plan.Plan, error) {
	row := r.client.Querier(ctx).QueryRowContext(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE lookup_key = $1 AND tenant_id = $2 AND environment_id = $3 AND status != $4
	`, lookupKey, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), types.StatusDeleted)

	p, err := scanPlan(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.NewError("plan not found").
				WithHint("No plan carries this lookup key").
				WithReportableDetails(map[string]interface{}{"lookup_key": lookupKey}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get plan by lookup key").
			Mark(ierr.ErrDatabase)
	}
	return p, nil
}

func (r *planRepository) List(ctx context.Context) ([]*plan.Plan, error) {
	rows, err := r.client.Querier(ctx).QueryContext(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE tenant_id = $1 AND environment_id = $2 AND status != $3
		ORDER BY created_at
	`, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list plans").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var plans []*plan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan plan").
				Mark(ierr.ErrDatabase)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list plans").
			Mark(ierr.ErrDatabase)
	}
	return plans, nil
}

func (r *planRepository) Update(ctx context.Context, p *plan.Plan) error {
	result, err := r.client.Querier(ctx).ExecContext(ctx, `
		UPDATE plans
		SET name = $1, lookup_key = $2, description = $3, is_default = $4,
			payment_method_required = $5, updated_at = $6, updated_by = $7
		WHERE id = $8 AND tenant_id = $9 AND environment_id = $10 AND status != $11
	`,
		p.Name, p.LookupKey, p.Description, p.IsDefault,
		p.PaymentMethodRequired, p.UpdatedAt, p.UpdatedBy,
		p.ID, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), types.StatusDeleted,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update plan").
			Mark(ierr.ErrDatabase)
	}
	return requireRowAffected(result, "plan", p.ID)
}

func (r *planRepository) Delete(ctx context.Context, id string) error {
	result, err := r.client.Querier(ctx).ExecContext(ctx, `
		UPDATE plans
		SET status = $1, updated_at = now(), updated_by = $2
		WHERE id = $3 AND tenant_id = $4 AND environment_id = $5 AND status != $1
	`, types.StatusDeleted, types.GetUserID(ctx), id, types.GetTenantID(ctx), types.GetEnvironmentID(ctx))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to delete plan").
			Mark(ierr.ErrDatabase)
	}
	return requireRowAffected(result, "plan", id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlan(row rowScanner) (*plan.Plan, error) {
	var p plan.Plan
	err := row.Scan(
		&p.ID, &p.Name, &p.LookupKey, &p.Description, &p.IsDefault, &p.PaymentMethodRequired,
		&p.TenantID, &p.EnvironmentID, &p.Status, &p.CreatedAt, &p.UpdatedAt, &p.CreatedBy, &p.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
