package postgres

import (
	"context"
	"database/sql"

	"github.com/meterline/meterline/internal/domain/subscription"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/logger"
	pgclient "github.com/meterline/meterline/internal/postgres"
	"github.com/meterline/meterline/internal/types"
)

type subscriptionRepository struct {
	client *pgclient.Client
	log    *logger.Logger
}

func NewSubscriptionRepository(client *pgclient.Client, log *logger.Logger) subscription.Repository {
	return &subscriptionRepository{client: client, log: log}
}

const subscriptionColumns = `id, customer_id,
	tenant_id, environment_id, status, created_at, updated_at, created_by, updated_by`

const phaseColumns = `id, subscription_id, plan_version_id, start_date, end_date,
	tenant_id, environment_id, status, created_at, updated_at, created_by, updated_by`

const phaseItemColumns = `id, phase_id, feature_slug, quantity,
	tenant_id, environment_id, status, created_at, updated_at, created_by, updated_by`

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	return r.client.WithTx(ctx, func(ctx context.Context) error {
		_, err := r.client.Querier(ctx).ExecContext(ctx, `
			INSERT INTO subscriptions (`+subscriptionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			sub.ID, sub.CustomerID,
			sub.TenantID, sub.EnvironmentID, sub.Status, sub.CreatedAt, sub.UpdatedAt, sub.CreatedBy, sub.UpdatedBy,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ierr.WithError(err).
					WithHint("The subscription already exists").
					WithReportableDetails(map[string]interface{}{"subscription_id": sub.ID}).
					Mark(ierr.ErrAlreadyExists)
			}
			return ierr.WithError(err).
				WithHint("Failed to create subscription").
				Mark(ierr.ErrDatabase)
		}
		return r.insertPhases(ctx, sub)
	})
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	row := r.client.Querier(ctx).QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE id = $1 AND tenant_id = $2 AND environment_id = $3 AND status != $4
	`, id, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), types.StatusDeleted)

	sub, err := scanSubscription(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.NewError("subscription not found").
				WithHint("The subscription does not exist").
				WithReportableDetails(map[string]interface{}{"subscription_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get subscription").
			Mark(ierr.ErrDatabase)
	}

	if err := r.loadPhases(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *subscriptionRepository) GetByCustomer(ctx context.Context, customerID string) ([]*subscription.Subscription, error) {
	rows, err := r.client.Querier(ctx).QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE customer_id = $1 AND tenant_id = $2 AND environment_id = $3 AND status != $4
		ORDER BY created_at
	`, customerID, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list subscriptions").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var subs []*subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan subscription").
				Mark(ierr.ErrDatabase)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list subscriptions").
			Mark(ierr.ErrDatabase)
	}

	for _, sub := range subs {
		if err := r.loadPhases(ctx, sub); err != nil {
			return nil, err
		}
	}
	return subs, nil
}

// Update rewrites the subscription's phase set as a unit. Phases are few per
// subscription, so replace-on-write keeps the window arithmetic in one place.
func (r *subscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	return r.client.WithTx(ctx, func(ctx context.Context) error {
		result, err := r.client.Querier(ctx).ExecContext(ctx, `
			UPDATE subscriptions
			SET updated_at = $1, updated_by = $2
			WHERE id = $3 AND tenant_id = $4 AND environment_id = $5 AND status != $6
		`, sub.UpdatedAt, sub.UpdatedBy, sub.ID, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), types.StatusDeleted)
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to update subscription").
				Mark(ierr.ErrDatabase)
		}
		if err := requireRowAffected(result, "subscription", sub.ID); err != nil {
			return err
		}

		_, err = r.client.Querier(ctx).ExecContext(ctx, `
			DELETE FROM subscription_phase_items
			WHERE phase_id IN (SELECT id FROM subscription_phases WHERE subscription_id = $1)
		`, sub.ID)
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to clear subscription phase items").
				Mark(ierr.ErrDatabase)
		}
		_, err = r.client.Querier(ctx).ExecContext(ctx, `
			DELETE FROM subscription_phases WHERE subscription_id = $1
		`, sub.ID)
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to clear subscription phases").
				Mark(ierr.ErrDatabase)
		}
		return r.insertPhases(ctx, sub)
	})
}

func (r *subscriptionRepository) insertPhases(ctx context.Context, sub *subscription.Subscription) error {
	for _, phase := range sub.Phases {
		_, err := r.client.Querier(ctx).ExecContext(ctx, `
			INSERT INTO subscription_phases (`+phaseColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			phase.ID, sub.ID, phase.PlanVersionID, phase.StartDate, phase.EndDate,
			phase.TenantID, phase.EnvironmentID, phase.Status, phase.CreatedAt, phase.UpdatedAt, phase.CreatedBy, phase.UpdatedBy,
		)
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to persist subscription phase").
				Mark(ierr.ErrDatabase)
		}

		for _, item := range phase.Items {
			_, err := r.client.Querier(ctx).ExecContext(ctx, `
				INSERT INTO subscription_phase_items (`+phaseItemColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			`,
				item.ID, phase.ID, item.FeatureSlug, int64(item.Quantity),
				item.TenantID, item.EnvironmentID, item.Status, item.CreatedAt, item.UpdatedAt, item.CreatedBy, item.UpdatedBy,
			)
			if err != nil {
				return ierr.WithError(err).
					WithHint("Failed to persist subscription phase item").
					Mark(ierr.ErrDatabase)
			}
		}
	}
	return nil
}

func (r *subscriptionRepository) loadPhases(ctx context.Context, sub *subscription.Subscription) error {
	rows, err := r.client.Querier(ctx).QueryContext(ctx, `
		SELECT `+phaseColumns+`
		FROM subscription_phases
		WHERE subscription_id = $1
		ORDER BY start_date
	`, sub.ID)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to load subscription phases").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	for rows.Next() {
		var phase subscription.Phase
		var endDate sql.NullTime
		err := rows.Scan(
			&phase.ID, &phase.SubscriptionID, &phase.PlanVersionID, &phase.StartDate, &endDate,
			&phase.TenantID, &phase.EnvironmentID, &phase.Status, &phase.CreatedAt, &phase.UpdatedAt, &phase.CreatedBy, &phase.UpdatedBy,
		)
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to scan subscription phase").
				Mark(ierr.ErrDatabase)
		}
		if endDate.Valid {
			t := endDate.Time
			phase.EndDate = &t
		}
		sub.Phases = append(sub.Phases, &phase)
	}
	if err := rows.Err(); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to load subscription phases").
			Mark(ierr.ErrDatabase)
	}

	for _, phase := range sub.Phases {
		if err := r.loadItems(ctx, phase); err != nil {
			return err
		}
	}
	return nil
}

func (r *subscriptionRepository) loadItems(ctx context.Context, phase *subscription.Phase) error {
	rows, err := r.client.Querier(ctx).QueryContext(ctx, `
		SELECT `+phaseItemColumns+`
		FROM subscription_phase_items
		WHERE phase_id = $1
		ORDER BY feature_slug
	`, phase.ID)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to load phase items").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	for rows.Next() {
		var item subscription.PhaseItem
		var quantity int64
		err := rows.Scan(
			&item.ID, &item.PhaseID, &item.FeatureSlug, &quantity,
			&item.TenantID, &item.EnvironmentID, &item.Status, &item.CreatedAt, &item.UpdatedAt, &item.CreatedBy, &item.UpdatedBy,
		)
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to scan phase item").
				Mark(ierr.ErrDatabase)
		}
		item.Quantity = uint64(quantity)
		phase.Items = append(phase.Items, &item)
	}
	return rows.Err()
}

func scanSubscription(row rowScanner) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	err := row.Scan(
		&sub.ID, &sub.CustomerID,
		&sub.TenantID, &sub.EnvironmentID, &sub.Status, &sub.CreatedAt, &sub.UpdatedAt, &sub.CreatedBy, &sub.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
