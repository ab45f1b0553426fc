// Package stripe implements product sync against the Stripe API.
package stripe

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/meterline/meterline/internal/config"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/integration"
	"github.com/meterline/meterline/internal/logger"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// ProductSync pushes plan version features to Stripe products. Transient
// Stripe failures are retried with exponential backoff; invalid requests
// are surfaced immediately.
type ProductSync struct {
	api *client.API
	log *logger.Logger
}

func NewProductSync(cfg *config.Configuration, log *logger.Logger) *ProductSync {
	api := &client.API{}
	api.Init(cfg.Stripe.APIKey, nil)
	return &ProductSync{api: api, log: log}
}

func (s *ProductSync) UpsertProduct(ctx context.Context, upsert integration.ProductUpsert) (string, error) {
	params := &stripe.ProductParams{
		Name: stripe.String(upsert.Name),
	}
	params.Context = ctx
	if upsert.Description != "" {
		params.Description = stripe.String(upsert.Description)
	}

	var externalID string
	operation := func() error {
		var (
			product *stripe.Product
			err     error
		)
		if upsert.ID != "" {
			product, err = s.api.Products.Update(upsert.ID, params)
		} else {
			product, err = s.api.Products.New(params)
		}
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		externalID = product.ID
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		s.log.Errorw("stripe product upsert failed",
			"product_id", upsert.ID,
			"name", upsert.Name,
			"error", err,
		)
		return "", ierr.WithError(err).
			WithHint("Failed to sync product to payment provider").
			Mark(ierr.ErrTransient)
	}

	return externalID, nil
}

// isRetryable treats rate limits and server-side failures as transient.
func isRetryable(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return true
	}
	switch stripeErr.Type {
	case stripe.ErrorTypeInvalidRequest, stripe.ErrorTypeCard:
		return false
	}
	return true
}
