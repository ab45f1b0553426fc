// Package integration defines the payment-provider surface the pricing
// engine produces to when a plan version is published.
package integration

import (
	"context"
)

// ProductUpsert is the provider-agnostic payload for one feature's product.
type ProductUpsert struct {
	// ID is the provider's product id when known; empty on first publish.
	ID          string
	Name        string
	Description string
}

// ProductSync pushes published plan version features to a payment provider.
// Implementations own their retry policy; callers treat a returned error as
// a failed remote call, not a failed publish.
type ProductSync interface {
	// UpsertProduct creates or updates the provider-side product and returns
	// its external id.
	UpsertProduct(ctx context.Context, upsert ProductUpsert) (string, error)
}

// NoopProductSync is used when no payment provider is configured.
type NoopProductSync struct{}

func (NoopProductSync) UpsertProduct(_ context.Context, upsert ProductUpsert) (string, error) {
	return upsert.ID, nil
}
