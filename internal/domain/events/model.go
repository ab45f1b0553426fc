// Package events defines the usage events emitted by the entitlement guard
// and consumed by the usage reporting worker.
package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/types"
)

// UsageEvent records one unit-consuming action. Delivery is at-least-once;
// consumers deduplicate on IdempotencyKey.
type UsageEvent struct {
	ID             string `json:"id"`
	IdempotencyKey string `json:"idempotency_key"`
	CustomerID     string `json:"customer_id"`
	FeatureSlug    string `json:"feature_slug"`
	Usage          uint64 `json:"usage"`

	// AggregationMethod tells the consumer how the increment folds into the
	// counter; empty is treated as sum.
	AggregationMethod types.AggregationMethod `json:"aggregation_method,omitempty"`

	Metadata types.Metadata `json:"metadata,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	TenantID       string         `json:"tenant_id"`
	EnvironmentID  string         `json:"environment_id"`
}

// NewUsageEvent builds a usage event for one consuming action. The
// idempotency key is derived from the action reference, so a retried
// publish of the same action maps to the same key and is applied once.
func NewUsageEvent(ctx context.Context, customerID, featureSlug string, usage uint64, actionRef string) *UsageEvent {
	return &UsageEvent{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_USAGE_EVENT),
		IdempotencyKey: DeriveIdempotencyKey(customerID, featureSlug, actionRef),
		CustomerID:     customerID,
		FeatureSlug:    featureSlug,
		Usage:          usage,
		Timestamp:      time.Now().UTC(),
		TenantID:       types.GetTenantID(ctx),
		EnvironmentID:  types.GetEnvironmentID(ctx),
	}
}

// DeriveIdempotencyKey hashes the triggering action into a stable key.
// The same (customer, feature, action) always maps to the same key.
func DeriveIdempotencyKey(customerID, featureSlug, actionRef string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", customerID, featureSlug, actionRef)))
	return hex.EncodeToString(sum[:])
}

// Validate checks the event before publication.
func (e *UsageEvent) Validate() error {
	var issues ierr.ValidationIssues
	if e.IdempotencyKey == "" {
		issues.Add("idempotency_key", "idempotency key is required")
	}
	if e.CustomerID == "" {
		issues.Add("customer_id", "customer id is required")
	}
	if e.FeatureSlug == "" {
		issues.Add("feature_slug", "feature slug is required")
	}
	if e.Usage == 0 {
		issues.Add("usage", "usage must be positive")
	}
	return issues.Err(ierr.ErrValidation)
}
