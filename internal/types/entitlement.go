package types

// DeniedReason explains a negative entitlement decision.
type DeniedReason string

const (
	// DeniedReasonFeatureNotAvailable means no active phase's plan version carries the feature.
	DeniedReasonFeatureNotAvailable DeniedReason = "feature_not_available"
	// DeniedReasonLimitReached means aggregated usage has hit the feature's hard cap.
	DeniedReasonLimitReached DeniedReason = "limit_reached"
	// DeniedReasonNoActiveSubscription means the customer has no current phase at all.
	DeniedReasonNoActiveSubscription DeniedReason = "no_active_subscription"
)

// AccessSource records where an entitlement decision was resolved from.
type AccessSource string

const (
	AccessSourceCache AccessSource = "cache"
	AccessSourceStore AccessSource = "store"
)
