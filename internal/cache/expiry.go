package cache

import "time"

const (
	ExpiryDefaultInMemory = 30 * time.Minute
	ExpiryDefaultRedis    = 5 * time.Minute

	// ExpiryEntitlement bounds staleness of cached access decisions.
	ExpiryEntitlement = 1 * time.Minute

	// ExpiryPlanVersion caches published (immutable) plan versions.
	ExpiryPlanVersion = 10 * time.Minute
)
