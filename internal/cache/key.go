package cache

import "strings"

// Cache key namespaces. Keys are namespaced per concern so invalidation of one
// concern never touches another.
const (
	NamespaceEntitlement = "entitlement"
	NamespacePlanVersion = "planversion"
)

// Key builds a namespaced composite cache key.
func Key(namespace string, parts ...string) string {
	return namespace + ":" + strings.Join(parts, ":")
}

// EntitlementKey is the cache key for one (customer, feature) decision.
func EntitlementKey(customerID, featureSlug string) string {
	return Key(NamespaceEntitlement, customerID, featureSlug)
}

// PlanVersionKey is the cache key for one plan version with its features.
func PlanVersionKey(id string) string {
	return Key(NamespacePlanVersion, id)
}
