package types

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Typed ID prefixes. Every persisted entity gets a ULID with one of these.
const (
	UUID_PREFIX_PLAN                 = "plan"
	UUID_PREFIX_PLAN_VERSION         = "pv"
	UUID_PREFIX_PLAN_VERSION_FEATURE = "pvf"
	UUID_PREFIX_SUBSCRIPTION         = "sub"
	UUID_PREFIX_SUBSCRIPTION_PHASE   = "phase"
	UUID_PREFIX_ENTITLEMENT          = "ent"
	UUID_PREFIX_USAGE_EVENT          = "evt"
)

// GenerateUUID returns a lowercase ULID.
func GenerateUUID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String())
}

// GenerateUUIDWithPrefix returns a lowercase ULID with the given entity prefix.
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}
