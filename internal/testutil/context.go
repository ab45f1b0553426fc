package testutil

import (
	"context"

	"github.com/meterline/meterline/internal/types"
)

const (
	TestTenantID      = "tenant_test"
	TestEnvironmentID = "env_test"
	TestUserID        = "user_test"
)

// SetupContext returns a context carrying the identifiers services expect.
func SetupContext() context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, types.CtxTenantID, TestTenantID)
	ctx = context.WithValue(ctx, types.CtxEnvironmentID, TestEnvironmentID)
	ctx = context.WithValue(ctx, types.CtxUserID, TestUserID)
	ctx = context.WithValue(ctx, types.CtxRequestID, types.GenerateUUID())
	return ctx
}
