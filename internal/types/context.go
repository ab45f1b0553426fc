package types

import "context"

type ContextKey string

const (
	CtxRequestID     ContextKey = "ctx_request_id"
	CtxTenantID      ContextKey = "ctx_tenant_id"
	CtxEnvironmentID ContextKey = "ctx_environment_id"
	CtxUserID        ContextKey = "ctx_user_id"
)

func GetRequestID(ctx context.Context) string {
	return getString(ctx, CtxRequestID)
}

func GetTenantID(ctx context.Context) string {
	return getString(ctx, CtxTenantID)
}

func GetEnvironmentID(ctx context.Context) string {
	return getString(ctx, CtxEnvironmentID)
}

func GetUserID(ctx context.Context) string {
	return getString(ctx, CtxUserID)
}

func getString(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
