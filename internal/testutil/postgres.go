package testutil

import (
	"context"
	"database/sql"

	"github.com/meterline/meterline/internal/types"
)

// MockDBClient satisfies postgres.IClient for service tests: transactions
// run the callback directly and advisory locks are no-ops, since the
// in-memory stores are already serialized.
type MockDBClient struct{}

func NewMockDBClient() *MockDBClient {
	return &MockDBClient{}
}

func (c *MockDBClient) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (c *MockDBClient) TxFromContext(_ context.Context) *sql.Tx {
	return nil
}

func (c *MockDBClient) LockKey(_ context.Context, _ types.LockRequest) error {
	return nil
}

func (c *MockDBClient) TryLockKey(_ context.Context, _ string) (bool, error) {
	return true, nil
}
