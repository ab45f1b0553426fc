package types

import (
	"context"
	"time"
)

// Status is the soft lifecycle status carried by every record.
type Status string

const (
	StatusPublished Status = "published"
	StatusDeleted   Status = "deleted"
	StatusArchived  Status = "archived"
)

// Metadata is a free-form string map persisted alongside records.
type Metadata map[string]string

// BaseModel carries the audit and tenancy columns shared by all entities.
type BaseModel struct {
	TenantID      string    `json:"tenant_id"`
	EnvironmentID string    `json:"environment_id"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	CreatedBy     string    `json:"created_by"`
	UpdatedBy     string    `json:"updated_by"`
}

// GetDefaultBaseModel returns a BaseModel stamped from the request context.
func GetDefaultBaseModel(ctx context.Context) BaseModel {
	now := time.Now().UTC()
	return BaseModel{
		TenantID:      GetTenantID(ctx),
		EnvironmentID: GetEnvironmentID(ctx),
		Status:        StatusPublished,
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     GetUserID(ctx),
		UpdatedBy:     GetUserID(ctx),
	}
}

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

type RunMode string

const (
	RunModeLocal RunMode = "local"
	RunModeProd  RunMode = "prod"
)
