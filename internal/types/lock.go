package types

import "time"

const defaultLockTimeout = 30 * time.Second

// LockRequest describes an advisory lock to acquire inside a transaction.
type LockRequest struct {
	Key     string
	Timeout *time.Duration
}

func (r LockRequest) GetTimeout() time.Duration {
	if r.Timeout == nil {
		return defaultLockTimeout
	}
	return *r.Timeout
}
