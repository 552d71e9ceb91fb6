package models

import (
	"time"

	"github.com/google/uuid"
)

// CallContext is the public, tenant-scoped context callers hand to the API layer.
type CallContext struct {
	TenantID  uuid.UUID
	UserToken uuid.UUID
	CreatedBy string
	CreatedAt time.Time
}

// InternalCallContext is the account-scoped context used below the API facade.
// It is derived from a CallContext once the owning account is known.
type InternalCallContext struct {
	TenantID  uuid.UUID
	AccountID uuid.UUID
	UserToken uuid.UUID
	CreatedBy string
}

// Internal scopes a public call context to an account.
func (c CallContext) Internal(accountID uuid.UUID) InternalCallContext {
	return InternalCallContext{
		TenantID:  c.TenantID,
		AccountID: accountID,
		UserToken: c.UserToken,
		CreatedBy: c.CreatedBy,
	}
}

// Tenant strips the account scope again, for read paths that span accounts.
func (c CallContext) Tenant() InternalCallContext {
	return InternalCallContext{
		TenantID:  c.TenantID,
		UserToken: c.UserToken,
		CreatedBy: c.CreatedBy,
	}
}
