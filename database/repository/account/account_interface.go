package accountRepo

import (
	"context"
	"errors"

	"corebill/models"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an account lookup misses.
var ErrNotFound = errors.New("account not found")

// AccountRepository is the persistence contract for billing accounts.
type AccountRepository interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetAccountByExternalKey(ctx context.Context, externalKey string) (*models.Account, error)
	SaveAccount(ctx context.Context, account *models.Account) error
}
