package domain

import (
	"context"
	"errors"
)

type Service interface {
	// GetByExternalID resolves a directory identity to a local account.
	GetByExternalID(ctx context.Context, externalID string) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
}

var (
	ErrNotFound            = errors.New("account_not_found")
	ErrAccountDisabled     = errors.New("account_disabled")
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrInvalidID           = errors.New("invalid_id")
)
