package domain

import (
	"context"
	"errors"
	"time"
)

// DirectoryUser is an identity as the external auth provider reports it.
type DirectoryUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Directory is the external identity provider holding the source of truth
// for user registration.
type Directory interface {
	ListUsers(ctx context.Context, page, perPage int) ([]DirectoryUser, error)
	GetUser(ctx context.Context, id string) (*DirectoryUser, error)
}

// Syncer mirrors directory identities into local accounts.
type Syncer interface {
	// SyncAll walks the directory and creates accounts for unseen users.
	SyncAll(ctx context.Context) (created int, err error)

	// SyncOne resolves a single identity on demand, creating the local
	// account when it does not exist yet.
	SyncOne(ctx context.Context, externalID string) error
}

var (
	ErrDirectoryRequest = errors.New("directory_request_failed")
	ErrUnknownIdentity  = errors.New("unknown_identity")
)
