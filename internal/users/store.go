package users

import (
	"context"

	"ms-booking/internal/models"
)

// Tx is the view of the store inside WithAdminLock.
type Tx interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	CountAdmins(ctx context.Context) (int, error)
	DeleteUser(ctx context.Context, id string) error
}

// Store returns models.ErrRecordNotFound for missing point lookups.
type Store interface {
	Tx
	// ListUsers returns users newest first; an empty role lists everyone.
	ListUsers(ctx context.Context, role string) ([]models.User, error)
	// WithAdminLock runs fn in a transaction that excludes concurrent changes to the admin set.
	WithAdminLock(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
