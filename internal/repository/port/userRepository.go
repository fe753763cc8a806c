package repository

import "context"

// User is the identity slice this core consumes. Account lifecycle
// (registration, credentials, profile) belongs to the external identity
// service; once a connection is admitted the resolved ID is trusted.
type User struct {
	ID       string
	Username string
	Status   string
}

// UserRepository resolves user identities and records presence status.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*User, error)
	UpdateStatus(ctx context.Context, id string, status string) error
}
