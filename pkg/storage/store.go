package storage

import (
	"context"
	"errors"

	"apnaspace/pkg/model"
)

// Names of the two denormalized edge fields on the user document. The
// follow graph only ever touches these through SetWriter.
const (
	FieldFollowers = "followers"
	FieldFollowing = "following"
)

var ErrNotFound = errors.New("user not found")

// SetWriter applies set-semantics updates to a named array field of a
// user document. Adding an existing member and removing a missing member
// are no-ops; updating a missing document is an error so that the
// enclosing transaction aborts.
type SetWriter interface {
	AddToSet(ctx context.Context, userID string, field string, memberID string) error
	PullFromSet(ctx context.Context, userID string, field string, memberID string) error
}

// Store is the narrow storage surface the services depend on. Transact
// groups set writes into a single all-or-nothing unit: if the closure
// returns an error or the context is canceled, none of its writes are
// observable afterwards.
type Store interface {
	GetUser(ctx context.Context, userID string) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	GetUsers(ctx context.Context, userIDs []string) ([]model.User, error)
	InsertUser(ctx context.Context, user model.User) error
	UpdateUser(ctx context.Context, userID string, update model.ProfileUpdate) error
	DeleteUser(ctx context.Context, userID string) error
	Transact(ctx context.Context, fn func(ctx context.Context, tx SetWriter) error) error
}
