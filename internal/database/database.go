package database

import (
	"context"
	"time"

	"github.com/ftauth/identity/internal/model"
	"github.com/pkg/errors"
)

// DefaultTimeout is the default length of time to wait
// for a database operation to complete.
const DefaultTimeout = time.Second * 3

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateEmail is returned when a user with the same email exists.
	ErrDuplicateEmail = errors.New("email already registered")
)

// Database handles all interactions with the data backend.
type Database interface {
	AuthenticationDB
	AdminDB
	ActivityDB
	Close() error
}

// AuthenticationDB handles interactions with the authentication database.
type AuthenticationDB interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	SetProvider(ctx context.Context, id string, provider model.Provider) (*model.User, error)
}

// AdminDB handles privileged mutations of user records.
type AdminDB interface {
	ListUsers(ctx context.Context) ([]*model.User, error)
	UpdateRole(ctx context.Context, id string, role model.Role) (*model.User, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// ActivityDB handles the per-user activity logs.
type ActivityDB interface {
	// AppendLog atomically appends entry to the user's log. Implementations
	// never let a user's timestamps decrease.
	AppendLog(ctx context.Context, id string, entry model.LogEntry) error
	ListUsers(ctx context.Context) ([]*model.User, error)
}

func prepareNewUser(user *model.User) error {
	if err := user.Valid(); err != nil {
		return err
	}
	if user.Logs == nil {
		user.Logs = []model.LogEntry{}
	}
	return nil
}
