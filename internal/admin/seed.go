package admin

import (
	"context"

	"github.com/ftauth/identity/internal/database"
	"github.com/ftauth/identity/internal/model"
	"github.com/ftauth/identity/util/passwordutil"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

// SeedOptions describes the initial administrator.
type SeedOptions struct {
	Username string
	Email    string
	Password string
}

// EnsureAdmin creates the administrator account unless a user with the same
// email already exists. It reports whether a record was created.
func EnsureAdmin(ctx context.Context, db database.AuthenticationDB, opts SeedOptions) (*model.User, bool, error) {
	if opts.Email == "" || opts.Username == "" {
		return nil, false, errors.New("admin username and email are required")
	}
	existing, err := db.GetUserByEmail(ctx, opts.Email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, database.ErrUserNotFound) {
		return nil, false, err
	}
	if len(opts.Password) < passwordutil.MinPasswordLength {
		return nil, false, errors.Errorf("admin password must be at least %d characters", passwordutil.MinPasswordLength)
	}

	hash, err := passwordutil.GeneratePasswordHash(opts.Password)
	if err != nil {
		return nil, false, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, false, err
	}
	admin := &model.User{
		ID:           id.String(),
		Username:     opts.Username,
		Email:        opts.Email,
		PasswordHash: hash,
		Provider:     model.ProviderLocal,
		Role:         model.RoleAdmin,
	}
	if err := db.CreateUser(ctx, admin); err != nil {
		if errors.Is(err, database.ErrDuplicateEmail) {
			existing, err := db.GetUserByEmail(ctx, opts.Email)
			return existing, false, err
		}
		return nil, false, err
	}
	return admin, true, nil
}
