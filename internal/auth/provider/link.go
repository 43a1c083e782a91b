package provider

import (
	"context"
	"strings"

	"github.com/ftauth/identity/internal/database"
	"github.com/ftauth/identity/internal/model"
	"github.com/ftauth/identity/util/passwordutil"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

// Profile is the upstream identity returned by the provider's userinfo
// endpoint.
type Profile struct {
	Subject           string `mapstructure:"sub"`
	Email             string `mapstructure:"email"`
	PreferredUsername string `mapstructure:"preferred_username"`
	Name              string `mapstructure:"name"`
}

// Username picks the local username for a new account.
func (p *Profile) Username() string {
	if p.PreferredUsername != "" {
		return p.PreferredUsername
	}
	if p.Name != "" {
		return p.Name
	}
	local := p.Email
	if i := strings.Index(local, "@"); i > 0 {
		local = local[:i]
	}
	return local
}

// LinkRule resolves an upstream profile to a local account.
type LinkRule func(ctx context.Context, db database.AuthenticationDB, profile *Profile) (*model.User, error)

// LinkByEmail trusts the provider's email claim. An existing account with the
// same email is adopted without re-checking its password; its password and
// role are left as they are and its provider becomes federated. Otherwise a
// new user-role account is created with a password that never verifies.
func LinkByEmail(ctx context.Context, db database.AuthenticationDB, profile *Profile) (*model.User, error) {
	user, err := db.GetUserByEmail(ctx, profile.Email)
	if err == nil {
		if user.Provider == model.ProviderFederated {
			return user, nil
		}
		return db.SetProvider(ctx, user.ID, model.ProviderFederated)
	}
	if !errors.Is(err, database.ErrUserNotFound) {
		return nil, errors.Wrap(err, "looking up user by email")
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	user = &model.User{
		ID:           id.String(),
		Username:     profile.Username(),
		Email:        profile.Email,
		PasswordHash: passwordutil.Sentinel,
		Provider:     model.ProviderFederated,
		Role:         model.RoleUser,
	}
	err = db.CreateUser(ctx, user)
	if errors.Is(err, database.ErrDuplicateEmail) {
		// A concurrent callback for the same identity won the insert.
		return db.GetUserByEmail(ctx, profile.Email)
	}
	if err != nil {
		return nil, errors.Wrap(err, "creating federated user")
	}
	return user, nil
}
