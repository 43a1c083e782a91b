// Package token issues and verifies the signed, self-contained tokens used by
// the identity service. There is no server-side token table: a token is valid
// if and only if its signature and claims check out.
package token

import (
	"time"

	"github.com/ftauth/identity/internal/model"
	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Kind identifies the purpose of a token.
type Kind string

// Supported token kinds
const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Default lifetimes
const (
	DefaultAccessLifetime    = 15 * time.Minute
	DefaultRefreshLifetime   = 7 * 24 * time.Hour
	DefaultFederatedLifetime = time.Hour
)

var (
	// ErrInvalidToken is returned for any token that fails verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingSecret means a signing secret was not configured.
	ErrMissingSecret = errors.New("missing signing secret")

	// ErrSharedSecret means the access and refresh secrets are identical.
	ErrSharedSecret = errors.New("access and refresh tokens must use distinct secrets")
)

// Claims are the claims carried by every token. The subject is the user ID.
type Claims struct {
	jwt.RegisteredClaims
	Kind Kind       `json:"kind"`
	Role model.Role `json:"role,omitempty"`
}

// Options configures an Issuer.
type Options struct {
	AccessSecret      []byte
	RefreshSecret     []byte
	AccessLifetime    time.Duration
	RefreshLifetime   time.Duration
	FederatedLifetime time.Duration

	// IgnoreRefreshExpiration skips the exp check on refresh tokens, leaving
	// the cookie's max age as the only bound on their lifetime.
	IgnoreRefreshExpiration bool

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Issuer mints and verifies access and refresh tokens.
type Issuer struct {
	opts Options
}

// NewIssuer creates an Issuer, applying default lifetimes.
func NewIssuer(opts Options) (*Issuer, error) {
	if len(opts.AccessSecret) == 0 || len(opts.RefreshSecret) == 0 {
		return nil, ErrMissingSecret
	}
	if string(opts.AccessSecret) == string(opts.RefreshSecret) {
		return nil, ErrSharedSecret
	}
	if opts.AccessLifetime <= 0 {
		opts.AccessLifetime = DefaultAccessLifetime
	}
	if opts.RefreshLifetime <= 0 {
		opts.RefreshLifetime = DefaultRefreshLifetime
	}
	if opts.FederatedLifetime <= 0 {
		opts.FederatedLifetime = DefaultFederatedLifetime
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Issuer{opts: opts}, nil
}

// RefreshLifetime is the lifetime of refresh tokens and their cookie.
func (i *Issuer) RefreshLifetime() time.Duration {
	return i.opts.RefreshLifetime
}

// IssueAccessToken mints a short-lived bearer token for the subject and role.
func (i *Issuer) IssueAccessToken(subjectID string, role model.Role) (string, error) {
	return i.issue(KindAccess, subjectID, role, i.opts.AccessLifetime)
}

// IssueFederatedAccessToken mints the access token returned by the federation
// callback. It is signed like any access token but lives longer.
func (i *Issuer) IssueFederatedAccessToken(subjectID string, role model.Role) (string, error) {
	return i.issue(KindAccess, subjectID, role, i.opts.FederatedLifetime)
}

// IssueRefreshToken mints a refresh token for the subject. It carries no role.
func (i *Issuer) IssueRefreshToken(subjectID string) (string, error) {
	return i.issue(KindRefresh, subjectID, "", i.opts.RefreshLifetime)
}

func (i *Issuer) issue(kind Kind, subjectID string, role model.Role, lifetime time.Duration) (string, error) {
	if subjectID == "" {
		return "", errors.New("missing subject")
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	now := i.opts.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.String(),
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
		Kind: kind,
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret(kind))
}

func (i *Issuer) secret(kind Kind) []byte {
	if kind == KindRefresh {
		return i.opts.RefreshSecret
	}
	return i.opts.AccessSecret
}

// VerifyOptions adjusts verification.
type VerifyOptions struct {
	IgnoreExpiration bool
}

// Verify checks the token's signature against the secret for kind and
// returns its claims. Any failure is reported as ErrInvalidToken.
func (i *Issuer) Verify(tokenString string, kind Kind, opts VerifyOptions) (*Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.opts.Now),
	}
	if opts.IgnoreExpiration {
		parserOpts = append(parserOpts, jwt.WithoutClaimsValidation())
	} else {
		parserOpts = append(parserOpts, jwt.WithExpirationRequired())
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret(kind), nil
	}, parserOpts...)
	if err != nil {
		return nil, errors.WithMessage(ErrInvalidToken, err.Error())
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, errors.WithMessagef(ErrInvalidToken, "expected %s token, got %q", kind, claims.Kind)
	}
	if claims.Subject == "" {
		return nil, errors.WithMessage(ErrInvalidToken, "missing subject")
	}
	return claims, nil
}

// VerifyAccessToken verifies a bearer token.
func (i *Issuer) VerifyAccessToken(tokenString string) (*Claims, error) {
	return i.Verify(tokenString, KindAccess, VerifyOptions{})
}

// VerifyRefreshToken verifies a refresh token, honoring IgnoreRefreshExpiration.
func (i *Issuer) VerifyRefreshToken(tokenString string) (*Claims, error) {
	return i.Verify(tokenString, KindRefresh, VerifyOptions{
		IgnoreExpiration: i.opts.IgnoreRefreshExpiration,
	})
}
