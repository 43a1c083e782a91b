package fthttp

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/ftauth/identity/internal/database"
	"github.com/ftauth/identity/internal/model"
	"github.com/ftauth/identity/internal/token"
	"github.com/pkg/errors"
)

type contextKey string

// Context keys
var (
	UserContextKey contextKey = "user"
)

// Public gate failures
var (
	ErrAccessDenied = NewError(ErrUnauthenticated, "Access Denied")
	ErrInvalidToken = NewError(ErrUnauthenticated, "Invalid Token")
	ErrRoleDenied   = NewError(ErrForbidden, "Forbidden: Insufficient role")
	ErrMTLSRequired = NewError(ErrForbidden, "mTLS Required: Client Certificate Missing")
)

// AccessTokenVerifier verifies bearer access tokens.
type AccessTokenVerifier interface {
	VerifyAccessToken(tokenString string) (*token.Claims, error)
}

// UserLookup resolves the current record for a token subject.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// SuppressReferrer follows best practices to avoid leaking
// the authorization code or state parameter via the Referrer
// header being maliciously targetted.
//
// See Section 4.2.4: https://tools.ietf.org/html/draft-ietf-oauth-security-topics-16
func SuppressReferrer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Referrer-Policy", "no-referrer")

		next.ServeHTTP(w, r)
	})
}

// NewMiddleware creates a middleware factory for authentication gates.
func NewMiddleware(verifier AccessTokenVerifier, users UserLookup) *Middleware {
	return &Middleware{
		verifier: verifier,
		users:    users,
	}
}

// Middleware provides methods for creating HTTP middleware.
type Middleware struct {
	verifier AccessTokenVerifier
	users    UserLookup
}

// Authenticate protects endpoints based off a user's Bearer access token. The
// subject's current record is loaded from the store and attached to the
// request context, so role changes apply to tokens issued before them.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.authenticate(r)
		if err != nil {
			slog.DebugContext(r.Context(), "Authentication failed", "path", r.URL.Path, "error", err)
			w.Header().Set("WWW-Authenticate", bearerScheme)
			WriteError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) authenticate(r *http.Request) (*model.User, error) {
	bearer, err := ParseBearerAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		if err == ErrEmptyAuthHeader {
			return nil, ErrAccessDenied
		}
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}

	claims, err := m.verifier.VerifyAccessToken(bearer)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	user, err := m.users.GetUserByID(ctx, claims.Subject)
	if errors.Is(err, database.ErrUserNotFound) {
		return nil, errors.Wrapf(ErrInvalidToken, "subject %s no longer exists", claims.Subject)
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading token subject")
	}
	return user, nil
}

// Authorize permits the request only when the authenticated user holds one of
// the allowed roles. It must run after Authenticate.
func Authorize(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				WriteError(w, r, ErrAccessDenied)
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			slog.InfoContext(r.Context(), "Role check failed", "user", user.ID, "role", user.Role, "path", r.URL.Path)
			WriteError(w, r, ErrRoleDenied)
		})
	}
}

// RequireMTLS permits the request only when the connection presented a client
// certificate that the TLS layer verified.
func RequireMTLS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ClientCertificateAuthorized(r) {
			WriteError(w, r, ErrMTLSRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientCertificateAuthorized reports whether the request arrived over TLS
// with a verified client certificate chain.
func ClientCertificateAuthorized(r *http.Request) bool {
	return r.TLS != nil && len(r.TLS.VerifiedChains) > 0
}

// UserFromContext returns the user attached by Authenticate.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*model.User)
	return user, ok && user != nil
}

// ClientIP returns the network address of the caller.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
