package fthttp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ftauth/identity/internal/database"
	"github.com/ftauth/identity/internal/model"
	"github.com/ftauth/identity/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUsers map[string]*model.User

func (m mockUsers) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	user, ok := m[id]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	return user, nil
}

func setupMiddleware(t *testing.T, users mockUsers) (*Middleware, *token.Issuer) {
	issuer, err := token.NewIssuer(token.Options{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
	})
	require.NoError(t, err)
	return NewMiddleware(issuer, users), issuer
}

func okHandler(t *testing.T, wantUser string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, wantUser, user.ID)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate(t *testing.T) {
	users := mockUsers{
		"alice": {ID: "alice", Role: model.RoleUser},
	}
	m, issuer := setupMiddleware(t, users)

	valid, err := issuer.IssueAccessToken("alice", model.RoleUser)
	require.NoError(t, err)
	refresh, err := issuer.IssueRefreshToken("alice")
	require.NoError(t, err)
	ghost, err := issuer.IssueAccessToken("ghost", model.RoleAdmin)
	require.NoError(t, err)

	expiredIssuer, err := token.NewIssuer(token.Options{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		Now:           func() time.Time { return time.Now().Add(-time.Hour) },
	})
	require.NoError(t, err)
	expired, err := expiredIssuer.IssueAccessToken("alice", model.RoleUser)
	require.NoError(t, err)

	tt := []struct {
		name   string
		header string
		status int
	}{
		{name: "Missing header", header: "", status: http.StatusUnauthorized},
		{name: "Malformed header", header: "Token " + valid, status: http.StatusUnauthorized},
		{name: "Garbage token", header: "Bearer abc.def.ghi", status: http.StatusUnauthorized},
		{name: "Tampered token", header: "Bearer " + valid + "x", status: http.StatusUnauthorized},
		{name: "Expired token", header: "Bearer " + expired, status: http.StatusUnauthorized},
		{name: "Refresh token as access", header: "Bearer " + refresh, status: http.StatusUnauthorized},
		{name: "Deleted subject", header: "Bearer " + ghost, status: http.StatusUnauthorized},
		{name: "Valid", header: "Bearer " + valid, status: http.StatusOK},
	}

	for _, test := range tt {
		t.Run(test.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/profile", nil)
			if test.header != "" {
				r.Header.Set("Authorization", test.header)
			}
			w := httptest.NewRecorder()
			m.Authenticate(okHandler(t, "alice")).ServeHTTP(w, r)

			assert.Equal(t, test.status, w.Code)
			if test.status == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestAuthorizeUsesCurrentRole(t *testing.T) {
	users := mockUsers{
		"bob": {ID: "bob", Role: model.RoleUser},
	}
	m, issuer := setupMiddleware(t, users)

	// Token minted while bob was an admin.
	stale, err := issuer.IssueAccessToken("bob", model.RoleAdmin)
	require.NoError(t, err)

	handler := m.Authenticate(Authorize(model.RoleAdmin)(okHandler(t, "bob")))

	r := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	r.Header.Set("Authorization", "Bearer "+stale)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)

	users["bob"].Role = model.RoleAdmin
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthorize(t *testing.T) {
	tt := []struct {
		name   string
		user   *model.User
		roles  []model.Role
		status int
	}{
		{name: "No user", user: nil, roles: []model.Role{model.RoleAdmin}, status: http.StatusUnauthorized},
		{name: "Wrong role", user: &model.User{ID: "u", Role: model.RoleUser}, roles: []model.Role{model.RoleAdmin}, status: http.StatusForbidden},
		{name: "One of many", user: &model.User{ID: "u", Role: model.RoleManager}, roles: []model.Role{model.RoleAdmin, model.RoleManager}, status: http.StatusOK},
		{name: "No roles allowed", user: &model.User{ID: "u", Role: model.RoleAdmin}, roles: nil, status: http.StatusForbidden},
	}

	for _, test := range tt {
		t.Run(test.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if test.user != nil {
				r = r.WithContext(context.WithValue(r.Context(), UserContextKey, test.user))
			}
			w := httptest.NewRecorder()
			Authorize(test.roles...)(okHandler(t, "u")).ServeHTTP(w, r)
			assert.Equal(t, test.status, w.Code)
		})
	}
}

func TestRequireMTLS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tt := []struct {
		name   string
		state  *tls.ConnectionState
		status int
	}{
		{name: "Plaintext", state: nil, status: http.StatusForbidden},
		{name: "TLS without client cert", state: &tls.ConnectionState{}, status: http.StatusForbidden},
		{
			name: "Verified client cert",
			state: &tls.ConnectionState{
				VerifiedChains: [][]*x509.Certificate{{&x509.Certificate{}}},
			},
			status: http.StatusNoContent,
		},
	}

	for _, test := range tt {
		t.Run(test.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPut, "/admin/users/1/role", nil)
			r.TLS = test.state
			w := httptest.NewRecorder()
			RequireMTLS(next).ServeHTTP(w, r)
			assert.Equal(t, test.status, w.Code)
			if test.status == http.StatusForbidden {
				assert.Contains(t, w.Body.String(), "mTLS Required")
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.1.7:53211"
	assert.Equal(t, "192.168.1.7", ClientIP(r))

	r.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "::1", ClientIP(r))

	r.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", ClientIP(r))
}
