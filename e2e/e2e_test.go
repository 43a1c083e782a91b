package e2e

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ftauth/identity/internal/admin"
	"github.com/ftauth/identity/internal/auth"
	"github.com/ftauth/identity/internal/auth/provider"
	"github.com/ftauth/identity/internal/config"
	"github.com/ftauth/identity/internal/database"
	"github.com/ftauth/identity/internal/mock"
	"github.com/ftauth/identity/internal/model"
	"github.com/ftauth/identity/internal/server"
	"github.com/ftauth/identity/internal/ssl"
	"github.com/ftauth/identity/util/passwordutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type environment struct {
	server   *httptest.Server
	db       *database.BadgerDB
	idp      *mock.IdP
	roots    *x509.CertPool
	clientCA *ssl.Certificate
}

func newEnvironment(t *testing.T) *environment {
	passwordutil.SetCost(4)
	t.Cleanup(func() { passwordutil.SetCost(passwordutil.DefaultCost) })

	env := &environment{idp: mock.NewIdP(t)}

	caKey, err := ssl.GenerateKey(x509.ECDSA)
	require.NoError(t, err)
	env.clientCA, err = ssl.GenerateCertificate(caKey, ssl.CertificateOptions{
		Subject: pkix.Name{CommonName: "Admin Client CA"},
		IsCA:    true,
	})
	require.NoError(t, err)
	caFile := filepath.Join(t.TempDir(), "client-ca.pem")
	require.NoError(t, os.WriteFile(caFile, env.clientCA.CertPEM, 0600))

	tlsConfig, err := ssl.ServerConfig(ssl.Options{
		ClientCAFile: caFile,
		Hosts:        []string{"127.0.0.1"},
	})
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(tlsConfig.Certificates[0].Certificate[0])
	require.NoError(t, err)
	env.roots = x509.NewCertPool()
	env.roots.AddCert(leaf)

	env.db, err = database.NewBadgerDB(database.BadgerOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { env.db.Close() })

	issuer, err := server.NewIssuer(&config.TokensConfig{
		Access:  config.SecretConfig{Secret: "access-secret"},
		Refresh: config.RefreshConfig{SecretConfig: config.SecretConfig{Secret: "refresh-secret"}},
	})
	require.NoError(t, err)

	// The redirect URL depends on the server's address, so the router is
	// installed after the listener starts.
	var handler http.Handler
	env.server = httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	env.server.TLS = tlsConfig
	env.server.StartTLS()
	t.Cleanup(env.server.Close)

	bridge := server.NewBridge(&config.FederationConfig{
		AuthURL:      env.idp.AuthURL(),
		TokenURL:     env.idp.TokenURL(),
		UserInfoURL:  env.idp.UserInfoURL(),
		ClientID:     mock.ClientID,
		ClientSecret: mock.ClientSecret,
		RedirectURL:  env.server.URL + provider.CallbackEndpoint,
		Scopes:       []string{"openid", "email", "profile"},
		Timeout:      5 * time.Second,
	}, env.db, issuer, nil)
	require.NotNil(t, bridge)

	handler = server.NewRouter(server.Options{
		DB:     env.db,
		Issuer: issuer,
		Bridge: bridge,
		MTLS:   config.MTLSConfig{Routes: []string{admin.RouteRole}},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	})

	_, _, err = admin.EnsureAdmin(context.Background(), env.db, admin.SeedOptions{
		Username: "SuperAdmin",
		Email:    "admin@test.com",
		Password: "admin123",
	})
	require.NoError(t, err)

	return env
}

// client returns a browser-like client with a cookie jar, optionally
// presenting a certificate signed by the client CA.
func (env *environment) client(t *testing.T, withCert bool) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	tlsConfig := &tls.Config{RootCAs: env.roots}
	if withCert {
		key, err := ssl.GenerateKey(x509.ECDSA)
		require.NoError(t, err)
		cert, err := ssl.GenerateCertificate(key, ssl.CertificateOptions{
			Subject: pkix.Name{CommonName: "admin-console"},
			Usage:   []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
			Parent:  env.clientCA,
		})
		require.NoError(t, err)
		tlsCert, err := cert.TLSCertificate()
		require.NoError(t, err)
		tlsConfig.Certificates = []tls.Certificate{tlsCert}
	}
	return &http.Client{
		Jar:       jar,
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
		Timeout:   10 * time.Second,
	}
}

func do(t *testing.T, client *http.Client, method, url, token string, body, out interface{}) int {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestLocalSessionEndToEnd(t *testing.T) {
	env := newEnvironment(t)
	client := env.client(t, false)
	base := env.server.URL

	status := do(t, client, http.MethodPost, base+"/signup", "", auth.SignupRequest{
		Username: "Alice", Email: "a@x.com", Password: "secret1",
	}, nil)
	require.Equal(t, http.StatusCreated, status)

	var login auth.LoginResponse
	status = do(t, client, http.MethodPost, base+"/login", "", auth.LoginRequest{
		Email: "a@x.com", Password: "secret1",
	}, &login)
	require.Equal(t, http.StatusOK, status)

	// The jar replays the refresh cookie over TLS.
	var refreshed auth.RefreshResponse
	status = do(t, client, http.MethodPost, base+"/refresh", "", nil, &refreshed)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, refreshed.AccessToken)

	var profile model.User
	status = do(t, client, http.MethodGet, base+"/profile", refreshed.AccessToken, nil, &profile)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, login.User.ID, profile.ID)

	// A fresh client has no cookie.
	status = do(t, env.client(t, false), http.MethodPost, base+"/refresh", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestFederationEndToEnd(t *testing.T) {
	env := newEnvironment(t)
	env.idp.SetUserInfo(map[string]interface{}{
		"sub":                "upstream-1",
		"email":              "fed@x.com",
		"preferred_username": "fed",
	})
	client := env.client(t, false)

	// Follows /auth/login -> provider -> /auth/callback, carrying the state cookie.
	var resp provider.CallbackResponse
	status := do(t, client, http.MethodGet, env.server.URL+provider.LoginEndpoint, "", nil, &resp)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "fed", resp.User.Username)
	assert.Equal(t, model.ProviderFederated, resp.User.Provider)
	assert.Equal(t, model.RoleUser, resp.User.Role)

	var profile model.User
	status = do(t, client, http.MethodGet, env.server.URL+"/profile", resp.AccessToken, nil, &profile)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "fed@x.com", profile.Email)

	// Federated accounts cannot log in with a password.
	status = do(t, client, http.MethodPost, env.server.URL+"/login", "", auth.LoginRequest{
		Email: "fed@x.com", Password: passwordutil.Sentinel,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAdminMTLSEndToEnd(t *testing.T) {
	env := newEnvironment(t)
	base := env.server.URL

	status := do(t, env.client(t, false), http.MethodPost, base+"/signup", "", auth.SignupRequest{
		Username: "Bob", Email: "bob@x.com", Password: "secret1",
	}, nil)
	require.Equal(t, http.StatusCreated, status)

	for _, withCert := range []bool{false, true} {
		client := env.client(t, withCert)

		var login auth.LoginResponse
		status = do(t, client, http.MethodPost, base+"/login", "", auth.LoginRequest{
			Email: "admin@test.com", Password: "admin123",
		}, &login)
		require.Equal(t, http.StatusOK, status)

		var users []*model.User
		status = do(t, client, http.MethodGet, base+"/admin/users", login.AccessToken, nil, &users)
		require.Equal(t, http.StatusOK, status)

		var bobID string
		for _, u := range users {
			if u.Email == "bob@x.com" {
				bobID = u.ID
			}
		}
		require.NotEmpty(t, bobID)

		status = do(t, client, http.MethodPut, base+"/admin/users/"+bobID+"/role", login.AccessToken,
			admin.RoleRequest{Role: model.RoleManager}, nil)
		if withCert {
			assert.Equal(t, http.StatusOK, status)
		} else {
			assert.Equal(t, http.StatusForbidden, status)
		}
	}

	bob, err := env.db.GetUserByEmail(context.Background(), "bob@x.com")
	require.NoError(t, err)
	assert.Equal(t, model.RoleManager, bob.Role)
}
