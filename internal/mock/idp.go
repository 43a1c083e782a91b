// Package mock provides an in-process OpenID Connect provider for tests.
package mock

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

// Credentials and codes understood by IdP.
const (
	ClientID     = "identity-client"
	ClientSecret = "identity-secret"
	AccessToken  = "upstream-access-token"

	// GoodCode is exchanged successfully.
	GoodCode = "good-code"

	// SlowCode is exchanged successfully after SlowDelay.
	SlowCode = "slow-code"
)

// SlowDelay is how long the token endpoint stalls for SlowCode.
const SlowDelay = 200 * time.Millisecond

// IdP imitates the authorization, token and userinfo endpoints of an OpenID
// Connect provider. The authorization endpoint approves immediately and
// redirects back with GoodCode.
type IdP struct {
	*httptest.Server

	mu       sync.Mutex
	userinfo map[string]interface{}
	status   int
}

// NewIdP starts a provider that is closed when the test ends.
func NewIdP(t testing.TB) *IdP {
	idp := &IdP{
		status:   http.StatusOK,
		userinfo: map[string]interface{}{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", idp.handleAuthorize)
	mux.HandleFunc("/token", idp.handleToken)
	mux.HandleFunc("/userinfo", idp.handleUserInfo)
	idp.Server = httptest.NewServer(mux)
	t.Cleanup(idp.Close)
	return idp
}

// AuthURL is the authorization endpoint.
func (idp *IdP) AuthURL() string { return idp.URL + "/auth" }

// TokenURL is the token endpoint.
func (idp *IdP) TokenURL() string { return idp.URL + "/token" }

// UserInfoURL is the userinfo endpoint.
func (idp *IdP) UserInfoURL() string { return idp.URL + "/userinfo" }

// SetUserInfo sets the claims returned by the userinfo endpoint.
func (idp *IdP) SetUserInfo(claims map[string]interface{}) {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	idp.userinfo = claims
	idp.status = http.StatusOK
}

// SetStatus makes the userinfo endpoint fail with status.
func (idp *IdP) SetStatus(status int) {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	idp.status = status
}

func (idp *IdP) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("client_id") != ClientID || query.Get("response_type") != "code" {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}
	redirect, err := url.Parse(query.Get("redirect_uri"))
	if err != nil || redirect.String() == "" {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	params := redirect.Query()
	params.Set("code", GoodCode)
	params.Set("state", query.Get("state"))
	redirect.RawQuery = params.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (idp *IdP) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("grant_type") != "authorization_code" ||
		r.PostForm.Get("client_id") != ClientID ||
		r.PostForm.Get("client_secret") != ClientSecret {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch r.PostForm.Get("code") {
	case GoodCode:
	case SlowCode:
		time.Sleep(SlowDelay)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Code not valid"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": AccessToken,
		"token_type":   "Bearer",
		"expires_in":   300,
	})
}

func (idp *IdP) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+AccessToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	idp.mu.Lock()
	defer idp.mu.Unlock()
	if idp.status != http.StatusOK {
		w.WriteHeader(idp.status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(idp.userinfo)
}
