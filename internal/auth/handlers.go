package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/ftauth/identity/internal/database"
	"github.com/ftauth/identity/internal/model"
	fthttp "github.com/ftauth/identity/pkg/http"
	"github.com/gorilla/mux"
)

const (
	// SignupEndpoint registers a local account.
	SignupEndpoint = "/signup"

	// LoginEndpoint exchanges an email and password for tokens.
	LoginEndpoint = "/login"

	// RefreshEndpoint exchanges the refresh cookie for a new access token.
	RefreshEndpoint = "/refresh"

	// ProfileEndpoint returns the caller's own record.
	ProfileEndpoint = "/profile"

	// RefreshCookieName is the cookie carrying the refresh token.
	RefreshCookieName = "refreshToken"
)

// Route names, used to attach per-route gates.
const (
	RouteSignup  = "signup"
	RouteLogin   = "login"
	RouteRefresh = "refresh"
	RouteProfile = "profile"
)

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	AccessToken string          `json:"accessToken"`
	User        *model.UserData `json:"user"`
}

// RefreshResponse is returned by a successful refresh.
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// SetupRoutes configures routing for the given mux.
func SetupRoutes(r *mux.Router, service *Service, gates *fthttp.Gates) {
	r.Handle(SignupEndpoint, gates.Public(RouteSignup, signupHandler{service})).
		Methods(http.MethodPost).
		Name(RouteSignup)
	r.Handle(LoginEndpoint, gates.Public(RouteLogin, loginHandler{service})).
		Methods(http.MethodPost).
		Name(RouteLogin)
	r.Handle(RefreshEndpoint, gates.Public(RouteRefresh, refreshHandler{service})).
		Methods(http.MethodPost).
		Name(RouteRefresh)
	r.Handle(ProfileEndpoint, gates.Authenticated(RouteProfile, profileHandler{})).
		Methods(http.MethodGet).
		Name(RouteProfile)
}

type signupHandler struct {
	service *Service
}

func (h signupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := fthttp.DecodeRequest(r, &req); err != nil {
		fthttp.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	if _, err := h.service.Signup(ctx, &req); err != nil {
		fthttp.WriteError(w, r, err)
		return
	}

	fthttp.WriteMessage(w, http.StatusCreated, "User registered successfully")
}

type loginHandler struct {
	service *Service
}

func (h loginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := fthttp.DecodeRequest(r, &req); err != nil {
		fthttp.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	result, err := h.service.Login(ctx, &req, fthttp.ClientIP(r))
	if err != nil {
		fthttp.WriteError(w, r, err)
		return
	}

	lifetime := h.service.issuer.RefreshLifetime()
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    result.RefreshToken,
		Path:     "/",
		Expires:  time.Now().Add(lifetime),
		MaxAge:   int(lifetime.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})

	fthttp.WriteJSON(w, http.StatusOK, LoginResponse{
		AccessToken: result.AccessToken,
		User:        result.User.ToUserData(),
	})
}

type refreshHandler struct {
	service *Service
}

func (h refreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var refreshToken string
	if cookie, err := r.Cookie(RefreshCookieName); err == nil {
		refreshToken = cookie.Value
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	accessToken, err := h.service.Refresh(ctx, refreshToken)
	if err != nil {
		fthttp.WriteError(w, r, err)
		return
	}

	fthttp.WriteJSON(w, http.StatusOK, RefreshResponse{AccessToken: accessToken})
}

type profileHandler struct{}

func (profileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := fthttp.UserFromContext(r.Context())
	if !ok {
		fthttp.WriteError(w, r, fthttp.ErrAccessDenied)
		return
	}
	fthttp.WriteJSON(w, http.StatusOK, user)
}
