package provider

import (
	"net/http"
	"time"

	"github.com/ftauth/identity/internal/model"
	fthttp "github.com/ftauth/identity/pkg/http"
	"github.com/gorilla/mux"
)

const (
	// LoginEndpoint redirects the user agent to the provider.
	LoginEndpoint = "/auth/login"

	// CallbackEndpoint receives the provider's authorization code.
	CallbackEndpoint = "/auth/callback"

	// StateCookieName holds the state sent with the authorization request.
	StateCookieName = "oauthState"

	stateCookieLifetime = 10 * time.Minute

	paramCode  = "code"
	paramState = "state"
)

// Route names, used to attach per-route gates.
const (
	RouteLogin    = "federation.login"
	RouteCallback = "federation.callback"
)

// CallbackResponse is returned by a successful federation callback.
type CallbackResponse struct {
	AccessToken string          `json:"accessToken"`
	User        *model.UserData `json:"user"`
}

// SetupRoutes configures routing for the given mux.
func SetupRoutes(r *mux.Router, bridge *Bridge, gates *fthttp.Gates) {
	r.Handle(LoginEndpoint, gates.Public(RouteLogin, loginRedirectHandler{bridge})).
		Methods(http.MethodGet).
		Name(RouteLogin)
	r.Handle(CallbackEndpoint, gates.Public(RouteCallback, fthttp.SuppressReferrer(callbackHandler{bridge}))).
		Methods(http.MethodGet).
		Name(RouteCallback)
}

type loginRedirectHandler struct {
	bridge *Bridge
}

func (h loginRedirectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	state, err := GenerateState()
	if err != nil {
		fthttp.WriteError(w, r, err)
		return
	}

	// Lax so the cookie survives the top-level redirect back from the provider.
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(stateCookieLifetime.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.bridge.AuthCodeURL(state), http.StatusFound)
}

type callbackHandler struct {
	bridge *Bridge
}

func (h callbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// The state is only checked when the flow was started by LoginEndpoint.
	if cookie, err := r.Cookie(StateCookieName); err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     StateCookieName,
			Path:     "/auth",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
		})
		if cookie.Value == "" || cookie.Value != query.Get(paramState) {
			fthttp.WriteError(w, r, ErrStateMismatch)
			return
		}
	}

	result, err := h.bridge.Callback(r.Context(), query.Get(paramCode))
	if err != nil {
		fthttp.WriteError(w, r, err)
		return
	}

	fthttp.WriteJSON(w, http.StatusOK, CallbackResponse{
		AccessToken: result.AccessToken,
		User:        result.User.ToUserData(),
	})
}
