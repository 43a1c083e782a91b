// Package provider bridges an external OpenID Connect provider's
// authorization code flow to local accounts and tokens.
package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ftauth/identity/internal/database"
	"github.com/ftauth/identity/internal/model"
	"github.com/ftauth/identity/internal/token"
	fthttp "github.com/ftauth/identity/pkg/http"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Public errors
var (
	ErrMissingCode   = fthttp.NewError(fthttp.ErrValidation, "Authorization code missing")
	ErrStateMismatch = fthttp.NewError(fthttp.ErrValidation, "Invalid state")
	ErrOAuthFailed   = fthttp.NewError(fthttp.ErrUpstreamFederation, "OAuth Failed")
)

// Internal failure causes, logged but never returned to callers.
var (
	errExchange    = errors.New("token exchange failed")
	errUserInfo    = errors.New("userinfo request failed")
	errMissingMail = errors.New("userinfo missing email")
)

// DefaultTimeout bounds the upstream calls made for one callback.
const DefaultTimeout = 10 * time.Second

// Options configures the upstream provider.
type Options struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	RedirectURL  string
	Scopes       []string
	Timeout      time.Duration

	// HTTPClient is used for upstream calls. Defaults to a client with Timeout.
	HTTPClient *http.Client
}

// Bridge runs the federation callback: exchange the code, fetch the profile,
// resolve the local account and issue a local access token.
type Bridge struct {
	conf        *oauth2.Config
	userInfoURL string
	timeout     time.Duration
	client      *http.Client
	db          database.AuthenticationDB
	issuer      *token.Issuer
	logger      *slog.Logger

	// Link is the account linking rule. Defaults to LinkByEmail.
	Link LinkRule
}

// NewBridge creates a federation bridge.
func NewBridge(opts Options, db database.AuthenticationDB, issuer *token.Issuer, logger *slog.Logger) *Bridge {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		conf: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: opts.RedirectURL,
			Scopes:      opts.Scopes,
		},
		userInfoURL: opts.UserInfoURL,
		timeout:     opts.Timeout,
		client:      client,
		db:          db,
		issuer:      issuer,
		logger:      logger,
		Link:        LinkByEmail,
	}
}

// AuthCodeURL returns the provider's authorization URL for state.
func (b *Bridge) AuthCodeURL(state string) string {
	return b.conf.AuthCodeURL(state)
}

// Result is the outcome of a successful callback.
type Result struct {
	AccessToken string
	User        *model.User
}

// Callback resolves an authorization code to a local account. Every failure
// after the code check is reported as ErrOAuthFailed; the cause is logged.
func (b *Bridge) Callback(ctx context.Context, code string) (*Result, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	result, err := b.callback(ctx, code)
	if err != nil {
		b.logger.ErrorContext(ctx, "Federation callback failed", "error", err)
		return nil, errors.Wrap(ErrOAuthFailed, err.Error())
	}
	b.logger.InfoContext(ctx, "Federated login", "user", result.User.ID)
	return result, nil
}

func (b *Bridge) callback(ctx context.Context, code string) (*Result, error) {
	profile, err := b.fetchIdentity(ctx, code)
	if err != nil {
		return nil, err
	}

	dbCtx, cancel := context.WithTimeout(ctx, database.DefaultTimeout)
	defer cancel()

	user, err := b.Link(dbCtx, b.db, profile)
	if err != nil {
		return nil, errors.Wrap(err, "resolving account")
	}

	accessToken, err := b.issuer.IssueFederatedAccessToken(user.ID, user.Role)
	if err != nil {
		return nil, errors.Wrap(err, "issuing access token")
	}
	return &Result{AccessToken: accessToken, User: user}, nil
}

// fetchIdentity performs the two upstream calls under a single deadline.
func (b *Bridge) fetchIdentity(ctx context.Context, code string) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.client)

	tok, err := b.conf.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrap(errExchange, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, errors.Wrap(errUserInfo, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrapf(errUserInfo, "status %d", resp.StatusCode)
	}

	var claims map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, errors.Wrap(errUserInfo, err.Error())
	}
	var profile Profile
	if err := mapstructure.Decode(claims, &profile); err != nil {
		return nil, errors.Wrap(errUserInfo, err.Error())
	}
	if profile.Email == "" {
		return nil, errMissingMail
	}
	return &profile, nil
}
