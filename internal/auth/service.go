package auth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ftauth/identity/internal/activity"
	"github.com/ftauth/identity/internal/database"
	"github.com/ftauth/identity/internal/model"
	"github.com/ftauth/identity/internal/token"
	fthttp "github.com/ftauth/identity/pkg/http"
	"github.com/ftauth/identity/util/passwordutil"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

// Public errors
var (
	ErrMissingFields       = fthttp.NewError(fthttp.ErrValidation, "Username, email and password are required")
	ErrMissingCredentials  = fthttp.NewError(fthttp.ErrValidation, "Email and password are required")
	ErrPasswordTooShort    = fthttp.NewError(fthttp.ErrValidation, "Password must be at least 6 characters")
	ErrInvalidRole         = fthttp.NewError(fthttp.ErrValidation, "Invalid role")
	ErrUserExists          = fthttp.NewError(fthttp.ErrValidation, "User already exists")
	ErrInvalidCredentials  = fthttp.NewError(fthttp.ErrValidation, "Invalid credentials")
	ErrMissingRefreshToken = fthttp.NewError(fthttp.ErrUnauthenticated, "Refresh token missing")
	ErrInvalidRefreshToken = fthttp.NewError(fthttp.ErrForbidden, "Invalid refresh token")
)

// Service implements local account registration, login and token refresh.
type Service struct {
	db       database.AuthenticationDB
	issuer   *token.Issuer
	recorder *activity.Recorder
	logger   *slog.Logger
}

// NewService creates an authentication service.
func NewService(db database.AuthenticationDB, issuer *token.Issuer, recorder *activity.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       db,
		issuer:   issuer,
		recorder: recorder,
		logger:   logger,
	}
}

// SignupRequest is the body of a signup call.
type SignupRequest struct {
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

// Validate normalizes the request and checks required fields.
func (req *SignupRequest) Validate() error {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return ErrMissingFields
	}
	if len(req.Password) < passwordutil.MinPasswordLength {
		return ErrPasswordTooShort
	}
	switch {
	case req.Role == "", req.Role == model.RoleAdmin:
		// Self-registration never grants admin.
		req.Role = model.RoleUser
	case !req.Role.IsValid():
		return ErrInvalidRole
	}
	return nil
}

// Signup registers a local account.
func (s *Service) Signup(ctx context.Context, req *SignupRequest) (*model.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := passwordutil.GeneratePasswordHash(req.Password)
	if err != nil {
		return nil, errors.Wrap(err, "hashing password")
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	user := &model.User{
		ID:           id.String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Provider:     model.ProviderLocal,
		Role:         req.Role,
	}
	err = s.db.CreateUser(ctx, user)
	if errors.Is(err, database.ErrDuplicateEmail) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, errors.Wrap(err, "creating user")
	}
	s.logger.InfoContext(ctx, "User registered", "user", user.ID, "role", user.Role)
	return user, nil
}

// LoginRequest is the body of a login call.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks required fields.
func (req *LoginRequest) Validate() error {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// LoginResult holds the credentials minted by a successful login.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         *model.User
}

// checkDummyPassword runs on logins with no digest to verify, so they take as
// long as a wrong password.
var checkDummyPassword = passwordutil.CheckDummyPasswordHash

// Login verifies a local password, records the login and mints an access and
// refresh token. Unknown emails and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, req *LoginRequest, ip string) (*LoginResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	user, err := s.db.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, database.ErrUserNotFound) {
		checkDummyPassword(req.Password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading user")
	}
	if user.PasswordHash == passwordutil.Sentinel {
		checkDummyPassword(req.Password)
		s.logger.InfoContext(ctx, "Login rejected for federated account", "user", user.ID, "ip", ip)
		return nil, ErrInvalidCredentials
	}
	if !passwordutil.CheckPasswordHash(req.Password, user.PasswordHash) {
		s.logger.InfoContext(ctx, "Login rejected", "user", user.ID, "ip", ip)
		return nil, ErrInvalidCredentials
	}

	if _, err := s.recorder.Record(ctx, user.ID, model.ActionLoginSuccess, ip); err != nil {
		return nil, err
	}

	accessToken, err := s.issuer.IssueAccessToken(user.ID, user.Role)
	if err != nil {
		return nil, errors.Wrap(err, "issuing access token")
	}
	refreshToken, err := s.issuer.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, errors.Wrap(err, "issuing refresh token")
	}
	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}

// Refresh mints a new access token from a refresh token. The role is read
// from the store, not from any earlier token. The refresh token is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrMissingRefreshToken
	}
	claims, err := s.issuer.VerifyRefreshToken(refreshToken)
	if err != nil {
		return "", errors.Wrap(ErrInvalidRefreshToken, err.Error())
	}
	user, err := s.db.GetUserByID(ctx, claims.Subject)
	if errors.Is(err, database.ErrUserNotFound) {
		return "", errors.Wrapf(ErrInvalidRefreshToken, "subject %s no longer exists", claims.Subject)
	}
	if err != nil {
		return "", errors.Wrap(err, "loading user")
	}
	accessToken, err := s.issuer.IssueAccessToken(user.ID, user.Role)
	if err != nil {
		return "", errors.Wrap(err, "issuing access token")
	}
	return accessToken, nil
}
