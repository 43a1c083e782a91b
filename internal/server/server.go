// Package server assembles the HTTP surface: routes, per-route gates and CORS.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ftauth/identity/internal/activity"
	"github.com/ftauth/identity/internal/admin"
	"github.com/ftauth/identity/internal/auth"
	"github.com/ftauth/identity/internal/auth/provider"
	"github.com/ftauth/identity/internal/config"
	"github.com/ftauth/identity/internal/database"
	"github.com/ftauth/identity/internal/token"
	fthttp "github.com/ftauth/identity/pkg/http"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

// HealthEndpoint reports liveness.
const HealthEndpoint = "/health"

// Options holds everything the router needs.
type Options struct {
	DB     database.Database
	Issuer *token.Issuer
	Bridge *provider.Bridge // nil disables federation routes
	MTLS   config.MTLSConfig
	CORS   config.CORSConfig
	Logger *slog.Logger
}

// NewRouter builds the application's HTTP handler.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := mux.NewRouter()
	r.Use(requestLogger(logger))

	gates := &fthttp.Gates{
		Middleware:     fthttp.NewMiddleware(opts.Issuer, opts.DB),
		RequireMTLSFor: opts.MTLS.Protects,
	}

	r.HandleFunc(HealthEndpoint, func(w http.ResponseWriter, r *http.Request) {
		fthttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet).Name("health")

	recorder := activity.NewRecorder(opts.DB)
	auth.SetupRoutes(r, auth.NewService(opts.DB, opts.Issuer, recorder, logger), gates)
	if opts.Bridge != nil {
		provider.SetupRoutes(r, opts.Bridge, gates)
	}
	admin.SetupRoutes(r, opts.DB, recorder, gates)

	for _, route := range opts.MTLS.Routes {
		if r.Get(route) == nil {
			logger.Warn("mTLS configured for unknown route", "route", route)
			continue
		}
		logger.Info("mTLS gate attached", "route", route)
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})(r)
}

// NewIssuer creates the token issuer from configuration.
func NewIssuer(cfg *config.TokensConfig) (*token.Issuer, error) {
	return token.NewIssuer(token.Options{
		AccessSecret:            []byte(cfg.Access.Secret),
		RefreshSecret:           []byte(cfg.Refresh.Secret),
		AccessLifetime:          cfg.Access.Lifetime,
		RefreshLifetime:         cfg.Refresh.Lifetime,
		FederatedLifetime:       cfg.Federated.Lifetime,
		IgnoreRefreshExpiration: cfg.Refresh.IgnoreExpiration,
	})
}

// NewBridge creates the federation bridge, or returns nil when federation is
// not configured.
func NewBridge(cfg *config.FederationConfig, db database.AuthenticationDB, issuer *token.Issuer, logger *slog.Logger) *provider.Bridge {
	if !cfg.Enabled() {
		return nil
	}
	return provider.NewBridge(provider.Options{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
		UserInfoURL:  cfg.UserInfoURL,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Timeout:      cfg.Timeout,
	}, db, issuer, logger)
}

// OpenDatabase connects to the configured backend.
func OpenDatabase(ctx context.Context, cfg *config.DatabaseConfig) (database.Database, error) {
	switch cfg.Type {
	case config.DatabaseTypeBadger, "":
		db, err := database.NewBadgerDB(database.BadgerOptions{Dir: cfg.Dir})
		if err != nil {
			return nil, errors.Wrapf(err, "opening badger at %s", cfg.Dir)
		}
		return db, nil
	case config.DatabaseTypeMongo:
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		db, err := database.NewMongoDB(ctx, database.MongoOptions{URL: cfg.URL, Name: cfg.Name})
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	return nil, errors.Errorf("unknown database type %q", cfg.Type)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLogger(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("Request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
				"ip", fthttp.ClientIP(r),
			)
		})
	}
}
