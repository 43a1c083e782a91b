package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ftauth/identity/internal/config"
	"github.com/ftauth/identity/internal/server"
	"github.com/ftauth/identity/internal/ssl"
	"github.com/ftauth/identity/util/passwordutil"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	config.LoadConfig()
	cfg := config.Current

	passwordutil.SetCost(cfg.Passwords.Cost)

	// Setup database
	db, err := server.OpenDatabase(context.Background(), cfg.Database)
	if err != nil {
		logger.Error("Error opening database", "type", cfg.Database.Type, "error", err)
		os.Exit(1)
	}

	issuer, err := server.NewIssuer(cfg.Tokens)
	if err != nil {
		logger.Error("Error creating token issuer", "error", err)
		os.Exit(1)
	}

	bridge := server.NewBridge(cfg.Federation, db, issuer, logger)
	if bridge == nil {
		logger.Warn("Federation is not configured; /auth routes are disabled")
	}

	// Setup routing
	handler := server.NewRouter(server.Options{
		DB:     db,
		Issuer: issuer,
		Bridge: bridge,
		MTLS:   cfg.Server.MTLS,
		CORS:   cfg.Server.CORS,
		Logger: logger,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := http.Server{
		Addr:    addr,
		Handler: handler,

		ReadHeaderTimeout: 30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	useTLS := cfg.Server.Scheme == "https"
	if useTLS {
		srv.TLSConfig, err = ssl.ServerConfig(ssl.Options{
			CertFile:     cfg.Server.TLS.CertFile,
			KeyFile:      cfg.Server.TLS.KeyFile,
			ClientCAFile: cfg.Server.TLS.ClientCAFile,
			Hosts:        []string{cfg.Server.Host},
		})
		if err != nil {
			logger.Error("Error configuring TLS", "error", err)
			os.Exit(1)
		}
		if !cfg.Server.TLS.HasCertificate() {
			logger.Warn("No certificate configured; serving a self-signed certificate")
		}
	}

	go func() {
		logger.Info("Listening", "url", cfg.Server.URL())
		var err error
		if useTLS {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	<-c

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = srv.Shutdown(ctx)
	if err != nil {
		logger.Error("Error shutting down server", "error", err)
	}

	logger.Info("Closing database connection...")
	err = db.Close()
	if err != nil {
		logger.Error("Error closing database", "error", err)
	}
}
