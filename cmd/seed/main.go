// Command seed creates the initial administrator account if it does not exist.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/ftauth/identity/internal/admin"
	"github.com/ftauth/identity/internal/config"
	"github.com/ftauth/identity/internal/database"
	"github.com/ftauth/identity/internal/server"
	"github.com/ftauth/identity/util/passwordutil"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	config.LoadConfig()
	cfg := config.Current

	passwordutil.SetCost(cfg.Passwords.Cost)

	db, err := server.OpenDatabase(context.Background(), cfg.Database)
	if err != nil {
		logger.Error("Error opening database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), database.DefaultTimeout)
	defer cancel()

	user, created, err := admin.EnsureAdmin(ctx, db, admin.SeedOptions{
		Username: cfg.Admin.Username,
		Email:    cfg.Admin.Email,
		Password: cfg.Admin.Password,
	})
	if err != nil {
		logger.Error("Error seeding admin", "error", err)
		db.Close()
		os.Exit(1)
	}
	if created {
		logger.Info("Admin created", "id", user.ID, "email", user.Email)
	} else {
		logger.Info("Admin already exists", "id", user.ID, "email", user.Email)
	}
}
