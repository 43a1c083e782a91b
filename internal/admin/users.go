package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ftauth/identity/internal/database"
	"github.com/ftauth/identity/internal/model"
	fthttp "github.com/ftauth/identity/pkg/http"
	"github.com/ftauth/identity/util/passwordutil"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

// Public errors
var (
	ErrInvalidRole      = fthttp.NewError(fthttp.ErrValidation, "Invalid role")
	ErrPasswordTooShort = fthttp.NewError(fthttp.ErrValidation, "Password must be at least 6 characters")
	ErrUserNotFound     = fthttp.NewError(fthttp.ErrNotFound, "User not found")
)

// RoleRequest is the body of a role update.
type RoleRequest struct {
	Role model.Role `json:"role"`
}

// Validate checks the role is one of the known roles.
func (req *RoleRequest) Validate() error {
	if !req.Role.IsValid() {
		return ErrInvalidRole
	}
	return nil
}

// PasswordRequest is the body of a password reset.
type PasswordRequest struct {
	Password string `json:"password"`
}

// Validate checks the password length.
func (req *PasswordRequest) Validate() error {
	if len(req.Password) < passwordutil.MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// RoleResponse is returned by a successful role update.
type RoleResponse struct {
	Message string      `json:"message"`
	User    *model.User `json:"user"`
}

type userHandler struct {
	db database.AdminDB
}

func notFound(err error) error {
	if errors.Is(err, database.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return err
}

func actor(r *http.Request) string {
	if user, ok := fthttp.UserFromContext(r.Context()); ok {
		return user.ID
	}
	return ""
}

func (h userHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	users, err := h.db.ListUsers(ctx)
	if err != nil {
		fthttp.WriteError(w, r, err)
		return
	}

	fthttp.WriteJSON(w, http.StatusOK, users)
}

func (h userHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req RoleRequest
	if err := fthttp.DecodeRequest(r, &req); err != nil {
		fthttp.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	user, err := h.db.UpdateRole(ctx, id, req.Role)
	if err != nil {
		fthttp.WriteError(w, r, notFound(err))
		return
	}

	slog.InfoContext(ctx, "Role updated", "actor", actor(r), "user", id, "role", req.Role)
	fthttp.WriteJSON(w, http.StatusOK, RoleResponse{
		Message: "Role updated successfully",
		User:    user,
	})
}

func (h userHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req PasswordRequest
	if err := fthttp.DecodeRequest(r, &req); err != nil {
		fthttp.WriteError(w, r, err)
		return
	}

	hash, err := passwordutil.GeneratePasswordHash(req.Password)
	if err != nil {
		fthttp.WriteError(w, r, errors.Wrap(err, "hashing password"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	if err := h.db.UpdatePasswordHash(ctx, id, hash); err != nil {
		fthttp.WriteError(w, r, notFound(err))
		return
	}

	slog.InfoContext(ctx, "Password reset", "actor", actor(r), "user", id)
	fthttp.WriteMessage(w, http.StatusOK, "Password updated successfully")
}
