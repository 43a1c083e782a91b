package admin

import (
	"net/http"

	"github.com/ftauth/identity/internal/activity"
	"github.com/ftauth/identity/internal/database"
	"github.com/ftauth/identity/internal/model"
	fthttp "github.com/ftauth/identity/pkg/http"
	"github.com/gorilla/mux"
)

// Route names, used to attach per-route gates.
const (
	RouteUsers    = "admin.users"
	RouteRole     = "admin.role"
	RoutePassword = "admin.password"
	RouteLogs     = "admin.logs"
)

// SetupRoutes configures admin API endpoints. Every route requires an access
// token held by an admin.
func SetupRoutes(r *mux.Router, adminDB database.AdminDB, recorder *activity.Recorder, gates *fthttp.Gates) {
	s := r.PathPrefix("/admin").Subrouter()

	u := userHandler{adminDB}
	l := logHandler{recorder}
	s.Handle("/users", gates.Role(RouteUsers, http.HandlerFunc(u.ListUsers), model.RoleAdmin)).
		Methods(http.MethodGet).
		Name(RouteUsers)
	s.Handle("/users/{id}/role", gates.Role(RouteRole, http.HandlerFunc(u.UpdateRole), model.RoleAdmin)).
		Methods(http.MethodPut).
		Name(RouteRole)
	s.Handle("/users/{id}/password", gates.Role(RoutePassword, http.HandlerFunc(u.ResetPassword), model.RoleAdmin)).
		Methods(http.MethodPut).
		Name(RoutePassword)
	s.Handle("/logs", gates.Role(RouteLogs, http.HandlerFunc(l.ListLogs), model.RoleAdmin)).
		Methods(http.MethodGet).
		Name(RouteLogs)
}
