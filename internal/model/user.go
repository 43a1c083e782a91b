package model

import (
	"time"

	"github.com/pkg/errors"
)

// Role is a named RBAC role.
type Role string

// Supported roles
const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// IsValid reports whether the role is one of the known roles.
func (role Role) IsValid() bool {
	switch role {
	case RoleUser, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Provider records how an account was last authenticated.
type Provider string

// Supported authentication providers
const (
	ProviderLocal     Provider = "local"
	ProviderFederated Provider = "federated"
)

// Action identifies an activity log event.
type Action string

// Known actions
const (
	ActionLoginSuccess Action = "LOGIN_SUCCESS"
)

// ErrInvalidUser is returned when a user record is missing required fields.
var ErrInvalidUser = errors.New("invalid user")

// LogEntry is a single append-only activity record owned by a User.
type LogEntry struct {
	Action    Action    `bson:"action" json:"action"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	IP        string    `bson:"ip" json:"ip"`
}

// User is a user/resource owner.
type User struct {
	ID           string     `bson:"_id" json:"id"` // uuid
	Username     string     `bson:"username" json:"username"`
	Email        string     `bson:"email" json:"email"`
	PasswordHash string     `bson:"password" json:"-"`
	Provider     Provider   `bson:"provider" json:"provider"`
	Role         Role       `bson:"role" json:"role"`
	Logs         []LogEntry `bson:"logs" json:"logs"`
}

// Valid returns an error if the user cannot be persisted.
func (u *User) Valid() error {
	switch {
	case u.ID == "":
		return errors.Wrap(ErrInvalidUser, "missing ID")
	case u.Username == "":
		return errors.Wrap(ErrInvalidUser, "missing username")
	case u.Email == "":
		return errors.Wrap(ErrInvalidUser, "missing email")
	case u.PasswordHash == "":
		return errors.Wrap(ErrInvalidUser, "missing password")
	case !u.Role.IsValid():
		return errors.Wrapf(ErrInvalidUser, "invalid role %q", u.Role)
	}
	return nil
}

// ToUserData converts a user object to a user data object for sharing.
func (u *User) ToUserData() *UserData {
	return &UserData{
		ID:       u.ID,
		Username: u.Username,
		Role:     u.Role,
		Provider: u.Provider,
	}
}

// UserData is the public projection returned alongside issued tokens.
type UserData struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Role     Role     `json:"role"`
	Provider Provider `json:"provider"`
}

// ActivityEntry is a LogEntry annotated with its owner, as returned by the
// global activity view.
type ActivityEntry struct {
	LogEntry
	UserID   string `json:"userId"`
	Username string `json:"username"`
}
