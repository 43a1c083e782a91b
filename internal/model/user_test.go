package model

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleIsValid(t *testing.T) {
	for _, role := range []Role{RoleUser, RoleManager, RoleAdmin} {
		assert.True(t, role.IsValid(), role)
	}
	for _, role := range []Role{"", "root", "Admin"} {
		assert.False(t, role.IsValid(), role)
	}
}

func TestUserValid(t *testing.T) {
	valid := func() *User {
		return &User{
			ID:           "id",
			Username:     "alice",
			Email:        "a@x.com",
			PasswordHash: "hash",
			Provider:     ProviderLocal,
			Role:         RoleUser,
		}
	}

	tt := []struct {
		name    string
		mutate  func(u *User)
		wantErr bool
	}{
		{name: "Valid", mutate: func(*User) {}},
		{name: "Missing ID", mutate: func(u *User) { u.ID = "" }, wantErr: true},
		{name: "Missing username", mutate: func(u *User) { u.Username = "" }, wantErr: true},
		{name: "Missing email", mutate: func(u *User) { u.Email = "" }, wantErr: true},
		{name: "Missing password", mutate: func(u *User) { u.PasswordHash = "" }, wantErr: true},
		{name: "Bad role", mutate: func(u *User) { u.Role = "root" }, wantErr: true},
	}

	for _, test := range tt {
		t.Run(test.name, func(t *testing.T) {
			u := valid()
			test.mutate(u)
			err := u.Valid()
			if test.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidUser))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestUserJSONOmitsPassword(t *testing.T) {
	u := &User{ID: "id", Username: "alice", PasswordHash: "secret-hash", Role: RoleUser}
	b, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "secret-hash")
	assert.NotContains(t, string(b), "password")
}

func TestToUserData(t *testing.T) {
	u := &User{ID: "id", Username: "alice", Email: "a@x.com", Role: RoleManager, Provider: ProviderFederated}
	data := u.ToUserData()
	assert.Equal(t, &UserData{ID: "id", Username: "alice", Role: RoleManager, Provider: ProviderFederated}, data)
}
