package fthttp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBearerAuthorizationHeader(t *testing.T) {
	tt := []struct {
		name   string
		header string
		token  string
		err    error
	}{
		{name: "Empty", header: "", err: ErrEmptyAuthHeader},
		{name: "Missing token", header: "Bearer", err: ErrIncorrectHeaderFormat},
		{name: "Wrong scheme", header: "Basic abc", err: ErrIncorrectHeaderFormat},
		{name: "Extra fields", header: "Bearer abc def", err: ErrIncorrectHeaderFormat},
		{name: "Invalid characters", header: "Bearer abc$def", err: ErrInvalidTokenCharacters},
		{name: "Valid", header: "Bearer eyJhbGciOi.eyJzdWIi.c2lnbmF0dXJl", token: "eyJhbGciOi.eyJzdWIi.c2lnbmF0dXJl"},
		{name: "Lowercase scheme", header: "bearer abc==", token: "abc=="},
	}

	for _, test := range tt {
		t.Run(test.name, func(t *testing.T) {
			token, err := ParseBearerAuthorizationHeader(test.header)
			if test.err != nil {
				assert.ErrorIs(t, err, test.err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, test.token, token)
		})
	}
}
