package fthttp

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyAuthHeader represents a missing Authorization header.
	ErrEmptyAuthHeader = errors.New("empty auth header")

	// ErrIncorrectHeaderFormat means the formatting of the header was incorrect.
	ErrIncorrectHeaderFormat = errors.New("incorrect header format")

	// ErrInvalidTokenCharacters means an invalid character was present in the
	// auth token. Only base64 digits are allowed.
	ErrInvalidTokenCharacters = errors.New("invalid token characters")
)

// ValidTokenRegex matches only valid token characters (i.e. base64 characters).
var ValidTokenRegex = regexp.MustCompile(`^[a-zA-Z0-9-._~+/]+=*$`)

const bearerScheme = "Bearer"

// ParseBearerAuthorizationHeader parses the Authorization header field
// and returns the authorization token, if present and valid.
//
// The Authorization header should be in the form (RFC6750 2.1)
// b64token    = 1*( ALPHA / DIGIT /
// 					"-" / "." / "_" / "~" / "+" / "/" ) *"="
// credentials = "Bearer" 1*SP b64token
func ParseBearerAuthorizationHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrEmptyAuthHeader
	}
	fields := strings.Fields(authHeader)
	if len(fields) != 2 {
		return "", ErrIncorrectHeaderFormat
	}
	if !strings.EqualFold(fields[0], bearerScheme) {
		return "", ErrIncorrectHeaderFormat
	}

	token := fields[1]
	if !ValidTokenRegex.MatchString(token) {
		return "", ErrInvalidTokenCharacters
	}

	return token, nil
}
