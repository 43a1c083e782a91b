// Package validator defines validation for decoded request payloads.
package validator

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// ErrMalformedBody is returned when a request body is not valid JSON.
var ErrMalformedBody = errors.New("malformed request body")

// Validator handles validation of parameters and requests.
type Validator interface {
	Validate() error
}

// DecodeJSON decodes a JSON body into v and validates it.
func DecodeJSON(body io.Reader, v Validator) error {
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return errors.Wrap(ErrMalformedBody, err.Error())
	}
	return v.Validate()
}
