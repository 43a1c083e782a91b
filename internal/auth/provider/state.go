package provider

import (
	"bytes"
	crand "crypto/rand"
	"encoding/base64"
	"io"
)

// GenerateState produces a new random state.
func GenerateState() (string, error) {
	var b bytes.Buffer
	_, err := io.CopyN(&b, crand.Reader, 16)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b.Bytes()), nil
}
