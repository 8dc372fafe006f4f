// Package tokens encodes, decodes and validates the HS256 access and refresh
// JWTs. It does no I/O: revocation and principal lookups live elsewhere.
package tokens

import (
	"errors"
	"fmt"
)

// MinSecretLength is the smallest HMAC secret accepted for HS256 (256 bits).
const MinSecretLength = 32

// KeyClass names which family of tokens a key signs. It is written into the
// JWT "kid" header and checked again on decode.
type KeyClass string

const (
	ClassAccess  KeyClass = "access"
	ClassRefresh KeyClass = "refresh"
)

// AccessKey signs and verifies short-lived access tokens.
type AccessKey struct {
	secret []byte
}

// RefreshKey signs and verifies long-lived refresh tokens.
type RefreshKey struct {
	secret []byte
}

func (k AccessKey) bytes() []byte   { return k.secret }
func (k AccessKey) Class() KeyClass { return ClassAccess }

func (k RefreshKey) bytes() []byte   { return k.secret }
func (k RefreshKey) Class() KeyClass { return ClassRefresh }

// SigningKey is satisfied only by AccessKey and RefreshKey, so an access key
// can never be passed where the compiler expects a refresh key and the other
// way round.
type SigningKey interface {
	AccessKey | RefreshKey
	bytes() []byte
	Class() KeyClass
}

var ErrWeakSecret = errors.New("signing secret too short")

func NewAccessKey(secret []byte) (AccessKey, error) {
	if err := checkSecret(secret); err != nil {
		return AccessKey{}, fmt.Errorf("access key: %w", err)
	}
	return AccessKey{secret: clone(secret)}, nil
}

func NewRefreshKey(secret []byte) (RefreshKey, error) {
	if err := checkSecret(secret); err != nil {
		return RefreshKey{}, fmt.Errorf("refresh key: %w", err)
	}
	return RefreshKey{secret: clone(secret)}, nil
}

func checkSecret(secret []byte) error {
	if len(secret) < MinSecretLength {
		return fmt.Errorf("%w: need at least %d bytes, got %d", ErrWeakSecret, MinSecretLength, len(secret))
	}
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
