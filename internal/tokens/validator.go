package tokens

import (
	"time"

	"github.com/recollector/auth-service/internal/utils"
)

// Result is the outcome of checking a token against an expected subject.
type Result int

const (
	Malformed Result = iota
	Valid
	Expired
	SubjectMismatch
)

func (r Result) String() string {
	switch r {
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	case SubjectMismatch:
		return "subject_mismatch"
	default:
		return "malformed"
	}
}

// IsExpired reports whether the claims carry no expiry or one strictly
// before now. A token expiring exactly at now is still live.
func IsExpired(c Claims, now time.Time) bool {
	return c.ExpiresAt.IsZero() || c.ExpiresAt.Before(now)
}

// Check decodes token with key and compares it with expectedSubject at now.
// It never panics; any fault while decoding reports Malformed.
func Check[K SigningKey](token, expectedSubject string, key K, now time.Time) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			utils.Logger.Warnf("token check recovered from panic: %v", r)
			result = Malformed
		}
	}()

	if token == "" || expectedSubject == "" {
		return Malformed
	}

	claims, err := Decode(token, key)
	if err != nil {
		return Malformed
	}
	if claims.Subject == "" {
		return Malformed
	}
	if claims.Subject != expectedSubject {
		return SubjectMismatch
	}
	if IsExpired(claims, now) {
		return Expired
	}
	return Valid
}

// Validator binds a key and a clock so callers only pass token and subject.
// A Validator[AccessKey] cannot be handed to code expecting refresh tokens.
type Validator[K SigningKey] struct {
	key   K
	clock utils.Clock
}

func NewValidator[K SigningKey](key K, clock utils.Clock) *Validator[K] {
	if clock == nil {
		clock = utils.SystemClock
	}
	return &Validator[K]{key: key, clock: clock}
}

func (v *Validator[K]) Decode(token string) (Claims, error) {
	return Decode(token, v.key)
}

func (v *Validator[K]) Check(token, expectedSubject string) Result {
	return Check(token, expectedSubject, v.key, v.clock.Now())
}

// Validate is Check collapsed to a bool.
func (v *Validator[K]) Validate(token, expectedSubject string) bool {
	return v.Check(token, expectedSubject) == Valid
}
