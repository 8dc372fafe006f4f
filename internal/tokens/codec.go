package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/recollector/auth-service/internal/utils"
)

// Claims is what a decoded token asserts. A zero ExpiresAt means the token
// carried no expiry.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

var parser = jwt.NewParser(
	jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	// Expiry is judged by the validator so an expired but well-signed token
	// still yields its claims.
	jwt.WithoutClaimsValidation(),
)

// Encode signs subject, issuedAt and expiresAt with key. Timestamps are
// stored with second precision; identical inputs give identical tokens.
func Encode[K SigningKey](subject string, issuedAt, expiresAt time.Time, key K) (string, error) {
	if subject == "" {
		return "", errors.New("encode: empty subject")
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	tok.Header["kid"] = string(key.Class())

	signed, err := tok.SignedString(key.bytes())
	if err != nil {
		return "", fmt.Errorf("encode: sign %s token: %w", key.Class(), err)
	}
	return signed, nil
}

// Decode verifies the signature of token with key and returns its claims.
// It does not check expiry. Any structural or signature problem, including a
// token minted for the other key class, yields ErrTokenMalformedOrUnverifiable.
func Decode[K SigningKey](token string, key K) (Claims, error) {
	if token == "" {
		return Claims{}, fmt.Errorf("%w: empty token", utils.ErrTokenMalformedOrUnverifiable)
	}

	var rc jwt.RegisteredClaims
	parsed, err := parser.ParseWithClaims(token, &rc, func(t *jwt.Token) (interface{}, error) {
		if kid, _ := t.Header["kid"].(string); kid != string(key.Class()) {
			return nil, fmt.Errorf("key class %q does not match token class %q", key.Class(), kid)
		}
		return key.bytes(), nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", utils.ErrTokenMalformedOrUnverifiable, err)
	}
	if !parsed.Valid {
		return Claims{}, fmt.Errorf("%w: token rejected by parser", utils.ErrTokenMalformedOrUnverifiable)
	}

	c := Claims{Subject: rc.Subject}
	if rc.IssuedAt != nil {
		c.IssuedAt = rc.IssuedAt.Time.UTC()
	}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time.UTC()
	}
	return c, nil
}
