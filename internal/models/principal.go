package models

import (
	"time"

	"github.com/google/uuid"
)

// Principal is an account holder. Email doubles as the JWT subject.
type Principal struct {
	Versioned

	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	ResetToken       *string    `json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (p *Principal) GetID() string { return p.ID.String() }

// HasActiveResetToken reports whether a password reset is already pending at now.
func (p *Principal) HasActiveResetToken(now time.Time) bool {
	return p.ResetToken != nil && p.ResetTokenExpiry != nil && p.ResetTokenExpiry.After(now)
}

// Predates reports whether a token issued at issuedAt was minted before this
// account existed, e.g. for an earlier account under the same email. Token
// timestamps carry whole seconds, so creation is compared at that precision.
func (p *Principal) Predates(issuedAt time.Time) bool {
	return issuedAt.Before(p.CreatedAt.Truncate(time.Second))
}
