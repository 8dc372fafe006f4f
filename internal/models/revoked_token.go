package models

import (
	"time"

	"github.com/google/uuid"
)

// RevokedToken marks one raw JWT as no longer acceptable for its subject.
// Rows are only ever inserted or deleted, never updated.
type RevokedToken struct {
	ID        uuid.UUID `json:"id"`
	SubjectID uuid.UUID `json:"subject_id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	RevokedAt time.Time `json:"revoked_at"`
}

// MaxRevokedTokenLength bounds the stored token text (VARCHAR(1024)).
const MaxRevokedTokenLength = 1024
