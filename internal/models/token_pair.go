package models

// TokenPair is what register, login and refresh hand back to the client.
// Expiries are epoch seconds. Never persisted as a unit.
type TokenPair struct {
	AccessToken      string `json:"jwtToken"`
	RefreshToken     string `json:"refreshToken"`
	AccessExpiresAt  int64  `json:"jwtTokenExpirationDate"`
	RefreshExpiresAt int64  `json:"jwtRefreshTokenExpirationDate"`
}
