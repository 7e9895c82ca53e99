package auth

import "time"

// AccessClaims are the claims carried inside an encrypted access token.
type AccessClaims struct {
	UserID string `json:"user_id"`

	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	NotBefore  time.Time `json:"nbf"`
	IssuedAt   time.Time `json:"iat"`
	TokenID    string    `json:"jti"`
}
