package bridge

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var tokenSignatureAlg = jwt.SigningMethodHS256

// RequestClaim identifies which terminal a relay request concerns, so the
// relay can verify the request came from this server and not a stray client
// on the local network.
type RequestClaim struct {
	SerialNumber string `json:"serial_number"`
	jwt.RegisteredClaims
}

// TokenSource mints short-lived signed tokens for relay requests.
type TokenSource struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenSource(secret string, ttl time.Duration) *TokenSource {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &TokenSource{secret: []byte(secret), ttl: ttl}
}

func (s *TokenSource) Token(serialNumber string) (string, error) {
	now := time.Now().UTC()
	claim := RequestClaim{
		SerialNumber: serialNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(tokenSignatureAlg, claim)
	return token.SignedString(s.secret)
}
