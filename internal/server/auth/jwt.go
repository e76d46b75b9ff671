// Package auth mints and validates the peer-session JWTs used on the
// transport surface. Peers (smart-home workers, messenger frontends)
// trade the shared secret for a short-lived token.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stko/zuul-ac/internal/common"
)

// Claims carries the standard claims plus the peer name the session was
// minted for.
type Claims struct {
	jwt.RegisteredClaims
	Peer string `json:"peer"`
}

// GenerateToken mints an HS256 session token for a peer.
func GenerateToken(peer string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Peer: peer,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// PeerFromToken validates a session token and returns the peer it was
// minted for. Validation is fail-closed: wrong algorithm, bad signature
// and expiry all reject.
func PeerFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secretKey, nil
	})
	if err != nil {
		return "", err
	}

	if !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.Peer, nil
}
