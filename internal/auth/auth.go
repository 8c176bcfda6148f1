// Package auth is the boundary to the marketplace's identity provider.
// The chat core never sees a stored user record, only the minimal
// Identity value produced by verifying a bearer credential.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	userIdClaim = "user-id"
	expClaim    = "exp"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is a verified user identifier, nothing more.
type Identity struct {
	UserId string
}

type TokenVerifier interface {
	Verify(tokenString string) (Identity, error)
}

type TokenIssuer interface {
	Issue(identity Identity, exp time.Duration) (string, error)
}

// JWTAuthenticator verifies and issues HS256 bearer tokens carrying a
// user-id claim.
type JWTAuthenticator struct {
	signingKey []byte
}

func NewJWTAuthenticator(signingKey []byte) *JWTAuthenticator {
	return &JWTAuthenticator{signingKey: signingKey}
}

func (a *JWTAuthenticator) Verify(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return Identity{}, fmt.Errorf("%w: missing user id claim", ErrInvalidToken)
	}

	return Identity{UserId: userId}, nil
}

func (a *JWTAuthenticator) Issue(identity Identity, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: identity.UserId,
		expClaim:    time.Now().Add(exp).Unix(),
	})

	return token.SignedString(a.signingKey)
}
