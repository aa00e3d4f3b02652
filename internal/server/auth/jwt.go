// Package auth identifies callers: bearer JWTs resolve to a user id, and the
// worker trigger is guarded by a shared secret.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the user id next to the registered claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// GenerateToken signs an HS256 token for userID.
func GenerateToken(userID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID: userID,
	})

	return token.SignedString(secretKey)
}

// GetUserIDFromToken validates tokenString and returns its user id. Every
// failure matches common.ErrUnauthenticated.
func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: token expired", common.ErrUnauthenticated)
		}
		return "", fmt.Errorf("%w: %w", common.ErrUnauthenticated, common.ErrInvalidToken)
	}

	if !token.Valid || claims.UserID == "" {
		return "", fmt.Errorf("%w: %w", common.ErrUnauthenticated, common.ErrInvalidToken)
	}

	return claims.UserID, nil
}

// Verifier is the "verify token -> userId" collaborator.
type Verifier interface {
	UserID(token string) (string, error)
}

// JWTVerifier verifies HS256 tokens with a fixed secret.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) UserID(token string) (string, error) {
	return GetUserIDFromToken(token, v.secret)
}
