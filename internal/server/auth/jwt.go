// Package auth issues and verifies the HS256 tokens of the server: user
// access tokens handed out after identity-provider login, and magic-link
// tokens that unlock a single retro.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const (
	userAudience = "postfacto-user"
	joinAudience = "postfacto-join"
)

// Claims of a user access token.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"uid"`
}

// JoinClaims of a magic-link token. RegisteredClaims.ID carries the retro's
// join nonce so that regenerating the nonce invalidates older links.
type JoinClaims struct {
	jwt.RegisteredClaims
	RetroID int64 `json:"rid"`
}

func GenerateToken(userID int64, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{userAudience},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID: userID,
	})

	return token.SignedString(secretKey)
}

func GetUserIDFromToken(tokenString string, secretKey []byte) (int64, error) {
	claims := &Claims{}
	if err := parse(tokenString, claims, secretKey, userAudience); err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

// GenerateJoinToken signs a magic link for retroID bound to its current nonce.
func GenerateJoinToken(retroID int64, nonce string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, JoinClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			Audience:  jwt.ClaimStrings{joinAudience},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		RetroID: retroID,
	})

	return token.SignedString(secretKey)
}

// ParseJoinToken returns the retro id and nonce carried by a magic link.
func ParseJoinToken(tokenString string, secretKey []byte) (int64, string, error) {
	claims := &JoinClaims{}
	if err := parse(tokenString, claims, secretKey, joinAudience); err != nil {
		return 0, "", err
	}
	return claims.RetroID, claims.ID, nil
}

func parse(tokenString string, claims jwt.Claims, secretKey []byte, audience string) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.ErrTokenExpired
		}
		return common.ErrInvalidToken
	}

	if !token.Valid {
		return common.ErrInvalidToken
	}
	return nil
}
