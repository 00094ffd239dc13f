package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const authorizationIssuer = "creditgate"

var (
	ErrTokenSecretMissing = errors.New("secret is required for authorization tokens")
	ErrTokenInvalid       = errors.New("invalid authorization token")
	ErrTokenExpired       = errors.New("authorization token expired")
)

// AuthorizationClaims bind a successful authorization to its workspace so a
// collaborator can later refund it without holding the workspace API key.
type AuthorizationClaims struct {
	WorkspaceID     string `json:"ws"`
	AuthorizationID string `json:"aid"`
	ActionType      string `json:"act"`
	Cost            int64  `json:"cost"`
	jwt.RegisteredClaims
}

// GenerateAuthorizationToken signs an HS256 token for a granted authorization.
func GenerateAuthorizationToken(workspaceID, authorizationID, actionType string, cost int64, ttl time.Duration, secret string) (string, error) {
	if secret == "" {
		return "", ErrTokenSecretMissing
	}
	now := time.Now()
	claims := &AuthorizationClaims{
		WorkspaceID:     workspaceID,
		AuthorizationID: authorizationID,
		ActionType:      actionType,
		Cost:            cost,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    authorizationIssuer,
			Subject:   authorizationID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyAuthorizationToken checks signature, issuer and expiry.
func VerifyAuthorizationToken(tokenString, secret string) (*AuthorizationClaims, error) {
	if secret == "" {
		return nil, ErrTokenSecretMissing
	}
	claims := &AuthorizationClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(authorizationIssuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid || claims.WorkspaceID == "" || claims.AuthorizationID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
