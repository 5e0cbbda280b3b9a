package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

// ErrInvalidToken is returned when a token fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated principal behind a transport connection.
type Identity struct {
	UserID string
}

// Authenticator issues and verifies HMAC-signed bearer tokens. Every
// coordinator handler runs with an Identity resolved here before dispatch.
type Authenticator struct {
	secret   []byte
	tokenTTL time.Duration
}

// NewAuthenticator creates an authenticator with the given signing secret.
func NewAuthenticator(secret string, tokenTTL time.Duration) (*Authenticator, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("signing secret must be at least 16 characters")
	}

	if tokenTTL == 0 {
		tokenTTL = time.Hour
	}

	return &Authenticator{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}, nil
}

// IssueToken creates a signed token for the given user id.
func (a *Authenticator) IssueToken(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id cannot be empty")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(a.tokenTTL).Unix(),
	})

	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify validates a bearer token and resolves the identity it carries.
func (a *Authenticator) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("%w: claims not valid", ErrInvalidToken)
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return Identity{UserID: sub}, nil
}
