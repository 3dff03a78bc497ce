package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rl1809/shop-stock/internal/port"
)

const Issuer = "shop-stock"

var (
	ErrInvalidToken  = errors.New("invalid auth token")
	ErrTokenExpired  = errors.New("auth token expired")
	ErrNotConfigured = errors.New("token authentication is not configured")
)

// TokenAuthenticator accepts HS256 tokens minted by IssueToken. An empty
// credential signs in anonymously with a fresh user id.
type TokenAuthenticator struct {
	secret []byte
	now    func() time.Time
}

func NewTokenAuthenticator(secret string) *TokenAuthenticator {
	return &TokenAuthenticator{secret: []byte(secret), now: time.Now}
}

func (a *TokenAuthenticator) Authenticate(ctx context.Context, credential string) (port.Identity, error) {
	if err := ctx.Err(); err != nil {
		return port.Identity{}, err
	}

	credential = strings.TrimSpace(credential)
	if credential == "" {
		return port.Identity{UserID: uuid.NewString(), Anonymous: true}, nil
	}
	if len(a.secret) == 0 {
		return port.Identity{}, ErrNotConfigured
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(credential, &claims, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return port.Identity{}, mapJWTError(err)
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return port.Identity{}, fmt.Errorf("%w: subject is required", ErrInvalidToken)
	}
	return port.Identity{UserID: subject}, nil
}

// IssueToken mints a token for userID. A zero ttl produces a token without expiry.
func IssueToken(secret, userID string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", ErrNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	claims := jwt.RegisteredClaims{
		Issuer:   Issuer,
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
		ID:       uuid.NewString(),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return fmt.Errorf("%w: %v", ErrInvalidToken, err)
}
