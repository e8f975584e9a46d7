package identity

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "strangerchat-service"

var ErrInvalidToken = errors.New("invalid or expired token")

// Tokens issues anonymous identity tokens and verifies tokens from the session provider.
// Both kinds are HS256 JWTs signed with the same secret: user tokens carry "sub",
// anonymous tokens carry "anon_id".
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// IssueAnonymous generates a fresh anonymous id and a token for it.
func (t *Tokens) IssueAnonymous() (token string, anonID string, err error) {
	anonUUID, err := uuid.NewRandom()
	if err != nil {
		return "", "", err
	}
	anonID = anonUUID.String()

	claims := jwt.MapClaims{
		"anon_id": anonID,
		"exp":     t.now().Add(t.ttl).Unix(),
		"iss":     issuer,
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", "", err
	}
	return token, anonID, nil
}

// IssueUser signs a token for an authenticated user. The real session provider
// does this in production; the admin CLI and tests use it directly.
func (t *Tokens) IssueUser(userID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": t.now().Add(t.ttl).Unix(),
		"iss": issuer,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Actor verifies the token and resolves the actor it identifies.
func (t *Tokens) Actor(tokenString string) (Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Actor{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	anonID, _ := claims["anon_id"].(string)

	return Resolve(sub, anonID)
}
