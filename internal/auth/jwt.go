package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 tokens carrying the user id in sub and
// the role in a custom claim.
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret, issuer string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

func (t *Tokens) Issue(id Identity) (string, time.Time, error) {
	if id.UserID == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty user id", ErrUnauthenticated)
	}
	if _, ok := ParseRole(string(id.Role)); !ok {
		return "", time.Time{}, fmt.Errorf("unknown role %q", id.Role)
	}
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (t *Tokens) Verify(raw string) (Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	},
		jwt.WithIssuer(t.issuer),
		jwt.WithLeeway(30*time.Second), // small clock skew
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}
	role, ok := ParseRole(claims.Role)
	if !ok || claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: invalid claims", ErrUnauthenticated)
	}
	return Identity{UserID: claims.Subject, Role: role}, nil
}
