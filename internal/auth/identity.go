package auth

import (
	"context"
	"errors"
)

type Role string

const (
	RoleCustomer   Role = "customer"
	RoleShopkeeper Role = "shopkeeper"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Identity is the resolved caller passed explicitly into every operation.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func (id Identity) IsShopkeeper() bool { return id.Role == RoleShopkeeper }

// RequireShopkeeper returns ErrUnauthenticated for an empty identity and
// ErrForbidden for any other role.
func (id Identity) RequireShopkeeper() error {
	if id.UserID == "" {
		return ErrUnauthenticated
	}
	if !id.IsShopkeeper() {
		return ErrForbidden
	}
	return nil
}

func (id Identity) RequireUser() error {
	if id.UserID == "" {
		return ErrUnauthenticated
	}
	return nil
}

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleCustomer, RoleShopkeeper:
		return Role(s), true
	}
	return "", false
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
