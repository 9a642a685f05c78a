package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	tokens := NewTokens("s3cret", "khata-store", time.Hour)

	raw, exp, err := tokens.Issue(Identity{UserID: "u-1", Role: RoleShopkeeper})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	id, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u-1", Role: RoleShopkeeper}, id)
	assert.True(t, id.IsShopkeeper())
}

func TestVerifyRejects(t *testing.T) {
	tokens := NewTokens("s3cret", "khata-store", time.Hour)
	raw, _, err := tokens.Issue(Identity{UserID: "u-1", Role: RoleCustomer})
	require.NoError(t, err)

	_, err = NewTokens("other", "khata-store", time.Hour).Verify(raw)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = NewTokens("s3cret", "someone-else", time.Hour).Verify(raw)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	expired := NewTokens("s3cret", "khata-store", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	old, _, err := expired.Issue(Identity{UserID: "u-1", Role: RoleCustomer})
	require.NoError(t, err)
	_, err = tokens.Verify(old)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	bogusRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", Issuer: "khata-store"},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = tokens.Verify(bogusRole)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = tokens.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestIssueRejectsUnknownRole(t *testing.T) {
	_, _, err := NewTokens("s", "i", time.Hour).Issue(Identity{UserID: "u", Role: "root"})
	assert.Error(t, err)
}

func TestRequire(t *testing.T) {
	assert.ErrorIs(t, Identity{}.RequireUser(), ErrUnauthenticated)
	assert.ErrorIs(t, Identity{}.RequireShopkeeper(), ErrUnauthenticated)
	assert.ErrorIs(t, Identity{UserID: "c", Role: RoleCustomer}.RequireShopkeeper(), ErrForbidden)
	assert.NoError(t, Identity{UserID: "s", Role: RoleShopkeeper}.RequireShopkeeper())
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: "u", Role: RoleCustomer})
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u", id.UserID)
}
