package auth

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")
	userID := "user-123"

	tok, err := GenerateToken(userID, secret, time.Hour)
	require.NoError(t, err)

	gotUserID, err := GetUserIDFromToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, userID, gotUserID)
}

func TestGetUserIDFromToken_Expired(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")
	tok, err := GenerateToken("u1", secret, -1*time.Minute)
	require.NoError(t, err)

	_, err = GetUserIDFromToken(tok, secret)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestGetUserIDFromToken_Invalid(t *testing.T) {
	t.Parallel()

	right := []byte("right-secret")
	signed, err := GenerateToken("u2", right, time.Hour)
	require.NoError(t, err)

	noUser, err := GenerateToken("", right, time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u3"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", signed + "x"},
		{"malformed", "not.a.jwt"},
		{"empty", ""},
		{"missing user id", noUser},
		{"unsigned", none},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GetUserIDFromToken(tt.token, right)
			assert.ErrorIs(t, err, common.ErrInvalidToken)
		})
	}

	t.Run("other key", func(t *testing.T) {
		_, err := GetUserIDFromToken(signed, []byte("wrong-secret"))
		assert.ErrorIs(t, err, common.ErrInvalidToken)
	})
}
