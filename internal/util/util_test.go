package util

import (
	"learnquest_backend/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	user := &model.User{Email: "a@example.com", Role: model.Student}
	user.ID = 42

	token, err := GenerateJWT(user, "secret-secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret-secret")
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, model.Student, claims.Role)
	assert.Equal(t, "42", claims.Subject)

	_, err = ParseJWT(token, "other-secret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = GenerateJWT(&model.User{}, "secret-secret", time.Hour)
	assert.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	user := &model.User{Email: "a@example.com", Role: model.Student}
	user.ID = 1
	token, err := GenerateJWT(user, "secret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseJWT(token, "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMustParseUint(t *testing.T) {
	assert.Equal(t, uint(12), MustParseUint("12"))
	assert.Equal(t, uint(0), MustParseUint("abc"))
	assert.Equal(t, uint(0), MustParseUint("-1"))
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 10},
		{"5", 5},
		{"0", 10},
		{"-3", 10},
		{"abc", 10},
		{"1000", 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLimit(tt.in, 10, 100), tt.in)
	}
}
