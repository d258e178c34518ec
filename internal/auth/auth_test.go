package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret-1")

	token, err := tm.GenerateToken(Identity{
		UserID: "u1", Email: "a@b.c", Name: "Ada", Admin: true,
	}, time.Hour)
	assert.NoError(t, err)

	id, err := tm.ParseToken(token)
	assert.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, "a@b.c", id.Email)
	assert.Equal(t, "Ada", id.Name)
	assert.True(t, id.Admin)
}

func TestParseToken_Rejections(t *testing.T) {
	tm := NewTokenManager("secret-1")
	other := NewTokenManager("secret-2")

	token, err := other.GenerateToken(Identity{UserID: "u1"}, time.Hour)
	assert.NoError(t, err)
	_, err = tm.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := tm.GenerateToken(Identity{UserID: "u1"}, -time.Minute)
	assert.NoError(t, err)
	_, err = tm.ParseToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tm.ParseToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
