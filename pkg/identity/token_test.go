package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportgate/reportgate/pkg/errs"
)

func TestTokenRoundTrip(t *testing.T) {
	ti := NewTokenIssuer("test-secret", time.Hour, 24*time.Hour)

	access, err := ti.IssueAccess(42)
	require.NoError(t, err)

	userID, err := ti.Validate(access, TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestRefreshTokenNotValidAsAccess(t *testing.T) {
	ti := NewTokenIssuer("test-secret", time.Hour, 24*time.Hour)

	refresh, err := ti.IssueRefresh(42)
	require.NoError(t, err)

	_, err = ti.Validate(refresh, TokenTypeAccess)
	require.Error(t, err)
	assert.Equal(t, errs.KindUnauthorized, errs.KindOf(err))

	userID, err := ti.Validate(refresh, TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestExpiredTokenRejected(t *testing.T) {
	ti := NewTokenIssuer("test-secret", -time.Minute, time.Hour)

	access, err := ti.IssueAccess(7)
	require.NoError(t, err)

	_, err = ti.Validate(access, TokenTypeAccess)
	require.Error(t, err)
	assert.Equal(t, errs.KindUnauthorized, errs.KindOf(err))
}

func TestForeignSignatureRejected(t *testing.T) {
	ti := NewTokenIssuer("secret-a", time.Hour, time.Hour)
	other := NewTokenIssuer("secret-b", time.Hour, time.Hour)

	access, err := ti.IssueAccess(7)
	require.NoError(t, err)

	_, err = other.Validate(access, TokenTypeAccess)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, VerifyPassword("correct horse", hash))
	assert.False(t, VerifyPassword("wrong", hash))

	_, err = HashPassword("short")
	assert.Error(t, err)
}
