package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/postmod/apiserver/internal/store"
	"github.com/postmod/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthService(t *testing.T) (*AuthService, memoryRepos) {
	t.Helper()
	repos := newMemoryRepos()
	svc, err := NewAuthService(repos.users, TokenConfig{
		SigningKey: "test-secret",
		Algorithm:  "HS256",
		DefaultTTL: 30 * time.Minute,
	}, NewRevocationList(100, 30*time.Minute))
	require.NoError(t, err)
	return svc, repos
}

func TestNewAuthService_RejectsBadConfig(t *testing.T) {
	repos := newMemoryRepos()
	_, err := NewAuthService(repos.users, TokenConfig{SigningKey: "k", Algorithm: "RS256", DefaultTTL: time.Minute}, nil)
	require.Error(t, err)
	_, err = NewAuthService(repos.users, TokenConfig{SigningKey: "", Algorithm: "HS256", DefaultTTL: time.Minute}, nil)
	require.Error(t, err)
	_, err = NewAuthService(repos.users, TokenConfig{SigningKey: "k", Algorithm: "HS512", DefaultTTL: 0}, nil)
	require.Error(t, err)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, repos := newAuthService(t)

	user, err := svc.Register(ctx, "alice", "pw123")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.False(t, user.AutoReplyEnabled)
	assert.Equal(t, types.DefaultReplyDelaySeconds, user.ReplyDelaySeconds)
	assert.NotEqual(t, "pw123", user.PasswordHash)

	_, err = svc.Register(ctx, "alice", "other")
	require.ErrorIs(t, err, store.ErrConflict)

	stored, err := repos.users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.PasswordHash, stored.PasswordHash, "first registration is kept")

	_, err = svc.Register(ctx, "  ", "pw")
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.Register(ctx, "bob", "")
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.Register(ctx, "bob", strings.Repeat("x", 100))
	require.ErrorIs(t, err, ErrValidation)
}

func TestLogin_SubjectMatchesUsername(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthService(t)

	for _, name := range []string{"alice", "bob", "carol_99"} {
		_, err := svc.Register(ctx, name, name+"-pw")
		require.NoError(t, err)

		token, err := svc.Login(ctx, name, name+"-pw")
		require.NoError(t, err)
		assert.Equal(t, name, token.Subject)
		assert.NotEmpty(t, token.ID)
		assert.Len(t, strings.Split(token.Token, "."), 3)

		user, err := svc.Authorize(ctx, token.Token)
		require.NoError(t, err)
		assert.Equal(t, name, user.Username)
	}
}

func TestAuthenticate_BadCredentials(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthService(t)
	_, err := svc.Register(ctx, "alice", "pw123")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "alice", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody", "pw123")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthorize_RejectsExpiredToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthService(t)
	_, err := svc.Register(ctx, "alice", "pw123")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := svc.IssueToken("alice", time.Minute)
	require.NoError(t, err)
	svc.now = time.Now

	_, err = svc.Authorize(ctx, token.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthorize_RejectsTamperedSignature(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthService(t)
	_, err := svc.Register(ctx, "alice", "pw123")
	require.NoError(t, err)

	token, err := svc.IssueToken("alice", 0)
	require.NoError(t, err)

	parts := strings.Split(token.Token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = svc.Authorize(ctx, tampered)
	require.ErrorIs(t, err, ErrInvalidToken)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("some-other-secret"))
	require.NoError(t, err)
	_, err = svc.Authorize(ctx, forged)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthorize_RejectsWrongAlgorithm(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthService(t)
	_, err := svc.Register(ctx, "alice", "pw123")
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.Authorize(ctx, hs512)
	require.ErrorIs(t, err, ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.Authorize(ctx, unsigned)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthorize_RejectsUnknownSubjectAndMissingExpiry(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthService(t)

	token, err := svc.IssueToken("ghost", 0)
	require.NoError(t, err)
	_, err = svc.Authorize(ctx, token.Token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Register(ctx, "alice", "pw123")
	require.NoError(t, err)
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "alice"}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.Authorize(ctx, noExp)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Authorize(ctx, "not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthService(t)
	_, err := svc.Register(ctx, "alice", "pw123")
	require.NoError(t, err)

	first, err := svc.Login(ctx, "alice", "pw123")
	require.NoError(t, err)
	second, err := svc.Login(ctx, "alice", "pw123")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, first.Token))

	_, err = svc.Authorize(ctx, first.Token)
	require.ErrorIs(t, err, ErrInvalidToken)

	user, err := svc.Authorize(ctx, second.Token)
	require.NoError(t, err, "other sessions stay valid")
	assert.Equal(t, "alice", user.Username)
}
