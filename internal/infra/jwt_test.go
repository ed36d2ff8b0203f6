package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giftwave/internal/types"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestJWT_IssueAndParse(t *testing.T) {
	m := NewJWTManager(secret, time.Hour)
	tok, exp, err := m.Issue("user-1", "rider")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	id, err := m.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, types.ID("user-1"), id)

	vt, err := m.VerifyIDToken(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", vt.UID)
	assert.Equal(t, ProviderSession, vt.Provider)
	assert.Equal(t, "rider", vt.Claims["role"])
}

func TestJWT_Expired(t *testing.T) {
	m := NewJWTManager(secret, time.Minute)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	tok, _, err := m.Issue("user-1", "sender")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Parse(tok)
	assert.Error(t, err)
}

func TestJWT_Rejects(t *testing.T) {
	m := NewJWTManager(secret, time.Hour)
	other := NewJWTManager("another-secret-another-secret-xx", time.Hour)
	tok, _, err := other.Issue("user-1", "sender")
	require.NoError(t, err)
	_, err = m.Parse(tok)
	assert.Error(t, err, "wrong key")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Parse(none)
	assert.Error(t, err, "alg none")

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = m.Parse(noSub)
	assert.Error(t, err, "missing sub")

	_, err = m.Parse("garbage")
	assert.Error(t, err)
}

type fixedVerifier struct {
	token *Token
	err   error
}

func (f fixedVerifier) VerifyIDToken(context.Context, string) (*Token, error) {
	return f.token, f.err
}

func TestChainVerifier(t *testing.T) {
	ctx := context.Background()
	m := NewJWTManager(secret, time.Hour)
	fb := fixedVerifier{token: &Token{UID: "fb-uid", Provider: ProviderFirebase}}
	chain := ChainVerifier{m, fb}

	tok, _, err := m.Issue("user-1", "sender")
	require.NoError(t, err)
	vt, err := chain.VerifyIDToken(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, ProviderSession, vt.Provider)
	assert.Equal(t, "user-1", vt.UID)

	vt, err = chain.VerifyIDToken(ctx, "firebase-id-token")
	require.NoError(t, err)
	assert.Equal(t, ProviderFirebase, vt.Provider)
	assert.Equal(t, "fb-uid", vt.UID)

	_, err = ChainVerifier{m, fixedVerifier{err: errors.New("firebase: bad token")}}.VerifyIDToken(ctx, "garbage")
	assert.ErrorContains(t, err, "firebase: bad token")

	_, err = ChainVerifier{}.VerifyIDToken(ctx, tok)
	assert.Error(t, err)
}

func TestToken_VerifiedEmail(t *testing.T) {
	tok := &Token{Claims: map[string]interface{}{"email": "a@example.com", "email_verified": true}}
	assert.Equal(t, "a@example.com", tok.VerifiedEmail())
	tok.Claims["email_verified"] = false
	assert.Empty(t, tok.VerifiedEmail())
	assert.Empty(t, (&Token{}).VerifiedEmail())
}
