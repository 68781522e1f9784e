package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateVerifyRoundtrip(t *testing.T) {
	raw, err := Generate("s3cret", "anna", []string{"editor", "reader"}, time.Minute)
	require.NoError(t, err)

	tok, err := NewVerifier("s3cret").Verify(context.Background(), raw)
	require.NoError(t, err)

	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "anna", claims["sub"])

	roles, ok := claims["roles"].([]interface{})
	require.True(t, ok)
	require.Len(t, roles, 2)
	require.Equal(t, "editor", roles[0])
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	raw, err := Generate("s3cret", "anna", nil, time.Minute)
	require.NoError(t, err)

	_, err = NewVerifier("other").Verify(context.Background(), raw)
	require.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	raw, err := Generate("s3cret", "anna", nil, -time.Minute)
	require.NoError(t, err)

	_, err = NewVerifier("s3cret").Verify(context.Background(), raw)
	require.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := NewVerifier("s3cret").Verify(context.Background(), "not.a.token")
	require.Error(t, err)
}

func TestClaimsTargetMustBeMap(t *testing.T) {
	raw, err := Generate("s3cret", "anna", nil, time.Minute)
	require.NoError(t, err)
	tok, err := NewVerifier("s3cret").Verify(context.Background(), raw)
	require.NoError(t, err)

	var wrong struct{}
	require.Error(t, tok.Claims(&wrong))
}
