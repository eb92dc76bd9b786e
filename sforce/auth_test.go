package sforce_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Metabor/salesforce-orm/sforce"
	"github.com/Metabor/salesforce-orm/sforce/sforcetest"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func newBearer(t *testing.T, server *sforcetest.Server) *sforce.JWTBearer {
	t.Helper()
	return sforce.NewJWTBearer("client-id", "worker@example.com", server.URL, testKey(t))
}

func TestJWTBearer_Token(t *testing.T) {
	server := sforcetest.New()
	t.Cleanup(server.Close)
	provider := newBearer(t, server)

	token, err := provider.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sforcetest.AccessToken, token.AccessToken)
	assert.Equal(t, server.URL, token.InstanceURL)
	assert.Equal(t, 1, server.AuthCalls)
}

func TestJWTBearer_TokenIsReused(t *testing.T) {
	server := sforcetest.New()
	t.Cleanup(server.Close)
	provider := newBearer(t, server)
	ctx := context.Background()

	_, err := provider.Token(ctx)
	require.NoError(t, err)
	_, err = provider.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, server.AuthCalls, "second call must hit the store, not the token endpoint")
}

func TestJWTBearer_Invalidate(t *testing.T) {
	server := sforcetest.New()
	t.Cleanup(server.Close)
	provider := newBearer(t, server)
	ctx := context.Background()

	_, err := provider.Token(ctx)
	require.NoError(t, err)
	require.NoError(t, provider.Invalidate(ctx))
	_, err = provider.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, server.AuthCalls)
}

func TestClient_ReauthenticatesOnInvalidSession(t *testing.T) {
	server := sforcetest.New()
	t.Cleanup(server.Close)
	provider := newBearer(t, server)
	client := sforce.NewClient(provider)
	ctx := context.Background()

	id := server.Seed("Contact", "", map[string]interface{}{"FirstName": "Ann"})

	_, err := client.Get(ctx, "Contact", id, nil)
	require.NoError(t, err)

	// The next sObject call is rejected once; the client must discard the
	// session, re-authenticate and succeed.
	server.RejectToken = true
	record, err := client.Get(ctx, "Contact", id, nil)
	require.NoError(t, err)
	assert.Equal(t, "Ann", record["FirstName"])
	assert.Equal(t, 2, server.AuthCalls)
}

func TestParsePrivateKey(t *testing.T) {
	key := testKey(t)

	pkcs1 := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	parsed, err := sforce.ParsePrivateKey(pkcs1)
	require.NoError(t, err)
	assert.True(t, key.Equal(parsed))

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	parsed, err = sforce.ParsePrivateKey(pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: pkcs8,
	}))
	require.NoError(t, err)
	assert.True(t, key.Equal(parsed))

	_, err = sforce.ParsePrivateKey([]byte("not a key"))
	assert.Error(t, err)
}
