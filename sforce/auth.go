package sforce

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// TokenProvider supplies API sessions to the client
type TokenProvider interface {
	// Token returns a usable session, authenticating if necessary
	Token(ctx context.Context) (*Token, error)

	// Invalidate discards the current session after the API rejected it
	Invalidate(ctx context.Context) error
}

// StaticToken is a TokenProvider for a pre-issued session that is never
// refreshed. Useful in tests and for callers that manage sessions themselves.
type StaticToken struct {
	AccessToken string
	InstanceURL string
}

// Token returns the static session
func (s StaticToken) Token(ctx context.Context) (*Token, error) {
	return &Token{
		AccessToken: s.AccessToken,
		InstanceURL: s.InstanceURL,
		TokenType:   "Bearer",
	}, nil
}

// Invalidate is a no-op for static sessions
func (s StaticToken) Invalidate(ctx context.Context) error {
	return nil
}

// JWTBearer implements the OAuth 2.0 JWT bearer flow: a short-lived RS256
// assertion signed with the connected app's private key is exchanged for an
// API session at the token endpoint. Issued sessions go through a TokenStore
// so they can be shared across processes.
type JWTBearer struct {
	ClientID string
	Username string

	// LoginURL is the token endpoint host, e.g. https://login.salesforce.com
	LoginURL string

	Key   *rsa.PrivateKey
	Store TokenStore

	HTTPClient *http.Client
	Log        *zap.Logger

	// AssertionTTL bounds the assertion's validity window
	AssertionTTL time.Duration
}

// NewJWTBearer creates a JWT bearer token provider with an in-memory store
func NewJWTBearer(clientID, username, loginURL string, key *rsa.PrivateKey) *JWTBearer {
	return &JWTBearer{
		ClientID:     clientID,
		Username:     username,
		LoginURL:     loginURL,
		Key:          key,
		Store:        NewMemoryStore(),
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		Log:          zap.NewNop(),
		AssertionTTL: 3 * time.Minute,
	}
}

// Token returns the stored session or authenticates for a fresh one
func (p *JWTBearer) Token(ctx context.Context) (*Token, error) {
	if token, err := p.Store.Get(ctx); err != nil {
		return nil, err
	} else if token.Valid() {
		return token, nil
	}

	token, err := p.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.Store.Put(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// Invalidate discards the stored session so the next call re-authenticates
func (p *JWTBearer) Invalidate(ctx context.Context) error {
	return p.Store.Clear(ctx)
}

// authenticate signs an assertion and exchanges it at the token endpoint
func (p *JWTBearer) authenticate(ctx context.Context) (*Token, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": p.ClientID,
		"sub": p.Username,
		"aud": p.LoginURL,
		"exp": now.Add(p.AssertionTTL).Unix(),
	}

	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(p.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}

	endpoint := strings.TrimSuffix(p.LoginURL, "/") + "/services/oauth2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var oauthErr struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		if err := json.Unmarshal(body, &oauthErr); err == nil && oauthErr.Error != "" {
			return nil, fmt.Errorf("%w: %s: %s", ErrAuthFailed, oauthErr.Error, oauthErr.Description)
		}
		return nil, fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		InstanceURL string `json:"instance_url"`
		TokenType   string `json:"token_type"`
		IssuedAt    string `json:"issued_at"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	token := &Token{
		AccessToken: payload.AccessToken,
		InstanceURL: payload.InstanceURL,
		TokenType:   payload.TokenType,
		IssuedAt:    now,
	}
	if ms, err := strconv.ParseInt(payload.IssuedAt, 10, 64); err == nil {
		token.IssuedAt = time.UnixMilli(ms)
	}

	p.Log.Debug("authenticated",
		zap.String("username", p.Username),
		zap.String("instance_url", token.InstanceURL))

	return token, nil
}

// LoadPrivateKey reads an RSA private key from a PEM file (PKCS#1 or PKCS#8)
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	return ParsePrivateKey(data)
}

// ParsePrivateKey parses a PEM-encoded RSA private key
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, expected RSA", parsed)
	}
	return key, nil
}
