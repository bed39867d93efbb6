package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Signer mints signed tokens. It exists for the mint CLI and for tests; the
// gateway itself never issues tokens.
type Signer struct {
	key    *rsa.PrivateKey
	method jwt.SigningMethod
}

// MintOptions describe the token to mint.
type MintOptions struct {
	Subject string
	TTL     time.Duration
	// NotBeforeOffset shifts nbf relative to now; positive values produce a
	// not-yet-valid token.
	NotBeforeOffset time.Duration
	// TokenID overrides the generated jti; leave empty for a random one.
	TokenID string
}

// NewSigner builds a Signer from a PEM-encoded RSA private key.
func NewSigner(privateKeyPEM []byte, algorithm string) (*Signer, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("unknown signing method %q", algorithm)
	}

	return &Signer{key: key, method: method}, nil
}

// Mint signs a token for the given options.
func (s *Signer) Mint(opts MintOptions) (string, error) {
	now := time.Now().UTC()

	jti := opts.TokenID
	if jti == "" {
		jti = uuid.NewString()
	}

	claims := jwt.RegisteredClaims{
		ID:        jti,
		Subject:   opts.Subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(opts.NotBeforeOffset)),
		ExpiresAt: jwt.NewNumericDate(now.Add(opts.TTL)),
	}

	return jwt.NewWithClaims(s.method, claims).SignedString(s.key)
}

// GenerateRSAKeyPair produces a PEM-encoded RSA keypair suitable for the
// RS256/RS384/RS512 algorithms.
func GenerateRSAKeyPair(bits int) (privatePEM, publicPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate rsa key: %w", err)
	}

	privatePEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}
	publicPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	})

	return privatePEM, publicPEM, nil
}
