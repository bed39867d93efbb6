// Package token implements verification and test-signing of the bearer tokens
// presented to the gateway.
package token

import (
	"crypto"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/insightbridge/insightbridge/pkg/domain"
)

// maxTokenSize bounds the raw token length before any parsing happens.
const maxTokenSize = 8 * 1024

// Verifier validates presented tokens against a fixed public key and a single
// allow-listed signature algorithm. The algorithm is pinned at construction;
// the token header never participates in selecting it.
//
// Verify is a pure function of the raw token and the supplied clock reading.
type Verifier struct {
	key    crypto.PublicKey
	drift  time.Duration
	parser *jwt.Parser
}

// NewVerifier builds a Verifier from PEM-encoded public key material. The
// algorithm must belong to the RSA or ECDSA families; HMAC is rejected because
// a shared secret on the receiving side would let any holder mint tokens.
func NewVerifier(publicKeyPEM []byte, algorithm string, drift time.Duration) (*Verifier, error) {
	var key crypto.PublicKey
	var err error

	switch {
	case strings.HasPrefix(algorithm, "RS"):
		key, err = jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	case strings.HasPrefix(algorithm, "ES"):
		key, err = jwt.ParseECPublicKeyFromPEM(publicKeyPEM)
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", domain.ErrConfigInvalid, algorithm)
	}
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	// Claims validation is done manually below so the clock drift tolerance
	// applies symmetrically to exp and nbf.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{algorithm}),
		jwt.WithoutClaimsValidation(),
	)

	return &Verifier{key: key, drift: drift, parser: parser}, nil
}

// Verify checks structure, signature, temporal validity, and required claims,
// in that order. It returns one of the domain token errors on failure and
// never panics on hostile input.
func (v *Verifier) Verify(raw string, now time.Time) (*domain.Claims, error) {
	if raw == "" || len(raw) > maxTokenSize {
		return nil, domain.ErrMalformedToken
	}

	var registered jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(raw, &registered, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid),
			errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, domain.ErrInvalidSignature
		default:
			return nil, domain.ErrMalformedToken
		}
	}

	// Temporal checks run only after the signature is known good, so an
	// attacker cannot probe the verifier clock with unsigned tokens.
	if registered.ExpiresAt == nil {
		return nil, domain.ErrMalformedToken
	}
	if now.Add(-v.drift).After(registered.ExpiresAt.Time) {
		return nil, domain.ErrTokenExpired
	}
	if registered.NotBefore != nil && now.Add(v.drift).Before(registered.NotBefore.Time) {
		return nil, domain.ErrTokenNotYetValid
	}

	if registered.ID == "" || registered.Subject == "" {
		return nil, domain.ErrMalformedToken
	}

	claims := &domain.Claims{
		Subject:   registered.Subject,
		TokenID:   registered.ID,
		ExpiresAt: registered.ExpiresAt.Time,
	}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	if registered.NotBefore != nil {
		claims.NotBefore = registered.NotBefore.Time
	}

	return claims, nil
}
