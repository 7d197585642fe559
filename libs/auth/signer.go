package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
)

// TokenSigner abstracts HS256 (dev/default) and RS256+JWKS (production)
// signing so handler code does not care which is configured.
type TokenSigner interface {
	Sign(claims Claims) (string, error)
	// JWKS returns the public key document, or nil when the scheme has
	// no publishable keys.
	JWKS() *JWKSDocument
}

type HS256Signer struct {
	Secret string
}

func (s HS256Signer) Sign(claims Claims) (string, error) {
	return SignHS256(claims, s.Secret)
}

func (s HS256Signer) JWKS() *JWKSDocument { return nil }

type RS256Signer struct {
	Key *rsa.PrivateKey
	Kid string
}

// NewRS256Signer generates a fresh 2048-bit key. Used when no key is
// mounted; tokens then only survive one process lifetime.
func NewRS256Signer(kid string) (*RS256Signer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("auth: generate rsa key: %w", err)
	}
	return &RS256Signer{Key: key, Kid: kid}, nil
}

func (s *RS256Signer) Sign(claims Claims) (string, error) {
	return SignRS256(claims, s.Key, s.Kid)
}

func (s *RS256Signer) JWKS() *JWKSDocument {
	pub := &s.Key.PublicKey
	return &JWKSDocument{Keys: []JSONWebKey{{
		Kty: "RSA",
		Kid: s.Kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}
}
