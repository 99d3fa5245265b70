// Package keys owns the provider's RSA signing keypair and its public JWKS
// representation. One keypair is generated at startup and held for the
// process lifetime; there is no rotation and no persistence.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
)

// DefaultKeyID is the fixed key identifier advertised in the JWKS and stamped
// into every token header.
const DefaultKeyID = "mock-oidc-key-1"

// keySize is the RSA modulus size in bits.
const keySize = 2048

// JWKS is a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is a single JSON Web Key. Only RSA signing keys are produced.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// Service holds the signing keypair. Read-only after construction, so it can
// be shared across goroutines without locking.
type Service struct {
	privateKey *rsa.PrivateKey
	keyID      string
}

// NewService generates the signing keypair. Failure here is fatal to the
// caller: nothing else in the provider works without a usable key.
func NewService() (*Service, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return &Service{privateKey: privateKey, keyID: DefaultKeyID}, nil
}

// KeyID returns the active key identifier.
func (s *Service) KeyID() string {
	return s.keyID
}

// PrivateKey returns the signing key.
func (s *Service) PrivateKey() *rsa.PrivateKey {
	return s.privateKey
}

// PublicKey returns the verification key.
func (s *Service) PublicKey() *rsa.PublicKey {
	return &s.privateKey.PublicKey
}

// JWKS returns the public key set: a single RS256 signing key with the
// modulus and exponent as unpadded base64url big-endian bytes.
func (s *Service) JWKS() JWKS {
	pub := s.PublicKey()
	return JWKS{
		Keys: []JWK{
			{
				Kty: "RSA",
				Use: "sig",
				Kid: s.keyID,
				Alg: "RS256",
				N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
}
