// Package pkce implements Proof Key for Code Exchange (RFC 7636)
// verification for the authorization-code flow.
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// Challenge methods supported by the provider.
const (
	MethodPlain = "plain"
	MethodS256  = "S256"
)

// Verify reports whether verifier proves possession of challenge under the
// given method. Unknown methods fail closed.
func Verify(verifier, challenge, method string) bool {
	switch method {
	case MethodPlain:
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	case MethodS256:
		computed := ChallengeS256(verifier)
		return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
	default:
		return false
	}
}

// ChallengeS256 derives the S256 code challenge for a verifier: the unpadded
// base64url encoding of its SHA-256 digest.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
