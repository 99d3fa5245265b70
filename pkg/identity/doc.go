// Package identity derives OpenID Connect claim sets from an email-like
// identifier, deterministically and without any backing directory.
//
// The same email always produces the same subject, object ID and tenant ID,
// so tests can assert on stable identities across runs and across processes.
// Subject and object ID are derived from a SHA-256 digest of the full email;
// the tenant ID from a digest of the domain alone, which makes every user of
// a domain share a tenant.
//
//	claims := identity.New().Synthesize("mario.rossi@example.com")
//	// claims.GivenName == "Mario", claims.FamilyName == "Rossi"
//	// claims.Subject is stable for this email
//
// The IDs are digest bytes laid into UUID-shaped text. They are not RFC 4122
// UUIDs: no version or variant bits are set, by construction, so that output
// stays bit-for-bit stable for a given input.
package identity
