// Package token mints and validates the provider's RS256-signed JWTs.
//
// Access tokens carry the synthesized identity plus scope, roles and groups;
// ID tokens carry the OpenID Connect profile claims and the client nonce.
// Validation checks signature and expiry but, deliberately, not the audience:
// relying parties under test frequently present tokens minted for another
// audience, and the relaxation keeps those tests simple. Strict audience
// checking is available via NewValidatorWithAudience.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mockidp/mockidp/pkg/identity"
	"github.com/mockidp/mockidp/pkg/keys"
)

// ErrInvalidToken is returned for any validation failure: bad signature,
// malformed structure, or expiry.
var ErrInvalidToken = errors.New("invalid token")

// AccessTokenAudience is the fixed audience stamped into access tokens.
const AccessTokenAudience = "api://default"

// Issuer mints signed tokens with the active key.
type Issuer struct {
	keys      *keys.Service
	accessTTL time.Duration
	idTTL     time.Duration
}

// NewIssuer returns an Issuer signing with ks. Access and ID token lifetimes
// are configured independently.
func NewIssuer(ks *keys.Service, accessTTL, idTTL time.Duration) *Issuer {
	return &Issuer{keys: ks, accessTTL: accessTTL, idTTL: idTTL}
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// AccessToken mints an RS256 access token for the given identity and scope.
func (i *Issuer) AccessToken(claims identity.Claims, scope, issuer string) (string, error) {
	now := time.Now()
	return i.sign(jwt.MapClaims{
		"iss":                issuer,
		"sub":                claims.Subject,
		"aud":                AccessTokenAudience,
		"iat":                now.Unix(),
		"exp":                now.Add(i.accessTTL).Unix(),
		"scope":              scope,
		"oid":                claims.ObjectID,
		"tid":                claims.TenantID,
		"upn":                claims.UPN,
		"name":               claims.Name,
		"email":              claims.Email,
		"preferred_username": claims.PreferredUsername,
		"roles":              claims.Roles,
		"groups":             claims.Groups,
	})
}

// IDToken mints an RS256 ID token addressed to clientID. A non-nil nonce is
// echoed back per OpenID Connect Core.
func (i *Issuer) IDToken(claims identity.Claims, clientID string, nonce *string, issuer string) (string, error) {
	now := time.Now()
	idClaims := jwt.MapClaims{
		"iss":                issuer,
		"sub":                claims.Subject,
		"aud":                clientID,
		"iat":                now.Unix(),
		"exp":                now.Add(i.idTTL).Unix(),
		"auth_time":          now.Unix(),
		"name":               claims.Name,
		"given_name":         claims.GivenName,
		"family_name":        claims.FamilyName,
		"email":              claims.Email,
		"email_verified":     true,
		"oid":                claims.ObjectID,
		"tid":                claims.TenantID,
		"upn":                claims.UPN,
		"preferred_username": claims.PreferredUsername,
	}
	if nonce != nil {
		idClaims["nonce"] = *nonce
	}
	return i.sign(idClaims)
}

func (i *Issuer) sign(claims jwt.MapClaims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = i.keys.KeyID()
	signed, err := t.SignedString(i.keys.PrivateKey())
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validator verifies tokens against the held public key.
type Validator struct {
	keys     *keys.Service
	audience string
}

// NewValidator returns a Validator that checks signature and expiry but not
// audience.
func NewValidator(ks *keys.Service) *Validator {
	return &Validator{keys: ks}
}

// NewValidatorWithAudience returns a strict Validator that additionally
// requires the aud claim to contain audience.
func NewValidatorWithAudience(ks *keys.Service, audience string) *Validator {
	return &Validator{keys: ks, audience: audience}
}

// Validate parses and verifies a token, returning its claims. All failures
// are reported as ErrInvalidToken.
func (v *Validator) Validate(tokenString string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256"})}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return v.keys.PublicKey(), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims format", ErrInvalidToken)
	}
	return claims, nil
}
