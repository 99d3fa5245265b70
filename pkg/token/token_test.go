package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mockidp/mockidp/pkg/identity"
	"github.com/mockidp/mockidp/pkg/keys"
)

func testIssuer(t *testing.T, accessTTL, idTTL time.Duration) (*Issuer, *keys.Service) {
	t.Helper()
	ks, err := keys.NewService()
	if err != nil {
		t.Fatalf("keys.NewService() error: %v", err)
	}
	return NewIssuer(ks, accessTTL, idTTL), ks
}

func TestAccessTokenRoundTrip(t *testing.T) {
	issuer, ks := testIssuer(t, time.Hour, time.Hour)
	user := identity.New().Synthesize("mario.rossi@example.com")

	signed, err := issuer.AccessToken(user, "openid profile", "https://idp.test")
	if err != nil {
		t.Fatalf("AccessToken() error: %v", err)
	}

	claims, err := NewValidator(ks).Validate(signed)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	if claims["sub"] != user.Subject {
		t.Errorf("sub = %v, want %q", claims["sub"], user.Subject)
	}
	if claims["oid"] != user.ObjectID || claims["tid"] != user.TenantID {
		t.Errorf("oid/tid mismatch: %v", claims)
	}
	if claims["scope"] != "openid profile" {
		t.Errorf("scope = %v", claims["scope"])
	}
	if claims["aud"] != AccessTokenAudience {
		t.Errorf("aud = %v, want %q", claims["aud"], AccessTokenAudience)
	}
	if _, ok := claims["roles"]; !ok {
		t.Error("roles claim missing")
	}
}

func TestIDTokenClaims(t *testing.T) {
	issuer, ks := testIssuer(t, time.Hour, time.Hour)
	user := identity.New().Synthesize("mario.rossi@example.com")
	nonce := "nonce-123"

	signed, err := issuer.IDToken(user, "client-1", &nonce, "https://idp.test")
	if err != nil {
		t.Fatalf("IDToken() error: %v", err)
	}

	claims, err := NewValidator(ks).Validate(signed)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	if claims["aud"] != "client-1" {
		t.Errorf("aud = %v, want client-1", claims["aud"])
	}
	if claims["nonce"] != "nonce-123" {
		t.Errorf("nonce = %v, want nonce-123", claims["nonce"])
	}
	if claims["given_name"] != "Mario" || claims["family_name"] != "Rossi" {
		t.Errorf("profile claims wrong: %v", claims)
	}
	if claims["email_verified"] != true {
		t.Errorf("email_verified = %v, want true", claims["email_verified"])
	}
	if _, ok := claims["auth_time"]; !ok {
		t.Error("auth_time claim missing")
	}
}

func TestIDTokenWithoutNonce(t *testing.T) {
	issuer, ks := testIssuer(t, time.Hour, time.Hour)
	user := identity.New().Synthesize("a@b.com")

	signed, err := issuer.IDToken(user, "client-1", nil, "https://idp.test")
	if err != nil {
		t.Fatalf("IDToken() error: %v", err)
	}
	claims, err := NewValidator(ks).Validate(signed)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if _, ok := claims["nonce"]; ok {
		t.Error("nonce claim present without a client nonce")
	}
}

func TestValidateExpiredToken(t *testing.T) {
	issuer, ks := testIssuer(t, -time.Minute, -time.Minute)
	user := identity.New().Synthesize("a@b.com")

	signed, err := issuer.AccessToken(user, "openid", "https://idp.test")
	if err != nil {
		t.Fatalf("AccessToken() error: %v", err)
	}

	_, err = NewValidator(ks).Validate(signed)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateTamperedToken(t *testing.T) {
	issuer, ks := testIssuer(t, time.Hour, time.Hour)
	user := identity.New().Synthesize("a@b.com")

	signed, err := issuer.AccessToken(user, "openid", "https://idp.test")
	if err != nil {
		t.Fatalf("AccessToken() error: %v", err)
	}

	// Flip a character in the signature segment.
	parts := strings.Split(signed, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	if _, err := NewValidator(ks).Validate(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("tampered token: err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateWrongKey(t *testing.T) {
	issuer, _ := testIssuer(t, time.Hour, time.Hour)
	otherKeys, err := keys.NewService()
	if err != nil {
		t.Fatalf("keys.NewService() error: %v", err)
	}

	signed, err := issuer.AccessToken(identity.New().Synthesize("a@b.com"), "openid", "https://idp.test")
	if err != nil {
		t.Fatalf("AccessToken() error: %v", err)
	}

	if _, err := NewValidator(otherKeys).Validate(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign key: err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateMalformed(t *testing.T) {
	_, ks := testIssuer(t, time.Hour, time.Hour)
	for _, input := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := NewValidator(ks).Validate(input); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate(%q): err = %v, want ErrInvalidToken", input, err)
		}
	}
}

func TestAudienceRelaxation(t *testing.T) {
	issuer, ks := testIssuer(t, time.Hour, time.Hour)
	user := identity.New().Synthesize("a@b.com")

	// ID token addressed to a specific client.
	signed, err := issuer.IDToken(user, "some-client", nil, "https://idp.test")
	if err != nil {
		t.Fatalf("IDToken() error: %v", err)
	}

	// Default validator does not care about the audience.
	if _, err := NewValidator(ks).Validate(signed); err != nil {
		t.Errorf("relaxed validator rejected token: %v", err)
	}

	// The strict variant enforces it.
	if _, err := NewValidatorWithAudience(ks, "other-client").Validate(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("strict validator accepted wrong audience: err = %v", err)
	}
	if _, err := NewValidatorWithAudience(ks, "some-client").Validate(signed); err != nil {
		t.Errorf("strict validator rejected matching audience: %v", err)
	}
}
