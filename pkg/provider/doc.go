// Package provider implements a mock OpenID Connect identity provider for
// testing authentication flows.
//
// Instead of a user database, identities are synthesized deterministically
// from the email entered at login: any email and password combination is
// accepted, and the same email always yields the same subject, tenant and
// profile claims. Optionally a fixed set of users can be configured, in which
// case credentials must match one of them.
//
// The package implements:
//   - Authorization Code grant with PKCE (plain and S256)
//   - Refresh Token grant (tokens are not rotated)
//   - RS256-signed access and ID tokens
//   - UserInfo, Discovery, JWKS, revocation and introspection endpoints
//
// # Basic Usage
//
// Create a provider from settings and register its HTTP handlers:
//
//	settings := config.Default()
//	p, err := provider.New(settings, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	handler := provider.NewHandler(p, logger)
//	mux := http.NewServeMux()
//	handler.Register(mux)
//
// # Engine API
//
// The flow can also be driven without HTTP:
//
//	code, err := p.Authorize(provider.AuthorizeRequest{
//	    ResponseType: "code",
//	    ClientID:     "my-client",
//	    RedirectURI:  "https://app.example.com/callback",
//	    Scope:        "openid profile email",
//	    Username:     "mario.rossi@company.com",
//	    Password:     "anything",
//	})
//
//	tokens, err := p.Exchange(provider.ExchangeRequest{
//	    GrantType:   "authorization_code",
//	    Code:        code,
//	    RedirectURI: "https://app.example.com/callback",
//	}, "http://localhost:8080")
//
//	info, err := p.UserInfo(tokens.AccessToken)
//
// All state (pending codes, refresh tokens, revocations) is held in memory
// and discarded when the process exits.
package provider
