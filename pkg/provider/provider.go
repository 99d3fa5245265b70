package provider

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mockidp/mockidp/pkg/config"
	"github.com/mockidp/mockidp/pkg/identity"
	"github.com/mockidp/mockidp/pkg/keys"
	"github.com/mockidp/mockidp/pkg/logging"
	"github.com/mockidp/mockidp/pkg/pkce"
	"github.com/mockidp/mockidp/pkg/token"
)

// Engine error taxonomy. Handlers map these to OAuth wire codes and HTTP
// statuses; the engine itself never writes a response.
var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidGrant         = errors.New("invalid grant")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrUnsupportedGrantType = errors.New("unsupported grant type")
)

// Provider is the OpenID Connect engine: deterministic identity synthesis,
// code issuance and redemption, token minting/validation, and revocation
// bookkeeping. All state is in memory and lives for the process lifetime.
type Provider struct {
	settings  *config.Settings
	log       *slog.Logger
	keys      *keys.Service
	synth     *identity.Synthesizer
	issuer    *token.Issuer
	validator *token.Validator
	sessions  *SessionStore
	refresh   *RefreshStore
	revoked   *RevocationRegistry
	expiresIn int
}

// New builds a Provider from settings, generating the signing keypair. A key
// generation failure is returned as-is and should abort startup.
func New(settings *config.Settings, logger *slog.Logger) (*Provider, error) {
	if settings == nil {
		settings = config.Default()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	accessTTL, err := config.ParseDuration(settings.AccessTokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("invalid accessTokenExpiry: %w", err)
	}
	idTTL, err := config.ParseDuration(settings.IDTokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("invalid idTokenExpiry: %w", err)
	}
	codeTTL, err := config.ParseDuration(settings.AuthorizationCodeExpiry)
	if err != nil {
		return nil, fmt.Errorf("invalid authorizationCodeExpiry: %w", err)
	}

	ks, err := keys.NewService()
	if err != nil {
		return nil, err
	}

	validator := token.NewValidator(ks)
	if settings.ValidateAudience {
		validator = token.NewValidatorWithAudience(ks, settings.Audience)
	}

	return &Provider{
		settings:  settings,
		log:       logger,
		keys:      ks,
		synth:     identity.NewWithDefaults(settings.DefaultRoles, settings.DefaultGroups),
		issuer:    token.NewIssuer(ks, accessTTL, idTTL),
		validator: validator,
		sessions:  NewSessionStore(codeTTL),
		refresh:   NewRefreshStore(),
		revoked:   NewRevocationRegistry(),
		expiresIn: int(accessTTL.Seconds()),
	}, nil
}

// Keys exposes the key material service, mainly for the JWKS endpoint.
func (p *Provider) Keys() *keys.Service {
	return p.keys
}

// Settings returns the active configuration.
func (p *Provider) Settings() *config.Settings {
	return p.settings
}

// AuthorizeRequest carries the parameters of a login attempt.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	Nonce               *string
	CodeChallenge       *string
	CodeChallengeMethod string
	Username            string
	Password            string
}

// Authorize authenticates the user, synthesizes (or looks up) their claims
// and mints a single-use authorization code bound to the request.
func (p *Provider) Authorize(req AuthorizeRequest) (string, error) {
	if req.ClientID == "" || req.RedirectURI == "" {
		return "", fmt.Errorf("%w: client_id and redirect_uri are required", ErrInvalidRequest)
	}
	if !p.responseTypeSupported(req.ResponseType) {
		return "", fmt.Errorf("%w: unsupported response_type %q", ErrInvalidRequest, req.ResponseType)
	}
	if !strings.Contains(req.ResponseType, ResponseTypeCode) {
		return "", fmt.Errorf("%w: only the code flow is implemented", ErrInvalidRequest)
	}

	claims, err := p.authenticate(req.Username, req.Password)
	if err != nil {
		return "", err
	}

	var challenge *PKCEChallenge
	if req.CodeChallenge != nil {
		method := req.CodeChallengeMethod
		if method == "" {
			method = pkce.MethodPlain
		}
		challenge = &PKCEChallenge{Challenge: *req.CodeChallenge, Method: method}
	}

	code, err := p.sessions.Create(req.ClientID, req.RedirectURI, req.Scope, claims, challenge, req.Nonce)
	if err != nil {
		return "", err
	}

	p.log.Info("authorization code issued",
		"client_id", req.ClientID,
		"sub", claims.Subject,
		"pkce", challenge != nil)
	return code, nil
}

// authenticate resolves the user's claims. With static users configured, the
// credentials must match one of them; otherwise any password is accepted and
// claims are synthesized from the email.
func (p *Provider) authenticate(username, password string) (identity.Claims, error) {
	if len(p.settings.Users) > 0 {
		for _, u := range p.settings.Users {
			if u.Username == username && u.Password == password {
				return p.staticClaims(u), nil
			}
		}
		return identity.Claims{}, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}

	if !strings.Contains(username, "@") {
		return identity.Claims{}, fmt.Errorf("%w: username must be a valid email address", ErrInvalidRequest)
	}
	return p.synth.Synthesize(username), nil
}

// staticClaims builds a claim set for a configured user: synthesized values
// as the base, overridden by whatever the configuration pins.
func (p *Provider) staticClaims(u config.UserConfig) identity.Claims {
	claims := p.synth.Synthesize(u.Username)

	setString := func(key string, dst *string) {
		if v, ok := u.Claims[key].(string); ok {
			*dst = v
		}
	}
	setString("sub", &claims.Subject)
	setString("oid", &claims.ObjectID)
	setString("tid", &claims.TenantID)
	setString("name", &claims.Name)
	setString("given_name", &claims.GivenName)
	setString("family_name", &claims.FamilyName)
	setString("email", &claims.Email)
	setString("upn", &claims.UPN)
	setString("preferred_username", &claims.PreferredUsername)
	if v, ok := toStringSlice(u.Claims["roles"]); ok {
		claims.Roles = v
	}
	if v, ok := toStringSlice(u.Claims["groups"]); ok {
		claims.Groups = v
	}
	return claims
}

func toStringSlice(v interface{}) ([]string, bool) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func (p *Provider) responseTypeSupported(responseType string) bool {
	for _, rt := range p.settings.SupportedResponseTypes {
		if rt == responseType {
			return true
		}
	}
	return false
}

// ExchangeRequest carries the parameters of a token request.
type ExchangeRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	CodeVerifier string
	RefreshToken string
}

// Exchange redeems an authorization code or a refresh token for a token
// response. issuerURL becomes the iss claim of the minted tokens.
func (p *Provider) Exchange(req ExchangeRequest, issuerURL string) (*TokenResponse, error) {
	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		return p.exchangeCode(req, issuerURL)
	case GrantTypeRefreshToken:
		return p.exchangeRefreshToken(req, issuerURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedGrantType, req.GrantType)
	}
}

func (p *Provider) exchangeCode(req ExchangeRequest, issuerURL string) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, fmt.Errorf("%w: missing code parameter", ErrInvalidRequest)
	}

	// Redeem consumes the code whatever happens next: a failed PKCE check
	// burns it too.
	sess, err := p.sessions.Redeem(req.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
	}

	if req.RedirectURI != sess.RedirectURI {
		return nil, fmt.Errorf("%w: redirect_uri mismatch", ErrInvalidGrant)
	}

	if sess.PKCE != nil {
		if req.CodeVerifier == "" {
			return nil, fmt.Errorf("%w: missing code_verifier", ErrInvalidRequest)
		}
		if !pkce.Verify(req.CodeVerifier, sess.PKCE.Challenge, sess.PKCE.Method) {
			return nil, fmt.Errorf("%w: invalid code_verifier", ErrInvalidGrant)
		}
	}

	accessToken, err := p.issuer.AccessToken(sess.Claims, sess.Scope, issuerURL)
	if err != nil {
		return nil, err
	}
	idToken, err := p.issuer.IDToken(sess.Claims, sess.ClientID, sess.Nonce, issuerURL)
	if err != nil {
		return nil, err
	}
	refreshToken, err := p.refresh.Create(sess.Claims, sess.Scope, sess.ClientID)
	if err != nil {
		return nil, err
	}

	p.log.Info("tokens issued", "sub", sess.Claims.Subject, "client_id", sess.ClientID)

	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    p.expiresIn,
		IDToken:      idToken,
		RefreshToken: refreshToken,
		Scope:        sess.Scope,
	}, nil
}

func (p *Provider) exchangeRefreshToken(req ExchangeRequest, issuerURL string) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, fmt.Errorf("%w: missing refresh_token parameter", ErrInvalidRequest)
	}

	rec, ok := p.refresh.Lookup(req.RefreshToken)
	if !ok {
		return nil, fmt.Errorf("%w: unknown refresh token", ErrInvalidGrant)
	}

	accessToken, err := p.issuer.AccessToken(rec.Claims, rec.Scope, issuerURL)
	if err != nil {
		return nil, err
	}
	idToken, err := p.issuer.IDToken(rec.Claims, rec.ClientID, nil, issuerURL)
	if err != nil {
		return nil, err
	}

	p.log.Info("tokens refreshed", "sub", rec.Claims.Subject, "client_id", rec.ClientID)

	// The refresh token is not rotated; the client keeps the one it has.
	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   p.expiresIn,
		IDToken:     idToken,
		Scope:       rec.Scope,
	}, nil
}

// UserInfo validates a bearer token and returns the identity subset carried
// in it. Revoked tokens fail before any signature work.
func (p *Provider) UserInfo(bearer string) (*UserInfoResponse, error) {
	if bearer == "" {
		return nil, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	if p.revoked.IsRevoked(bearer) {
		return nil, fmt.Errorf("%w: token has been revoked", ErrUnauthorized)
	}

	claims, err := p.validator.Validate(bearer)
	if err != nil {
		return nil, err
	}

	info := &UserInfoResponse{EmailVerified: true}
	str := func(key string) string {
		v, _ := claims[key].(string)
		return v
	}
	info.Sub = str("sub")
	info.Name = str("name")
	info.GivenName = str("given_name")
	info.FamilyName = str("family_name")
	info.Email = str("email")
	info.Oid = str("oid")
	info.Tid = str("tid")
	info.Upn = str("upn")
	info.PreferredUsername = str("preferred_username")
	if roles, ok := toStringSlice(claims["roles"]); ok {
		info.Roles = roles
	}
	if groups, ok := toStringSlice(claims["groups"]); ok {
		info.Groups = groups
	}
	return info, nil
}

// Revoke marks a token string as revoked; if it is a live refresh token the
// record is deleted as well, per RFC 7009 the call always succeeds.
func (p *Provider) Revoke(tokenStr, tokenTypeHint string) {
	p.revoked.Revoke(tokenStr)
	if p.refresh.Delete(tokenStr) {
		p.log.Info("refresh token revoked")
		return
	}
	p.log.Info("token revoked", "token_type_hint", tokenTypeHint)
}

// Introspect reports the RFC 7662 view of a token: live refresh tokens and
// valid JWTs are active, everything else is not.
func (p *Provider) Introspect(tokenStr string) *IntrospectionResponse {
	if tokenStr == "" || p.revoked.IsRevoked(tokenStr) {
		return &IntrospectionResponse{Active: false}
	}

	if rec, ok := p.refresh.Lookup(tokenStr); ok {
		return &IntrospectionResponse{
			Active:    true,
			Scope:     rec.Scope,
			ClientID:  rec.ClientID,
			TokenType: GrantTypeRefreshToken,
			Subject:   rec.Claims.Subject,
		}
	}

	claims, err := p.validator.Validate(tokenStr)
	if err != nil {
		return &IntrospectionResponse{Active: false}
	}

	resp := &IntrospectionResponse{Active: true, TokenType: "Bearer"}
	if v, ok := claims["scope"].(string); ok {
		resp.Scope = v
	}
	if v, ok := claims["sub"].(string); ok {
		resp.Subject = v
	}
	if v, ok := claims["iss"].(string); ok {
		resp.Issuer = v
	}
	if v, ok := claims["aud"].(string); ok {
		resp.Audience = v
	}
	if v, ok := claims["exp"].(float64); ok {
		resp.ExpiresAt = int64(v)
	}
	if v, ok := claims["iat"].(float64); ok {
		resp.IssuedAt = int64(v)
	}
	return resp
}

// Discovery builds the OpenID Connect discovery document for the given
// issuer base URL.
func (p *Provider) Discovery(baseURL string) *DiscoveryDocument {
	baseURL = strings.TrimRight(baseURL, "/")
	return &DiscoveryDocument{
		Issuer:                            baseURL,
		AuthorizationEndpoint:             baseURL + "/authorize",
		TokenEndpoint:                     baseURL + "/token",
		UserInfoEndpoint:                  baseURL + "/userinfo",
		JwksURI:                           baseURL + "/jwks",
		RevocationEndpoint:                baseURL + "/revoke",
		IntrospectionEndpoint:             baseURL + "/introspect",
		EndSessionEndpoint:                baseURL + "/logout",
		ResponseTypesSupported:            p.settings.SupportedResponseTypes,
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"RS256"},
		ScopesSupported:                   p.settings.SupportedScopes,
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post", "client_secret_basic", "none"},
		ClaimsSupported: []string{
			"sub", "iss", "aud", "exp", "iat", "auth_time", "nonce",
			"name", "given_name", "family_name", "email", "email_verified",
			"oid", "tid", "upn", "preferred_username", "roles", "groups",
		},
		GrantTypesSupported:           []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken},
		CodeChallengeMethodsSupported: []string{pkce.MethodPlain, pkce.MethodS256},
	}
}

// Issuer returns the configured issuer, or the request-derived fallback when
// no issuer is pinned.
func (p *Provider) Issuer(requestBase string) string {
	if p.settings.Issuer != "" {
		return strings.TrimRight(p.settings.Issuer, "/")
	}
	return strings.TrimRight(requestBase, "/")
}
