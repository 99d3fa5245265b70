package provider

import (
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/mockidp/mockidp/pkg/token"
)

// loginPage is rendered on /authorize when no credentials are present. The
// form posts back to /authorize with every flow parameter carried along.
var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Mock OIDC - Login</title>
    <style>
        body { font-family: Arial, sans-serif; max-width: 400px; margin: 100px auto; padding: 20px; }
        input { width: 100%; padding: 10px; margin: 10px 0; box-sizing: border-box; }
        button { width: 100%; padding: 10px; background: #0066cc; color: white; border: none; cursor: pointer; }
        button:hover { background: #0052a3; }
        .info { background: #f0f0f0; padding: 10px; margin: 20px 0; border-radius: 5px; }
    </style>
</head>
<body>
    <h2>Mock OIDC Login</h2>
    <div class="info">
        <strong>Client ID:</strong> {{.ClientID}}<br>
        <strong>Scopes:</strong> {{.Scope}}
    </div>
    <form method="get">
        <input type="hidden" name="response_type" value="{{.ResponseType}}">
        <input type="hidden" name="client_id" value="{{.ClientID}}">
        <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
        <input type="hidden" name="scope" value="{{.Scope}}">
        <input type="hidden" name="state" value="{{.State}}">
        <input type="hidden" name="nonce" value="{{.Nonce}}">
        <input type="hidden" name="code_challenge" value="{{.CodeChallenge}}">
        <input type="hidden" name="code_challenge_method" value="{{.CodeChallengeMethod}}">

        <input type="text" name="username" placeholder="Email" required>
        <input type="password" name="password" placeholder="Password" required>
        <button type="submit">Login</button>
    </form>

    <div class="info">
        Any email and password works. Claims are derived from the email.<br>
        <em>Try: mario.rossi@company.com</em>
    </div>
</body>
</html>
`))

type loginPageData struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// Handler exposes the provider over HTTP.
type Handler struct {
	provider *Provider
	log      *slog.Logger
}

// NewHandler creates the HTTP handlers for a provider.
func NewHandler(p *Provider, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = p.log
	}
	return &Handler{provider: p, log: logger}
}

// Register wires every endpoint onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /.well-known/openid-configuration", h.HandleDiscovery)
	mux.HandleFunc("GET /jwks", h.HandleJWKS)
	mux.HandleFunc("GET /authorize", h.HandleAuthorize)
	mux.HandleFunc("POST /token", h.HandleToken)
	mux.HandleFunc("GET /userinfo", h.HandleUserInfo)
	mux.HandleFunc("POST /revoke", h.HandleRevoke)
	mux.HandleFunc("POST /introspect", h.HandleIntrospect)
	mux.HandleFunc("GET /logout", h.HandleLogout)
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /{$}", h.HandleRoot)
}

// HandleDiscovery serves the OpenID Connect discovery document.
func (h *Handler) HandleDiscovery(w http.ResponseWriter, r *http.Request) {
	base := h.provider.Issuer(requestBaseURL(r))
	h.log.Debug("discovery document requested", "issuer", base)
	h.writeJSON(w, http.StatusOK, h.provider.Discovery(base))
}

// HandleJWKS serves the public key set.
func (h *Handler) HandleJWKS(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.provider.Keys().JWKS())
}

// HandleAuthorize runs the authorization flow. Without credentials it
// renders the login form; with them it issues a code and redirects back to
// the client.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	username := q.Get("username")
	password := q.Get("password")
	if username == "" || password == "" {
		h.renderLoginForm(w, q)
		return
	}

	req := AuthorizeRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		Nonce:               optional(q.Get("nonce")),
		CodeChallenge:       optional(q.Get("code_challenge")),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		Username:            username,
		Password:            password,
	}
	if req.Scope == "" {
		req.Scope = "openid"
	}

	code, err := h.provider.Authorize(req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	redirect, err := url.Parse(req.RedirectURI)
	if err != nil {
		h.writeError(w, errors.Join(ErrInvalidRequest, err))
		return
	}
	params := redirect.Query()
	params.Set("code", code)
	if state := q.Get("state"); state != "" {
		params.Set("state", state)
	}
	redirect.RawQuery = params.Encode()

	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (h *Handler) renderLoginForm(w http.ResponseWriter, q url.Values) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := loginPageData{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		Nonce:               q.Get("nonce"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}
	if data.Scope == "" {
		data.Scope = "openid"
	}
	if err := loginPage.Execute(w, data); err != nil {
		h.log.Error("failed to render login form", "error", err)
	}
}

// HandleToken serves the token endpoint for the authorization_code and
// refresh_token grants.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeOAuthError(w, http.StatusBadRequest, CodeInvalidRequest, "failed to parse form")
		return
	}

	req := ExchangeRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		ClientID:     r.PostFormValue("client_id"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
	}

	resp, err := h.provider.Exchange(req, h.provider.Issuer(requestBaseURL(r)))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleUserInfo serves the userinfo endpoint from a bearer token.
func (h *Handler) HandleUserInfo(w http.ResponseWriter, r *http.Request) {
	bearer, ok := bearerToken(r)
	if !ok {
		w.Header().Set("WWW-Authenticate", "Bearer")
		h.writeOAuthError(w, http.StatusUnauthorized, CodeUnauthorized, "missing or invalid Authorization header")
		return
	}

	info, err := h.provider.UserInfo(bearer)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// HandleRevoke serves RFC 7009 token revocation.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeOAuthError(w, http.StatusBadRequest, CodeInvalidRequest, "failed to parse form")
		return
	}
	tok := r.PostFormValue("token")
	if tok == "" {
		h.writeOAuthError(w, http.StatusBadRequest, CodeInvalidRequest, "token is required")
		return
	}

	h.provider.Revoke(tok, r.PostFormValue("token_type_hint"))
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Token revoked successfully"})
}

// HandleIntrospect serves RFC 7662 token introspection.
func (h *Handler) HandleIntrospect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeOAuthError(w, http.StatusBadRequest, CodeInvalidRequest, "failed to parse form")
		return
	}
	h.writeJSON(w, http.StatusOK, h.provider.Introspect(r.PostFormValue("token")))
}

// HandleLogout ends the session: a redirect when the client asked for one,
// a JSON ack otherwise. There is no server-side session state to clear.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if target := q.Get("post_logout_redirect_uri"); target != "" {
		if state := q.Get("state"); state != "" {
			sep := "?"
			if strings.Contains(target, "?") {
				sep = "&"
			}
			target += sep + "state=" + url.QueryEscape(state)
		}
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// HandleRoot serves a short server description.
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	base := h.provider.Issuer(requestBaseURL(r))
	h.writeJSON(w, http.StatusOK, map[string]string{
		"name":      "mockidp",
		"discovery": base + "/.well-known/openid-configuration",
		"status":    "running",
	})
}

// HandleHealth serves the health check.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	h.writeJSON(w, status, &ErrorResponse{Error: code, ErrorDescription: description})
}

// writeError maps engine errors onto OAuth wire codes and HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		h.writeOAuthError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.Is(err, ErrInvalidGrant):
		h.writeOAuthError(w, http.StatusBadRequest, CodeInvalidGrant, err.Error())
	case errors.Is(err, ErrUnsupportedGrantType):
		h.writeOAuthError(w, http.StatusBadRequest, CodeUnsupportedGrantType, err.Error())
	case errors.Is(err, ErrUnauthorized):
		h.writeOAuthError(w, http.StatusUnauthorized, CodeUnauthorized, err.Error())
	case errors.Is(err, token.ErrInvalidToken):
		h.writeOAuthError(w, http.StatusUnauthorized, CodeInvalidToken, err.Error())
	default:
		h.log.Error("internal error", "error", err)
		h.writeOAuthError(w, http.StatusInternalServerError, CodeServerError, "internal server error")
	}
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// requestBaseURL reconstructs the externally visible base URL of a request.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host
}

// optional maps an empty form value to absent.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
