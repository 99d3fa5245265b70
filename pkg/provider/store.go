package provider

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mockidp/mockidp/pkg/identity"
)

// maxSessions bounds the number of pending authorization codes so burst load
// cannot grow the map without limit.
const maxSessions = 10000

// refreshTokenPrefix marks opaque refresh tokens apart from authorization
// codes in logs and test output.
const refreshTokenPrefix = "refresh_"

// Session store errors.
var (
	ErrCodeNotFound = errors.New("authorization code not found")
	ErrCodeExpired  = errors.New("authorization code expired")
)

// PKCEChallenge is the proof-of-possession data registered with a code.
// A nil *PKCEChallenge on a session means the client did not use PKCE.
type PKCEChallenge struct {
	Challenge string
	Method    string
}

// AuthorizationSession is a pending authorization code and everything bound
// to it at login time.
type AuthorizationSession struct {
	Code        string
	ClientID    string
	RedirectURI string
	Scope       string
	Claims      identity.Claims
	PKCE        *PKCEChallenge
	Nonce       *string
	CreatedAt   time.Time
}

// SessionStore holds pending authorization codes. Redemption is atomic
// lookup-and-delete: a code can never be redeemed twice.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*AuthorizationSession
	ttl      time.Duration
}

// NewSessionStore returns a store whose codes expire ttl after creation.
// A non-positive ttl disables the age check.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*AuthorizationSession),
		ttl:      ttl,
	}
}

// Create mints a fresh single-use code bound to the given session data.
func (s *SessionStore) Create(clientID, redirectURI, scope string, claims identity.Claims, challenge *PKCEChallenge, nonce *string) (string, error) {
	code, err := randomToken(32)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[code] = &AuthorizationSession{
		Code:        code,
		ClientID:    clientID,
		RedirectURI: redirectURI,
		Scope:       scope,
		Claims:      claims,
		PKCE:        challenge,
		Nonce:       nonce,
		CreatedAt:   time.Now(),
	}

	if len(s.sessions) > maxSessions {
		s.evictLocked()
	}
	return code, nil
}

// evictLocked removes expired sessions first, then the oldest ones until the
// map is back under capacity. Caller must hold s.mu.
func (s *SessionStore) evictLocked() {
	if s.ttl > 0 {
		cutoff := time.Now().Add(-s.ttl)
		for code, sess := range s.sessions {
			if sess.CreatedAt.Before(cutoff) {
				delete(s.sessions, code)
			}
		}
	}
	for len(s.sessions) > maxSessions {
		var oldestCode string
		var oldestTime time.Time
		for code, sess := range s.sessions {
			if oldestCode == "" || sess.CreatedAt.Before(oldestTime) {
				oldestCode = code
				oldestTime = sess.CreatedAt
			}
		}
		delete(s.sessions, oldestCode)
	}
}

// Redeem consumes a code. The lookup and delete happen under one lock, so
// concurrent redemptions of the same code see exactly one success; everyone
// else gets ErrCodeNotFound. Expired codes are consumed and rejected.
func (s *SessionStore) Redeem(code string) (*AuthorizationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	delete(s.sessions, code)

	if s.ttl > 0 && time.Since(sess.CreatedAt) > s.ttl {
		return nil, ErrCodeExpired
	}
	return sess, nil
}

// RefreshTokenRecord is the state behind an opaque refresh token.
type RefreshTokenRecord struct {
	Token    string
	Claims   identity.Claims
	Scope    string
	ClientID string
}

// RefreshStore holds issued refresh tokens. Tokens are never rotated: the
// same token keeps yielding new access/ID tokens until revoked.
type RefreshStore struct {
	mu     sync.RWMutex
	tokens map[string]*RefreshTokenRecord
}

// NewRefreshStore returns an empty refresh token store.
func NewRefreshStore() *RefreshStore {
	return &RefreshStore{tokens: make(map[string]*RefreshTokenRecord)}
}

// Create mints and stores a new refresh token for the given identity.
func (s *RefreshStore) Create(claims identity.Claims, scope, clientID string) (string, error) {
	opaque, err := randomToken(32)
	if err != nil {
		return "", err
	}
	tok := refreshTokenPrefix + opaque

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tok] = &RefreshTokenRecord{
		Token:    tok,
		Claims:   claims,
		Scope:    scope,
		ClientID: clientID,
	}
	return tok, nil
}

// Lookup returns the record behind a refresh token, if any.
func (s *RefreshStore) Lookup(token string) (*RefreshTokenRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tokens[token]
	return rec, ok
}

// Delete removes a refresh token, reporting whether it existed.
func (s *RefreshStore) Delete(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[token]
	delete(s.tokens, token)
	return ok
}

// RevocationRegistry is the set of token strings no longer trusted. It only
// grows for the lifetime of the process.
type RevocationRegistry struct {
	mu      sync.RWMutex
	revoked map[string]struct{}
}

// NewRevocationRegistry returns an empty registry.
func NewRevocationRegistry() *RevocationRegistry {
	return &RevocationRegistry{revoked: make(map[string]struct{})}
}

// Revoke adds a token string to the registry. Idempotent.
func (r *RevocationRegistry) Revoke(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[token] = struct{}{}
}

// IsRevoked reports whether a token string has been revoked.
func (r *RevocationRegistry) IsRevoked(token string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.revoked[token]
	return ok
}

// randomToken returns n bytes of entropy as an unpadded URL-safe string.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
