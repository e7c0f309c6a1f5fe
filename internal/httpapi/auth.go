package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
)

// session is one issued bearer token (§6 "Auth: session login, token
// refresh"). There is no refresh-token/access-token split here: refresh
// simply reissues a fresh token with a new expiry, matching the scope of
// a single-process core rather than a federated auth service.
type session struct {
	subjectID string
	role      string
	expiresAt time.Time
}

// Sessions is an in-memory bearer-token store. Grounded in idiom on the
// teacher pack's forwarded-identity auth (codeready-toolchain-tarsy
// pkg/api/auth.go extracts an already-authenticated identity from
// headers set by an oauth2-proxy sidecar); CIRIS has no such sidecar in
// front of it, so this issues and validates the token itself instead of
// only reading one.
type Sessions struct {
	mu              sync.RWMutex
	byToken         map[string]session
	adminCredential string
	ttl             time.Duration
}

// NewSessions constructs a Sessions store. adminCredential is the shared
// secret that earns the "admin" role at login; any other non-empty
// credential earns "user".
func NewSessions(adminCredential string, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sessions{
		byToken:         make(map[string]session),
		adminCredential: adminCredential,
		ttl:             ttl,
	}
}

// Issue validates subjectID/credential and returns a new bearer token.
// The OAuth callback route (§6) funnels into this same method once it
// has resolved an identity, since there is no separate session
// representation per login method.
func (s *Sessions) Issue(subjectID, credential string) (token string, role string, expiresAt time.Time, err error) {
	if subjectID == "" || credential == "" {
		return "", "", time.Time{}, cerr.New("Sessions.Issue", cerr.KindValidation, "subject_id and credential are required")
	}
	role = "user"
	if credential == s.adminCredential {
		role = "admin"
	}
	token, err = randomToken()
	if err != nil {
		return "", "", time.Time{}, err
	}
	expiresAt = time.Now().Add(s.ttl)

	s.mu.Lock()
	s.byToken[token] = session{subjectID: subjectID, role: role, expiresAt: expiresAt}
	s.mu.Unlock()
	return token, role, expiresAt, nil
}

// Refresh exchanges a still-valid token for a new one with a fresh
// expiry, revoking the old token (§6 "token refresh").
func (s *Sessions) Refresh(oldToken string) (token string, role string, expiresAt time.Time, err error) {
	s.mu.Lock()
	sess, ok := s.byToken[oldToken]
	if ok {
		delete(s.byToken, oldToken)
	}
	s.mu.Unlock()
	if !ok || time.Now().After(sess.expiresAt) {
		return "", "", time.Time{}, cerr.New("Sessions.Refresh", cerr.KindValidation, "token is missing or expired")
	}

	newToken, err := randomToken()
	if err != nil {
		return "", "", time.Time{}, err
	}
	expiresAt = time.Now().Add(s.ttl)
	s.mu.Lock()
	s.byToken[newToken] = session{subjectID: sess.subjectID, role: sess.role, expiresAt: expiresAt}
	s.mu.Unlock()
	return newToken, sess.role, expiresAt, nil
}

// Validate reports the subject/role carried by a live token.
func (s *Sessions) Validate(token string) (subjectID string, role string, ok bool) {
	s.mu.RLock()
	sess, found := s.byToken[token]
	s.mu.RUnlock()
	if !found || time.Now().After(sess.expiresAt) {
		return "", "", false
	}
	return sess.subjectID, sess.role, true
}

// Revoke invalidates a token immediately, regardless of its expiry.
func (s *Sessions) Revoke(token string) {
	s.mu.Lock()
	delete(s.byToken, token)
	s.mu.Unlock()
}

func randomToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", cerr.Wrap("Sessions.randomToken", cerr.KindFatal, err)
	}
	return hex.EncodeToString(buf), nil
}
