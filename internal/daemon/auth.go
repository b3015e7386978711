package daemon

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"harborsync/internal/store"
)

const (
	sessionTTL         = 12 * time.Hour
	rememberSessionTTL = 30 * 24 * time.Hour
)

var (
	ErrAuthConfigured  = errors.New("credentials are already configured")
	ErrInvalidLogin    = errors.New("invalid username or password")
	ErrNotConfigured   = errors.New("credentials have not been configured")
	ErrSessionExpired  = errors.New("session expired")
	ErrMissingUserPass = errors.New("username and password are required")
)

// Authenticator guards the API with a single admin credential. Sessions live
// in memory only; a restart logs everyone out.
type Authenticator struct {
	store *store.Store

	mu       sync.Mutex
	sessions map[string]time.Time
}

func NewAuthenticator(st *store.Store) *Authenticator {
	return &Authenticator{
		store:    st,
		sessions: make(map[string]time.Time),
	}
}

type Session struct {
	Token     string
	ExpiresAt time.Time
}

func (a *Authenticator) Configured() (bool, error) {
	cred, err := a.store.GetCredential()
	if err != nil {
		return false, err
	}
	return cred != nil, nil
}

func (a *Authenticator) Setup(username, password string, remember bool) (Session, error) {
	if username == "" || password == "" {
		return Session{}, ErrMissingUserPass
	}

	configured, err := a.Configured()
	if err != nil {
		return Session{}, err
	}
	if configured {
		return Session{}, ErrAuthConfigured
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := a.store.SaveCredential(username, string(hash)); err != nil {
		return Session{}, err
	}

	return a.newSession(remember)
}

func (a *Authenticator) Login(username, password string, remember bool) (Session, error) {
	cred, err := a.store.GetCredential()
	if err != nil {
		return Session{}, err
	}
	if cred == nil {
		return Session{}, ErrNotConfigured
	}
	if cred.Username != username ||
		bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidLogin
	}

	return a.newSession(remember)
}

func (a *Authenticator) Logout(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, token)
}

// Validate reports whether the token names a live session. Expired sessions
// are reaped on the way through.
func (a *Authenticator) Validate(token string) bool {
	if token == "" {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	expires, ok := a.sessions[token]
	if !ok {
		return false
	}
	if time.Now().After(expires) {
		delete(a.sessions, token)
		return false
	}
	return true
}

// SessionExpiry returns the expiry of a live session, or nil.
func (a *Authenticator) SessionExpiry(token string) *time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()

	expires, ok := a.sessions[token]
	if !ok || time.Now().After(expires) {
		return nil
	}
	return &expires
}

func (a *Authenticator) newSession(remember bool) (Session, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return Session{}, fmt.Errorf("failed to generate session token: %w", err)
	}

	ttl := sessionTTL
	if remember {
		ttl = rememberSessionTTL
	}
	sess := Session{
		Token:     hex.EncodeToString(raw),
		ExpiresAt: time.Now().Add(ttl),
	}

	a.mu.Lock()
	a.sessions[sess.Token] = sess.ExpiresAt
	a.mu.Unlock()

	return sess, nil
}
