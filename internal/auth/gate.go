// Package auth implements the access gate placed in front of mutating
// storage operations: a single shared username/password pair checked with
// HTTP Basic credentials.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/starford/wstore/internal/apperr"
)

// UnauthorizedMessage is the response body for rejected requests.
const UnauthorizedMessage = "Authentication required"

// DefaultRealm is used in the Basic challenge when none is configured.
const DefaultRealm = "wstore"

// Credential is the configured username with either a plain password or a
// bcrypt hash of it.
type Credential struct {
	Username     string
	Password     string
	PasswordHash string
	Realm        string
}

// Gate verifies caller credentials against one configured pair.
type Gate struct {
	username []byte
	password []byte
	hash     []byte
	realm    string
}

// NewGate creates a Gate. A non-empty PasswordHash takes precedence over Password.
func NewGate(c Credential) (*Gate, error) {
	if c.Username == "" {
		return nil, errors.New("auth: username is required")
	}
	g := &Gate{username: []byte(c.Username), realm: c.Realm}
	if g.realm == "" {
		g.realm = DefaultRealm
	}
	switch {
	case c.PasswordHash != "":
		if _, err := bcrypt.Cost([]byte(c.PasswordHash)); err != nil {
			return nil, fmt.Errorf("auth: invalid password hash: %w", err)
		}
		g.hash = []byte(c.PasswordHash)
	case c.Password != "":
		g.password = []byte(c.Password)
	default:
		return nil, errors.New("auth: password or password hash is required")
	}
	return g, nil
}

// Verify checks a caller credential. present is false when the caller sent
// none. It returns apperr.ErrUnauthorized on absence or mismatch.
func (g *Gate) Verify(username, password string, present bool) error {
	if !present {
		return fmt.Errorf("auth: no credential: %w", apperr.ErrUnauthorized)
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), g.username) == 1
	var passOK bool
	if g.hash != nil {
		passOK = bcrypt.CompareHashAndPassword(g.hash, []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), g.password) == 1
	}
	if !userOK || !passOK {
		return fmt.Errorf("auth: credential mismatch: %w", apperr.ErrUnauthorized)
	}
	return nil
}

// Challenge writes a 401 with a Basic challenge.
func (g *Gate) Challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q, charset=\"UTF-8\"", g.realm))
	http.Error(w, UnauthorizedMessage, http.StatusUnauthorized)
}

// Middleware rejects requests without a matching Basic credential before
// next runs.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if err := g.Verify(user, pass, ok); err != nil {
			g.Challenge(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
