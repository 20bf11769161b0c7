package main

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rota27/refinado/internal/response"
	"github.com/rota27/refinado/internal/version"
)

const (
	roleManager = "manager"
	roleAdmin   = "admin"

	sessionTTL = 12 * time.Hour
)

type sessionKeyType struct{}

var sessionKey = sessionKeyType{}

// session is one authenticated login. Each session carries its own version
// token: a client that just wrote sees its own write on the next read, while
// other sessions keep hitting the byte cache until the document actually
// changes upstream.
type session struct {
	role      string
	token     *version.Token
	createdAt time.Time
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*session)}
}

func (s *sessionStore) create(role string) (string, *session) {
	buf := make([]byte, 24)
	rand.Read(buf)
	id := hex.EncodeToString(buf)

	sess := &session{
		role:      role,
		token:     &version.Token{},
		createdAt: time.Now(),
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return id, sess
}

func (s *sessionStore) get(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if time.Since(sess.createdAt) > sessionTTL {
		delete(s.sessions, id)
		return nil
	}
	return sess
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

func (app *application) handleLogin(w http.ResponseWriter, r *http.Request) {
	const component = "Auth"

	var req loginRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role := ""
	switch {
	case secretMatches(req.Password, app.config.auth.adminPassword):
		role = roleAdmin
	case secretMatches(req.Password, app.config.auth.managerPassword):
		role = roleManager
	default:
		app.logger.Warn(component, "Login rejected from %s", r.RemoteAddr)
		writeJSONError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	id, _ := app.sessions.create(role)
	app.logger.Info(component, "Login accepted: role=%s", role)
	writeJSON(w, http.StatusOK, response.OK(loginResponse{Token: id, Role: role}, "authenticated"))
}

func secretMatches(given, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(want)) == 1
}

func (app *application) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		id, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		sess := app.sessions.get(strings.TrimSpace(id))
		if sess == nil {
			writeJSONError(w, http.StatusUnauthorized, "session expired or unknown")
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (app *application) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sessionFrom(r).role != roleAdmin {
			writeJSONError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionFrom is only called below requireAuth, so the value is always set.
func sessionFrom(r *http.Request) *session {
	return r.Context().Value(sessionKey).(*session)
}
