// Package cloudstub emulates the backend's REST surface for local
// development and end-to-end tests.
package cloudstub

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/timechildgames/cloudrelay/internal/log"
	"github.com/timechildgames/cloudrelay/internal/protocol"
)

// Backend error codes mirrored by the stub.
const (
	CodeScriptFailed   = 141
	CodeObjectNotFound = 101
	CodeInvalidSession = 209
)

// Config configures a Stub.
type Config struct {
	ApplicationID string
	RESTAPIKey    string
	// Users maps usernames to passwords accepted by GET /1/login.
	Users map[string]string
	// Delays holds an artificial latency per function name.
	Delays map[string]time.Duration
}

// Stub is an http.Handler serving /1/functions, /1/login and /1/logout.
type Stub struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]string // token -> username
	calls    map[string]int
}

// New returns a Stub.
func New(cfg Config) *Stub {
	return &Stub{
		cfg:      cfg,
		logger:   log.WithComponent("cloudstub"),
		sessions: make(map[string]string),
		calls:    make(map[string]int),
	}
}

// Handler returns the routed handler.
func (s *Stub) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/1", func(r chi.Router) {
		r.Use(s.requireKeys)
		r.Head("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		r.Post("/functions/{name}", s.handleFunction)
		r.Get("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
	})
	return r
}

// Calls reports how often function name was invoked.
func (s *Stub) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *Stub) requireKeys(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !matches(r.Header.Get(protocol.HeaderApplicationID), s.cfg.ApplicationID) ||
			!matches(r.Header.Get(protocol.HeaderRESTAPIKey), s.cfg.RESTAPIKey) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func matches(got, want string) bool {
	return len(got) == len(want) && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (s *Stub) handleFunction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.mu.Lock()
	s.calls[name]++
	s.mu.Unlock()

	var params map[string]any
	body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if len(body) > 0 {
		if err := json.Unmarshal(body, &params); err != nil {
			writeBackendError(w, http.StatusBadRequest, CodeScriptFailed, "invalid JSON parameters")
			return
		}
	}

	if d := s.cfg.Delays[name]; d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}

	switch name {
	case "hello":
		who := "World"
		if n, ok := params["name"].(string); ok && n != "" {
			who = n
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": "Hello, " + who + "!"})
	case "requestMatchmakingGame":
		if _, ok := s.sessionUser(r); !ok {
			writeBackendError(w, http.StatusBadRequest, CodeInvalidSession, "invalid session token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": "Hello, World!"})
	default:
		writeBackendError(w, http.StatusBadRequest, CodeScriptFailed, "function not found: "+name)
	}
}

func (s *Stub) handleLogin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	username, password := q.Get("username"), q.Get("password")
	want, ok := s.cfg.Users[username]
	if !ok || username == "" || !matches(password, want) {
		writeBackendError(w, http.StatusNotFound, CodeObjectNotFound, "invalid login parameters")
		return
	}

	token := "r:" + uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = username
	s.mu.Unlock()
	s.logger.Info("user logged in", "username", username)

	writeJSON(w, http.StatusOK, map[string]any{
		"objectId":     uuid.NewSHA1(uuid.NameSpaceOID, []byte(username)).String(),
		"username":     username,
		"sessionToken": token,
	})
}

func (s *Stub) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(protocol.HeaderSessionToken)
	s.mu.Lock()
	_, ok := s.sessions[token]
	delete(s.sessions, token)
	s.mu.Unlock()
	if !ok {
		writeBackendError(w, http.StatusBadRequest, CodeInvalidSession, "invalid session token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Stub) sessionUser(r *http.Request) (string, bool) {
	token := r.Header.Get(protocol.HeaderSessionToken)
	if token == "" {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.sessions[token]
	return user, ok
}

func writeBackendError(w http.ResponseWriter, status, code int, msg string) {
	writeJSON(w, status, protocol.BackendError{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", protocol.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
