// Package directustest runs an in-memory Directus API for tests.
package directustest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func init() {
	chi.RegisterMethod("SEARCH")
}

// Request is a request the server received.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

type fault struct {
	method string
	path   string
	status int
	times  int
}

type session struct {
	userID string
}

// Server is a fake Directus instance. Until AddUser or AddToken is called
// anonymous requests are allowed.
type Server struct {
	*httptest.Server

	// TokenTTL is the lifetime of issued access tokens.
	TokenTTL time.Duration

	mu          sync.Mutex
	secret      []byte
	collections map[string]*collection
	order       []string
	relations   []map[string]any
	users       map[string]map[string]any
	passwords   map[string]string
	tokens      map[string]string
	refresh     map[string]session
	files       map[string]*file
	fileOrder   []string
	requests    []Request
	faults      []fault
	conflicts   int
	fieldID     int
	secured     bool
}

// New starts a server that is closed when t finishes.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		TokenTTL:    15 * time.Minute,
		secret:      []byte(uuid.NewString()),
		collections: map[string]*collection{},
		users:       map[string]map[string]any{},
		passwords:   map[string]string{},
		tokens:      map[string]string{},
		refresh:     map[string]session{},
		files:       map[string]*file{},
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.record)
	r.Use(s.inject)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "ROUTE_NOT_FOUND", "Route doesn't exist.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "ROUTE_NOT_FOUND", "Route doesn't exist.")
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.login)
		r.Post("/refresh", s.refreshTokens)
		r.Post("/logout", s.logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/collections", func(r chi.Router) {
			r.Get("/", s.listCollections)
			r.Post("/", s.createCollection)
			r.Get("/{collection}", s.getCollection)
			r.Delete("/{collection}", s.deleteCollection)
		})
		r.Get("/fields/{collection}", s.listFields)
		r.Post("/fields/{collection}", s.createField)
		r.Get("/relations/{collection}", s.listRelations)
		r.Post("/relations", s.createRelation)

		r.Route("/items/{collection}", func(r chi.Router) {
			r.Get("/", s.listItems)
			r.Method("SEARCH", "/", http.HandlerFunc(s.searchItems))
			r.Post("/", s.createItems)
			r.Delete("/", s.deleteItems)
			r.Get("/{id}", s.getItem)
			r.Patch("/{id}", s.updateItem)
			r.Delete("/{id}", s.deleteItem)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.listUsers)
			r.Method("SEARCH", "/", http.HandlerFunc(s.searchUsers))
			r.Post("/", s.createUser)
			r.Get("/me", s.me)
			r.Get("/{id}", s.getUser)
			r.Patch("/{id}", s.updateUser)
			r.Delete("/{id}", s.deleteUser)
		})

		r.Route("/files", func(r chi.Router) {
			r.Get("/", s.listFiles)
			r.Method("SEARCH", "/", http.HandlerFunc(s.searchFiles))
			r.Post("/", s.uploadFile)
			r.Get("/{id}", s.getFile)
			r.Patch("/{id}", s.updateFile)
			r.Delete("/{id}", s.deleteFile)
		})
		r.Get("/assets/{id}", s.asset)
	})
	return r
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// LastRequest returns the most recent request matching method and path.
func (s *Server) LastRequest(method, path string) (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		if r := s.requests[i]; r.Method == method && r.Path == path {
			return r, true
		}
	}
	return Request{}, false
}

// Count returns how many requests matched method and path.
func (s *Server) Count(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Fail answers the next times requests to method and path with status.
func (s *Server) Fail(method, path string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, fault{method: method, path: path, status: status, times: times})
}

// ConflictRelations makes the next n relation creations fail with an id
// uniqueness error.
func (s *Server) ConflictRelations(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = n
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Header:   r.Header.Clone(),
			Body:     body,
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status := 0
		for i := range s.faults {
			f := &s.faults[i]
			if f.times > 0 && f.method == r.Method && f.path == r.URL.Path {
				f.times--
				status = f.status
				break
			}
		}
		s.mu.Unlock()

		if status != 0 {
			writeError(w, status, codeFor(status), http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func codeFor(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "INVALID_CREDENTIALS"
	case status == http.StatusForbidden:
		return "FORBIDDEN"
	case status == http.StatusNotFound:
		return "ROUTE_NOT_FOUND"
	case status == http.StatusTooManyRequests:
		return "REQUESTS_EXCEEDED"
	case status >= 500:
		return "INTERNAL_SERVER_ERROR"
	default:
		return "INVALID_PAYLOAD"
	}
}

type errorBody struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	e := errorBody{Message: msg}
	e.Extensions.Code = code
	writeJSON(w, status, map[string]any{"errors": []errorBody{e}})
}

func forbidden(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, "FORBIDDEN", "You don't have permission to access this.")
}

func invalidPayload(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD", msg)
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) issueToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		"id":  userID,
		"iss": "directus",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(s.TokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
