package directustest

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type ctxKey struct{}

// AddUser registers a user that can log in with email and password and
// returns its id.
func (s *Server) AddUser(email, password string, fields map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	user := map[string]any{"id": id, "email": email, "status": "active"}
	for k, v := range fields {
		user[k] = v
	}
	s.users[id] = user
	s.passwords[email] = password
	s.secured = true
	return id
}

// AddToken accepts token as a static access token for userID.
func (s *Server) AddToken(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = userID
	s.secured = true
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		open := !s.secured
		s.mu.Unlock()

		bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || bearer == "" {
			if open {
				next.ServeHTTP(w, r)
				return
			}
			forbidden(w)
			return
		}

		userID, err := s.verify(bearer)
		if errors.Is(err, jwt.ErrTokenExpired) {
			writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token expired.")
			return
		}
		if err != nil {
			writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token.")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func (s *Server) verify(token string) (string, error) {
	s.mu.Lock()
	userID, static := s.tokens[token]
	s.mu.Unlock()
	if static {
		return userID, nil
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	id, _ := claims["id"].(string)
	return id, nil
}

func (s *Server) respondTokens(w http.ResponseWriter, userID string) {
	access, err := s.issueToken(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", err.Error())
		return
	}
	refresh := uuid.NewString()

	s.mu.Lock()
	s.refresh[refresh] = session{userID: userID}
	ttl := s.TokenTTL
	s.mu.Unlock()

	writeData(w, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"expires":       ttl.Milliseconds(),
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidPayload(w, err.Error())
		return
	}

	s.mu.Lock()
	want, known := s.passwords[body.Email]
	var userID string
	for id, u := range s.users {
		if u["email"] == body.Email {
			userID = id
		}
	}
	s.mu.Unlock()

	if !known || want != body.Password {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid user credentials.")
		return
	}
	s.respondTokens(w, userID)
}

func (s *Server) refreshTokens(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidPayload(w, err.Error())
		return
	}

	s.mu.Lock()
	sess, ok := s.refresh[body.RefreshToken]
	delete(s.refresh, body.RefreshToken)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid user credentials.")
		return
	}
	s.respondTokens(w, sess.userID)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidPayload(w, err.Error())
		return
	}

	s.mu.Lock()
	_, ok := s.refresh[body.RefreshToken]
	delete(s.refresh, body.RefreshToken)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid user credentials.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
