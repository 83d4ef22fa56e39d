package directustest

import (
	"maps"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

func (s *Server) userRows() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, maps.Clone(u))
	}
	return out
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	q, err := query.FromValues(r.URL.Query())
	if err != nil {
		invalidPayload(w, err.Error())
		return
	}
	if len(q.Sort) == 0 {
		q.Sort = []string{"email"}
	}
	out, err := run(s.userRows(), q)
	if err != nil {
		invalidPayload(w, err.Error())
		return
	}
	writeData(w, out)
}

func (s *Server) searchUsers(w http.ResponseWriter, r *http.Request) {
	var body query.SearchRequest
	if err := decodeBody(r, &body); err != nil {
		invalidPayload(w, err.Error())
		return
	}
	if len(body.Query.Sort) == 0 {
		body.Query.Sort = []string{"email"}
	}
	out, err := run(s.userRows(), body.Query)
	if err != nil {
		invalidPayload(w, err.Error())
		return
	}
	writeData(w, out)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	id, _ := r.Context().Value(ctxKey{}).(string)

	s.mu.Lock()
	u, ok := s.users[id]
	if ok {
		u = maps.Clone(u)
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid user credentials.")
		return
	}
	writeData(w, u)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	u, ok := s.users[chi.URLParam(r, "id")]
	if ok {
		u = maps.Clone(u)
	}
	s.mu.Unlock()

	if !ok {
		forbidden(w)
		return
	}
	writeData(w, u)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		invalidPayload(w, err.Error())
		return
	}
	email, _ := body["email"].(string)
	if email == "" {
		invalidPayload(w, `"email" is required`)
		return
	}
	password, _ := body["password"].(string)
	delete(body, "password")

	s.mu.Lock()
	if _, taken := s.passwords[email]; taken {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "RECORD_NOT_UNIQUE",
			`Value for field "email" in collection "directus_users" has to be unique.`)
		return
	}
	id := uuid.NewString()
	body["id"] = id
	if body["status"] == nil {
		body["status"] = "active"
	}
	s.users[id] = body
	s.passwords[email] = password
	out := maps.Clone(body)
	s.mu.Unlock()

	writeData(w, out)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := decodeBody(r, &patch); err != nil {
		invalidPayload(w, err.Error())
		return
	}
	delete(patch, "id")
	password, hasPassword := patch["password"].(string)
	delete(patch, "password")

	s.mu.Lock()
	u, ok := s.users[chi.URLParam(r, "id")]
	if ok {
		maps.Copy(u, patch)
		if hasPassword {
			email, _ := u["email"].(string)
			s.passwords[email] = password
		}
		u = maps.Clone(u)
	}
	s.mu.Unlock()

	if !ok {
		forbidden(w)
		return
	}
	writeData(w, u)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	u, ok := s.users[id]
	if ok {
		email, _ := u["email"].(string)
		delete(s.passwords, email)
		delete(s.users, id)
	}
	s.mu.Unlock()

	if !ok {
		forbidden(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
