package directustest

import (
	"io"
	"maps"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

type file struct {
	record  map[string]any
	content []byte
}

// AddFile stores content as a file and returns its id.
func (s *Server) AddFile(name, contentType string, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addFileLocked(name, contentType, content)
}

func (s *Server) addFileLocked(name, contentType string, content []byte) string {
	id := uuid.NewString()
	s.files[id] = &file{
		record: map[string]any{
			"id":                id,
			"storage":           "local",
			"filename_disk":     id,
			"filename_download": name,
			"title":             name,
			"type":              contentType,
			"filesize":          strconv.Itoa(len(content)),
			"uploaded_on":       time.Now().UTC().Format(time.RFC3339),
		},
		content: content,
	}
	s.fileOrder = append(s.fileOrder, id)
	return id
}

// FileRecord returns the stored metadata of id.
func (s *Server) FileRecord(id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, false
	}
	return maps.Clone(f.record), true
}

func (s *Server) fileRows() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.fileOrder))
	for _, id := range s.fileOrder {
		out = append(out, maps.Clone(s.files[id].record))
	}
	return out
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	q, err := query.FromValues(r.URL.Query())
	if err != nil {
		invalidPayload(w, err.Error())
		return
	}
	out, err := run(s.fileRows(), q)
	if err != nil {
		invalidPayload(w, err.Error())
		return
	}
	writeData(w, out)
}

func (s *Server) searchFiles(w http.ResponseWriter, r *http.Request) {
	var body query.SearchRequest
	if err := decodeBody(r, &body); err != nil {
		invalidPayload(w, err.Error())
		return
	}
	out, err := run(s.fileRows(), body.Query)
	if err != nil {
		invalidPayload(w, err.Error())
		return
	}
	writeData(w, out)
}

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	part, header, err := r.FormFile("file")
	if err != nil {
		invalidPayload(w, "No file was included in the body.")
		return
	}
	defer part.Close()

	content, err := io.ReadAll(part)
	if err != nil {
		invalidPayload(w, err.Error())
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	s.mu.Lock()
	id := s.addFileLocked(header.Filename, contentType, content)
	out := maps.Clone(s.files[id].record)
	s.mu.Unlock()

	writeData(w, out)
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.FileRecord(chi.URLParam(r, "id"))
	if !ok {
		forbidden(w)
		return
	}
	writeData(w, rec)
}

func (s *Server) updateFile(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := decodeBody(r, &patch); err != nil {
		invalidPayload(w, err.Error())
		return
	}
	delete(patch, "id")

	s.mu.Lock()
	f, ok := s.files[chi.URLParam(r, "id")]
	var out map[string]any
	if ok {
		maps.Copy(f.record, patch)
		out = maps.Clone(f.record)
	}
	s.mu.Unlock()

	if !ok {
		forbidden(w)
		return
	}
	writeData(w, out)
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	_, ok := s.files[id]
	if ok {
		delete(s.files, id)
		for i, fid := range s.fileOrder {
			if fid == id {
				s.fileOrder = append(s.fileOrder[:i], s.fileOrder[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		forbidden(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// asset serves the stored bytes. Transformation parameters are accepted and
// recorded but not applied.
func (s *Server) asset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	f, ok := s.files[chi.URLParam(r, "id")]
	var content []byte
	var contentType string
	if ok {
		content = f.content
		contentType, _ = f.record["type"].(string)
	}
	s.mu.Unlock()

	if !ok {
		forbidden(w)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}
