package directustest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

// defaultLimit is the page size Directus applies when no limit is sent.
const defaultLimit = 100

// AddItems appends rows to collection, assigning integer ids where the
// primary key is missing.
func (s *Server) AddItems(collection string, rows ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[collection]
	if !ok {
		panic(fmt.Sprintf("directustest: unknown collection %q", collection))
	}
	for _, row := range rows {
		_ = col.insert(maps.Clone(row))
	}
}

// Items returns the stored rows of collection.
func (s *Server) Items(collection string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[collection]
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(col.items))
	for _, it := range col.items {
		out = append(out, maps.Clone(it))
	}
	return out
}

func (c *collection) insert(row map[string]any) error {
	pk := c.pk()
	id, ok := row[pk]
	if !ok || id == nil {
		row[pk] = float64(c.nextID)
		c.nextID++
	} else if c.find(id) >= 0 {
		return fmt.Errorf("value for field %q in collection %q has to be unique", pk, c.record["collection"])
	} else if n, ok := intID(id); ok && n >= c.nextID {
		c.nextID = n + 1
	}
	c.items = append(c.items, row)
	return nil
}

func intID(id any) (int, bool) {
	switch n := id.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

func (c *collection) find(id any) int {
	pk := c.pk()
	want := fmt.Sprint(id)
	for i, it := range c.items {
		if fmt.Sprint(it[pk]) == want {
			return i
		}
	}
	return -1
}

// run filters, sorts, pages, searches and projects rows for q.
func run(rows []map[string]any, q query.Query) ([]map[string]any, error) {
	if q.Limit == nil {
		n := defaultLimit
		q.Limit = &n
	}
	if q.Search != "" {
		term := strings.ToLower(q.Search)
		matched := rows[:0:0]
		for _, row := range rows {
			if containsText(row, term) {
				matched = append(matched, row)
			}
		}
		rows = matched
	}

	items := make([]query.Item, len(rows))
	for i, row := range rows {
		items[i] = row
	}
	result, err := q.Apply(items)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(result))
	for _, it := range result {
		out = append(out, project(it, q.Fields))
	}
	return out, nil
}

func containsText(row map[string]any, term string) bool {
	for _, v := range row {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

func project(row map[string]any, fields []string) map[string]any {
	if len(fields) == 0 || slices.Contains(fields, "*") {
		return maps.Clone(row)
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		top, _, _ := strings.Cut(f, ".")
		if v, ok := row[top]; ok {
			out[top] = v
		}
	}
	return out
}

func (s *Server) rows(r *http.Request) ([]map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[chi.URLParam(r, "collection")]
	if !ok {
		return nil, false
	}
	return append([]map[string]any(nil), col.items...), true
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	q, err := query.FromValues(r.URL.Query())
	if err != nil {
		invalidPayload(w, err.Error())
		return
	}
	rows, ok := s.rows(r)
	if !ok {
		forbidden(w)
		return
	}
	out, err := run(rows, q)
	if err != nil {
		invalidPayload(w, err.Error())
		return
	}
	if r.URL.Query().Get("export") == "csv" {
		writeCSV(w, out)
		return
	}
	writeData(w, out)
}

func (s *Server) searchItems(w http.ResponseWriter, r *http.Request) {
	var body query.SearchRequest
	if err := decodeBody(r, &body); err != nil {
		invalidPayload(w, err.Error())
		return
	}
	if err := body.Query.Validate(); err != nil {
		invalidPayload(w, err.Error())
		return
	}
	rows, ok := s.rows(r)
	if !ok {
		forbidden(w)
		return
	}
	out, err := run(rows, body.Query)
	if err != nil {
		invalidPayload(w, err.Error())
		return
	}
	writeData(w, out)
}

func writeCSV(w http.ResponseWriter, rows []map[string]any) {
	var header []string
	seen := map[string]bool{}
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	slices.Sort(header)

	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	cw := csv.NewWriter(w)
	_ = cw.Write(header)
	for _, row := range rows {
		rec := make([]string, len(header))
		for i, k := range header {
			if v, ok := row[k]; ok && v != nil {
				rec[i] = fmt.Sprint(v)
			}
		}
		_ = cw.Write(rec)
	}
	cw.Flush()
}

func (s *Server) createItems(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decodeBody(r, &raw); err != nil {
		invalidPayload(w, err.Error())
		return
	}

	var rows []map[string]any
	single := false
	if err := json.Unmarshal(raw, &rows); err != nil {
		var row map[string]any
		if err := json.Unmarshal(raw, &row); err != nil {
			invalidPayload(w, "body must be an object or an array of objects")
			return
		}
		rows = []map[string]any{row}
		single = true
	}

	s.mu.Lock()
	col, ok := s.collections[chi.URLParam(r, "collection")]
	if !ok {
		s.mu.Unlock()
		forbidden(w)
		return
	}
	created := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if err := col.insert(row); err != nil {
			s.mu.Unlock()
			writeError(w, http.StatusBadRequest, "RECORD_NOT_UNIQUE", err.Error())
			return
		}
		created = append(created, maps.Clone(row))
	}
	s.mu.Unlock()

	if single {
		writeData(w, created[0])
		return
	}
	writeData(w, created)
}

func (s *Server) deleteItems(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decodeBody(r, &raw); err != nil {
		invalidPayload(w, err.Error())
		return
	}
	var ids []any
	if err := json.Unmarshal(raw, &ids); err != nil {
		var keyed struct {
			Keys []any `json:"keys"`
		}
		if err := json.Unmarshal(raw, &keyed); err != nil {
			invalidPayload(w, "body must be an array of keys")
			return
		}
		ids = keyed.Keys
	}

	s.mu.Lock()
	col, ok := s.collections[chi.URLParam(r, "collection")]
	if ok {
		for _, id := range ids {
			if i := col.find(id); i >= 0 {
				col.items = append(col.items[:i], col.items[i+1:]...)
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

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var item map[string]any
	if col, ok := s.collections[chi.URLParam(r, "collection")]; ok {
		if i := col.find(chi.URLParam(r, "id")); i >= 0 {
			item = maps.Clone(col.items[i])
		}
	}
	s.mu.Unlock()

	if item == nil {
		forbidden(w)
		return
	}
	writeData(w, item)
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := decodeBody(r, &patch); err != nil {
		invalidPayload(w, err.Error())
		return
	}

	s.mu.Lock()
	var item map[string]any
	if col, ok := s.collections[chi.URLParam(r, "collection")]; ok {
		if i := col.find(chi.URLParam(r, "id")); i >= 0 {
			maps.Copy(col.items[i], patch)
			item = maps.Clone(col.items[i])
		}
	}
	s.mu.Unlock()

	if item == nil {
		forbidden(w)
		return
	}
	writeData(w, item)
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	found := false
	if col, ok := s.collections[chi.URLParam(r, "collection")]; ok {
		if i := col.find(chi.URLParam(r, "id")); i >= 0 {
			col.items = append(col.items[:i], col.items[i+1:]...)
			found = true
		}
	}
	s.mu.Unlock()

	if !found {
		forbidden(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
