package directustest

import (
	"fmt"
	"maps"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type collection struct {
	record map[string]any
	fields []map[string]any
	items  []map[string]any
	nextID int
}

func (c *collection) pk() string {
	for _, f := range c.fields {
		if schema, ok := f["schema"].(map[string]any); ok && schema["is_primary_key"] == true {
			name, _ := f["field"].(string)
			return name
		}
	}
	return "id"
}

// Field describes a plain nullable column for AddCollection.
func Field(name, typ string) map[string]any {
	return map[string]any{
		"field": name,
		"type":  typ,
		"meta":  map[string]any{"interface": "input"},
		"schema": map[string]any{
			"name":           name,
			"data_type":      typ,
			"is_nullable":    true,
			"is_primary_key": false,
		},
	}
}

// PrimaryKey describes the primary key column for AddCollection.
func PrimaryKey(name, typ string) map[string]any {
	f := Field(name, typ)
	schema := f["schema"].(map[string]any)
	schema["is_primary_key"] = true
	schema["is_nullable"] = false
	schema["has_auto_increment"] = typ == "integer"
	return f
}

// ForeignKey describes a column referencing table.
func ForeignKey(name, typ, table string) map[string]any {
	f := Field(name, typ)
	schema := f["schema"].(map[string]any)
	schema["foreign_key_table"] = table
	schema["foreign_key_column"] = "id"
	return f
}

// AddCollection creates a collection. Without fields it gets an integer id
// primary key.
func (s *Server) AddCollection(name string, fields ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addCollectionLocked(map[string]any{
		"collection": name,
		"meta":       map[string]any{"collection": name, "icon": "box"},
		"schema":     map[string]any{"name": name},
	}, fields)
}

func (s *Server) addCollectionLocked(record map[string]any, fields []map[string]any) {
	name, _ := record["collection"].(string)
	if len(fields) == 0 && record["schema"] != nil {
		fields = []map[string]any{PrimaryKey("id", "integer")}
	}
	col := &collection{record: record, nextID: 1}
	for _, f := range fields {
		col.fields = append(col.fields, s.prepareFieldLocked(name, f))
	}
	s.collections[name] = col
	s.order = append(s.order, name)
}

func (s *Server) prepareFieldLocked(collection string, f map[string]any) map[string]any {
	f = maps.Clone(f)
	f["collection"] = collection
	meta, _ := f["meta"].(map[string]any)
	meta = maps.Clone(meta)
	if meta == nil {
		meta = map[string]any{}
	}
	s.fieldID++
	meta["id"] = float64(s.fieldID)
	meta["collection"] = collection
	meta["field"] = f["field"]
	f["meta"] = meta
	return f
}

// AddRelation registers a relation as Directus stores it.
func (s *Server) AddRelation(collection, field, related string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relations = append(s.relations, relationRecord(collection, field, related))
}

func relationRecord(collection, field, related string) map[string]any {
	return map[string]any{
		"collection":         collection,
		"field":              field,
		"related_collection": related,
		"meta":               map[string]any{"many_collection": collection, "many_field": field, "one_collection": related},
		"schema":             map[string]any{"table": collection, "column": field, "foreign_key_table": related},
	}
}

// Relations returns the stored relations.
func (s *Server) Relations() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.relations))
	copy(out, s.relations)
	return out
}

// Fields returns the stored fields of collection.
func (s *Server) Fields(collection string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[collection]
	if !ok {
		return nil
	}
	return append([]map[string]any(nil), col.fields...)
}

// HasCollection reports whether name exists.
func (s *Server) HasCollection(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[name]
	return ok
}

func (s *Server) listCollections(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]map[string]any, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, maps.Clone(s.collections[name].record))
	}
	s.mu.Unlock()
	writeData(w, out)
}

func (s *Server) getCollection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	col, ok := s.collections[chi.URLParam(r, "collection")]
	var rec map[string]any
	if ok {
		rec = maps.Clone(col.record)
	}
	s.mu.Unlock()

	if !ok {
		forbidden(w)
		return
	}
	writeData(w, rec)
}

func (s *Server) createCollection(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		invalidPayload(w, err.Error())
		return
	}
	name, _ := body["collection"].(string)
	if name == "" {
		invalidPayload(w, `"collection" is required`)
		return
	}

	var fields []map[string]any
	if raw, ok := body["fields"].([]any); ok {
		for _, f := range raw {
			if m, ok := f.(map[string]any); ok {
				fields = append(fields, m)
			}
		}
	}
	delete(body, "fields")

	s.mu.Lock()
	if _, exists := s.collections[name]; exists {
		s.mu.Unlock()
		invalidPayload(w, fmt.Sprintf("Collection %q already exists.", name))
		return
	}
	s.addCollectionLocked(body, fields)
	rec := maps.Clone(body)
	s.mu.Unlock()

	writeData(w, rec)
}

func (s *Server) deleteCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "collection")

	s.mu.Lock()
	_, ok := s.collections[name]
	if ok {
		delete(s.collections, name)
		for i, n := range s.order {
			if n == name {
				s.order = append(s.order[:i], s.order[i+1:]...)
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

func (s *Server) listFields(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	col, ok := s.collections[chi.URLParam(r, "collection")]
	var out []map[string]any
	if ok {
		for _, f := range col.fields {
			out = append(out, maps.Clone(f))
		}
	}
	s.mu.Unlock()

	if !ok {
		forbidden(w)
		return
	}
	writeData(w, out)
}

func (s *Server) createField(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "collection")
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		invalidPayload(w, err.Error())
		return
	}
	field, _ := body["field"].(string)
	if field == "" {
		invalidPayload(w, `"field" is required`)
		return
	}

	s.mu.Lock()
	col, ok := s.collections[name]
	if !ok {
		s.mu.Unlock()
		forbidden(w)
		return
	}
	for _, f := range col.fields {
		if f["field"] == field {
			s.mu.Unlock()
			invalidPayload(w, fmt.Sprintf("Field %q already exists in collection %q.", field, name))
			return
		}
	}
	f := s.prepareFieldLocked(name, body)
	col.fields = append(col.fields, f)
	out := maps.Clone(f)
	s.mu.Unlock()

	writeData(w, out)
}

func (s *Server) listRelations(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "collection")

	s.mu.Lock()
	out := []map[string]any{}
	for _, rel := range s.relations {
		if rel["collection"] == name {
			out = append(out, maps.Clone(rel))
		}
	}
	s.mu.Unlock()
	writeData(w, out)
}

func (s *Server) createRelation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Collection        string `json:"collection"`
		Field             string `json:"field"`
		RelatedCollection string `json:"related_collection"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidPayload(w, err.Error())
		return
	}

	s.mu.Lock()
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "RECORD_NOT_UNIQUE",
			`Value for field "id" in collection "directus_relations" has to be unique.`)
		return
	}
	rec := relationRecord(body.Collection, body.Field, body.RelatedCollection)
	s.relations = append(s.relations, rec)
	out := maps.Clone(rec)
	s.mu.Unlock()

	writeData(w, out)
}
