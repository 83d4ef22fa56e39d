package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrInvalidLimit  = errors.New("limit must be -1 or greater")
	ErrInvalidOffset = errors.New("offset must not be negative")
	ErrInvalidPage   = errors.New("page must be 1 or greater")
)

// Unbounded is the limit value that asks Directus for every row.
const Unbounded = -1

// Query is a Directus query object.
type Query struct {
	Filter *Condition `json:"filter,omitempty"`
	Sort   []string   `json:"sort,omitempty"`
	Limit  *int       `json:"limit,omitempty"`
	Offset *int       `json:"offset,omitempty"`
	Page   *int       `json:"page,omitempty"`
	Fields []string   `json:"fields,omitempty"`
	Search string     `json:"search,omitempty"`
}

// IsZero reports whether q sets nothing.
func (q Query) IsZero() bool {
	return (q.Filter == nil || q.Filter.IsEmpty()) && len(q.Sort) == 0 &&
		q.Limit == nil && q.Offset == nil && q.Page == nil &&
		len(q.Fields) == 0 && q.Search == ""
}

// Validate checks bounds and the filter tree.
func (q Query) Validate() error {
	if q.Limit != nil && *q.Limit < Unbounded {
		return fmt.Errorf("%w: %d", ErrInvalidLimit, *q.Limit)
	}
	if q.Offset != nil && *q.Offset < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidOffset, *q.Offset)
	}
	if q.Page != nil && *q.Page < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidPage, *q.Page)
	}
	if q.Filter != nil {
		return q.Filter.Validate()
	}
	return nil
}

// Clone returns a deep copy of q.
func (q Query) Clone() Query {
	out := Query{Search: q.Search}
	if q.Filter != nil {
		f := q.Filter.Clone()
		out.Filter = &f
	}
	if q.Sort != nil {
		out.Sort = append([]string(nil), q.Sort...)
	}
	if q.Fields != nil {
		out.Fields = append([]string(nil), q.Fields...)
	}
	out.Limit = cloneInt(q.Limit)
	out.Offset = cloneInt(q.Offset)
	out.Page = cloneInt(q.Page)
	return out
}

// Values encodes q as Directus GET query-string parameters.
func (q Query) Values() (url.Values, error) {
	v := url.Values{}
	if q.Filter != nil && !q.Filter.IsEmpty() {
		data, err := json.Marshal(q.Filter)
		if err != nil {
			return nil, fmt.Errorf("encode filter: %w", err)
		}
		v.Set("filter", string(data))
	}
	if len(q.Sort) > 0 {
		v.Set("sort", strings.Join(q.Sort, ","))
	}
	if q.Limit != nil {
		v.Set("limit", strconv.Itoa(*q.Limit))
	}
	if q.Offset != nil {
		v.Set("offset", strconv.Itoa(*q.Offset))
	}
	if q.Page != nil {
		v.Set("page", strconv.Itoa(*q.Page))
	}
	if len(q.Fields) > 0 {
		v.Set("fields", strings.Join(q.Fields, ","))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	return v, nil
}

// FromValues is the inverse of Values.
func FromValues(v url.Values) (Query, error) {
	var q Query
	if raw := v.Get("filter"); raw != "" {
		var c Condition
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return Query{}, err
		}
		if !c.IsEmpty() {
			q.Filter = &c
		}
	}
	q.Sort = splitList(v.Get("sort"))
	q.Fields = splitList(v.Get("fields"))
	q.Search = v.Get("search")

	for _, p := range []struct {
		name string
		dst  **int
	}{{"limit", &q.Limit}, {"offset", &q.Offset}, {"page", &q.Page}} {
		raw := v.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Query{}, fmt.Errorf("%s: %w", p.name, err)
		}
		*p.dst = &n
	}
	return q, q.Validate()
}

// SearchRequest is the body of a Directus SEARCH request.
type SearchRequest struct {
	Query Query `json:"query"`
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	n := *p
	return &n
}
