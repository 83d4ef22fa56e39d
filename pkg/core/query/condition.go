package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidCondition is returned for filter documents that do not follow the
	// Directus filter shape.
	ErrInvalidCondition = errors.New("invalid filter condition")
)

// Condition is one node of a Directus filter tree.
//
// A node is either a field comparison (Field, Operator, Value) or a logical group
// (Logic, Children). The zero value is the empty condition: it carries no filter
// and is dropped wherever conditions are combined.
type Condition struct {
	Logic    LogicalOperator
	Children []Condition

	Field    string
	Operator Operator
	Value    any
}

// Compare returns the leaf {field: {op: value}}.
func Compare(field string, op Operator, value any) Condition {
	return Condition{Field: field, Operator: op, Value: value}
}

// Group returns {logic: children}. Empty children are dropped; if nothing is
// left the result is the empty condition.
func Group(logic LogicalOperator, children ...Condition) Condition {
	kept := nonEmpty(children)
	if len(kept) == 0 {
		return Condition{}
	}
	return Condition{Logic: logic, Children: kept}
}

// IsEmpty reports whether c carries no filter.
func (c Condition) IsEmpty() bool {
	return c.Logic == "" && c.Field == ""
}

// IsLogical reports whether c is an _and/_or group.
func (c Condition) IsLogical() bool {
	return c.Logic != ""
}

// Validate checks the structural invariants of the tree.
func (c Condition) Validate() error {
	switch {
	case c.IsEmpty():
		return nil
	case c.IsLogical():
		if c.Field != "" || c.Operator != "" {
			return fmt.Errorf("%w: group %s also carries field %q", ErrInvalidCondition, c.Logic, c.Field)
		}
		if !IsLogical(string(c.Logic)) {
			return fmt.Errorf("%w: unknown logical operator %q", ErrInvalidCondition, c.Logic)
		}
		if len(c.Children) == 0 {
			return fmt.Errorf("%w: group %s has no children", ErrInvalidCondition, c.Logic)
		}
		for i, child := range c.Children {
			if child.IsEmpty() {
				return fmt.Errorf("%w: group %s child %d is empty", ErrInvalidCondition, c.Logic, i)
			}
			if err := child.Validate(); err != nil {
				return err
			}
		}
		return nil
	default:
		if c.Operator == "" {
			return fmt.Errorf("%w: field %q has no operator", ErrInvalidCondition, c.Field)
		}
		if IsLogical(string(c.Operator)) {
			return fmt.Errorf("%w: field %q uses logical key %s", ErrInvalidCondition, c.Field, c.Operator)
		}
		return nil
	}
}

// Clone returns a deep copy of c.
func (c Condition) Clone() Condition {
	out := c
	out.Value = cloneValue(c.Value)
	if c.Children != nil {
		out.Children = make([]Condition, len(c.Children))
		for i, child := range c.Children {
			out.Children[i] = child.Clone()
		}
	}
	return out
}

// String renders c as its JSON document.
func (c Condition) String() string {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<invalid condition: %v>", err)
	}
	return string(data)
}

// MarshalJSON encodes c in the Directus filter shape. Dotted field paths become
// nested relational objects.
func (c Condition) MarshalJSON() ([]byte, error) {
	switch {
	case c.IsEmpty():
		return []byte("{}"), nil
	case c.IsLogical():
		children := c.Children
		if children == nil {
			children = []Condition{}
		}
		return json.Marshal(map[string][]Condition{string(c.Logic): children})
	}

	var node any = map[string]any{string(c.Operator): c.Value}
	parts := strings.Split(c.Field, ".")
	for i := len(parts) - 1; i >= 0; i-- {
		node = map[string]any{parts[i]: node}
	}
	return json.Marshal(node)
}

// UnmarshalJSON decodes a Directus filter document. Several keys on one object
// are read as an implicit _and, in key order.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}
	parsed, err := decodeCondition(raw, "")
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func decodeCondition(raw map[string]json.RawMessage, path string) (Condition, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]Condition, 0, len(keys))
	for _, key := range keys {
		cond, err := decodeKey(key, raw[key], path)
		if err != nil {
			return Condition{}, err
		}
		conds = append(conds, cond)
	}

	switch len(conds) {
	case 0:
		if path != "" {
			return Condition{}, fmt.Errorf("%w: field %q has no operator", ErrInvalidCondition, path)
		}
		return Condition{}, nil
	case 1:
		return conds[0], nil
	default:
		return Group(And, conds...), nil
	}
}

func decodeKey(key string, body json.RawMessage, path string) (Condition, error) {
	switch {
	case path == "" && IsLogical(key):
		var children []Condition
		if err := json.Unmarshal(body, &children); err != nil {
			return Condition{}, fmt.Errorf("%w: %s: %v", ErrInvalidCondition, key, err)
		}
		if len(nonEmpty(children)) == 0 {
			return Condition{}, fmt.Errorf("%w: %s has no children", ErrInvalidCondition, key)
		}
		return Group(LogicalOperator(key), children...), nil

	case strings.HasPrefix(key, "_"):
		if path == "" {
			return Condition{}, fmt.Errorf("%w: operator %s without a field", ErrInvalidCondition, key)
		}
		var value any
		if err := json.Unmarshal(body, &value); err != nil {
			return Condition{}, fmt.Errorf("%w: %s.%s: %v", ErrInvalidCondition, path, key, err)
		}
		return Compare(path, Operator(key), value), nil

	default:
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(body, &inner); err != nil {
			return Condition{}, fmt.Errorf("%w: field %q: %v", ErrInvalidCondition, key, err)
		}
		next := key
		if path != "" {
			next = path + "." + key
		}
		return decodeCondition(inner, next)
	}
}

func nonEmpty(conds []Condition) []Condition {
	kept := make([]Condition, 0, len(conds))
	for _, c := range conds {
		if !c.IsEmpty() {
			kept = append(kept, c)
		}
	}
	return kept
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
