package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrUnsupportedOperator is returned when an item is matched against an operator
// the evaluator does not know.
var ErrUnsupportedOperator = errors.New("unsupported operator")

// Item is one Directus row as decoded from JSON.
type Item = map[string]any

// Match reports whether item satisfies c. The empty condition matches everything.
func (c Condition) Match(item Item) (bool, error) {
	switch {
	case c.IsEmpty():
		return true, nil
	case c.Logic == And:
		for _, child := range c.Children {
			ok, err := child.Match(item)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case c.Logic == Or:
		for _, child := range c.Children {
			ok, err := child.Match(item)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case c.IsLogical():
		return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, c.Logic)
	}

	value, _ := Lookup(item, c.Field)
	return matchOperator(c.Operator, value, c.Value)
}

// Lookup resolves a dotted path through nested objects.
func Lookup(item Item, path string) (any, bool) {
	var cur any = item
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func matchOperator(op Operator, value, want any) (bool, error) {
	switch op {
	case OpEquals:
		return value != nil && compare(value, want) == 0, nil
	case OpNotEquals:
		return value == nil || compare(value, want) != 0, nil
	case OpLessThan:
		return value != nil && compare(value, want) < 0, nil
	case OpLessOrEqual:
		return value != nil && compare(value, want) <= 0, nil
	case OpGreaterThan:
		return value != nil && compare(value, want) > 0, nil
	case OpGreaterOrEqual:
		return value != nil && compare(value, want) >= 0, nil
	case OpIn:
		return value != nil && inList(value, want), nil
	case OpNotIn:
		return value == nil || !inList(value, want), nil
	case OpNull:
		return (value == nil) == truthy(want), nil
	case OpNotNull:
		return (value != nil) == truthy(want), nil
	case OpContains:
		return value != nil && strings.Contains(text(value), text(want)), nil
	case OpNotContains:
		return value == nil || !strings.Contains(text(value), text(want)), nil
	case OpStartsWith:
		return value != nil && strings.HasPrefix(text(value), text(want)), nil
	case OpEndsWith:
		return value != nil && strings.HasSuffix(text(value), text(want)), nil
	case OpBetween, OpNotBetween:
		bounds := list(want)
		if len(bounds) != 2 {
			return false, fmt.Errorf("%w: %s needs two bounds, got %d", ErrInvalidCondition, op, len(bounds))
		}
		in := value != nil && compare(value, bounds[0]) >= 0 && compare(value, bounds[1]) <= 0
		if op == OpNotBetween {
			return !in, nil
		}
		return in, nil
	case OpEmpty:
		return isEmptyValue(value) == truthy(want), nil
	case OpNotEmpty:
		return !isEmptyValue(value) == truthy(want), nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
	}
}

// compare orders two values numerically when both are numbers, chronologically
// when both are RFC 3339 timestamps, and as strings otherwise.
func compare(a, b any) int {
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	sa, sb := text(a), text(b)
	if ta, err := time.Parse(time.RFC3339, sa); err == nil {
		if tb, err := time.Parse(time.RFC3339, sb); err == nil {
			return ta.Compare(tb)
		}
	}
	return strings.Compare(sa, sb)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// list accepts a slice or a comma-separated string, the two forms Directus takes
// for _in and _between.
func list(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	case string:
		parts := splitList(l)
		out := make([]any, len(parts))
		for i, s := range parts {
			out[i] = s
		}
		return out
	case nil:
		return nil
	}
	return []any{v}
}

func inList(value, want any) bool {
	for _, candidate := range list(want) {
		if compare(value, candidate) == 0 {
			return true
		}
	}
	return false
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err != nil || parsed
	case nil:
		return true
	}
	return true
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

// SortItems orders items in place by a sort spec; "-field" sorts descending.
// Missing values sort first.
func SortItems(items []Item, spec []string) {
	if len(spec) == 0 {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, key := range spec {
			desc := strings.HasPrefix(key, "-")
			field := strings.TrimPrefix(key, "-")
			a, _ := Lookup(items[i], field)
			b, _ := Lookup(items[j], field)

			var cmp int
			switch {
			case a == nil && b == nil:
				cmp = 0
			case a == nil:
				cmp = -1
			case b == nil:
				cmp = 1
			default:
				cmp = compare(a, b)
			}
			if cmp == 0 {
				continue
			}
			if desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// Apply filters, sorts and pages items the way Directus would. The input slice
// is not modified.
func (q Query) Apply(items []Item) ([]Item, error) {
	result := make([]Item, 0, len(items))
	for _, item := range items {
		if q.Filter != nil {
			ok, err := q.Filter.Match(item)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		result = append(result, item)
	}

	SortItems(result, q.Sort)

	limit := Unbounded
	if q.Limit != nil {
		limit = *q.Limit
	}
	offset := 0
	switch {
	case q.Offset != nil:
		offset = *q.Offset
	case q.Page != nil && limit > 0:
		offset = (*q.Page - 1) * limit
	}

	if offset >= len(result) {
		return []Item{}, nil
	}
	result = result[offset:]
	if limit >= 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}
