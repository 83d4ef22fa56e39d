package query

import (
	"errors"
	"testing"
)

func sampleItems() []Item {
	return []Item{
		{"id": float64(1), "name": "Alice", "age": float64(30), "status": "active", "author": map[string]any{"name": "Ann"}},
		{"id": float64(2), "name": "Bob", "age": float64(25), "status": "inactive", "tags": []any{}},
		{"id": float64(3), "name": "Charlie", "age": float64(35), "status": "active", "deleted_at": "2024-01-02T00:00:00Z"},
		{"id": float64(4), "name": "Dave", "age": nil, "status": "pending"},
	}
}

func ids(items []Item) []float64 {
	out := make([]float64, len(items))
	for i, it := range items {
		out[i] = it["id"].(float64)
	}
	return out
}

func equalIDs(a []float64, b ...float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCondition_Match(t *testing.T) {
	tests := []struct {
		name string
		cond Condition
		want []float64
	}{
		{"Equals string number", Compare("age", OpEquals, "30"), []float64{1}},
		{"Not equals includes null", Compare("age", OpNotEquals, "30"), []float64{2, 3, 4}},
		{"Greater than", Compare("age", OpGreaterThan, "28"), []float64{1, 3}},
		{"Less or equal", Compare("age", OpLessOrEqual, 30), []float64{1, 2}},
		{"In list", Compare("status", OpIn, []string{"active", "pending"}), []float64{1, 3, 4}},
		{"In comma string", Compare("status", OpIn, "inactive,pending"), []float64{2, 4}},
		{"Not in", Compare("status", OpNotIn, []any{"active"}), []float64{2, 4}},
		{"Null", Compare("age", OpNull, true), []float64{4}},
		{"Not null", Compare("deleted_at", OpNotNull, true), []float64{3}},
		{"Contains", Compare("name", OpContains, "li"), []float64{1, 3}},
		{"Starts with", Compare("name", OpStartsWith, "B"), []float64{2}},
		{"Ends with", Compare("name", OpEndsWith, "e"), []float64{1, 3, 4}},
		{"Between", Compare("age", OpBetween, []string{"25", "30"}), []float64{1, 2}},
		{"Not between", Compare("age", OpNotBetween, []string{"25", "30"}), []float64{3, 4}},
		{"Empty", Compare("tags", OpEmpty, true), []float64{1, 2, 3, 4}},
		{"Relational path", Compare("author.name", OpEquals, "Ann"), []float64{1}},
		{
			"Or of ands",
			Group(Or,
				Group(And, Compare("status", OpEquals, "active"), Compare("age", OpGreaterThan, 31)),
				Compare("name", OpEquals, "Bob")),
			[]float64{2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Query{Filter: &tt.cond}
			got, err := q.Apply(sampleItems())
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if !equalIDs(ids(got), tt.want...) {
				t.Errorf("expected ids %v, got %v", tt.want, ids(got))
			}
		})
	}
}

func TestCondition_MatchUnsupportedOperator(t *testing.T) {
	_, err := Compare("a", "_regex", "x").Match(Item{"a": "x"})
	if !errors.Is(err, ErrUnsupportedOperator) {
		t.Errorf("expected ErrUnsupportedOperator, got %v", err)
	}
}

func TestQuery_ApplySortAndPage(t *testing.T) {
	items := sampleItems()

	tests := []struct {
		name  string
		query Query
		want  []float64
	}{
		{"Sort asc nulls first", NewBuilder().Sort("age").Build(), []float64{4, 2, 1, 3}},
		{"Sort desc", NewBuilder().Sort("-age").Build(), []float64{3, 1, 2, 4}},
		{"Multi key", NewBuilder().Sort("status", "-name").Build(), []float64{3, 1, 2, 4}},
		{"Limit offset", NewBuilder().Sort("id").Limit(2).Offset(1).Build(), []float64{2, 3}},
		{"Page", NewBuilder().Sort("id").Limit(3).Page(2).Build(), []float64{4}},
		{"Unbounded", NewBuilder().Limit(-1).Build(), []float64{1, 2, 3, 4}},
		{"Offset past end", NewBuilder().Offset(10).Build(), []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.query.Apply(items)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if !equalIDs(ids(got), tt.want...) {
				t.Errorf("expected ids %v, got %v", tt.want, ids(got))
			}
		})
	}

	if items[0]["id"].(float64) != 1 {
		t.Error("Apply must not reorder the input slice")
	}
}
