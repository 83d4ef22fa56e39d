package query

import (
	"encoding/json"
	"testing"
)

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestBuilder_AndNestsPriorFilter(t *testing.T) {
	x := Compare("a", OpEquals, "1")
	y := Compare("b", OpEquals, "2")

	q := NewBuilder().And(x).And(y).Build()

	got := mustJSON(t, q.Filter)
	want := `{"_and":[{"_and":[{"a":{"_eq":"1"}}]},{"b":{"_eq":"2"}}]}`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestBuilder_OrWrapsWholePriorFilter(t *testing.T) {
	q := NewBuilder().
		Field("status", OpEquals, "published").
		Or(Compare("featured", OpEquals, true)).
		Build()

	got := mustJSON(t, q.Filter)
	want := `{"_or":[{"_and":[{"status":{"_eq":"published"}}]},{"featured":{"_eq":true}}]}`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestBuilder_EmptyConditionsIgnored(t *testing.T) {
	b := NewBuilder()
	b.And()
	b.Or(Condition{}, Group(And))

	if q := b.Build(); q.Filter != nil {
		t.Errorf("expected no filter, got %s", mustJSON(t, q.Filter))
	}

	b.And(Condition{}, Compare("a", OpNull, true))
	got := mustJSON(t, b.Build().Filter)
	if got != `{"_and":[{"a":{"_null":true}}]}` {
		t.Errorf("unexpected filter %s", got)
	}
}

func TestBuilder_SortReplaces(t *testing.T) {
	b := NewBuilder().Sort("name", "-created")
	b.Sort()
	if got := b.Build().Sort; len(got) != 2 || got[1] != "-created" {
		t.Fatalf("empty Sort call should keep the list, got %v", got)
	}

	b.Sort("id")
	if got := b.Build().Sort; len(got) != 1 || got[0] != "id" {
		t.Errorf("expected [id], got %v", got)
	}
}

func TestBuilder_ScalarsOverwrite(t *testing.T) {
	q := NewBuilder().Limit(10).Limit(-1).Offset(3).Page(2).Page(4).Build()

	if *q.Limit != -1 {
		t.Errorf("expected limit -1, got %d", *q.Limit)
	}
	if *q.Offset != 3 {
		t.Errorf("expected offset 3, got %d", *q.Offset)
	}
	if *q.Page != 4 {
		t.Errorf("expected page 4, got %d", *q.Page)
	}
	if err := q.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestBuilder_BuildReturnsIndependentCopy(t *testing.T) {
	b := NewBuilder().Field("tags", OpIn, []string{"a", "b"}).Sort("name").Limit(5)
	first := b.Build()

	first.Sort[0] = "mutated"
	first.Filter.Children[0].Value.([]string)[0] = "mutated"
	*first.Limit = 99

	b.Field("x", OpEquals, "y")
	second := b.Build()

	if second.Sort[0] != "name" {
		t.Errorf("sort aliased: %v", second.Sort)
	}
	if *second.Limit != 5 {
		t.Errorf("limit aliased: %d", *second.Limit)
	}
	inner := second.Filter.Children[0].Children[0]
	if inner.Value.([]string)[0] != "a" {
		t.Errorf("filter value aliased: %v", inner.Value)
	}
	if len(first.Filter.Children) != 1 {
		t.Errorf("earlier snapshot changed: %s", mustJSON(t, first.Filter))
	}
}

func TestBuilder_JSONShape(t *testing.T) {
	q := NewBuilder().
		Field("age", OpGreaterThan, "18").
		Sort("-created").
		Limit(10).
		Offset(5).
		Fields("id", "title").
		Search("go").
		Build()

	got := mustJSON(t, q)
	want := `{"filter":{"_and":[{"age":{"_gt":"18"}}]},"sort":["-created"],"limit":10,"offset":5,"fields":["id","title"],"search":"go"}`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestBuilder_BuildKeepsEmptyList(t *testing.T) {
	q := NewBuilder().Field("id", OpIn, []string{}).Build()

	got := mustJSON(t, q.Filter)
	want := `{"_and":[{"id":{"_in":[]}}]}`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
