package query

import (
	"errors"
	"net/url"
	"testing"
)

func TestQuery_ValuesRoundTrip(t *testing.T) {
	q := NewBuilder().
		Field("status", OpIn, []string{"draft", "published"}).
		Sort("title", "-date_created").
		Limit(25).
		Page(2).
		Fields("id", "title").
		Search("hello world").
		Build()

	v, err := q.Values()
	if err != nil {
		t.Fatalf("values: %v", err)
	}

	if got := v.Get("filter"); got != `{"_and":[{"status":{"_in":["draft","published"]}}]}` {
		t.Errorf("unexpected filter param %s", got)
	}
	if got := v.Get("sort"); got != "title,-date_created" {
		t.Errorf("unexpected sort param %s", got)
	}
	if got := v.Get("limit"); got != "25" {
		t.Errorf("unexpected limit param %s", got)
	}
	if v.Has("offset") {
		t.Error("offset should be absent")
	}

	back, err := FromValues(v)
	if err != nil {
		t.Fatalf("from values: %v", err)
	}
	if mustJSON(t, back) != mustJSON(t, q) {
		t.Errorf("round trip mismatch:\n%s\n%s", mustJSON(t, q), mustJSON(t, back))
	}
}

func TestQuery_FromValuesErrors(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
		target error
	}{
		{"Bad filter", url.Values{"filter": {`{"_eq":1}`}}, ErrInvalidCondition},
		{"Limit below -1", url.Values{"limit": {"-2"}}, ErrInvalidLimit},
		{"Negative offset", url.Values{"offset": {"-1"}}, ErrInvalidOffset},
		{"Page zero", url.Values{"page": {"0"}}, ErrInvalidPage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromValues(tt.values); !errors.Is(err, tt.target) {
				t.Errorf("expected %v, got %v", tt.target, err)
			}
		})
	}

	if _, err := FromValues(url.Values{"limit": {"ten"}}); err == nil {
		t.Error("expected error for non-numeric limit")
	}
}

func TestQuery_IsZero(t *testing.T) {
	if !(Query{}).IsZero() {
		t.Error("zero query should report IsZero")
	}
	if NewBuilder().Limit(1).Build().IsZero() {
		t.Error("query with limit should not be zero")
	}
}
