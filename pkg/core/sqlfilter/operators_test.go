package sqlfilter

import (
	"testing"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

func TestMapOperator(t *testing.T) {
	tests := []struct {
		input string
		want  query.Operator
	}{
		{"=", query.OpEquals},
		{"!=", query.OpNotEquals},
		{"<>", query.OpNotEquals},
		{"<", query.OpLessThan},
		{"<=", query.OpLessOrEqual},
		{">", query.OpGreaterThan},
		{">=", query.OpGreaterOrEqual},
		{"IN", query.OpIn},
		{"in", query.OpIn},
		{"NOT IN", query.OpNotIn},
		{"not   in", query.OpNotIn},
		{"IS NULL", query.OpNull},
		{"is not null", query.OpNotNull},
		{"LIKE", query.OpContains},
		{"Not Like", query.OpNotContains},
		{"BETWEEN", query.OpBetween},
		{"NOT BETWEEN", query.OpNotBetween},
		{"_starts_with", query.OpStartsWith},
		{"REGEXP", query.Operator("REGEXP")},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := MapOperator(tt.input); got != tt.want {
				t.Errorf("MapOperator(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
