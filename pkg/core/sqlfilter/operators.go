package sqlfilter

import (
	"strings"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

var operatorTable = map[string]query.Operator{
	"=":           query.OpEquals,
	"!=":          query.OpNotEquals,
	"<>":          query.OpNotEquals,
	"<":           query.OpLessThan,
	"<=":          query.OpLessOrEqual,
	">":           query.OpGreaterThan,
	">=":          query.OpGreaterOrEqual,
	"IN":          query.OpIn,
	"NOT IN":      query.OpNotIn,
	"IS NULL":     query.OpNull,
	"IS NOT NULL": query.OpNotNull,
	"LIKE":        query.OpContains,
	"NOT LIKE":    query.OpNotContains,
	"BETWEEN":     query.OpBetween,
	"NOT BETWEEN": query.OpNotBetween,
}

// MapOperator translates a SQL operator to its Directus counterpart. Lookup
// ignores case and extra inner whitespace; unknown operators are returned as is.
func MapOperator(op string) query.Operator {
	key := strings.ToUpper(strings.Join(strings.Fields(op), " "))
	if mapped, ok := operatorTable[key]; ok {
		return mapped
	}
	return query.Operator(op)
}
