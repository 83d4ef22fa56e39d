package query

// Operator is a Directus field-level filter operator such as "_eq".
type Operator string

// Field operators understood by the Directus filter syntax.
const (
	OpEquals         Operator = "_eq"
	OpNotEquals      Operator = "_neq"
	OpLessThan       Operator = "_lt"
	OpLessOrEqual    Operator = "_lte"
	OpGreaterThan    Operator = "_gt"
	OpGreaterOrEqual Operator = "_gte"
	OpIn             Operator = "_in"
	OpNotIn          Operator = "_nin"
	OpNull           Operator = "_null"
	OpNotNull        Operator = "_nnull"
	OpContains       Operator = "_contains"
	OpNotContains    Operator = "_ncontains"
	OpStartsWith     Operator = "_starts_with"
	OpEndsWith       Operator = "_ends_with"
	OpBetween        Operator = "_between"
	OpNotBetween     Operator = "_nbetween"
	OpEmpty          Operator = "_empty"
	OpNotEmpty       Operator = "_nempty"
)

// LogicalOperator joins child conditions.
type LogicalOperator string

const (
	And LogicalOperator = "_and"
	Or  LogicalOperator = "_or"
)

// Operators lists every field operator in declaration order.
func Operators() []Operator {
	return []Operator{
		OpEquals, OpNotEquals, OpLessThan, OpLessOrEqual, OpGreaterThan, OpGreaterOrEqual,
		OpIn, OpNotIn, OpNull, OpNotNull, OpContains, OpNotContains,
		OpStartsWith, OpEndsWith, OpBetween, OpNotBetween, OpEmpty, OpNotEmpty,
	}
}

// IsLogical reports whether key names an _and/_or group.
func IsLogical(key string) bool {
	return key == string(And) || key == string(Or)
}
