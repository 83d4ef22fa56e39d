package query

// Builder accumulates a Query through chained calls.
//
// Combining with an existing filter wraps it: the prior filter becomes the first
// operand of the new group. Repeated calls therefore nest instead of flattening,
// and the order of calls shapes the tree.
type Builder struct {
	q Query
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Field adds {field: {op: value}} under an _and group.
func (b *Builder) Field(field string, op Operator, value any) *Builder {
	return b.And(Compare(field, op, value))
}

// And groups conds under _and.
func (b *Builder) And(conds ...Condition) *Builder {
	return b.Nested(And, conds...)
}

// Or groups conds under _or.
func (b *Builder) Or(conds ...Condition) *Builder {
	return b.Nested(Or, conds...)
}

// Nested sets the filter to {logic: conds}, or to {logic: [prior, conds...]} when a
// filter is already present. A call without non-empty conditions changes nothing.
func (b *Builder) Nested(logic LogicalOperator, conds ...Condition) *Builder {
	kept := nonEmpty(conds)
	if len(kept) == 0 {
		return b
	}
	children := make([]Condition, 0, len(kept)+1)
	if b.q.Filter != nil && !b.q.Filter.IsEmpty() {
		children = append(children, *b.q.Filter)
	}
	for _, c := range kept {
		children = append(children, c.Clone())
	}
	b.q.Filter = &Condition{Logic: logic, Children: children}
	return b
}

// Sort replaces the sort list. Calling it with no fields keeps the current list.
func (b *Builder) Sort(fields ...string) *Builder {
	if len(fields) == 0 {
		return b
	}
	b.q.Sort = append([]string(nil), fields...)
	return b
}

func (b *Builder) Limit(n int) *Builder {
	b.q.Limit = &n
	return b
}

func (b *Builder) Offset(n int) *Builder {
	b.q.Offset = &n
	return b
}

func (b *Builder) Page(n int) *Builder {
	b.q.Page = &n
	return b
}

// Fields replaces the list of returned fields.
func (b *Builder) Fields(fields ...string) *Builder {
	b.q.Fields = append([]string(nil), fields...)
	return b
}

// Search sets the full-text search term.
func (b *Builder) Search(term string) *Builder {
	b.q.Search = term
	return b
}

// Build returns a snapshot of the query. Later calls on b do not affect it.
func (b *Builder) Build() Query {
	return b.q.Clone()
}
