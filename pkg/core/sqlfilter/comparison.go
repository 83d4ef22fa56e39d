package sqlfilter

import (
	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

// comparison parses the comparison starting at tokens[i] and returns the index of
// the first token after it.
//
//	field <op> value
//	field [NOT] IN (v1, v2, ...)
//	field [NOT] LIKE value
//	field [NOT] BETWEEN low AND high
//	field IS [NOT] NULL
func (p *parser) comparison(tokens []Token, i int) (query.Condition, int, bool) {
	left := tokens[i]
	if left.Kind != KindIdentifier && left.Kind != KindLiteral {
		return query.Condition{}, i, false
	}
	field := left.Value

	at := func(k int) Token {
		if k < len(tokens) {
			return tokens[k]
		}
		return Token{}
	}

	j := i + 1
	op := at(j)
	switch {
	case op.Kind == KindComparison:
		value, ok := scalar(at(j + 1))
		if !ok {
			return query.Condition{}, i, false
		}
		return query.Compare(field, MapOperator(op.Value), value), j + 2, true

	case op.IsKeyword("IN"):
		return listComparison(field, "IN", at(j+1), j+2)

	case op.IsKeyword("LIKE"):
		value, ok := scalar(at(j + 1))
		if !ok {
			return query.Condition{}, i, false
		}
		return query.Compare(field, MapOperator("LIKE"), value), j + 2, true

	case op.IsKeyword("BETWEEN"):
		return between(field, "BETWEEN", tokens, j+1)

	case op.IsKeyword("NOT"):
		next := at(j + 1)
		switch {
		case next.IsKeyword("IN"):
			return listComparison(field, "NOT IN", at(j+2), j+3)
		case next.IsKeyword("LIKE"):
			value, ok := scalar(at(j + 2))
			if !ok {
				return query.Condition{}, i, false
			}
			return query.Compare(field, MapOperator("NOT LIKE"), value), j + 3, true
		case next.IsKeyword("BETWEEN"):
			return between(field, "NOT BETWEEN", tokens, j+2)
		}

	case op.IsKeyword("IS"):
		next := at(j + 1)
		switch {
		case next.IsKeyword("NULL"):
			return query.Compare(field, MapOperator("IS NULL"), true), j + 2, true
		case next.IsKeyword("NOT") && at(j+2).IsKeyword("NULL"):
			return query.Compare(field, MapOperator("IS NOT NULL"), true), j + 3, true
		}
	}
	return query.Condition{}, i, false
}

func listComparison(field, sqlOp string, group Token, next int) (query.Condition, int, bool) {
	if group.Kind != KindGroup {
		return query.Condition{}, 0, false
	}
	return query.Compare(field, MapOperator(sqlOp), listValues(group.Children)), next, true
}

func between(field, sqlOp string, tokens []Token, k int) (query.Condition, int, bool) {
	if k+2 >= len(tokens) || !tokens[k+1].IsKeyword("AND") {
		return query.Condition{}, 0, false
	}
	low, okLow := scalar(tokens[k])
	high, okHigh := scalar(tokens[k+2])
	if !okLow || !okHigh {
		return query.Condition{}, 0, false
	}
	return query.Compare(field, MapOperator(sqlOp), []string{low, high}), k + 3, true
}

// scalar is the value of a right-hand operand with its quotes removed.
func scalar(t Token) (string, bool) {
	switch {
	case t.Kind == KindLiteral, t.Kind == KindIdentifier:
		return t.Value, true
	case t.IsKeyword("NULL"):
		return t.Text, true
	}
	return "", false
}

// listValues splits the contents of an IN group on commas. Elements made of
// several tokens keep their source text.
func listValues(tokens []Token) []string {
	values := []string{}
	var element []Token

	flush := func() {
		switch len(element) {
		case 0:
		case 1:
			if v, ok := scalar(element[0]); ok {
				values = append(values, v)
			} else {
				values = append(values, element[0].Text)
			}
		default:
			text := element[0].Text
			for _, t := range element[1:] {
				text += " " + t.Text
			}
			values = append(values, text)
		}
		element = element[:0]
	}

	for _, t := range tokens {
		if t.Is(KindPunctuation, ",") {
			flush()
			continue
		}
		element = append(element, t)
	}
	flush()
	return values
}
