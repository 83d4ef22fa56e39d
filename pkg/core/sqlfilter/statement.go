package sqlfilter

import "errors"

// ErrMalformed marks fragments that could only be converted in part.
var ErrMalformed = errors.New("malformed sql fragment")

// Parse tokenizes sql into a Statement. The statement is always returned; a
// *SyntaxError reports the parts of the input that were skipped.
func Parse(sql string) (*Statement, error) {
	stmt, diags := parse(sql)
	if len(diags) > 0 {
		return stmt, &SyntaxError{Diagnostics: diags}
	}
	return stmt, nil
}

func parse(sql string) (*Statement, []Diagnostic) {
	leaves, diags := lex(sql)
	tree, treeDiags := nest(sql, leaves)
	diags = append(diags, treeDiags...)
	return &Statement{Tokens: whereClause(tree)}, diags
}

// nest folds parenthesized runs into Group nodes. An unmatched ')' is dropped; an
// unclosed '(' is closed at the end of input.
func nest(sql string, leaves []Token) ([]Token, []Diagnostic) {
	type frame struct {
		open   Token
		tokens []Token
	}
	var (
		stack = []frame{{}}
		diags []Diagnostic
	)

	closeGroup := func(end int) {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		group := Token{
			Kind:     KindGroup,
			Text:     sql[top.open.Pos:end],
			Value:    "()",
			Children: top.tokens,
			Pos:      top.open.Pos,
			End:      end,
		}
		parent := &stack[len(stack)-1]
		parent.tokens = append(parent.tokens, group)
	}

	for _, t := range leaves {
		switch {
		case t.Is(KindPunctuation, "("):
			stack = append(stack, frame{open: t})
		case t.Is(KindPunctuation, ")"):
			if len(stack) == 1 {
				diags = append(diags, Diagnostic{Pos: t.Pos, Text: t.Text, Reason: "unmatched closing parenthesis"})
				continue
			}
			closeGroup(t.End)
		default:
			top := &stack[len(stack)-1]
			top.tokens = append(top.tokens, t)
		}
	}

	for len(stack) > 1 {
		open := stack[len(stack)-1].open
		diags = append(diags, Diagnostic{Pos: open.Pos, Text: open.Text, Reason: "unclosed parenthesis"})
		closeGroup(len(sql))
	}
	return stack[0].tokens, diags
}

// whereClause replaces the top-level run from WHERE up to ORDER BY, LIMIT,
// OFFSET or the end with a single Where node.
func whereClause(tokens []Token) []Token {
	start := -1
	for i, t := range tokens {
		if t.IsKeyword("WHERE") {
			start = i
			break
		}
	}
	if start < 0 {
		return tokens
	}

	stop := len(tokens)
	for i := start + 1; i < len(tokens); i++ {
		if tokens[i].IsKeyword("ORDER BY", "LIMIT", "OFFSET") {
			stop = i
			break
		}
	}

	kw := tokens[start]
	where := Token{
		Kind:     KindWhere,
		Text:     kw.Text,
		Value:    "WHERE",
		Children: append([]Token(nil), tokens[start+1:stop]...),
		Pos:      kw.Pos,
		End:      kw.End,
	}
	if stop > start+1 {
		where.End = tokens[stop-1].End
	}

	out := make([]Token, 0, len(tokens)-(stop-start)+1)
	out = append(out, tokens[:start]...)
	out = append(out, where)
	out = append(out, tokens[stop:]...)
	return out
}
