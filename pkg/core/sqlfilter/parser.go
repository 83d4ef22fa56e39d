package sqlfilter

import (
	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

// Mode selects how AND and OR combine inside one parenthesis level.
type Mode int

const (
	// ModeLegacy lets the last AND/OR keyword of a level decide the operator for
	// every condition on that level: "a AND b OR c" becomes {_or: [a, b, c]}.
	// Directly under WHERE any OR wins, so "a OR b AND c" is {_or: [a, b, c]} too.
	ModeLegacy Mode = iota
	// ModePrecedence gives AND priority over OR:
	// "a AND b OR c" becomes {_or: [{_and: [a, b]}, c]}.
	ModePrecedence
)

// parser turns the contents of a WHERE clause into conditions. It never fails;
// input it cannot use is skipped and recorded in diags.
type parser struct {
	mode  Mode
	diags []Diagnostic
}

func (p *parser) skip(t Token, reason string) {
	p.diags = append(p.diags, Diagnostic{Pos: t.Pos, Text: t.Text, Reason: reason})
}

// where returns the conditions to AND into the query.
func (p *parser) where(tokens []Token) []query.Condition {
	if p.mode == ModePrecedence {
		root := p.parseExpression(&cursor{tokens: tokens}, 0)
		switch {
		case root.IsEmpty():
			return nil
		case root.Logic == query.And:
			return root.Children
		}
		return []query.Condition{root}
	}

	// At the top level any OR switches the whole clause to _or; a later AND
	// does not switch it back.
	conds, _, sawOr := p.scan(tokens)
	if sawOr && len(conds) > 0 {
		return []query.Condition{{Logic: query.Or, Children: conds}}
	}
	return conds
}

// group parses one parenthesis level: nothing yields the empty condition, a
// single condition is returned as is, more are joined by the level's operator.
func (p *parser) group(tokens []Token) query.Condition {
	if p.mode == ModePrecedence {
		return p.parseExpression(&cursor{tokens: tokens}, 0)
	}
	conds, logic, _ := p.scan(tokens)
	switch len(conds) {
	case 0:
		return query.Condition{}
	case 1:
		return conds[0]
	}
	return query.Condition{Logic: logic, Children: conds}
}

// scan walks one level left to right. The returned operator is the last AND/OR
// keyword seen, AND when there was none; sawOr reports whether any OR appeared.
func (p *parser) scan(tokens []Token) (conds []query.Condition, current query.LogicalOperator, sawOr bool) {
	current = query.And
	for i := 0; i < len(tokens); {
		t := tokens[i]
		switch {
		case t.IsKeyword("AND"):
			current = query.And
			i++
		case t.IsKeyword("OR"):
			current = query.Or
			sawOr = true
			i++
		case t.Kind == KindGroup:
			if c := p.group(t.Children); !c.IsEmpty() {
				conds = append(conds, c)
			}
			i++
		default:
			c, next, ok := p.comparison(tokens, i)
			if !ok {
				p.skip(t, "token does not start a comparison")
				i++
				continue
			}
			conds = append(conds, c)
			i = next
		}
	}
	return conds, current, sawOr
}

// cursor is a read position over one parenthesis level.
type cursor struct {
	tokens []Token
	pos    int
}

func (c *cursor) peek() (Token, bool) {
	if c.pos >= len(c.tokens) {
		return Token{}, false
	}
	return c.tokens[c.pos], true
}

// parseExpression is a precedence-climbing parser: AND binds with 2, OR with 1.
func (p *parser) parseExpression(c *cursor, precedence int) query.Condition {
	left := p.parsePrimary(c)

	for {
		t, ok := c.peek()
		if !ok {
			break
		}

		var (
			logic   query.LogicalOperator
			opPrecd int
		)
		switch {
		case t.IsKeyword("AND"):
			logic, opPrecd = query.And, 2
		case t.IsKeyword("OR"):
			logic, opPrecd = query.Or, 1
		default:
			p.skip(t, "expected AND or OR")
			c.pos++
			continue
		}

		if opPrecd <= precedence {
			break
		}
		c.pos++

		right := p.parseExpression(c, opPrecd)
		left = join(logic, left, right)
	}
	return left
}

func (p *parser) parsePrimary(c *cursor) query.Condition {
	for {
		t, ok := c.peek()
		if !ok {
			return query.Condition{}
		}
		switch {
		case t.Kind == KindGroup:
			c.pos++
			return p.parseExpression(&cursor{tokens: t.Children}, 0)
		case t.IsKeyword("AND", "OR"):
			p.skip(t, "missing condition before logical operator")
			c.pos++
		default:
			cond, next, ok := p.comparison(c.tokens, c.pos)
			if ok {
				c.pos = next
				return cond
			}
			p.skip(t, "token does not start a comparison")
			c.pos++
		}
	}
}

// join combines two operands, flattening operands that already use logic.
func join(logic query.LogicalOperator, left, right query.Condition) query.Condition {
	var children []query.Condition
	for _, operand := range []query.Condition{left, right} {
		switch {
		case operand.IsEmpty():
		case operand.Logic == logic:
			children = append(children, operand.Children...)
		default:
			children = append(children, operand)
		}
	}
	switch len(children) {
	case 0:
		return query.Condition{}
	case 1:
		return children[0]
	}
	return query.Condition{Logic: logic, Children: children}
}
