package sqlfilter

import (
	"fmt"
	"strings"
)

// Kind classifies a Token.
type Kind int

const (
	KindKeyword Kind = iota + 1
	KindIdentifier
	KindLiteral
	KindComparison
	KindPunctuation
	KindGroup
	KindWhere
)

func (k Kind) String() string {
	switch k {
	case KindKeyword:
		return "keyword"
	case KindIdentifier:
		return "identifier"
	case KindLiteral:
		return "literal"
	case KindComparison:
		return "comparison"
	case KindPunctuation:
		return "punctuation"
	case KindGroup:
		return "group"
	case KindWhere:
		return "where"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Token is one node of a tokenized fragment.
//
// Leaf kinds carry their payload in Value: keywords upper-cased ("ORDER BY"),
// identifiers as written, literals without quotes, comparisons as the operator
// symbol. Group and Where nodes carry their contents in Children.
type Token struct {
	Kind     Kind
	Text     string
	Value    string
	Quoted   bool
	Children []Token

	Pos int
	End int
}

// IsKeyword reports whether t is one of the given keywords.
func (t Token) IsKeyword(words ...string) bool {
	if t.Kind != KindKeyword {
		return false
	}
	for _, w := range words {
		if t.Value == w {
			return true
		}
	}
	return false
}

// Is reports whether t has the given kind and value.
func (t Token) Is(kind Kind, value string) bool {
	return t.Kind == kind && t.Value == value
}

func (t Token) String() string {
	if len(t.Children) > 0 {
		return fmt.Sprintf("%s(%d children)", t.Kind, len(t.Children))
	}
	return fmt.Sprintf("%s(%s)", t.Kind, t.Value)
}

// Statement is a tokenized fragment.
type Statement struct {
	// Tokens is the top-level sequence. Parenthesized groups and the WHERE clause
	// appear as single nodes with nested children.
	Tokens []Token
}

// Where returns the WHERE clause node, if any.
func (s *Statement) Where() (Token, bool) {
	for _, t := range s.Tokens {
		if t.Kind == KindWhere {
			return t, true
		}
	}
	return Token{}, false
}

// Flatten returns the leaf tokens in source order. Groups expand to their
// parentheses and contents, the WHERE node to its keyword and contents.
func (s *Statement) Flatten() []Token {
	return flatten(nil, s.Tokens)
}

func flatten(dst, tokens []Token) []Token {
	for _, t := range tokens {
		switch t.Kind {
		case KindGroup:
			dst = append(dst, Token{Kind: KindPunctuation, Text: "(", Value: "(", Pos: t.Pos, End: t.Pos + 1})
			dst = flatten(dst, t.Children)
			dst = append(dst, Token{Kind: KindPunctuation, Text: ")", Value: ")", Pos: t.End - 1, End: t.End})
		case KindWhere:
			dst = append(dst, Token{Kind: KindKeyword, Text: "WHERE", Value: "WHERE", Pos: t.Pos, End: t.Pos + len("WHERE")})
			dst = flatten(dst, t.Children)
		default:
			dst = append(dst, t)
		}
	}
	return dst
}

// Diagnostic describes input that was skipped during conversion.
type Diagnostic struct {
	Pos    int
	Text   string
	Reason string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("pos %d: %s (%q)", d.Pos, d.Reason, d.Text)
}

// SyntaxError collects the diagnostics of a fragment.
type SyntaxError struct {
	Diagnostics []Diagnostic
}

func (e *SyntaxError) Error() string {
	parts := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		parts[i] = d.String()
	}
	return fmt.Sprintf("%s: %s", ErrMalformed, strings.Join(parts, "; "))
}

func (e *SyntaxError) Unwrap() error {
	return ErrMalformed
}
