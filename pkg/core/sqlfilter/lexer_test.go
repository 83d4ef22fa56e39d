package sqlfilter

import (
	"errors"
	"testing"
)

func TestLex_Classification(t *testing.T) {
	tokens, diags := lex("WHERE Status <> 'x y' AND author.name LIKE \"%a%\" AND n >= -2.5 ORDER BY `order` DESC")
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	want := []struct {
		kind  Kind
		value string
	}{
		{KindKeyword, "WHERE"},
		{KindIdentifier, "Status"},
		{KindComparison, "<>"},
		{KindLiteral, "x y"},
		{KindKeyword, "AND"},
		{KindIdentifier, "author.name"},
		{KindKeyword, "LIKE"},
		{KindLiteral, "%a%"},
		{KindKeyword, "AND"},
		{KindIdentifier, "n"},
		{KindComparison, ">="},
		{KindLiteral, "-2.5"},
		{KindKeyword, "ORDER BY"},
		{KindIdentifier, "order"},
		{KindKeyword, "DESC"},
	}

	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(tokens), tokens)
	}
	for i, w := range want {
		if tokens[i].Kind != w.kind || tokens[i].Value != w.value {
			t.Errorf("token %d: expected %s(%s), got %s(%s)", i, w.kind, w.value, tokens[i].Kind, tokens[i].Value)
		}
	}
	if !tokens[3].Quoted || tokens[3].Text != "'x y'" {
		t.Errorf("string literal should keep its source text, got %+v", tokens[3])
	}
}

func TestLex_Positions(t *testing.T) {
	sql := "WHERE  age > 18"
	tokens, _ := lex(sql)
	for _, tok := range tokens {
		if got := sql[tok.Pos:tok.End]; got != tok.Text {
			t.Errorf("token %s: source slice %q does not match text %q", tok, got, tok.Text)
		}
	}
}

func TestLex_NonASCIIIdentifiers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Trailing accent", "café = 'é'", "café"},
		{"Leading accent", "état = 1", "état"},
		{"Inner accent", "prénom = 'x'", "prénom"},
		{"Relational path", "auteur.prénom = 'x'", "auteur.prénom"},
		{"Cyrillic", "статус = 'x'", "статус"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, diags := lex(tt.input)
			if len(diags) != 0 {
				t.Fatalf("unexpected diagnostics: %v", diags)
			}
			if len(tokens) != 3 {
				t.Fatalf("expected 3 tokens, got %d: %v", len(tokens), tokens)
			}
			if tokens[0].Kind != KindIdentifier || tokens[0].Value != tt.want {
				t.Errorf("expected identifier %q, got %s(%q)", tt.want, tokens[0].Kind, tokens[0].Value)
			}
			if got := tt.input[tokens[0].Pos:tokens[0].End]; got != tokens[0].Text {
				t.Errorf("source slice %q does not match text %q", got, tokens[0].Text)
			}
		})
	}
}

func TestLex_InvalidUTF8(t *testing.T) {
	tokens, diags := lex("a\xff = 1")
	if len(diags) != 1 {
		t.Fatalf("expected one diagnostic, got %v", diags)
	}
	for _, tok := range tokens {
		if tok.Kind == KindIdentifier {
			t.Errorf("broken identifier should be dropped, got %q", tok.Value)
		}
	}
}

func TestLex_UnterminatedString(t *testing.T) {
	_, diags := lex("WHERE name = 'abc")
	if len(diags) == 0 {
		t.Fatal("expected a diagnostic for the unterminated string")
	}
}

func TestParse_Tree(t *testing.T) {
	stmt, err := Parse("WHERE ( a = 1 OR ( b = 2 ) ) AND c IN ( 1 , 2 ) ORDER BY x LIMIT 2")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	kinds := []Kind{KindWhere, KindKeyword, KindIdentifier, KindKeyword, KindLiteral}
	if len(stmt.Tokens) != len(kinds) {
		t.Fatalf("expected %d top-level tokens, got %v", len(kinds), stmt.Tokens)
	}
	for i, k := range kinds {
		if stmt.Tokens[i].Kind != k {
			t.Errorf("top-level token %d: expected %s, got %s", i, k, stmt.Tokens[i].Kind)
		}
	}

	where, ok := stmt.Where()
	if !ok {
		t.Fatal("expected a WHERE node")
	}
	if len(where.Children) != 5 {
		t.Fatalf("expected 5 WHERE children, got %v", where.Children)
	}
	outer := where.Children[0]
	if outer.Kind != KindGroup || outer.Text != "( a = 1 OR ( b = 2 ) )" {
		t.Errorf("unexpected outer group %+v", outer)
	}
	if inner := outer.Children[4]; inner.Kind != KindGroup || len(inner.Children) != 3 {
		t.Errorf("unexpected inner group %+v", inner)
	}

	flat := stmt.Flatten()
	if flat[0].Value != "WHERE" || flat[1].Value != "(" || flat[len(flat)-1].Value != "2" {
		t.Errorf("unexpected flat stream %v", flat)
	}
	for _, tok := range flat {
		if tok.Kind == KindGroup || tok.Kind == KindWhere {
			t.Errorf("flat stream contains composite token %s", tok)
		}
	}
}

func TestParse_UnbalancedParentheses(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"Stray close", "WHERE a = 1 )"},
		{"Unclosed open", "WHERE ( a = 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := Parse(tt.input)
			var syntaxErr *SyntaxError
			if !errors.As(err, &syntaxErr) || !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected *SyntaxError wrapping ErrMalformed, got %v", err)
			}
			if _, ok := stmt.Where(); !ok {
				t.Error("statement should still carry the WHERE clause")
			}
		})
	}
}
