package sqlfilter

import (
	"strings"
	"unicode/utf8"

	"github.com/xwb1989/sqlparser"
)

// keywords are the words the translator gives meaning to. Every other word is an
// identifier, even when the MySQL tokenizer reserves it (status, date, key...).
var keywords = map[string]bool{
	"WHERE":   true,
	"AND":     true,
	"OR":      true,
	"NOT":     true,
	"IN":      true,
	"IS":      true,
	"NULL":    true,
	"LIKE":    true,
	"BETWEEN": true,
	"ORDER":   true,
	"BY":      true,
	"ASC":     true,
	"DESC":    true,
	"LIMIT":   true,
	"OFFSET":  true,
}

// lex splits sql into leaf tokens using the sqlparser tokenizer. Lexical errors
// are reported as diagnostics and scanning continues.
func lex(sql string) ([]Token, []Diagnostic) {
	tkn := sqlparser.NewStringTokenizer(sql)

	var (
		tokens  []Token
		diags   []Diagnostic
		prevEnd int
		// indexes of multi-byte spans the tokenizer rejected
		wide = map[int]bool{}
	)
	for {
		typ, val := tkn.Scan()

		end := tkn.Position - 1
		if end < prevEnd {
			end = prevEnd
		}
		if end > len(sql) {
			end = len(sql)
		}
		span := sql[prevEnd:end]
		raw := strings.TrimSpace(span)
		pos := prevEnd + len(span) - len(strings.TrimLeft(span, " \t\r\n\f\v"))
		prevEnd = end

		switch typ {
		case 0:
			tokens, diags = joinWide(sql, tokens, wide, diags)
			return merge(tokens), diags
		case sqlparser.LEX_ERROR:
			if isWide(raw) {
				wide[len(tokens)] = true
				tokens = append(tokens, Token{Kind: KindIdentifier, Text: raw, Value: raw, Pos: pos, End: end})
				continue
			}
			diags = append(diags, Diagnostic{Pos: pos, Text: raw, Reason: "unrecognized input"})
			continue
		case sqlparser.COMMENT:
			continue
		}

		t := classify(typ, val, raw)
		t.Pos, t.End = pos, end
		tokens = append(tokens, t)
	}
}

func classify(typ int, val []byte, raw string) Token {
	text := raw
	if text == "" {
		text = string(val)
	}

	switch typ {
	case sqlparser.STRING:
		return Token{Kind: KindLiteral, Text: text, Value: string(val), Quoted: true}
	case sqlparser.INTEGRAL, sqlparser.FLOAT, sqlparser.HEXNUM:
		return Token{Kind: KindLiteral, Text: text, Value: string(val)}
	case sqlparser.NE, sqlparser.LE, sqlparser.GE, sqlparser.NULL_SAFE_EQUAL:
		return Token{Kind: KindComparison, Text: text, Value: text}
	}

	if typ > 0 && typ < 256 {
		sym := string(rune(typ))
		switch sym {
		case "=", "<", ">":
			return Token{Kind: KindComparison, Text: sym, Value: sym}
		}
		return Token{Kind: KindPunctuation, Text: sym, Value: sym}
	}

	word := string(val)
	if strings.HasPrefix(raw, "`") {
		return Token{Kind: KindIdentifier, Text: text, Value: word}
	}
	if !isWord(word) {
		return Token{Kind: KindLiteral, Text: text, Value: word}
	}
	if upper := strings.ToUpper(word); keywords[upper] {
		return Token{Kind: KindKeyword, Text: text, Value: upper}
	}
	// The tokenizer lower-cases words it knows as MySQL keywords; recover the
	// caller's spelling from the source.
	if strings.EqualFold(raw, word) {
		word = raw
	}
	return Token{Kind: KindIdentifier, Text: text, Value: word}
}

func isWide(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x80 {
			return false
		}
	}
	return true
}

// joinWide glues the non-ASCII spans the tokenizer rejects back onto the
// adjacent word pieces, so "café" stays one identifier. Spans that do not
// form valid UTF-8 are reported and dropped.
func joinWide(sql string, tokens []Token, wide map[int]bool, diags []Diagnostic) ([]Token, []Diagnostic) {
	if len(wide) == 0 {
		return tokens, diags
	}

	out := make([]Token, 0, len(tokens))
	lastWide := false
	for i, t := range tokens {
		if n := len(out); n > 0 && (wide[i] || lastWide) && out[n-1].End == t.Pos &&
			wordPiece(out[n-1], lastWide) && wordPiece(t, wide[i]) {
			prev := &out[n-1]
			prev.End = t.End
			prev.Text = sql[prev.Pos:prev.End]
			prev.Kind = KindIdentifier
			prev.Value = prev.Text
			lastWide = true
			continue
		}
		out = append(out, t)
		lastWide = wide[i]
	}

	kept := out[:0]
	for _, t := range out {
		if t.Kind == KindIdentifier && !utf8.ValidString(t.Value) {
			diags = append(diags, Diagnostic{Pos: t.Pos, Text: t.Text, Reason: "unrecognized input"})
			continue
		}
		kept = append(kept, t)
	}
	return kept, diags
}

func wordPiece(t Token, wide bool) bool {
	switch t.Kind {
	case KindIdentifier:
		return wide || !strings.HasPrefix(t.Text, "`")
	case KindKeyword:
		return true
	case KindLiteral:
		return !t.Quoted && isWord(t.Value) || isNumber(t)
	}
	return false
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return c == '_' || c == '@' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

// merge joins token sequences the tokenizer reports separately: ORDER BY, dotted
// field paths and negative numbers.
func merge(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		switch {
		case t.IsKeyword("ORDER") && i+1 < len(tokens) && tokens[i+1].IsKeyword("BY"):
			by := tokens[i+1]
			out = append(out, Token{Kind: KindKeyword, Text: t.Text + " " + by.Text, Value: "ORDER BY", Pos: t.Pos, End: by.End})
			i++

		case t.Is(KindPunctuation, ".") && len(out) > 0 && out[len(out)-1].Kind == KindIdentifier &&
			i+1 < len(tokens) && tokens[i+1].Kind == KindIdentifier:
			prev := &out[len(out)-1]
			next := tokens[i+1]
			prev.Value += "." + next.Value
			prev.Text += "." + next.Text
			prev.End = next.End
			i++

		case t.Is(KindPunctuation, "-") && i+1 < len(tokens) && isNumber(tokens[i+1]) && signPosition(out):
			next := tokens[i+1]
			out = append(out, Token{Kind: KindLiteral, Text: "-" + next.Text, Value: "-" + next.Value, Pos: t.Pos, End: next.End})
			i++

		default:
			out = append(out, t)
		}
	}
	return out
}

func isNumber(t Token) bool {
	return t.Kind == KindLiteral && !t.Quoted && t.Value != "" && (t.Value[0] >= '0' && t.Value[0] <= '9' || t.Value[0] == '.')
}

// signPosition reports whether a '-' following prev is a unary minus.
func signPosition(prev []Token) bool {
	if len(prev) == 0 {
		return true
	}
	last := prev[len(prev)-1]
	switch last.Kind {
	case KindComparison:
		return true
	case KindKeyword:
		return !last.IsKeyword("NULL")
	case KindPunctuation:
		return last.Value == "(" || last.Value == ","
	}
	return false
}
