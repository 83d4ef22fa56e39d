package sqlfilter

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ExtractOrderBy collects the sort spec following ORDER BY in a flat token
// stream. DESC, or a leading '-', marks a field descending.
func ExtractOrderBy(flat []Token) []string {
	var (
		fields     []string
		collecting bool
		negate     bool
	)
	for _, t := range flat {
		if !collecting {
			collecting = t.IsKeyword("ORDER BY")
			continue
		}

		switch {
		case t.IsKeyword("LIMIT", "OFFSET"), t.Is(KindPunctuation, ";"):
			return fields
		case t.Is(KindPunctuation, ","), t.IsKeyword("ASC"):
		case t.IsKeyword("DESC"):
			if n := len(fields); n > 0 && !strings.HasPrefix(fields[n-1], "-") {
				fields[n-1] = "-" + fields[n-1]
			}
		case t.Is(KindPunctuation, "-"):
			negate = true
		default:
			name := t.Value
			if negate {
				name = "-" + name
				negate = false
			}
			fields = append(fields, name)
		}
	}
	return fields
}

// ExtractBound returns the unsigned integer following the first occurrence of
// keyword. Anything else counts as absent.
func ExtractBound(flat []Token, keyword string) (int, bool) {
	for i, t := range flat {
		if !t.IsKeyword(keyword) {
			continue
		}
		if i+1 >= len(flat) {
			return 0, false
		}
		v := flat[i+1]
		if v.Kind != KindLiteral || v.Quoted {
			return 0, false
		}
		if !isDigits(v.Value) {
			return 0, false
		}
		n, err := strconv.Atoi(v.Value)
		if errors.Is(err, strconv.ErrRange) {
			return math.MaxInt, true
		}
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
