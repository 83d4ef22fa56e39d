package sqlfilter

import "strings"

// Format normalizes a fragment: parentheses are set off by single spaces and
// whitespace runs collapse to one space. Quoted text is left untouched.
// Format(Format(s)) == Format(s).
func Format(sql string) string {
	var (
		b       strings.Builder
		pending bool
	)
	b.Grow(len(sql) + 8)

	emit := func(s string) {
		if pending && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pending = false
		b.WriteString(s)
	}

	for i := 0; i < len(sql); {
		switch ch := sql[i]; {
		case ch == '\'' || ch == '"' || ch == '`':
			end := quotedEnd(sql, i)
			emit(sql[i:end])
			i = end
		case ch == '(' || ch == ')':
			pending = true
			emit(sql[i : i+1])
			pending = true
			i++
		case isSpace(ch):
			pending = true
			i++
		default:
			emit(sql[i : i+1])
			i++
		}
	}
	return b.String()
}

// quotedEnd returns the index just past the quoted run starting at i. Doubled
// quotes and backslash escapes stay inside the run.
func quotedEnd(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		switch {
		case s[j] == '\\' && q != '`':
			j++
		case s[j] == q:
			if j+1 < len(s) && s[j+1] == q {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(s)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}
