// Package sqlfilter translates SELECT-less SQL fragments such as
//
//	WHERE (status = 'draft' OR featured = 1) AND author IN (1, 2) ORDER BY -date LIMIT 10
//
// into Directus query objects.
package sqlfilter

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

// Converter turns SQL fragments into queries. It holds no per-call state and is
// safe for concurrent use.
type Converter struct {
	mode   Mode
	logger zerolog.Logger
}

// Option configures a Converter.
type Option func(*Converter)

// WithMode selects how AND and OR combine. The default is ModeLegacy.
func WithMode(m Mode) Option {
	return func(c *Converter) { c.mode = m }
}

// WithLogger sets the logger skipped input is reported to.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Converter) { c.logger = l }
}

// NewConverter creates a converter.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{logger: log.Logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert translates sql. Malformed input yields whatever could be read; the
// skipped parts are logged at debug level.
func (c *Converter) Convert(sql string) query.Query {
	q, diags := c.ConvertWithDiagnostics(sql)
	for _, d := range diags {
		c.logger.Debug().
			Int("pos", d.Pos).
			Str("token", d.Text).
			Str("sql", sql).
			Msg(d.Reason)
	}
	return q
}

// ConvertWithDiagnostics translates sql and returns the skipped parts.
func (c *Converter) ConvertWithDiagnostics(sql string) (query.Query, []Diagnostic) {
	stmt, diags := parse(Format(sql))

	p := &parser{mode: c.mode}
	b := query.NewBuilder()
	if where, ok := stmt.Where(); ok {
		b.And(p.where(where.Children)...)
	}

	flat := stmt.Flatten()
	b.Sort(ExtractOrderBy(flat)...)
	if n, ok := ExtractBound(flat, "LIMIT"); ok {
		b.Limit(n)
	}
	if n, ok := ExtractBound(flat, "OFFSET"); ok {
		b.Offset(n)
	}

	return b.Build(), append(diags, p.diags...)
}

// Validate reports every part of sql that Convert would skip.
func (c *Converter) Validate(sql string) error {
	if _, diags := c.ConvertWithDiagnostics(sql); len(diags) > 0 {
		return &SyntaxError{Diagnostics: diags}
	}
	return nil
}

// Convert translates sql with a default converter.
func Convert(sql string) query.Query {
	return NewConverter().Convert(sql)
}
