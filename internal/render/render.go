// Package render reconciles a declarative visualization spec against an
// arbitrary tabular result set and produces render-ready series and top-N
// models. The spec's field names are intent, not literal column names (the
// SQL producing the rows was generated independently and aliases freely),
// so a heuristic Field Resolver bridges the two before anything is built.
//
// The whole package is a pure synchronous transform: no I/O, no shared
// state, no caching. It is safe to call concurrently from independent
// rendering contexts, and one implementation serves inline charts,
// full-screen charts and top-result summaries alike so they can never
// disagree.
package render

import "github.com/facet-labs/facet/pkg/models"

// Engine runs the transform with a pluggable field resolver.
type Engine struct {
	resolver FieldResolver
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolver replaces the heuristic resolver, e.g. with an explicit
// schema-mapping contract agreed with the SQL generator.
func WithResolver(r FieldResolver) Option {
	return func(e *Engine) {
		if r != nil {
			e.resolver = r
		}
	}
}

// New returns an Engine with the default heuristic resolver.
func New(opts ...Option) *Engine {
	e := &Engine{resolver: NewResolver()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transform runs both reductions over one (spec, rows) input. Table specs
// skip series building (the caller renders the raw rows) but the ranked
// summary is always produced. The result is immutable per input; callers
// recompute only when the spec or rows change.
func (e *Engine) Transform(spec models.VizSpec, rs RowSet, limit int) Output {
	spec.Normalize()
	var out Output
	if spec.Type == models.ChartTable {
		out.Series = Series{Kind: KindTable}
	} else {
		out.Series = e.BuildSeries(spec, rs)
	}
	out.Top = e.TopItems(spec, rs, limit)
	return out
}

var std = New()

// Transform runs the default engine. See Engine.Transform.
func Transform(spec models.VizSpec, rs RowSet, limit int) Output {
	return std.Transform(spec, rs, limit)
}

// BuildSeries runs the default engine's series builder.
func BuildSeries(spec models.VizSpec, rs RowSet) Series {
	return std.BuildSeries(spec, rs)
}

// TopItems runs the default engine's ranking summarizer.
func TopItems(spec models.VizSpec, rs RowSet, limit int) []RankedItem {
	return std.TopItems(spec, rs, limit)
}
