// Package chart turns a function result's chart specification into the
// payload the UI renders. It validates shape only.
package chart

import (
	"strings"

	"github.com/PabloGalante/finance-assistant/internal/domain"
)

// RenderableChart is the chart data contract consumed by the UI.
type RenderableChart struct {
	Type   string         `json:"type"`
	Title  string         `json:"title,omitempty"`
	Labels []string       `json:"labels"`
	Series []RenderSeries `json:"series"`
}

type RenderSeries struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

var knownTypes = map[string]bool{
	"bar":      true,
	"line":     true,
	"pie":      true,
	"doughnut": true,
	"area":     true,
}

// Adapt returns nil when spec is nil or malformed: unknown type, no labels,
// no series, or a series whose length does not match the labels.
func Adapt(spec *domain.ChartSpec) *RenderableChart {
	if spec == nil {
		return nil
	}

	typ := strings.ToLower(strings.TrimSpace(spec.Type))
	if !knownTypes[typ] {
		return nil
	}
	if len(spec.Labels) == 0 || len(spec.Series) == 0 {
		return nil
	}

	out := &RenderableChart{
		Type:   typ,
		Title:  spec.Title,
		Labels: append([]string(nil), spec.Labels...),
		Series: make([]RenderSeries, 0, len(spec.Series)),
	}
	for _, s := range spec.Series {
		if len(s.Values) != len(spec.Labels) {
			return nil
		}
		out.Series = append(out.Series, RenderSeries{
			Name:   s.Name,
			Values: append([]float64(nil), s.Values...),
		})
	}
	return out
}

// Valid reports whether spec would render. Callers that keep the raw spec use
// it to drop charts Adapt would reject.
func Valid(spec *domain.ChartSpec) bool {
	return Adapt(spec) != nil
}
