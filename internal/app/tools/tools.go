package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/PabloGalante/finance-assistant/internal/domain"
	"github.com/PabloGalante/finance-assistant/internal/observability"
)

// ToolContext brings metadata of the call to the tool
type ToolContext struct {
	UserID    domain.UserID
	Period    domain.Period
	RequestID string
}

// Declaration describes a tool to the model. Parameters is a JSON schema.
type Declaration struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Tool is a function the model can invoke. Input is the decoded argument
// object of the call.
type Tool interface {
	Name() string
	Declaration() Declaration
	Call(ctx context.Context, tctx ToolContext, input map[string]any) (*domain.FunctionResult, error)
}

// Registry keeps tools in registration order so declarations are stable
// across calls.
type Registry struct {
	tools  []Tool
	byName map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds t, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	if _, ok := r.byName[t.Name()]; !ok {
		r.tools = append(r.tools, t)
	} else {
		for i := range r.tools {
			if r.tools[i].Name() == t.Name() {
				r.tools[i] = t
			}
		}
	}
	r.byName[t.Name()] = t
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

func (r *Registry) Declarations() []Declaration {
	out := make([]Declaration, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Declaration())
	}
	return out
}

// Execute runs the named tool. It never fails: unknown tools and tool errors
// come back as results with Success false, which the model can read.
func (r *Registry) Execute(ctx context.Context, tctx ToolContext, name string, input map[string]any) *domain.FunctionResult {
	log := observability.LoggerFromContext(ctx).With(
		zap.String("function", name),
		zap.String("user_id", string(tctx.UserID)),
	)

	t, ok := r.byName[name]
	if !ok {
		log.Warn("model called unknown function")
		return &domain.FunctionResult{FunctionName: name, Success: false, Message: "unknown function " + name}
	}

	res, err := t.Call(ctx, tctx, input)
	if err != nil {
		log.Info("function call failed", zap.Error(err))
		return &domain.FunctionResult{FunctionName: name, Success: false, Message: err.Error()}
	}
	if res == nil {
		res = &domain.FunctionResult{Success: true}
	}
	res.FunctionName = name
	return res
}

// --- internal helpers --- //

func getString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// getFloat accepts the shapes a decoded JSON number can take, including
// numbers the model sends as strings.
func getFloat(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(v, "$")), 64)
		return f, err == nil
	}
	return 0, false
}

func getStrings(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func getObjects(m map[string]any, key string) []map[string]any {
	if m == nil {
		return nil
	}
	list, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, x := range list {
		if obj, ok := x.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

func normalizeCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return defaultCurrency
	}
	return c
}

// periodArg resolves the period a read tool works on: an explicit argument
// wins over the period selected in the UI.
func periodArg(input map[string]any, tctx ToolContext) (domain.Period, error) {
	p := domain.Period(getString(input, "period"))
	if p == "" {
		p = tctx.Period
	}
	if p == "" {
		return domain.PeriodAll, nil
	}
	if !p.Valid() {
		return "", fmt.Errorf("invalid period %q, want YYYY-MM or all", p)
	}
	return p, nil
}

func formatMoney(amount float64, currency string) string {
	return fmt.Sprintf("%.2f %s", amount, currency)
}

const defaultCurrency = "USD"
