package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/PabloGalante/finance-assistant/internal/app/tools"
	"github.com/PabloGalante/finance-assistant/internal/domain"
	"github.com/PabloGalante/finance-assistant/internal/observability"
)

var addExpense = regexp.MustCompile(`(?i)^(?:add|spent|log)\s+\$?(\d+(?:\.\d+)?)\s*([a-z]{3})?\s+(?:for|on)\s+(.+)$`)

// MockService is a local stand-in for the model. It understands a few fixed
// phrases and runs the matching tool so the whole turn can be exercised
// without network access:
//
//	"add $12 for coffee"  -> create_expense
//	"summary"             -> get_spending_summary
//	"chart"               -> generate_chart
//
// Anything else is echoed back.
type MockService struct {
	registry *tools.Registry
}

// NewMockService creates a MockService. registry may be nil, in which case
// every message is echoed.
func NewMockService(registry *tools.Registry) *MockService {
	return &MockService{registry: registry}
}

func (m *MockService) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, args := m.route(req.Text)

	var (
		result *domain.FunctionResult
		text   string
	)
	if name != "" && m.registry != nil {
		result = m.registry.Execute(ctx, tools.ToolContext{
			UserID:    req.UserID,
			Period:    req.Period,
			RequestID: observability.RequestIDFromContext(ctx),
		}, name, args)
		text = result.Message
	} else {
		name = ""
		text = fmt.Sprintf("You said %q. Try \"add $12 for coffee\", \"summary\" or \"chart\".", req.Text)
	}

	added := []*genai.Content{genai.NewContentFromText(req.Text, genai.RoleUser)}
	if result != nil {
		added = append(added,
			genai.NewContentFromParts([]*genai.Part{genai.NewPartFromFunctionCall(name, args)}, genai.RoleModel),
			genai.NewContentFromParts([]*genai.Part{genai.NewPartFromFunctionResponse(name, responsePayload(result))}, genai.RoleUser),
		)
	}
	added = append(added, genai.NewContentFromText(text, genai.RoleModel))

	history, err := appendTurns(req.Context, added)
	if err != nil {
		return nil, err
	}

	return &domain.ChatResponse{
		Text:           text,
		History:        history,
		FunctionCalled: name,
		FunctionResult: result,
	}, nil
}

func (m *MockService) route(text string) (string, map[string]any) {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)

	if match := addExpense.FindStringSubmatch(text); match != nil {
		amount, _ := strconv.ParseFloat(match[1], 64)
		return domain.FnCreateExpense, map[string]any{
			"items": []any{map[string]any{
				"description": strings.TrimSpace(match[3]),
				"amount":      amount,
				"currency":    match[2],
			}},
		}
	}
	switch {
	case strings.Contains(lower, "summary"):
		return domain.FnSpendingSummary, map[string]any{}
	case strings.Contains(lower, "chart"):
		return domain.FnGenerateChart, map[string]any{}
	}
	return "", nil
}
