package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PabloGalante/finance-assistant/internal/domain"
)

type CreateBudgetTool struct {
	ledger domain.LedgerStore
	now    func() time.Time
}

func NewCreateBudgetTool(ledger domain.LedgerStore) *CreateBudgetTool {
	return &CreateBudgetTool{ledger: ledger, now: time.Now}
}

func (t *CreateBudgetTool) Name() string {
	return domain.FnCreateBudget
}

func (t *CreateBudgetTool) Declaration() Declaration {
	return Declaration{
		Name:        t.Name(),
		Description: "Create a monthly spending budget for a category.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"category": map[string]any{"type": "string"},
				"amount":   map[string]any{"type": "number"},
				"currency": map[string]any{"type": "string"},
				"period":   map[string]any{"type": "string", "description": "YYYY-MM; the selected month when omitted."},
			},
			"required": []string{"category", "amount"},
		},
	}
}

// Call creates the budget for the given month. Without one it falls back to
// the month selected in the UI, or the current month when "all" is selected.
func (t *CreateBudgetTool) Call(ctx context.Context, tctx ToolContext, input map[string]any) (*domain.FunctionResult, error) {
	if tctx.UserID == "" {
		return nil, errors.New("create_budget: missing UserID in ToolContext")
	}

	category := getString(input, "category")
	if category == "" {
		return nil, errors.New("create_budget: category is required")
	}
	amount, ok := getFloat(input, "amount")
	if !ok || amount <= 0 {
		return nil, errors.New("create_budget: amount must be a positive number")
	}

	period := domain.Period(getString(input, "period"))
	if period == "" {
		period = tctx.Period
	}
	if period.IsAll() {
		period = domain.PeriodOf(t.now())
	}
	if !period.Valid() {
		return nil, fmt.Errorf("create_budget: invalid period %q, want YYYY-MM", period)
	}

	b, err := t.ledger.AddBudget(ctx, tctx.UserID, domain.Budget{
		Category: category,
		Amount:   amount,
		Currency: normalizeCurrency(getString(input, "currency")),
		Period:   period,
	})
	if err != nil {
		return nil, fmt.Errorf("create_budget: %w", err)
	}

	return &domain.FunctionResult{
		Success: true,
		Message: fmt.Sprintf("Budget of %s for %s in %s created.", formatMoney(b.Amount, b.Currency), b.Category, b.Period),
		Fields: map[string]any{
			"budget_id": b.ID,
			"category":  b.Category,
			"period":    string(b.Period),
		},
	}, nil
}
