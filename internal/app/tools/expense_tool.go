package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/PabloGalante/finance-assistant/internal/domain"
	"github.com/PabloGalante/finance-assistant/internal/observability"
)

// CreateExpenseTool records expenses in the ledger. Each created item is also
// embedded for semantic search; that side channel never fails the call.
type CreateExpenseTool struct {
	ledger   domain.LedgerStore
	embedder domain.Embedder
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewCreateExpenseTool creates a CreateExpenseTool. embedder may be nil.
func NewCreateExpenseTool(ledger domain.LedgerStore, embedder domain.Embedder, metrics *observability.Metrics) *CreateExpenseTool {
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &CreateExpenseTool{
		ledger:   ledger,
		embedder: embedder,
		metrics:  metrics,
		now:      time.Now,
	}
}

func (t *CreateExpenseTool) Name() string {
	return domain.FnCreateExpense
}

func (t *CreateExpenseTool) Declaration() Declaration {
	item := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description": map[string]any{"type": "string", "description": "What the money was spent on."},
			"amount":      map[string]any{"type": "number", "description": "Positive amount spent."},
			"currency":    map[string]any{"type": "string", "description": "ISO 4217 code, USD when not stated."},
			"date":        map[string]any{"type": "string", "description": "YYYY-MM-DD, today when not stated."},
			"category":    map[string]any{"type": "string", "description": "Spending category such as Food or Transport."},
		},
		"required": []string{"description", "amount"},
	}
	return Declaration{
		Name:        t.Name(),
		Description: "Record one or more expenses the user reports.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"items": map[string]any{"type": "array", "items": item},
			},
			"required": []string{"items"},
		},
	}
}

// Call expects an input with this shape:
//
//	{
//	  "items": [
//	    {"description": "Coffee", "amount": 12, "currency": "USD", "date": "2024-03-05", "category": "Food"}
//	  ]
//	}
//
// A single item may also be sent at the top level.
func (t *CreateExpenseTool) Call(ctx context.Context, tctx ToolContext, input map[string]any) (*domain.FunctionResult, error) {
	if tctx.UserID == "" {
		return nil, errors.New("create_expense: missing UserID in ToolContext")
	}

	raw := getObjects(input, "items")
	if len(raw) == 0 && getString(input, "description") != "" {
		raw = []map[string]any{input}
	}

	items := make([]domain.Item, 0, len(raw))
	for i, obj := range raw {
		it, err := t.parseItem(obj)
		if err != nil {
			return nil, fmt.Errorf("create_expense: item %d: %w", i, err)
		}
		items = append(items, it)
	}
	if len(items) == 0 {
		return nil, errors.New("create_expense: no expense items given")
	}

	created, err := t.ledger.AddExpenses(ctx, tctx.UserID, items)
	if err != nil {
		return nil, fmt.Errorf("create_expense: %w", err)
	}

	t.embed(ctx, tctx.UserID, created)

	var total float64
	earliest := ""
	for _, it := range created {
		total += it.Amount
		if earliest == "" || it.Date < earliest {
			earliest = it.Date
		}
	}

	return &domain.FunctionResult{
		Success:          true,
		Message:          fmt.Sprintf("Created %d expense(s) totaling %s.", len(created), formatMoney(total, created[0].Currency)),
		CreatedItems:     created,
		ItemTotal:        &total,
		EarliestItemDate: earliest,
	}, nil
}

func (t *CreateExpenseTool) parseItem(obj map[string]any) (domain.Item, error) {
	desc := getString(obj, "description")
	if desc == "" {
		return domain.Item{}, errors.New("description is required")
	}

	amount, ok := getFloat(obj, "amount")
	if !ok || amount <= 0 {
		return domain.Item{}, fmt.Errorf("amount must be a positive number")
	}

	date := getString(obj, "date")
	if date == "" {
		date = domain.FormatDate(t.now())
	} else if _, err := domain.ParseDate(date); err != nil {
		return domain.Item{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
	}

	return domain.Item{
		Description: desc,
		Amount:      amount,
		Currency:    normalizeCurrency(getString(obj, "currency")),
		Date:        date,
		Category:    getString(obj, "category"),
	}, nil
}

func (t *CreateExpenseTool) embed(ctx context.Context, userID domain.UserID, items []domain.Item) {
	if t.embedder == nil {
		return
	}
	log := observability.LoggerFromContext(ctx).With(zap.String("user_id", string(userID)))

	for _, it := range items {
		text := fmt.Sprintf("%s %s %s on %s", it.Description, it.Category, formatMoney(it.Amount, it.Currency), it.Date)
		vec, err := t.embedder.Embed(ctx, text)
		if err == nil {
			err = t.ledger.SaveEmbedding(ctx, userID, it.ID, vec)
		}
		if err != nil {
			t.metrics.EmbeddingFailures.Inc()
			log.Warn("expense embedding failed", zap.String("item_id", it.ID), zap.Error(err))
		}
	}
}

// DeleteExpensesTool removes expenses by id or by a description/date filter.
type DeleteExpensesTool struct {
	ledger domain.LedgerStore
}

func NewDeleteExpensesTool(ledger domain.LedgerStore) *DeleteExpensesTool {
	return &DeleteExpensesTool{ledger: ledger}
}

func (t *DeleteExpensesTool) Name() string {
	return domain.FnDeleteExpenses
}

func (t *DeleteExpensesTool) Declaration() Declaration {
	return Declaration{
		Name:        t.Name(),
		Description: "Delete expenses by id, or every expense matching a description and date range.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ids":                  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"description_contains": map[string]any{"type": "string"},
				"date_from":            map[string]any{"type": "string", "description": "YYYY-MM-DD, inclusive."},
				"date_to":              map[string]any{"type": "string", "description": "YYYY-MM-DD, inclusive."},
			},
		},
	}
}

func (t *DeleteExpensesTool) Call(ctx context.Context, tctx ToolContext, input map[string]any) (*domain.FunctionResult, error) {
	if tctx.UserID == "" {
		return nil, errors.New("delete_expenses: missing UserID in ToolContext")
	}

	filter := domain.ExpenseFilter{
		IDs:                 getStrings(input, "ids"),
		DescriptionContains: getString(input, "description_contains"),
		DateFrom:            getString(input, "date_from"),
		DateTo:              getString(input, "date_to"),
	}
	if filter.IsEmpty() {
		return nil, errors.New("delete_expenses: give ids or at least one filter")
	}
	for _, d := range []string{filter.DateFrom, filter.DateTo} {
		if d == "" {
			continue
		}
		if _, err := domain.ParseDate(d); err != nil {
			return nil, fmt.Errorf("delete_expenses: invalid date %q", d)
		}
	}

	n, err := t.ledger.DeleteExpenses(ctx, tctx.UserID, filter)
	if err != nil {
		return nil, fmt.Errorf("delete_expenses: %w", err)
	}

	return &domain.FunctionResult{
		Success: true,
		Message: fmt.Sprintf("Deleted %d expense(s).", n),
		Fields:  map[string]any{"deleted": n},
	}, nil
}
