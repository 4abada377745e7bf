package tools_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/finance-assistant/internal/adapters/storage/memory"
	"github.com/PabloGalante/finance-assistant/internal/app/tools"
	"github.com/PabloGalante/finance-assistant/internal/domain"
	"github.com/PabloGalante/finance-assistant/internal/observability"
)

var tctx = tools.ToolContext{UserID: "u1", Period: "2024-03"}

type stubEmbedder struct {
	err error
}

func (e stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func newRegistry(ledger domain.LedgerStore, embedder domain.Embedder, metrics *observability.Metrics) *tools.Registry {
	return tools.NewRegistry(
		tools.NewCreateExpenseTool(ledger, embedder, metrics),
		tools.NewDeleteExpensesTool(ledger),
		tools.NewCreateBudgetTool(ledger),
		tools.NewGenerateChartTool(ledger),
		tools.NewSpendingSummaryTool(ledger),
	)
}

func expenseInput(items ...map[string]any) map[string]any {
	list := make([]any, len(items))
	for i, it := range items {
		list[i] = it
	}
	return map[string]any{"items": list}
}

func TestRegistryDeclarationsKeepOrder(t *testing.T) {
	r := newRegistry(memory.NewLedgerStore(), nil, nil)

	var names []string
	for _, d := range r.Declarations() {
		names = append(names, d.Name)
		assert.NotEmpty(t, d.Description)
		assert.Equal(t, "object", d.Parameters["type"])
	}
	assert.Equal(t, []string{
		domain.FnCreateExpense,
		domain.FnDeleteExpenses,
		domain.FnCreateBudget,
		domain.FnGenerateChart,
		domain.FnSpendingSummary,
	}, names)
}

func TestExecuteUnknownFunction(t *testing.T) {
	r := newRegistry(memory.NewLedgerStore(), nil, nil)

	res := r.Execute(context.Background(), tctx, "launch_rocket", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "launch_rocket", res.FunctionName)
}

func TestCreateExpense(t *testing.T) {
	ledger := memory.NewLedgerStore()
	r := newRegistry(ledger, stubEmbedder{}, nil)

	res := r.Execute(context.Background(), tctx, domain.FnCreateExpense, expenseInput(
		map[string]any{"description": "Coffee", "amount": 12.0, "currency": "usd", "date": "2024-03-05", "category": "Food"},
		map[string]any{"description": "Taxi", "amount": "8.50", "date": "2024-03-02"},
	))

	require.True(t, res.Success, res.Message)
	assert.Equal(t, domain.FnCreateExpense, res.FunctionName)
	require.Len(t, res.CreatedItems, 2)
	require.NotNil(t, res.ItemTotal)
	assert.InDelta(t, 20.5, *res.ItemTotal, 1e-9)
	assert.Equal(t, "2024-03-02", res.EarliestItemDate)
	assert.Equal(t, "USD", res.CreatedItems[0].Currency)
	assert.Equal(t, "USD", res.CreatedItems[1].Currency, "currency defaults to USD")

	for _, it := range res.CreatedItems {
		assert.NotEmpty(t, it.ID)
		_, ok := ledger.Embedding("u1", it.ID)
		assert.True(t, ok)
	}
}

func TestCreateExpenseSingleItemAtTopLevel(t *testing.T) {
	r := newRegistry(memory.NewLedgerStore(), nil, nil)

	res := r.Execute(context.Background(), tctx, domain.FnCreateExpense,
		map[string]any{"description": "Coffee", "amount": 12})

	require.True(t, res.Success, res.Message)
	require.Len(t, res.CreatedItems, 1)
	assert.NotEmpty(t, res.CreatedItems[0].Date)
}

func TestCreateExpenseEmbeddingFailureIsSwallowed(t *testing.T) {
	metrics := observability.NewMetrics()
	ledger := memory.NewLedgerStore()
	r := newRegistry(ledger, stubEmbedder{err: errors.New("quota exceeded")}, metrics)

	res := r.Execute(context.Background(), tctx, domain.FnCreateExpense, expenseInput(
		map[string]any{"description": "Coffee", "amount": 12.0, "date": "2024-03-05"},
		map[string]any{"description": "Lunch", "amount": 20.0, "date": "2024-03-05"},
	))

	require.True(t, res.Success)
	assert.Len(t, res.CreatedItems, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.EmbeddingFailures))

	stored, err := ledger.ListExpenses(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestCreateExpenseRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]any
	}{
		{"no items", map[string]any{}},
		{"missing description", expenseInput(map[string]any{"amount": 3.0})},
		{"negative amount", expenseInput(map[string]any{"description": "Refund", "amount": -3.0})},
		{"bad date", expenseInput(map[string]any{"description": "Coffee", "amount": 3.0, "date": "05/03/2024"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := memory.NewLedgerStore()
			r := newRegistry(ledger, nil, nil)

			res := r.Execute(context.Background(), tctx, domain.FnCreateExpense, tt.input)
			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Message)

			stored, err := ledger.ListExpenses(context.Background(), "u1")
			require.NoError(t, err)
			assert.Empty(t, stored, "nothing is written on a rejected call")
		})
	}
}

func seed(t *testing.T, ledger *memory.LedgerStore) []domain.Item {
	t.Helper()
	items, err := ledger.AddExpenses(context.Background(), "u1", []domain.Item{
		{Description: "Coffee", Amount: 12, Currency: "USD", Date: "2024-03-05", Category: "Food"},
		{Description: "Coffee beans", Amount: 18, Currency: "USD", Date: "2024-03-20", Category: "Food"},
		{Description: "Bus pass", Amount: 30, Currency: "USD", Date: "2024-03-01", Category: "Transport"},
		{Description: "Coffee", Amount: 4, Currency: "USD", Date: "2024-04-02", Category: "Food"},
	})
	require.NoError(t, err)
	return items
}

func TestDeleteExpensesByFilter(t *testing.T) {
	ledger := memory.NewLedgerStore()
	seed(t, ledger)
	r := newRegistry(ledger, nil, nil)

	res := r.Execute(context.Background(), tctx, domain.FnDeleteExpenses, map[string]any{
		"description_contains": "coffee",
		"date_from":            "2024-03-01",
		"date_to":              "2024-03-31",
	})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, 2, res.Fields["deleted"])

	left, err := ledger.ListExpenses(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func TestDeleteExpensesByID(t *testing.T) {
	ledger := memory.NewLedgerStore()
	items := seed(t, ledger)
	r := newRegistry(ledger, nil, nil)

	res := r.Execute(context.Background(), tctx, domain.FnDeleteExpenses, map[string]any{
		"ids": []any{items[2].ID},
	})

	require.True(t, res.Success)
	assert.Equal(t, 1, res.Fields["deleted"])
}

func TestDeleteExpensesNeedsAFilter(t *testing.T) {
	ledger := memory.NewLedgerStore()
	seed(t, ledger)
	r := newRegistry(ledger, nil, nil)

	res := r.Execute(context.Background(), tctx, domain.FnDeleteExpenses, map[string]any{})
	assert.False(t, res.Success)

	left, err := ledger.ListExpenses(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, left, 4)
}

func TestCreateBudgetDefaultsToSelectedPeriod(t *testing.T) {
	ledger := memory.NewLedgerStore()
	r := newRegistry(ledger, nil, nil)

	res := r.Execute(context.Background(), tctx, domain.FnCreateBudget, map[string]any{
		"category": "Food",
		"amount":   300.0,
	})
	require.True(t, res.Success, res.Message)

	budgets, err := ledger.ListBudgets(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.Equal(t, domain.Period("2024-03"), budgets[0].Period)
	assert.Equal(t, "USD", budgets[0].Currency)
}

func TestCreateBudgetUnderAllUsesCurrentMonth(t *testing.T) {
	ledger := memory.NewLedgerStore()
	r := newRegistry(ledger, nil, nil)

	res := r.Execute(context.Background(), tools.ToolContext{UserID: "u1", Period: domain.PeriodAll},
		domain.FnCreateBudget, map[string]any{"category": "Food", "amount": 100.0})
	require.True(t, res.Success, res.Message)

	budgets, err := ledger.ListBudgets(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.Equal(t, domain.PeriodOf(time.Now()), budgets[0].Period)
}

func TestGenerateChartByCategory(t *testing.T) {
	ledger := memory.NewLedgerStore()
	seed(t, ledger)
	r := newRegistry(ledger, nil, nil)

	res := r.Execute(context.Background(), tctx, domain.FnGenerateChart, map[string]any{"group_by": "category"})

	require.True(t, res.Success, res.Message)
	require.NotNil(t, res.ChartData)
	assert.Equal(t, "pie", res.ChartData.Type)
	assert.Equal(t, []string{"Food", "Transport"}, res.ChartData.Labels)
	require.Len(t, res.ChartData.Series, 1)
	assert.Equal(t, []float64{30, 30}, res.ChartData.Series[0].Values)
}

func TestGenerateChartByMonthAcrossAll(t *testing.T) {
	ledger := memory.NewLedgerStore()
	seed(t, ledger)
	r := newRegistry(ledger, nil, nil)

	res := r.Execute(context.Background(), tctx, domain.FnGenerateChart, map[string]any{
		"group_by":   "month",
		"chart_type": "line",
		"period":     "all",
	})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "line", res.ChartData.Type)
	assert.Equal(t, []string{"2024-03", "2024-04"}, res.ChartData.Labels)
	assert.Equal(t, []float64{60, 4}, res.ChartData.Series[0].Values)
}

func TestGenerateChartWithNoData(t *testing.T) {
	r := newRegistry(memory.NewLedgerStore(), nil, nil)

	res := r.Execute(context.Background(), tctx, domain.FnGenerateChart, nil)
	assert.False(t, res.Success)
	assert.Nil(t, res.ChartData)
}

func TestSpendingSummary(t *testing.T) {
	ledger := memory.NewLedgerStore()
	seed(t, ledger)
	r := newRegistry(ledger, nil, nil)

	res := r.Execute(context.Background(), tctx, domain.FnSpendingSummary, nil)

	require.True(t, res.Success)
	assert.Equal(t, 60.0, res.Fields["total"])
	assert.Equal(t, "2024-03", res.Fields["period"])
	assert.Equal(t, map[string]any{"Food": 30.0, "Transport": 30.0}, res.Fields["by_category"])
	assert.Nil(t, res.CreatedItems)
}

func TestSpendingSummaryRejectsBadPeriod(t *testing.T) {
	r := newRegistry(memory.NewLedgerStore(), nil, nil)

	res := r.Execute(context.Background(), tctx, domain.FnSpendingSummary, map[string]any{"period": "March"})
	assert.False(t, res.Success)
}
