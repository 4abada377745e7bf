package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/PabloGalante/finance-assistant/internal/domain"
)

const uncategorized = "Other"

// bucket is one aggregation group of a report.
type bucket struct {
	Label string
	Total float64
}

// aggregate sums the expenses of period grouped by key. Buckets come back
// sorted by total, largest first, unless byLabel is set.
func aggregate(items []domain.Item, period domain.Period, key func(domain.Item) string, byLabel bool) ([]bucket, float64, string) {
	totals := make(map[string]float64)
	var (
		sum      float64
		currency string
	)
	for _, it := range items {
		if !period.Contains(it.Date) {
			continue
		}
		totals[key(it)] += it.Amount
		sum += it.Amount
		if currency == "" {
			currency = it.Currency
		}
	}

	out := make([]bucket, 0, len(totals))
	for label, total := range totals {
		out = append(out, bucket{Label: label, Total: round2(total)})
	}
	sort.Slice(out, func(i, j int) bool {
		if byLabel || out[i].Total == out[j].Total {
			return out[i].Label < out[j].Label
		}
		return out[i].Total > out[j].Total
	})

	if currency == "" {
		currency = defaultCurrency
	}
	return out, round2(sum), currency
}

func byCategory(it domain.Item) string {
	if it.Category == "" {
		return uncategorized
	}
	return it.Category
}

func byMonth(it domain.Item) string {
	p, ok := domain.PeriodOfDate(it.Date)
	if !ok {
		return it.Date
	}
	return string(p)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// GenerateChartTool turns the ledger's expenses into a ChartSpec.
type GenerateChartTool struct {
	ledger domain.LedgerStore
}

func NewGenerateChartTool(ledger domain.LedgerStore) *GenerateChartTool {
	return &GenerateChartTool{ledger: ledger}
}

func (t *GenerateChartTool) Name() string {
	return domain.FnGenerateChart
}

func (t *GenerateChartTool) Declaration() Declaration {
	return Declaration{
		Name:        t.Name(),
		Description: "Draw a chart of the user's spending, by category or by month.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"group_by":   map[string]any{"type": "string", "enum": []string{"category", "month"}},
				"chart_type": map[string]any{"type": "string", "enum": []string{"bar", "line", "pie"}},
				"period":     map[string]any{"type": "string", "description": "YYYY-MM or all; the selected period when omitted."},
				"title":      map[string]any{"type": "string"},
			},
		},
	}
}

func (t *GenerateChartTool) Call(ctx context.Context, tctx ToolContext, input map[string]any) (*domain.FunctionResult, error) {
	if tctx.UserID == "" {
		return nil, errors.New("generate_chart: missing UserID in ToolContext")
	}

	period, err := periodArg(input, tctx)
	if err != nil {
		return nil, fmt.Errorf("generate_chart: %w", err)
	}

	groupBy := strings.ToLower(getString(input, "group_by"))
	key, byLabel, defaultType := byCategory, false, "pie"
	switch groupBy {
	case "", "category":
		groupBy = "category"
	case "month":
		key, byLabel, defaultType = byMonth, true, "bar"
	default:
		return nil, fmt.Errorf("generate_chart: unknown group_by %q", groupBy)
	}

	chartType := strings.ToLower(getString(input, "chart_type"))
	if chartType == "" {
		chartType = defaultType
	}

	items, err := t.ledger.ListExpenses(ctx, tctx.UserID)
	if err != nil {
		return nil, fmt.Errorf("generate_chart: %w", err)
	}

	buckets, total, currency := aggregate(items, period, key, byLabel)
	if len(buckets) == 0 {
		return nil, fmt.Errorf("generate_chart: no expenses in %s", period)
	}

	title := getString(input, "title")
	if title == "" {
		title = fmt.Sprintf("Spending by %s (%s)", groupBy, period)
	}

	spec := &domain.ChartSpec{
		Type:   chartType,
		Title:  title,
		Labels: make([]string, len(buckets)),
		Series: []domain.ChartSeries{{Name: currency, Values: make([]float64, len(buckets))}},
	}
	for i, b := range buckets {
		spec.Labels[i] = b.Label
		spec.Series[0].Values[i] = b.Total
	}

	return &domain.FunctionResult{
		Success:   true,
		Message:   fmt.Sprintf("Chart of %s across %d %s group(s).", formatMoney(total, currency), len(buckets), groupBy),
		ChartData: spec,
	}, nil
}

// SpendingSummaryTool reports totals by category. It only reads.
type SpendingSummaryTool struct {
	ledger domain.LedgerStore
}

func NewSpendingSummaryTool(ledger domain.LedgerStore) *SpendingSummaryTool {
	return &SpendingSummaryTool{ledger: ledger}
}

func (t *SpendingSummaryTool) Name() string {
	return domain.FnSpendingSummary
}

func (t *SpendingSummaryTool) Declaration() Declaration {
	return Declaration{
		Name:        t.Name(),
		Description: "Summarize how much the user spent, in total and per category.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"period": map[string]any{"type": "string", "description": "YYYY-MM or all; the selected period when omitted."},
			},
		},
	}
}

func (t *SpendingSummaryTool) Call(ctx context.Context, tctx ToolContext, input map[string]any) (*domain.FunctionResult, error) {
	if tctx.UserID == "" {
		return nil, errors.New("get_spending_summary: missing UserID in ToolContext")
	}

	period, err := periodArg(input, tctx)
	if err != nil {
		return nil, fmt.Errorf("get_spending_summary: %w", err)
	}

	items, err := t.ledger.ListExpenses(ctx, tctx.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_spending_summary: %w", err)
	}

	buckets, total, currency := aggregate(items, period, byCategory, false)
	categories := make(map[string]any, len(buckets))
	parts := make([]string, 0, len(buckets))
	for _, b := range buckets {
		categories[b.Label] = b.Total
		parts = append(parts, fmt.Sprintf("%s %s", b.Label, formatMoney(b.Total, currency)))
	}

	msg := fmt.Sprintf("No expenses in %s.", period)
	if len(buckets) > 0 {
		msg = fmt.Sprintf("Spent %s in %s: %s.", formatMoney(total, currency), period, strings.Join(parts, ", "))
	}

	return &domain.FunctionResult{
		Success: true,
		Message: msg,
		Fields: map[string]any{
			"period":      string(period),
			"total":       total,
			"currency":    currency,
			"by_category": categories,
		},
	}, nil
}
