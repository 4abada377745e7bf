package domain

// Function names exposed to the model.
const (
	FnCreateExpense   = "create_expense"
	FnDeleteExpenses  = "delete_expenses"
	FnCreateBudget    = "create_budget"
	FnGenerateChart   = "generate_chart"
	FnSpendingSummary = "get_spending_summary"
)

// FunctionResult is the structured outcome of a model function call, tagged by FunctionName.
type FunctionResult struct {
	FunctionName     string         `json:"functionName"`
	Success          bool           `json:"success"`
	Message          string         `json:"message,omitempty"`
	ChartData        *ChartSpec     `json:"chartData,omitempty"`
	CreatedItems     []Item         `json:"createdItems,omitempty"`
	ItemTotal        *float64       `json:"itemTotal,omitempty"`
	EarliestItemDate string         `json:"earliestItemDate,omitempty"`
	Fields           map[string]any `json:"fields,omitempty"`
}

// ChartSeries is one named data series of a chart.
type ChartSeries struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// ChartSpec is the chart description returned by generate_chart.
type ChartSpec struct {
	Type   string        `json:"type"` // "bar" | "line" | "pie"
	Title  string        `json:"title,omitempty"`
	Labels []string      `json:"labels"`
	Series []ChartSeries `json:"series"`
}
