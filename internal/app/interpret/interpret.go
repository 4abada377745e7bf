// Package interpret maps a model function result to the domain event it
// represents. Dispatch is a table keyed on the function name; new function
// types are new rows.
package interpret

import (
	"strings"

	"github.com/PabloGalante/finance-assistant/internal/domain"
)

type Kind string

const (
	KindExpensesCreated Kind = "expenses_created"
	KindExpensesDeleted Kind = "expenses_deleted"
	KindBudgetCreated   Kind = "budget_created"
)

// ExpensesCreated is the payload of a KindExpensesCreated event.
type ExpensesCreated struct {
	Items        []domain.Item
	Total        float64
	Currency     string
	EarliestDate string
}

// Event is an actionable function result. Created is set only for KindExpensesCreated.
type Event struct {
	Kind    Kind
	Created *ExpensesCreated
}

type rule struct {
	match func(functionCalled string) bool
	build func(result *domain.FunctionResult) *Event
}

func named(name string) func(string) bool {
	return func(fc string) bool { return fc == name }
}

func containing(name string) func(string) bool {
	return func(fc string) bool { return strings.Contains(fc, name) }
}

func reloadOnly(kind Kind) func(*domain.FunctionResult) *Event {
	return func(*domain.FunctionResult) *Event { return &Event{Kind: kind} }
}

var rules = []rule{
	{match: containing(domain.FnCreateExpense), build: expensesCreated},
	{match: named(domain.FnDeleteExpenses), build: reloadOnly(KindExpensesDeleted)},
	{match: named(domain.FnCreateBudget), build: reloadOnly(KindBudgetCreated)},
}

// Interpret returns the event for a function result, or nil when the result
// is absent, unsuccessful, unknown or missing the fields its row needs.
// It has no side effects.
func Interpret(functionCalled string, result *domain.FunctionResult) *Event {
	if functionCalled == "" || result == nil || !result.Success {
		return nil
	}
	for _, r := range rules {
		if r.match(functionCalled) {
			return r.build(result)
		}
	}
	return nil
}

// A success without created items is treated as non-actionable.
// TODO: confirm with product whether an empty create_expense success should notify.
func expensesCreated(result *domain.FunctionResult) *Event {
	if len(result.CreatedItems) == 0 || result.EarliestItemDate == "" {
		return nil
	}

	items := append([]domain.Item(nil), result.CreatedItems...)
	var total float64
	for _, it := range items {
		total += it.Amount
	}

	return &Event{
		Kind: KindExpensesCreated,
		Created: &ExpensesCreated{
			Items:        items,
			Total:        total,
			Currency:     currencyOf(items),
			EarliestDate: result.EarliestItemDate,
		},
	}
}

func currencyOf(items []domain.Item) string {
	for _, it := range items {
		if it.Currency != "" {
			return it.Currency
		}
	}
	return ""
}

// Explain says why Interpret returned nil, for logging. It returns "" when
// the result is actionable or there was no function call at all.
func Explain(functionCalled string, result *domain.FunctionResult) string {
	switch {
	case functionCalled == "":
		return ""
	case result == nil:
		return "missing function result"
	case !result.Success:
		return "function reported failure"
	}
	for _, r := range rules {
		if r.match(functionCalled) {
			if r.build(result) == nil {
				return "result missing required fields"
			}
			return ""
		}
	}
	return "no rule for function"
}
