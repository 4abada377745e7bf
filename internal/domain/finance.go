package domain

import (
	"slices"
	"strings"
)

// Item is a single expense as produced by the assistant's create_expense function.
type Item struct {
	ID          string  `json:"id,omitempty" firestore:"id"`
	Description string  `json:"description" firestore:"description"`
	Amount      float64 `json:"amount" firestore:"amount"`
	Currency    string  `json:"currency" firestore:"currency"`
	Date        string  `json:"date" firestore:"date"` // YYYY-MM-DD
	Category    string  `json:"category,omitempty" firestore:"category"`
}

// Budget caps spending for a category within a period.
type Budget struct {
	ID       string  `json:"id" firestore:"id"`
	Category string  `json:"category" firestore:"category"`
	Amount   float64 `json:"amount" firestore:"amount"`
	Currency string  `json:"currency" firestore:"currency"`
	Period   Period  `json:"period" firestore:"period"`
}

// BudgetStatus is a budget with its "spent" aggregate computed from expenses.
type BudgetStatus struct {
	Budget
	Spent     float64 `json:"spent"`
	Remaining float64 `json:"remaining"`
}

type Subscription struct {
	ID       string  `json:"id" firestore:"id"`
	Name     string  `json:"name" firestore:"name"`
	Amount   float64 `json:"amount" firestore:"amount"`
	Currency string  `json:"currency" firestore:"currency"`
	Cycle    string  `json:"cycle" firestore:"cycle"` // "monthly" | "yearly"
}

type AccountKind string

const (
	AccountAsset     AccountKind = "asset"
	AccountLiability AccountKind = "liability"
)

type Account struct {
	ID       string      `json:"id" firestore:"id"`
	Name     string      `json:"name" firestore:"name"`
	Kind     AccountKind `json:"kind" firestore:"kind"`
	Balance  float64     `json:"balance" firestore:"balance"`
	Currency string      `json:"currency" firestore:"currency"`
}

// NetWorthSnapshot is the monthly aggregate written by the net-worth job.
type NetWorthSnapshot struct {
	UserID      UserID    `json:"userId" firestore:"user_id"`
	Period      Period    `json:"period" firestore:"period"`
	Assets      float64   `json:"assets" firestore:"assets"`
	Liabilities float64   `json:"liabilities" firestore:"liabilities"`
	NetWorth    float64   `json:"netWorth" firestore:"net_worth"`
	Currency    string    `json:"currency" firestore:"currency"`
	CreatedAt   Timestamp `json:"createdAt" firestore:"created_at"`
}

// ExpenseFilter selects expenses for deletion. Empty fields match everything,
// but a filter with no field set matches nothing.
type ExpenseFilter struct {
	IDs                 []string
	DescriptionContains string
	DateFrom            string
	DateTo              string
}

// IsEmpty reports whether no criteria are set.
func (f ExpenseFilter) IsEmpty() bool {
	return len(f.IDs) == 0 && f.DescriptionContains == "" && f.DateFrom == "" && f.DateTo == ""
}

// Match reports whether it satisfies every criterion set in f.
// An empty filter matches nothing.
func (f ExpenseFilter) Match(it Item) bool {
	if f.IsEmpty() {
		return false
	}
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, it.ID) {
		return false
	}
	if f.DescriptionContains != "" &&
		!strings.Contains(strings.ToLower(it.Description), strings.ToLower(f.DescriptionContains)) {
		return false
	}
	if f.DateFrom != "" && it.Date < f.DateFrom {
		return false
	}
	if f.DateTo != "" && it.Date > f.DateTo {
		return false
	}
	return true
}
