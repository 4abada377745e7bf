package domain

import "context"

// ChatRequest is what the orchestrator sends to the model-calling service.
type ChatRequest struct {
	Text    string
	UserID  UserID
	Context []ConversationTurn
	Period  Period
}

// ChatResponse is the model-calling service's answer. History is the
// authoritative post-call context and replaces the caller's context.
type ChatResponse struct {
	Text           string
	History        []ConversationTurn
	FunctionCalled string
	FunctionResult *FunctionResult
}

// ModelService is the external function-calling LLM service.
type ModelService interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// FinanceReloader refetches the in-memory financial collections of a user.
// Every method is idempotent and safe to call concurrently.
type FinanceReloader interface {
	ReloadExpenses(ctx context.Context, userID UserID) error
	ReloadBudgets(ctx context.Context, userID UserID) error
	ReloadSubscriptions(ctx context.Context, userID UserID) error
}

// TranscriptStore persists opaque per-user records by key.
type TranscriptStore interface {
	GetRecord(ctx context.Context, key string) ([]byte, error)
	PutRecord(ctx context.Context, key string, data []byte) error
	DeleteRecord(ctx context.Context, key string) error
}

// LedgerStore is the financial-data layer the assistant's functions mutate.
type LedgerStore interface {
	AddExpenses(ctx context.Context, userID UserID, items []Item) ([]Item, error)
	ListExpenses(ctx context.Context, userID UserID) ([]Item, error)
	DeleteExpenses(ctx context.Context, userID UserID, filter ExpenseFilter) (int, error)
	SaveEmbedding(ctx context.Context, userID UserID, itemID string, vector []float32) error

	AddBudget(ctx context.Context, userID UserID, budget Budget) (Budget, error)
	ListBudgets(ctx context.Context, userID UserID) ([]Budget, error)

	ListSubscriptions(ctx context.Context, userID UserID) ([]Subscription, error)
	ListAccounts(ctx context.Context, userID UserID) ([]Account, error)

	AppendNetWorth(ctx context.Context, snapshot NetWorthSnapshot) error
	ListNetWorth(ctx context.Context, userID UserID, limit int) ([]NetWorthSnapshot, error)
	// ListUsers returns every user holding at least one account.
	ListUsers(ctx context.Context) ([]UserID, error)
}

// Embedder produces semantic vectors for created items.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
