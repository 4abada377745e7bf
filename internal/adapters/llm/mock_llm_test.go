package llm_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/finance-assistant/internal/adapters/llm"
	"github.com/PabloGalante/finance-assistant/internal/adapters/storage/memory"
	"github.com/PabloGalante/finance-assistant/internal/app/tools"
	"github.com/PabloGalante/finance-assistant/internal/domain"
)

func mockWithLedger() (*llm.MockService, *memory.LedgerStore) {
	ledger := memory.NewLedgerStore()
	registry := tools.NewRegistry(
		tools.NewCreateExpenseTool(ledger, nil, nil),
		tools.NewGenerateChartTool(ledger),
		tools.NewSpendingSummaryTool(ledger),
	)
	return llm.NewMockService(registry), ledger
}

func TestMockEchoesAndKeepsPriorTurns(t *testing.T) {
	svc := llm.NewMockService(nil)
	prior := []domain.ConversationTurn{
		domain.ConversationTurn(`{"role":"model","parts":[{"text":"hi"}],"thoughtSignature":"AAEC"}`),
	}

	resp, err := svc.Chat(context.Background(), domain.ChatRequest{Text: "hello", UserID: "u1", Context: prior})
	require.NoError(t, err)

	assert.Contains(t, resp.Text, `"hello"`)
	assert.Empty(t, resp.FunctionCalled)
	assert.Nil(t, resp.FunctionResult)
	require.Len(t, resp.History, 3)
	assert.Equal(t, string(prior[0]), string(resp.History[0]))

	var turn map[string]any
	require.NoError(t, json.Unmarshal(resp.History[1], &turn))
	assert.Equal(t, "user", turn["role"])
}

func TestMockCreatesExpense(t *testing.T) {
	svc, ledger := mockWithLedger()

	resp, err := svc.Chat(context.Background(), domain.ChatRequest{Text: "Add $12 for coffee", UserID: "u1", Period: "2024-03"})
	require.NoError(t, err)

	assert.Equal(t, domain.FnCreateExpense, resp.FunctionCalled)
	require.NotNil(t, resp.FunctionResult)
	assert.True(t, resp.FunctionResult.Success)
	require.Len(t, resp.FunctionResult.CreatedItems, 1)
	assert.Equal(t, "coffee", resp.FunctionResult.CreatedItems[0].Description)
	assert.Len(t, resp.History, 4, "user, call, response, answer")

	stored, err := ledger.ListExpenses(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestMockSummary(t *testing.T) {
	svc, _ := mockWithLedger()

	resp, err := svc.Chat(context.Background(), domain.ChatRequest{Text: "Give me a summary", UserID: "u1", Period: domain.PeriodAll})
	require.NoError(t, err)
	assert.Equal(t, domain.FnSpendingSummary, resp.FunctionCalled)
	assert.True(t, resp.FunctionResult.Success)
}

func TestMockHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := llm.NewMockService(nil).Chat(ctx, domain.ChatRequest{Text: "hello", UserID: "u1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildSystemPrompt(t *testing.T) {
	today := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

	month := llm.BuildSystemPrompt("2024-03", today)
	assert.Contains(t, month, "Today is 2024-03-15 (Friday)")
	assert.Contains(t, month, "viewing 2024-03")

	all := llm.BuildSystemPrompt(domain.PeriodAll, today)
	assert.True(t, strings.Contains(all, "all periods"))
}
