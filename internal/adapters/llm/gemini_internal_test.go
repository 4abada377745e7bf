package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/PabloGalante/finance-assistant/internal/adapters/storage/memory"
	"github.com/PabloGalante/finance-assistant/internal/app/tools"
	"github.com/PabloGalante/finance-assistant/internal/domain"
)

func TestAppendTurnsKeepsPriorBytes(t *testing.T) {
	// unusual spacing and key order must survive untouched
	prior := []domain.ConversationTurn{
		domain.ConversationTurn(`{ "parts":[{"functionCall":{"name":"create_expense"},"thoughtSignature":"c2lnLTE="}], "role":"model" }`),
	}

	got, err := appendTurns(prior, []*genai.Content{genai.NewContentFromText("next", genai.RoleUser)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, string(prior[0]), string(got[0]))
}

func TestNewTurnsRoundTripWithSignature(t *testing.T) {
	turn := &genai.Content{
		Role: genai.RoleModel,
		Parts: []*genai.Part{{
			FunctionCall:     &genai.FunctionCall{Name: domain.FnCreateExpense, Args: map[string]any{"x": 1.0}},
			ThoughtSignature: []byte("sig-1"),
		}},
	}

	encoded, err := appendTurns(nil, []*genai.Content{turn})
	require.NoError(t, err)

	decoded := decodeTurns(zap.NewNop(), encoded)
	require.Len(t, decoded, 1)
	require.Len(t, decoded[0].Parts, 1)
	assert.Equal(t, []byte("sig-1"), decoded[0].Parts[0].ThoughtSignature)
	assert.Equal(t, domain.FnCreateExpense, decoded[0].Parts[0].FunctionCall.Name)
}

func TestDecodeTurnsSkipsGarbage(t *testing.T) {
	turns := []domain.ConversationTurn{
		domain.ConversationTurn(`{"role":"user","parts":[{"text":"hi"}]}`),
		domain.ConversationTurn(`not json`),
	}

	got := decodeTurns(zap.NewNop(), turns)
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Parts[0].Text)
}

func TestReadOnlyCallDoesNotHideMutation(t *testing.T) {
	created := call{name: domain.FnCreateExpense, result: &domain.FunctionResult{Success: true}}
	summary := call{name: domain.FnSpendingSummary, result: &domain.FunctionResult{Success: true}}
	deleted := call{name: domain.FnDeleteExpenses, result: &domain.FunctionResult{Success: true}}

	assert.Equal(t, created, created.replacedBy(summary))
	assert.Equal(t, deleted, created.replacedBy(deleted))
	assert.Equal(t, summary, call{}.replacedBy(summary))

	failed := call{name: domain.FnCreateExpense, result: &domain.FunctionResult{Success: false}}
	assert.Equal(t, summary, failed.replacedBy(summary))
}

func TestToolsOfDeclaresEveryTool(t *testing.T) {
	ledger := memory.NewLedgerStore()
	registry := tools.NewRegistry(
		tools.NewCreateExpenseTool(ledger, nil, nil),
		tools.NewSpendingSummaryTool(ledger),
	)

	got := toolsOf(registry)
	require.Len(t, got, 1)
	require.Len(t, got[0].FunctionDeclarations, 2)
	assert.Equal(t, domain.FnCreateExpense, got[0].FunctionDeclarations[0].Name)
	assert.NotNil(t, got[0].FunctionDeclarations[0].ParametersJsonSchema)

	assert.Nil(t, toolsOf(nil))
}

func TestResponsePayload(t *testing.T) {
	total := 12.0
	got := responsePayload(&domain.FunctionResult{
		FunctionName: domain.FnCreateExpense,
		Success:      true,
		ItemTotal:    &total,
	})

	assert.Equal(t, true, got["success"])
	assert.Equal(t, 12.0, got["itemTotal"])
}
