package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/PabloGalante/finance-assistant/internal/app/tools"
	"github.com/PabloGalante/finance-assistant/internal/domain"
	"github.com/PabloGalante/finance-assistant/internal/observability"
)

// ClientConfig selects the Gemini backend. An API key uses the Gemini API;
// otherwise Project and Location select Vertex AI.
type ClientConfig struct {
	APIKey   string
	Project  string
	Location string
}

// NewClient creates a genai client shared by the chat service and the embedder.
func NewClient(ctx context.Context, cfg ClientConfig) (*genai.Client, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.APIKey == "" {
		if cfg.Project == "" || cfg.Location == "" {
			return nil, errors.New("gemini: an API key or a GCP project and location are required")
		}
		cc = &genai.ClientConfig{
			Project:  cfg.Project,
			Location: cfg.Location,
			Backend:  genai.BackendVertexAI,
		}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return client, nil
}

// GeminiService implements domain.ModelService with Gemini function calling.
// Each Chat call runs the model until it answers in text, executing the
// function calls it makes along the way through the tool registry. After
// maxSteps rounds of calls one more request is made with functions disabled.
// Once a function has run, a failed model call no longer fails Chat: the
// response reports the function with empty text.
type GeminiService struct {
	client   *genai.Client
	model    string
	registry *tools.Registry
	maxSteps int
	now      func() time.Time
}

func NewGeminiService(client *genai.Client, model string, registry *tools.Registry, maxSteps int) *GeminiService {
	if maxSteps <= 0 {
		maxSteps = 4
	}
	return &GeminiService{
		client:   client,
		model:    model,
		registry: registry,
		maxSteps: maxSteps,
		now:      time.Now,
	}
}

func (g *GeminiService) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	log := observability.LoggerFromContext(ctx).With(zap.String("user_id", string(req.UserID)))

	contents := decodeTurns(log, req.Context)
	userTurn := genai.NewContentFromText(req.Text, genai.RoleUser)
	contents = append(contents, userTurn)
	added := []*genai.Content{userTurn}

	temp := float32(0.2)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(BuildSystemPrompt(req.Period, g.now()), genai.RoleUser),
		Temperature:       &temp,
		Tools:             toolsOf(g.registry),
	}

	tctx := tools.ToolContext{
		UserID:    req.UserID,
		Period:    req.Period,
		RequestID: observability.RequestIDFromContext(ctx),
	}

	var (
		text     string
		primary  call
		executed bool
	)
	for step := 0; ; step++ {
		// past the step budget the model must answer in text
		final := step >= g.maxSteps
		stepCfg := cfg
		if final {
			stepCfg = textOnly(cfg)
		}

		res, err := g.client.Models.GenerateContent(ctx, g.model, contents, stepCfg)
		if err == nil && (len(res.Candidates) == 0 || res.Candidates[0].Content == nil) {
			err = errors.New("gemini returned no candidate")
		}
		if err != nil {
			if !executed {
				return nil, fmt.Errorf("gemini generate content: %w", err)
			}
			// functions already changed the ledger: report them and close the
			// turn so the stored history stays user/model alternating
			log.Warn("model call failed after functions ran", zap.Int("step", step), zap.Error(err))
			added = append(added, genai.NewContentFromText(closingText, genai.RoleModel))
			break
		}

		calls := res.FunctionCalls()
		if final && len(calls) > 0 {
			text = res.Text()
			closing := text
			if closing == "" {
				closing = closingText
			}
			added = append(added, genai.NewContentFromText(closing, genai.RoleModel))
			break
		}

		modelTurn := res.Candidates[0].Content
		contents = append(contents, modelTurn)
		added = append(added, modelTurn)

		if len(calls) == 0 {
			text = res.Text()
			break
		}

		parts := make([]*genai.Part, 0, len(calls))
		for _, fc := range calls {
			result := g.registry.Execute(ctx, tctx, fc.Name, fc.Args)
			executed = true
			log.Info("function executed",
				zap.String("function", fc.Name),
				zap.Bool("success", result.Success),
				zap.Int("step", step))

			primary = primary.replacedBy(call{name: fc.Name, result: result})
			parts = append(parts, genai.NewPartFromFunctionResponse(fc.Name, responsePayload(result)))
		}
		fnTurn := genai.NewContentFromParts(parts, genai.RoleUser)
		contents = append(contents, fnTurn)
		added = append(added, fnTurn)
	}

	history, err := appendTurns(req.Context, added)
	if err != nil {
		return nil, err
	}

	return &domain.ChatResponse{
		Text:           text,
		History:        history,
		FunctionCalled: primary.name,
		FunctionResult: primary.result,
	}, nil
}

// closingText ends a turn whose functions ran but whose answer never came.
const closingText = "Done."

// textOnly returns cfg with function calling switched off.
func textOnly(cfg *genai.GenerateContentConfig) *genai.GenerateContentConfig {
	out := *cfg
	out.ToolConfig = &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeNone},
	}
	return &out
}

// call is the function call a turn reports to the orchestrator.
type call struct {
	name   string
	result *domain.FunctionResult
}

var mutating = map[string]bool{
	domain.FnCreateExpense:  true,
	domain.FnDeleteExpenses: true,
	domain.FnCreateBudget:   true,
}

// replacedBy keeps the latest call, except that a read-only call never hides
// a successful mutation made earlier in the same turn.
func (c call) replacedBy(next call) call {
	if c.result != nil && c.result.Success && mutating[c.name] && !mutating[next.name] {
		return c
	}
	return next
}

func toolsOf(registry *tools.Registry) []*genai.Tool {
	if registry == nil {
		return nil
	}
	decls := registry.Declarations()
	if len(decls) == 0 {
		return nil
	}
	out := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		out = append(out, &genai.FunctionDeclaration{
			Name:                 d.Name,
			Description:          d.Description,
			ParametersJsonSchema: d.Parameters,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: out}}
}

// responsePayload is the function response the model reads back.
func responsePayload(result *domain.FunctionResult) map[string]any {
	data, err := json.Marshal(result)
	if err != nil {
		return map[string]any{"success": result.Success, "message": result.Message}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"success": result.Success, "message": result.Message}
	}
	return out
}

// decodeTurns rebuilds the model contents of prior turns. Turns that no
// longer decode are dropped from the request; they stay in the stored history.
func decodeTurns(log *zap.Logger, turns []domain.ConversationTurn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns)+1)
	for i, t := range turns {
		var c genai.Content
		if err := json.Unmarshal(t, &c); err != nil {
			log.Warn("skipping undecodable context turn", zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, &c)
	}
	return out
}

// appendTurns returns prior followed by the encoded new contents. Prior turns
// are copied byte for byte.
func appendTurns(prior []domain.ConversationTurn, added []*genai.Content) ([]domain.ConversationTurn, error) {
	out := make([]domain.ConversationTurn, 0, len(prior)+len(added))
	out = append(out, prior...)
	for _, c := range added {
		data, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("encoding context turn: %w", err)
		}
		out = append(out, domain.ConversationTurn(data))
	}
	return out, nil
}
