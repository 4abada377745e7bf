package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/PabloGalante/finance-assistant/internal/app/chart"
	"github.com/PabloGalante/finance-assistant/internal/app/conversation"
	"github.com/PabloGalante/finance-assistant/internal/app/effects"
	"github.com/PabloGalante/finance-assistant/internal/app/finance"
	"github.com/PabloGalante/finance-assistant/internal/app/networth"
	"github.com/PabloGalante/finance-assistant/internal/domain"
	"github.com/PabloGalante/finance-assistant/internal/observability"
)

// Deps are the services the HTTP API exposes.
type Deps struct {
	Conversation *conversation.Service
	Finance      *finance.State
	NetWorth     *networth.Service
	Metrics      *observability.Metrics

	RateLimitRPS   float64
	RateLimitBurst int
}

type Server struct {
	conv     *conversation.Service
	finance  *finance.State
	networth *networth.Service
}

func NewServer(deps Deps) http.Handler {
	s := &Server{
		conv:     deps.Conversation,
		finance:  deps.Finance,
		networth: deps.NetWorth,
	}
	limiter := newLimiterPool(deps.RateLimitRPS, deps.RateLimitBurst)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(withIdentity, limiter.limit)

	v1.HandleFunc("/chat", s.handleGetChat).Methods(http.MethodGet)
	v1.HandleFunc("/chat", s.handleClearChat).Methods(http.MethodDelete)
	v1.HandleFunc("/chat/messages", s.handleSendMessage).Methods(http.MethodPost)
	v1.HandleFunc("/session/signout", s.handleSignOut).Methods(http.MethodPost)

	v1.HandleFunc("/finance", s.handleGetFinance).Methods(http.MethodGet)
	v1.HandleFunc("/finance/refresh", s.handleRefreshFinance).Methods(http.MethodPost)
	v1.HandleFunc("/networth", s.handleGetNetWorth).Methods(http.MethodGet)

	// the last middleware applied runs first
	return chainMiddlewares(r, withLogging, withCORS, withRequestID)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type messageResponse struct {
	ID             string                 `json:"id"`
	Text           string                 `json:"text"`
	Sender         string                 `json:"sender"`
	CreatedAt      time.Time              `json:"createdAt"`
	FunctionCalled string                 `json:"functionCalled,omitempty"`
	FunctionResult *domain.FunctionResult `json:"functionResult,omitempty"`
	Chart          *chart.RenderableChart `json:"chart,omitempty"`
}

type chatResponse struct {
	Messages []messageResponse `json:"messages"`
	Typing   bool              `json:"typing"`
}

type sendMessageRequest struct {
	Text   string `json:"text"`
	Period string `json:"period"`
}

type navigationResponse struct {
	Path    string `json:"path"`
	DelayMs int64  `json:"delayMs"`
}

type outcomeResponse struct {
	Notification *domain.PendingNotification `json:"notification,omitempty"`
	PeriodChange *domain.Period              `json:"periodChange,omitempty"`
	Navigate     *navigationResponse         `json:"navigate,omitempty"`
}

type sendMessageResponse struct {
	UserMessage      messageResponse `json:"userMessage"`
	AssistantMessage messageResponse `json:"assistantMessage"`
	Outcome          outcomeResponse `json:"outcome"`
}

type financeResponse struct {
	Period        domain.Period         `json:"period"`
	Expenses      []domain.Item         `json:"expenses"`
	Budgets       []domain.BudgetStatus `json:"budgets"`
	Subscriptions []domain.Subscription `json:"subscriptions"`
	LoadedAt      time.Time             `json:"loadedAt"`
}

type netWorthResponse struct {
	Snapshots []domain.NetWorthSnapshot `json:"snapshots"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	view, err := s.conv.Session(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Messages: toMessagesResponse(view.Session.Messages),
		Typing:   view.Typing,
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	period := domain.Period(req.Period)
	if period == "" {
		period = domain.PeriodAll
	}
	if !period.Valid() {
		badRequest(w, "period must be YYYY-MM or all")
		return
	}

	out, err := s.conv.Send(r.Context(), conversation.SendInput{
		UserID: userIDFrom(r.Context()),
		Text:   req.Text,
		Period: period,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sendMessageResponse{
		UserMessage:      toMessageResponse(out.UserMessage),
		AssistantMessage: toMessageResponse(out.AssistantMessage),
		Outcome:          toOutcomeResponse(out.Outcome),
	})
}

func (s *Server) handleClearChat(w http.ResponseWriter, r *http.Request) {
	session, err := s.conv.ClearHistory(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Messages: toMessagesResponse(session.Messages)})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	wipe, _ := strconv.ParseBool(r.URL.Query().Get("wipe"))

	if err := s.conv.SignOut(r.Context(), userID, wipe); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if s.finance != nil {
		s.finance.Forget(userID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetFinance(w http.ResponseWriter, r *http.Request) {
	if s.finance == nil {
		writeError(w, http.StatusNotFound, "financial data is not available")
		return
	}

	period := domain.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = domain.PeriodAll
	}
	if !period.Valid() {
		badRequest(w, "period must be YYYY-MM or all")
		return
	}

	userID := userIDFrom(r.Context())
	snap, ok := s.finance.Snapshot(userID)
	if !ok {
		if err := s.finance.RefreshAll(r.Context(), userID); err != nil {
			internalError(w, r, err)
			return
		}
		snap, _ = s.finance.Snapshot(userID)
	}

	writeJSON(w, http.StatusOK, toFinanceResponse(snap, period))
}

func (s *Server) handleRefreshFinance(w http.ResponseWriter, r *http.Request) {
	if s.finance == nil {
		writeError(w, http.StatusNotFound, "financial data is not available")
		return
	}

	userID := userIDFrom(r.Context())
	if err := s.finance.RefreshAll(r.Context(), userID); err != nil {
		internalError(w, r, err)
		return
	}
	snap, _ := s.finance.Snapshot(userID)
	writeJSON(w, http.StatusOK, toFinanceResponse(snap, domain.PeriodAll))
}

func (s *Server) handleGetNetWorth(w http.ResponseWriter, r *http.Request) {
	if s.networth == nil {
		writeError(w, http.StatusNotFound, "net worth is not available")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	snaps, err := s.networth.History(r.Context(), userIDFrom(r.Context()), limit)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, netWorthResponse{Snapshots: snaps})
}

// ─────────────────────────────────────────────
// Conversion helpers
// ─────────────────────────────────────────────

func toMessageResponse(m domain.Message) messageResponse {
	return messageResponse{
		ID:             string(m.ID),
		Text:           m.Text,
		Sender:         string(m.Sender),
		CreatedAt:      m.CreatedAt,
		FunctionCalled: m.FunctionCalled,
		FunctionResult: m.FunctionResult,
		Chart:          chart.Adapt(m.ChartData),
	}
}

func toMessagesResponse(msgs []domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

func toOutcomeResponse(o effects.Outcome) outcomeResponse {
	out := outcomeResponse{
		Notification: o.Notification,
		PeriodChange: o.PeriodChange,
	}
	if o.Navigate != nil {
		out.Navigate = &navigationResponse{
			Path:    o.Navigate.Path,
			DelayMs: o.Navigate.Delay.Milliseconds(),
		}
	}
	return out
}

func toFinanceResponse(snap finance.Snapshot, period domain.Period) financeResponse {
	out := financeResponse{
		Period:        period,
		Expenses:      make([]domain.Item, 0, len(snap.Expenses)),
		Budgets:       make([]domain.BudgetStatus, 0, len(snap.Budgets)),
		Subscriptions: snap.Subscriptions,
		LoadedAt:      snap.LoadedAt,
	}
	for _, it := range snap.Expenses {
		if period.Contains(it.Date) {
			out.Expenses = append(out.Expenses, it)
		}
	}
	for _, b := range snap.Budgets {
		if period.IsAll() || b.Period == period {
			out.Budgets = append(out.Budgets, b)
		}
	}
	if out.Subscriptions == nil {
		out.Subscriptions = []domain.Subscription{}
	}
	return out
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// writeServiceError maps conversation errors to status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		badRequest(w, err.Error())
	case errors.Is(err, conversation.ErrNoIdentity):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, conversation.ErrTurnInFlight):
		writeError(w, http.StatusConflict, err.Error())
	default:
		internalError(w, r, err)
	}
}
