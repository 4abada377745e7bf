package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PabloGalante/finance-assistant/internal/app/chart"
	"github.com/PabloGalante/finance-assistant/internal/app/effects"
	"github.com/PabloGalante/finance-assistant/internal/app/history"
	"github.com/PabloGalante/finance-assistant/internal/app/interpret"
	"github.com/PabloGalante/finance-assistant/internal/domain"
	"github.com/PabloGalante/finance-assistant/internal/observability"
)

var (
	ErrNoIdentity   = errors.New("no authenticated user")
	ErrEmptyMessage = errors.New("message text is empty")
	ErrTurnInFlight = errors.New("a message is already being processed")
)

const (
	// FallbackReply stands in when the model answers with no text.
	FallbackReply = "Done. Is there anything else you'd like me to help with?"
	// ApologyReply replaces the answer when the model call fails.
	ApologyReply = "Sorry, I couldn't process that right now. Please try again in a moment."
)

// userSession is the live state of one user's chat. typing gates re-entrancy:
// at most one turn is in flight per user. A session signed out mid-turn stays
// registered until that turn ends, so the guard keeps holding.
type userSession struct {
	mu        sync.Mutex
	session   *domain.ChatSession
	typing    bool
	wiped     bool
	signedOut bool
}

type Service struct {
	model        domain.ModelService
	store        *history.Store
	coordinator  *effects.Coordinator
	metrics      *observability.Metrics
	modelTimeout time.Duration
	now          func() time.Time

	mu       sync.Mutex
	sessions map[domain.UserID]*userSession
}

type Option func(*Service)

// WithModelTimeout bounds each model call. Zero means no bound beyond the caller's context.
func WithModelTimeout(d time.Duration) Option {
	return func(s *Service) { s.modelTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(
	model domain.ModelService,
	store *history.Store,
	coordinator *effects.Coordinator,
	metrics *observability.Metrics,
	opts ...Option,
) *Service {
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	s := &Service{
		model:       model,
		store:       store,
		coordinator: coordinator,
		metrics:     metrics,
		now:         time.Now,
		sessions:    make(map[domain.UserID]*userSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SendInput struct {
	UserID domain.UserID
	Text   string
	Period domain.Period
}

type SendOutput struct {
	Session          *domain.ChatSession
	UserMessage      domain.Message
	AssistantMessage domain.Message
	Outcome          effects.Outcome
}

// SessionView is a session snapshot plus the typing flag the UI shows.
type SessionView struct {
	Session *domain.ChatSession
	Typing  bool
}

// Send runs one chat turn. The user message is appended before the model is
// called and survives any failure after that point; a failed model call is
// answered with ApologyReply rather than an error.
func (s *Service) Send(ctx context.Context, in SendInput) (*SendOutput, error) {
	text := strings.TrimSpace(in.Text)
	if in.UserID == "" {
		s.metrics.RejectedSends.WithLabelValues("no_identity").Inc()
		return nil, ErrNoIdentity
	}
	if text == "" {
		s.metrics.RejectedSends.WithLabelValues("empty").Inc()
		return nil, ErrEmptyMessage
	}

	log := observability.LoggerFromContext(ctx).With(
		zap.String("user_id", string(in.UserID)),
		zap.String("period", string(in.Period)),
	)

	us := s.acquire(ctx, in.UserID)

	us.mu.Lock()
	if us.typing {
		us.mu.Unlock()
		s.metrics.RejectedSends.WithLabelValues("in_flight").Inc()
		log.Info("send rejected, turn in flight")
		return nil, ErrTurnInFlight
	}
	userMsg := domain.Message{
		ID:        newMessageID(),
		Text:      text,
		Sender:    domain.SenderUser,
		CreatedAt: s.now(),
	}
	us.session.Messages = append(us.session.Messages, userMsg)
	us.typing = true
	priorContext := append([]domain.ConversationTurn(nil), us.session.Context...)
	us.mu.Unlock()

	log.Info("sending message", zap.Int("context_turns", len(priorContext)))

	resp, err := s.callModel(ctx, domain.ChatRequest{
		Text:    text,
		UserID:  in.UserID,
		Context: priorContext,
		Period:  in.Period,
	})

	var (
		assistantMsg domain.Message
		ev           *interpret.Event
	)

	us.mu.Lock()
	if err != nil {
		log.Error("model call failed", zap.Error(err))
		s.metrics.Turns.WithLabelValues("failed").Inc()
		assistantMsg = s.assistantMessage(ApologyReply, "", nil)
	} else {
		us.session.Context = append([]domain.ConversationTurn(nil), resp.History...)
		assistantMsg = s.assistantMessage(resp.Text, resp.FunctionCalled, resp.FunctionResult)

		ev = interpret.Interpret(resp.FunctionCalled, resp.FunctionResult)
		if ev == nil {
			if reason := interpret.Explain(resp.FunctionCalled, resp.FunctionResult); reason != "" {
				log.Info("function result not actionable",
					zap.String("function", resp.FunctionCalled),
					zap.String("reason", reason))
			}
		}
		s.metrics.Turns.WithLabelValues("ok").Inc()
	}
	us.session.Messages = append(us.session.Messages, assistantMsg)
	us.mu.Unlock()

	// typing is still set, so no other turn can run while effects apply
	var outcome effects.Outcome
	if ev != nil && s.coordinator != nil {
		outcome = s.coordinator.Apply(ctx, in.UserID, ev, in.Period)
	}

	us.mu.Lock()
	if !us.wiped {
		s.store.Save(us.session)
	}
	us.typing = false
	signedOut := us.signedOut
	snapshot := us.session.Clone()
	us.mu.Unlock()

	if signedOut {
		s.release(in.UserID, us)
	}

	log.Info("send message completed", zap.Bool("actionable", ev != nil))

	return &SendOutput{
		Session:          snapshot,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Outcome:          outcome,
	}, nil
}

// callModel is the turn's only suspension point. A panic in the adapter is
// treated like any other failed call.
func (s *Service) callModel(ctx context.Context, req domain.ChatRequest) (resp *domain.ChatResponse, err error) {
	if s.modelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.modelTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		s.metrics.ModelLatency.Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("model service panicked: %v", r)
		}
	}()

	resp, err = s.model.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("model service returned no response")
	}
	return resp, nil
}

func (s *Service) assistantMessage(text, functionCalled string, result *domain.FunctionResult) domain.Message {
	if strings.TrimSpace(text) == "" {
		text = FallbackReply
	}
	msg := domain.Message{
		ID:             newMessageID(),
		Text:           text,
		Sender:         domain.SenderAssistant,
		CreatedAt:      s.now(),
		FunctionCalled: functionCalled,
		FunctionResult: result,
	}
	if result != nil && chart.Valid(result.ChartData) {
		msg.ChartData = result.ChartData
	}
	return msg
}

// Session returns the user's session, hydrating it from storage on first use.
func (s *Service) Session(ctx context.Context, userID domain.UserID) (*SessionView, error) {
	if userID == "" {
		return nil, ErrNoIdentity
	}
	us := s.acquire(ctx, userID)

	us.mu.Lock()
	defer us.mu.Unlock()
	return &SessionView{Session: us.session.Clone(), Typing: us.typing}, nil
}

// ClearHistory wipes the stored transcript and context and starts over.
// It is refused while a turn is in flight.
func (s *Service) ClearHistory(ctx context.Context, userID domain.UserID) (*domain.ChatSession, error) {
	if userID == "" {
		return nil, ErrNoIdentity
	}
	us := s.acquire(ctx, userID)

	us.mu.Lock()
	defer us.mu.Unlock()
	if us.typing {
		return nil, ErrTurnInFlight
	}

	us.session = s.store.Clear(ctx, userID)
	observability.LoggerFromContext(ctx).Info("chat history cleared", zap.String("user_id", string(userID)))
	return us.session.Clone(), nil
}

// SignOut tears down the in-memory session. With wipe, the stored history is
// deleted too and an in-flight turn will not persist its result. A session
// with a turn in flight is released when that turn ends; until then new sends
// are still rejected with ErrTurnInFlight.
func (s *Service) SignOut(ctx context.Context, userID domain.UserID, wipe bool) error {
	if userID == "" {
		return ErrNoIdentity
	}

	s.mu.Lock()
	if us, ok := s.sessions[userID]; ok {
		us.mu.Lock()
		if wipe {
			us.wiped = true
		}
		if us.typing {
			us.signedOut = true
		} else {
			delete(s.sessions, userID)
		}
		us.mu.Unlock()
	}
	s.mu.Unlock()

	if wipe {
		s.store.Clear(ctx, userID)
	}

	observability.LoggerFromContext(ctx).Info("signed out",
		zap.String("user_id", string(userID)),
		zap.Bool("wipe", wipe))
	return nil
}

// Typing reports whether a turn is in flight for the user.
func (s *Service) Typing(userID domain.UserID) bool {
	s.mu.Lock()
	us, ok := s.sessions[userID]
	s.mu.Unlock()
	if !ok {
		return false
	}

	us.mu.Lock()
	defer us.mu.Unlock()
	return us.typing
}

// release drops us from the registry unless it was already replaced.
func (s *Service) release(userID domain.UserID, us *userSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[userID] == us {
		delete(s.sessions, userID)
	}
}

// acquire returns the live session of a user, loading it on first use.
// Loading happens under the user's lock only.
func (s *Service) acquire(ctx context.Context, userID domain.UserID) *userSession {
	s.mu.Lock()
	us, ok := s.sessions[userID]
	if !ok {
		us = &userSession{}
		s.sessions[userID] = us
	}
	s.mu.Unlock()

	us.mu.Lock()
	if us.session == nil {
		us.session = s.store.Load(ctx, userID)
	}
	us.mu.Unlock()
	return us
}

func newMessageID() domain.MessageID {
	return domain.MessageID(uuid.NewString())
}
