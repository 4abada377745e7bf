// Package history persists chat transcripts and model context per user.
//
// Writes are fire-and-forget but serialized per user: each user has a
// single-slot mailbox, a newer snapshot replaces a queued one, and the
// in-flight write always finishes before the next starts. Reads fail open to
// a default greeting session.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PabloGalante/finance-assistant/internal/domain"
	"github.com/PabloGalante/finance-assistant/internal/observability"
)

const DefaultGreeting = "Hi! I'm your finance assistant. I can log expenses, set up budgets and chart your spending. What would you like to do?"

type messagesRecord struct {
	Messages []domain.Message `json:"messages"`
}

type contextRecord struct {
	Context []domain.ConversationTurn `json:"context"`
}

func messagesKey(userID domain.UserID) string { return "chat_messages_" + string(userID) }
func contextKey(userID domain.UserID) string  { return "chat_context_" + string(userID) }

// op is a queued write: a snapshot to store, or a delete when session is nil.
// waiters are released once the op, or the op that superseded it, has landed.
type op struct {
	userID  domain.UserID
	session *domain.ChatSession
	waiters []chan struct{}
}

type mailbox struct {
	pending *op
	idle    chan struct{} // non-nil while a drain goroutine runs; closed when it exits
}

type Store struct {
	backend      domain.TranscriptStore
	metrics      *observability.Metrics
	greeting     string
	writeTimeout time.Duration
	now          func() time.Time

	mu    sync.Mutex
	boxes map[domain.UserID]*mailbox
	wg    sync.WaitGroup
}

type Option func(*Store)

func WithGreeting(text string) Option {
	return func(s *Store) { s.greeting = text }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) { s.writeTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(backend domain.TranscriptStore, metrics *observability.Metrics, opts ...Option) *Store {
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	s := &Store{
		backend:      backend,
		metrics:      metrics,
		greeting:     DefaultGreeting,
		writeTimeout: 5 * time.Second,
		now:          time.Now,
		boxes:        make(map[domain.UserID]*mailbox),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultSession returns a session holding only the greeting.
func (s *Store) DefaultSession(userID domain.UserID) *domain.ChatSession {
	return &domain.ChatSession{
		UserID: userID,
		Messages: []domain.Message{{
			ID:        domain.MessageID(uuid.NewString()),
			Text:      s.greeting,
			Sender:    domain.SenderAssistant,
			CreatedAt: s.now(),
		}},
		Context: []domain.ConversationTurn{},
	}
}

// Load returns the persisted session of userID once its queued writes have
// landed. Missing or unreadable records yield defaults, never an error.
func (s *Store) Load(ctx context.Context, userID domain.UserID) *domain.ChatSession {
	s.waitIdle(userID)

	log := observability.LoggerFromContext(ctx).With(zap.String("user_id", string(userID)))
	session := s.DefaultSession(userID)

	var msgs messagesRecord
	if s.read(ctx, log, messagesKey(userID), &msgs) && len(msgs.Messages) > 0 {
		session.Messages = msgs.Messages
	}

	var turns contextRecord
	if s.read(ctx, log, contextKey(userID), &turns) && turns.Context != nil {
		session.Context = turns.Context
	}

	return session
}

func (s *Store) read(ctx context.Context, log *zap.Logger, key string, into any) bool {
	data, err := s.backend.GetRecord(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrRecordNotFound) {
			s.metrics.PersistenceFailures.WithLabelValues("read").Inc()
			log.Warn("transcript read failed, using defaults", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, into); err != nil {
		s.metrics.PersistenceFailures.WithLabelValues("decode").Inc()
		log.Warn("transcript record undecodable, using defaults", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Save queues a snapshot of session for writing and returns immediately.
func (s *Store) Save(session *domain.ChatSession) {
	if session == nil || session.UserID == "" {
		return
	}
	s.enqueue(&op{userID: session.UserID, session: session.Clone()})
}

// Clear deletes the persisted records of userID, after any queued write,
// and returns a fresh default session.
func (s *Store) Clear(ctx context.Context, userID domain.UserID) *domain.ChatSession {
	done := make(chan struct{})
	s.enqueue(&op{userID: userID, waiters: []chan struct{}{done}})

	select {
	case <-done:
	case <-ctx.Done():
	}
	return s.DefaultSession(userID)
}

// Close waits for every queued write to finish.
func (s *Store) Close() {
	s.wg.Wait()
}

func (s *Store) enqueue(o *op) {
	s.mu.Lock()
	defer s.mu.Unlock()

	box, ok := s.boxes[o.userID]
	if !ok {
		box = &mailbox{}
		s.boxes[o.userID] = box
	}

	// latest wins: a superseded op is never applied
	if prev := box.pending; prev != nil {
		o.waiters = append(prev.waiters, o.waiters...)
	}
	box.pending = o

	if box.idle == nil {
		box.idle = make(chan struct{})
		s.wg.Add(1)
		go s.drain(o.userID, box)
	}
}

func (s *Store) drain(userID domain.UserID, box *mailbox) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		o := box.pending
		box.pending = nil
		if o == nil {
			close(box.idle)
			box.idle = nil
			delete(s.boxes, userID)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.apply(o)
		for _, w := range o.waiters {
			close(w)
		}
	}
}

func (s *Store) apply(o *op) {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	log := observability.Logger().With(zap.String("user_id", string(o.userID)))

	if o.session == nil {
		for _, key := range []string{messagesKey(o.userID), contextKey(o.userID)} {
			if err := s.backend.DeleteRecord(ctx, key); err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
				s.metrics.PersistenceFailures.WithLabelValues("delete").Inc()
				log.Warn("transcript delete failed", zap.String("key", key), zap.Error(err))
			}
		}
		return
	}

	s.put(ctx, log, messagesKey(o.userID), messagesRecord{Messages: o.session.Messages})
	s.put(ctx, log, contextKey(o.userID), contextRecord{Context: o.session.Context})
}

func (s *Store) put(ctx context.Context, log *zap.Logger, key string, record any) {
	data, err := json.Marshal(record)
	if err != nil {
		s.metrics.PersistenceFailures.WithLabelValues("encode").Inc()
		log.Warn("transcript encode failed, write dropped", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.backend.PutRecord(ctx, key, data); err != nil {
		s.metrics.PersistenceFailures.WithLabelValues("write").Inc()
		log.Warn("transcript write failed, write dropped", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) waitIdle(userID domain.UserID) {
	s.mu.Lock()
	var idle chan struct{}
	if box, ok := s.boxes[userID]; ok {
		idle = box.idle
	}
	s.mu.Unlock()

	if idle != nil {
		<-idle
	}
}
