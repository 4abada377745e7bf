package history_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/PabloGalante/finance-assistant/internal/adapters/storage/memory"
	"github.com/PabloGalante/finance-assistant/internal/app/history"
	"github.com/PabloGalante/finance-assistant/internal/domain"
	"github.com/PabloGalante/finance-assistant/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sampleSession(userID domain.UserID) *domain.ChatSession {
	at := time.Date(2024, 3, 5, 10, 0, 0, 123456789, time.UTC)
	return &domain.ChatSession{
		UserID: userID,
		Messages: []domain.Message{
			{ID: "m1", Text: "Add $12 for coffee", Sender: domain.SenderUser, CreatedAt: at},
			{
				ID:             "m2",
				Text:           "Added Coffee.",
				Sender:         domain.SenderAssistant,
				CreatedAt:      at.Add(time.Second),
				FunctionCalled: domain.FnCreateExpense,
				FunctionResult: &domain.FunctionResult{FunctionName: domain.FnCreateExpense, Success: true},
			},
		},
		Context: []domain.ConversationTurn{
			domain.ConversationTurn(`{"role":"user","parts":[{"text":"Add $12 for coffee"}]}`),
			domain.ConversationTurn(`{"role":"model","parts":[{"functionCall":{"name":"create_expense"},"thoughtSignature":"c2lnLTE="}]}`),
		},
	}
}

func TestLoadDefaultsWhenAbsent(t *testing.T) {
	s := history.NewStore(memory.NewTranscriptStore(), nil)
	defer s.Close()

	got := s.Load(context.Background(), "u1")

	require.Len(t, got.Messages, 1)
	assert.Equal(t, domain.SenderAssistant, got.Messages[0].Sender)
	assert.Equal(t, history.DefaultGreeting, got.Messages[0].Text)
	assert.Empty(t, got.Context)
	assert.Equal(t, domain.UserID("u1"), got.UserID)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := history.NewStore(memory.NewTranscriptStore(), nil)
	defer s.Close()

	want := sampleSession("u1")
	s.Save(want)

	got := s.Load(context.Background(), "u1")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	// continuation tokens come back byte for byte
	for i := range want.Context {
		assert.Equal(t, string(want.Context[i]), string(got.Context[i]))
	}
}

func TestSaveSnapshotsTheSession(t *testing.T) {
	s := history.NewStore(memory.NewTranscriptStore(), nil)
	defer s.Close()

	sess := sampleSession("u1")
	s.Save(sess)
	sess.Messages[0].Text = "mutated after save"

	got := s.Load(context.Background(), "u1")
	assert.Equal(t, "Add $12 for coffee", got.Messages[0].Text)
}

func TestClearThenLoad(t *testing.T) {
	backend := memory.NewTranscriptStore()
	s := history.NewStore(backend, nil)
	defer s.Close()

	s.Save(sampleSession("u1"))
	fresh := s.Clear(context.Background(), "u1")

	require.Len(t, fresh.Messages, 1)
	assert.Equal(t, 0, backend.Len())

	got := s.Load(context.Background(), "u1")
	require.Len(t, got.Messages, 1)
	assert.Equal(t, history.DefaultGreeting, got.Messages[0].Text)
	assert.Empty(t, got.Context)
}

func TestLoadFailsOpenOnCorruptRecords(t *testing.T) {
	metrics := observability.NewMetrics()
	backend := memory.NewTranscriptStore()
	require.NoError(t, backend.PutRecord(context.Background(), "chat_messages_u1", []byte("{not json")))
	require.NoError(t, backend.PutRecord(context.Background(), "chat_context_u1", []byte(`{"context":"nope"}`)))

	s := history.NewStore(backend, metrics)
	defer s.Close()

	got := s.Load(context.Background(), "u1")
	require.Len(t, got.Messages, 1)
	assert.Empty(t, got.Context)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PersistenceFailures.WithLabelValues("decode")))
}

func TestLoadKeepsMessagesWhenContextMissing(t *testing.T) {
	backend := memory.NewTranscriptStore()
	data, err := json.Marshal(map[string]any{"messages": sampleSession("u1").Messages})
	require.NoError(t, err)
	require.NoError(t, backend.PutRecord(context.Background(), "chat_messages_u1", data))

	s := history.NewStore(backend, nil)
	defer s.Close()

	got := s.Load(context.Background(), "u1")
	assert.Len(t, got.Messages, 2)
	assert.Empty(t, got.Context)
}

type failingBackend struct{}

func (failingBackend) GetRecord(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}

func (failingBackend) PutRecord(context.Context, string, []byte) error {
	return errors.New("disk on fire")
}

func (failingBackend) DeleteRecord(context.Context, string) error {
	return errors.New("disk on fire")
}

func TestBackendFailuresNeverSurface(t *testing.T) {
	metrics := observability.NewMetrics()
	s := history.NewStore(failingBackend{}, metrics)

	got := s.Load(context.Background(), "u1")
	require.Len(t, got.Messages, 1)

	s.Save(sampleSession("u1"))
	s.Clear(context.Background(), "u1")
	s.Close()

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PersistenceFailures.WithLabelValues("read")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PersistenceFailures.WithLabelValues("write")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PersistenceFailures.WithLabelValues("delete")))
}

// gatedBackend blocks the first message write until release is closed and
// records the text of the last message of every write it receives.
type gatedBackend struct {
	*memory.TranscriptStore

	mu      sync.Mutex
	writes  []string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedBackend) PutRecord(ctx context.Context, key string, data []byte) error {
	if key == "chat_messages_u1" {
		var rec struct {
			Messages []domain.Message `json:"messages"`
		}
		_ = json.Unmarshal(data, &rec)

		g.mu.Lock()
		g.writes = append(g.writes, rec.Messages[len(rec.Messages)-1].Text)
		g.mu.Unlock()

		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	return g.TranscriptStore.PutRecord(ctx, key, data)
}

func TestSaveIsSerializedLatestWins(t *testing.T) {
	g := &gatedBackend{
		TranscriptStore: memory.NewTranscriptStore(),
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	s := history.NewStore(g, nil)
	defer s.Close()

	withText := func(text string) *domain.ChatSession {
		sess := sampleSession("u1")
		sess.Messages = append(sess.Messages, domain.Message{ID: domain.MessageID(text), Text: text, Sender: domain.SenderUser})
		return sess
	}

	s.Save(withText("v1"))
	<-g.entered // v1 is in flight

	s.Save(withText("v2"))
	s.Save(withText("v3"))
	close(g.release)

	got := s.Load(context.Background(), "u1")
	assert.Equal(t, "v3", got.Messages[len(got.Messages)-1].Text)

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Equal(t, []string{"v1", "v3"}, g.writes, "v2 is superseded before it is written")
}

func TestClearIsOrderedAfterQueuedWrite(t *testing.T) {
	g := &gatedBackend{
		TranscriptStore: memory.NewTranscriptStore(),
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	s := history.NewStore(g, nil)
	defer s.Close()

	s.Save(sampleSession("u1"))
	<-g.entered

	cleared := make(chan struct{})
	go func() {
		s.Clear(context.Background(), "u1")
		close(cleared)
	}()

	close(g.release)
	<-cleared

	got := s.Load(context.Background(), "u1")
	require.Len(t, got.Messages, 1)
	assert.Equal(t, history.DefaultGreeting, got.Messages[0].Text)
}
