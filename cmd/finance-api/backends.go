package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/PabloGalante/finance-assistant/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/finance-assistant/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/finance-assistant/internal/adapters/storage/memory"
	pebblestore "github.com/PabloGalante/finance-assistant/internal/adapters/storage/pebble"
	redisstore "github.com/PabloGalante/finance-assistant/internal/adapters/storage/redis"
	sqlitestore "github.com/PabloGalante/finance-assistant/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/finance-assistant/internal/app/tools"
	"github.com/PabloGalante/finance-assistant/internal/config"
	"github.com/PabloGalante/finance-assistant/internal/domain"
	"github.com/PabloGalante/finance-assistant/internal/observability"
)

// backends holds the opened stores. Firestore and SQLite are opened once
// even when they serve both transcripts and the ledger.
type backends struct {
	transcripts domain.TranscriptStore
	ledger      domain.LedgerStore

	firestore *firestorestore.Store
	sqlite    *sqlitestore.Store
	closers   []func() error
}

func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}
	log := observability.Logger()

	var err error
	switch cfg.LedgerBackend {
	case "firestore":
		b.ledger, err = b.openFirestore(ctx, cfg.GCPProjectID)
	case "sqlite":
		b.ledger, err = b.openSQLite(cfg.SQLitePath)
	default:
		b.ledger = memstore.NewLedgerStore()
	}
	if err != nil {
		b.Close()
		return nil, err
	}

	switch cfg.StorageBackend {
	case "firestore":
		b.transcripts, err = b.openFirestore(ctx, cfg.GCPProjectID)
	case "sqlite":
		b.transcripts, err = b.openSQLite(cfg.SQLitePath)
	case "pebble":
		var s *pebblestore.TranscriptStore
		if s, err = pebblestore.Open(cfg.PebblePath); err == nil {
			b.transcripts = s
			b.closers = append(b.closers, s.Close)
		}
	case "redis":
		var s *redisstore.TranscriptStore
		s, err = redisstore.NewTranscriptStore(ctx, redisstore.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err == nil {
			b.transcripts = s
			b.closers = append(b.closers, s.Close)
		}
	default:
		b.transcripts = memstore.NewTranscriptStore()
	}
	if err != nil {
		b.Close()
		return nil, err
	}

	log.Info("storage ready",
		zap.String("transcripts", cfg.StorageBackend),
		zap.String("ledger", cfg.LedgerBackend),
	)
	return b, nil
}

func (b *backends) openFirestore(ctx context.Context, projectID string) (*firestorestore.Store, error) {
	if b.firestore != nil {
		return b.firestore, nil
	}
	s, err := firestorestore.NewStore(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("initializing firestore store: %w", err)
	}
	b.firestore = s
	b.closers = append(b.closers, s.Close)
	return s, nil
}

func (b *backends) openSQLite(path string) (*sqlitestore.Store, error) {
	if b.sqlite != nil {
		return b.sqlite, nil
	}
	s, err := sqlitestore.Open(path)
	if err != nil {
		return nil, fmt.Errorf("initializing sqlite store: %w", err)
	}
	b.sqlite = s
	b.closers = append(b.closers, s.Close)
	return s, nil
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			observability.Logger().Warn("closing store failed", zap.Error(err))
		}
	}
	b.closers = nil
}

// newModel builds the tool registry and the model service on top of it.
func newModel(ctx context.Context, cfg *config.Config, ledger domain.LedgerStore, metrics *observability.Metrics) (domain.ModelService, error) {
	log := observability.Logger()

	var (
		client   *genai.Client
		embedder domain.Embedder
	)
	if !cfg.UseMockLLM {
		var err error
		client, err = llm.NewClient(ctx, llm.ClientConfig{
			APIKey:   cfg.GeminiAPIKey,
			Project:  cfg.GCPProjectID,
			Location: cfg.GCPLocation,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing genai client: %w", err)
		}
		embedder = llm.NewGenAIEmbedder(client, cfg.EmbeddingModel)
	}

	registry := tools.NewRegistry(
		tools.NewCreateExpenseTool(ledger, embedder, metrics),
		tools.NewDeleteExpensesTool(ledger),
		tools.NewCreateBudgetTool(ledger),
		tools.NewGenerateChartTool(ledger),
		tools.NewSpendingSummaryTool(ledger),
	)

	if client == nil {
		log.Info("using mock model")
		return llm.NewMockService(registry), nil
	}
	log.Info("using gemini model", zap.String("model", cfg.ModelName))
	return llm.NewGeminiService(client, cfg.ModelName, registry, cfg.MaxToolSteps), nil
}
