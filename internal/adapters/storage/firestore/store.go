package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/finance-assistant/internal/domain"
)

// Store keeps transcript records and the financial ledger in Firestore.
//
// Layout:
//
//	transcripts/{key}                 {data, updated_at}
//	users/{uid}/expenses/{id}         expense + optional embedding vector
//	users/{uid}/budgets/{id}
//	users/{uid}/subscriptions/{id}
//	users/{uid}/accounts/{id}
//	users/{uid}/networth/{period}
type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store.
// Uses the project passed (FINASSIST_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) transcriptDoc(key string) *firestore.DocumentRef {
	return s.client.Collection("transcripts").Doc(key)
}

func (s *Store) userCol(userID domain.UserID, name string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(string(userID)).Collection(name)
}

func notFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type transcriptDoc struct {
	Data      []byte    `firestore:"data"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// ─────────────────────────────────────────
// TranscriptStore implementation
// ─────────────────────────────────────────

func (s *Store) GetRecord(ctx context.Context, key string) ([]byte, error) {
	snap, err := s.transcriptDoc(key).Get(ctx)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("firestore GetRecord: %w", err)
	}

	var doc transcriptDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetRecord decode: %w", err)
	}
	return doc.Data, nil
}

func (s *Store) PutRecord(ctx context.Context, key string, data []byte) error {
	_, err := s.transcriptDoc(key).Set(ctx, transcriptDoc{Data: data, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("firestore PutRecord: %w", err)
	}
	return nil
}

// DeleteRecord succeeds when the record is already gone.
func (s *Store) DeleteRecord(ctx context.Context, key string) error {
	if _, err := s.transcriptDoc(key).Delete(ctx); err != nil && !notFound(err) {
		return fmt.Errorf("firestore DeleteRecord: %w", err)
	}
	return nil
}
