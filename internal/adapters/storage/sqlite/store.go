// Package sqlite keeps transcript records and the ledger in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/PabloGalante/finance-assistant/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	key        TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS expenses (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	description TEXT NOT NULL,
	amount      REAL NOT NULL,
	currency    TEXT NOT NULL,
	date        TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	embedding   TEXT,
	seq         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_expenses_user ON expenses(user_id, seq);

CREATE TABLE IF NOT EXISTS budgets (
	id       TEXT PRIMARY KEY,
	user_id  TEXT NOT NULL,
	category TEXT NOT NULL,
	amount   REAL NOT NULL,
	currency TEXT NOT NULL,
	period   TEXT NOT NULL,
	seq      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_budgets_user ON budgets(user_id, seq);

CREATE TABLE IF NOT EXISTS subscriptions (
	id       TEXT PRIMARY KEY,
	user_id  TEXT NOT NULL,
	name     TEXT NOT NULL,
	amount   REAL NOT NULL,
	currency TEXT NOT NULL,
	cycle    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id       TEXT PRIMARY KEY,
	user_id  TEXT NOT NULL,
	name     TEXT NOT NULL,
	kind     TEXT NOT NULL,
	balance  REAL NOT NULL,
	currency TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS networth (
	user_id     TEXT NOT NULL,
	period      TEXT NOT NULL,
	assets      REAL NOT NULL,
	liabilities REAL NOT NULL,
	net_worth   REAL NOT NULL,
	currency    TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	PRIMARY KEY (user_id, period)
);
`

// Store implements domain.TranscriptStore and domain.LedgerStore.
type Store struct {
	db *sql.DB
}

// Open creates the parent directory and the schema if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	// one writer at a time; sqlite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ─────────────────────────────────────────
// TranscriptStore implementation
// ─────────────────────────────────────────

func (s *Store) GetRecord(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM transcripts WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite GetRecord: %w", err)
	}
	return data, nil
}

func (s *Store) PutRecord(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcripts (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, data, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite PutRecord: %w", err)
	}
	return nil
}

func (s *Store) DeleteRecord(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite DeleteRecord: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// LedgerStore implementation
// ─────────────────────────────────────────

func (s *Store) AddExpenses(ctx context.Context, userID domain.UserID, items []domain.Item) ([]domain.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite AddExpenses: %w", err)
	}
	defer tx.Rollback()

	seq := time.Now().UnixNano()
	out := make([]domain.Item, 0, len(items))
	for i, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO expenses (id, user_id, description, amount, currency, date, category, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, string(userID), it.Description, it.Amount, it.Currency, it.Date, it.Category, seq+int64(i))
		if err != nil {
			return nil, fmt.Errorf("sqlite AddExpenses: %w", err)
		}
		out = append(out, it)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite AddExpenses commit: %w", err)
	}
	return out, nil
}

func (s *Store) ListExpenses(ctx context.Context, userID domain.UserID) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, amount, currency, date, category
		FROM expenses WHERE user_id = ? ORDER BY seq`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("sqlite ListExpenses: %w", err)
	}
	defer rows.Close()

	out := []domain.Item{}
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ID, &it.Description, &it.Amount, &it.Currency, &it.Date, &it.Category); err != nil {
			return nil, fmt.Errorf("sqlite ListExpenses scan: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// DeleteExpenses applies the filter in Go so matching stays identical across
// backends.
func (s *Store) DeleteExpenses(ctx context.Context, userID domain.UserID, filter domain.ExpenseFilter) (int, error) {
	if filter.IsEmpty() {
		return 0, nil
	}

	items, err := s.ListExpenses(ctx, userID)
	if err != nil {
		return 0, err
	}

	var ids []string
	for _, it := range items {
		if filter.Match(it) {
			ids = append(ids, it.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, string(userID))
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE user_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite DeleteExpenses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite DeleteExpenses: %w", err)
	}
	return int(n), nil
}

func (s *Store) SaveEmbedding(ctx context.Context, userID domain.UserID, itemID string, vector []float32) error {
	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("sqlite SaveEmbedding encode: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE expenses SET embedding = ? WHERE user_id = ? AND id = ?`,
		string(raw), string(userID), itemID)
	if err != nil {
		return fmt.Errorf("sqlite SaveEmbedding: %w", err)
	}
	return nil
}

// Embedding returns the stored vector of an item.
func (s *Store) Embedding(ctx context.Context, userID domain.UserID, itemID string) ([]float32, bool, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding FROM expenses WHERE user_id = ? AND id = ?`, string(userID), itemID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !raw.Valid) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite Embedding: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw.String), &vec); err != nil {
		return nil, false, fmt.Errorf("sqlite Embedding decode: %w", err)
	}
	return vec, true, nil
}

func (s *Store) AddBudget(ctx context.Context, userID domain.UserID, b domain.Budget) (domain.Budget, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budgets (id, user_id, category, amount, currency, period, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, string(userID), b.Category, b.Amount, b.Currency, string(b.Period), time.Now().UnixNano())
	if err != nil {
		return domain.Budget{}, fmt.Errorf("sqlite AddBudget: %w", err)
	}
	return b, nil
}

func (s *Store) ListBudgets(ctx context.Context, userID domain.UserID) ([]domain.Budget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, amount, currency, period
		FROM budgets WHERE user_id = ? ORDER BY seq`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("sqlite ListBudgets: %w", err)
	}
	defer rows.Close()

	out := []domain.Budget{}
	for rows.Next() {
		var b domain.Budget
		var period string
		if err := rows.Scan(&b.ID, &b.Category, &b.Amount, &b.Currency, &period); err != nil {
			return nil, fmt.Errorf("sqlite ListBudgets scan: %w", err)
		}
		b.Period = domain.Period(period)
		out = append(out, b)
	}
	return out, rows.Err()
}

// PutSubscription seeds a subscription; subscriptions are managed outside the assistant.
func (s *Store) PutSubscription(ctx context.Context, userID domain.UserID, sub domain.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO subscriptions (id, user_id, name, amount, currency, cycle)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sub.ID, string(userID), sub.Name, sub.Amount, sub.Currency, sub.Cycle)
	if err != nil {
		return fmt.Errorf("sqlite PutSubscription: %w", err)
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, userID domain.UserID) ([]domain.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, amount, currency, cycle
		FROM subscriptions WHERE user_id = ? ORDER BY name`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("sqlite ListSubscriptions: %w", err)
	}
	defer rows.Close()

	out := []domain.Subscription{}
	for rows.Next() {
		var sub domain.Subscription
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.Amount, &sub.Currency, &sub.Cycle); err != nil {
			return nil, fmt.Errorf("sqlite ListSubscriptions scan: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// PutAccount seeds an account; accounts are managed outside the assistant.
func (s *Store) PutAccount(ctx context.Context, userID domain.UserID, acc domain.Account) error {
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO accounts (id, user_id, name, kind, balance, currency)
		VALUES (?, ?, ?, ?, ?, ?)`,
		acc.ID, string(userID), acc.Name, string(acc.Kind), acc.Balance, acc.Currency)
	if err != nil {
		return fmt.Errorf("sqlite PutAccount: %w", err)
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context, userID domain.UserID) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, balance, currency
		FROM accounts WHERE user_id = ? ORDER BY name`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("sqlite ListAccounts: %w", err)
	}
	defer rows.Close()

	out := []domain.Account{}
	for rows.Next() {
		var acc domain.Account
		var kind string
		if err := rows.Scan(&acc.ID, &acc.Name, &kind, &acc.Balance, &acc.Currency); err != nil {
			return nil, fmt.Errorf("sqlite ListAccounts scan: %w", err)
		}
		acc.Kind = domain.AccountKind(kind)
		out = append(out, acc)
	}
	return out, rows.Err()
}

// AppendNetWorth keys snapshots by period, so a rerun overwrites.
func (s *Store) AppendNetWorth(ctx context.Context, snap domain.NetWorthSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO networth (user_id, period, assets, liabilities, net_worth, currency, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(snap.UserID), string(snap.Period), snap.Assets, snap.Liabilities, snap.NetWorth,
		snap.Currency, snap.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite AppendNetWorth: %w", err)
	}
	return nil
}

// ListNetWorth returns the last `limit` snapshots, oldest first.
// If limit <= 0, returns all.
func (s *Store) ListNetWorth(ctx context.Context, userID domain.UserID, limit int) ([]domain.NetWorthSnapshot, error) {
	q := `SELECT period, assets, liabilities, net_worth, currency, created_at
		FROM networth WHERE user_id = ? ORDER BY period DESC`
	args := []any{string(userID)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite ListNetWorth: %w", err)
	}
	defer rows.Close()

	out := []domain.NetWorthSnapshot{}
	for rows.Next() {
		snap := domain.NetWorthSnapshot{UserID: userID}
		var period, createdAt string
		if err := rows.Scan(&period, &snap.Assets, &snap.Liabilities, &snap.NetWorth, &snap.Currency, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite ListNetWorth scan: %w", err)
		}
		snap.Period = domain.Period(period)
		if snap.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("sqlite ListNetWorth created_at: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM accounts ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite ListUsers: %w", err)
	}
	defer rows.Close()

	var out []domain.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite ListUsers scan: %w", err)
		}
		out = append(out, domain.UserID(id))
	}
	return out, rows.Err()
}
