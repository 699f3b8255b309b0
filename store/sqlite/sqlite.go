/*
Package sqlite provides a SQLite-backed implementation of the account storage
interfaces.

PURPOSE:
  Persists loan terms, payment overrides and the audit trail. Schedules and
  summaries are never written: they are re-derived on every read.

INTERFACES IMPLEMENTED:
  installment.AccountStore:      Load, save overrides, update terms
  installment.AccountRepository: Create, list, edit profile, delete, id
                                 collision checks
  installment.AuditLog:          Change history per account

KEY TABLES:
  accounts:  One row per financing account. Money is stored as decimal
             TEXT, overrides as a JSON object keyed by installment number.
  audit_log: One row per mutation, written in the same SQL transaction as
             the mutation itself. Cascades on account delete.

ATOMICITY:
  Every mutating method runs in its own SQL transaction. UpdateTerms sets
  the new start date and empties overrides_json in one UPDATE.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Two administrators writing the same
  account still race: the later commit wins.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers do not block
  the single writer.

USAGE:
  store, err := sqlite.New("./data/solarpay.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := installment.NewService(store, notifier, logger)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - installment/store.go: Interface definitions
  - installment/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/solarpay/financing-engine/generic"
	"github.com/solarpay/financing-engine/installment"
)

// timeLayout is fixed width so timestamps compare correctly as TEXT.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements the account storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store, err := NewWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewWithDB wraps an already opened handle and migrates it.
func NewWithDB(db *sql.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		branch_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		solar_type TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		down_payment TEXT NOT NULL,
		payment_term_months INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		penalty_rate TEXT NOT NULL,
		overrides_json TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_branch_name
		ON accounts(branch_id, name);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		actor_id TEXT NOT NULL,
		branch_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		installment INTEGER NOT NULL DEFAULT 0,
		detail_json TEXT,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_account_at
		ON audit_log(account_id, at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ACCOUNT STORE (installment.AccountStore interface)
// =============================================================================

const accountColumns = `id, branch_id, name, address, solar_type, currency, total_amount, down_payment,
	payment_term_months, start_date, penalty_rate, overrides_json, created_at, updated_at`

// LoadAccount returns the account or a *generic.NotFoundError.
func (s *Store) LoadAccount(ctx context.Context, id installment.AccountID) (*installment.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", string(id))
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{AccountID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &acct, nil
}

// SaveOverrides replaces the override map and records the change.
func (s *Store) SaveOverrides(ctx context.Context, id installment.AccountID, overrides installment.Overrides, change installment.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var term int
		err := tx.QueryRowContext(ctx, "SELECT payment_term_months FROM accounts WHERE id = ?", string(id)).Scan(&term)
		if errors.Is(err, sql.ErrNoRows) {
			return &generic.NotFoundError{AccountID: string(id)}
		}
		if err != nil {
			return fmt.Errorf("failed to read term: %w", err)
		}
		if err := overrides.Validate(term); err != nil {
			return err
		}

		encoded, err := encodeOverrides(overrides)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE accounts SET overrides_json = ?, updated_at = ? WHERE id = ?",
			encoded, change.At.UTC().Format(timeLayout), string(id),
		); err != nil {
			return fmt.Errorf("failed to save overrides: %w", err)
		}
		return insertAudit(ctx, tx, id, change)
	})
}

// UpdateTerms applies the patch and clears all overrides in one UPDATE.
func (s *Store) UpdateTerms(ctx context.Context, id installment.AccountID, patch installment.TermsPatch, change installment.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		query := "UPDATE accounts SET overrides_json = '{}', updated_at = ? WHERE id = ?"
		args := []any{change.At.UTC().Format(timeLayout), string(id)}
		if patch.StartDate != nil {
			query = "UPDATE accounts SET start_date = ?, overrides_json = '{}', updated_at = ? WHERE id = ?"
			args = append([]any{patch.StartDate.String()}, args...)
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update terms: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return &generic.NotFoundError{AccountID: string(id)}
		}
		return insertAudit(ctx, tx, id, change)
	})
}

// =============================================================================
// ACCOUNT REPOSITORY (installment.AccountRepository interface)
// =============================================================================

// CreateAccount inserts a new account. A duplicate id is a
// *generic.StateConflictError.
func (s *Store) CreateAccount(ctx context.Context, account installment.Account, change installment.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, err := encodeOverrides(account.Overrides)
	if err != nil {
		return err
	}
	terms := account.Terms

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (`+accountColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(account.ID),
			account.BranchID,
			account.Name,
			account.Address,
			account.SolarType,
			string(terms.Currency()),
			terms.TotalAmount.Value.String(),
			terms.DownPayment.Value.String(),
			terms.PaymentTermMonths,
			terms.StartDate.String(),
			terms.PenaltyRate.String(),
			encoded,
			account.CreatedAt.UTC().Format(timeLayout),
			account.UpdatedAt.UTC().Format(timeLayout),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return &generic.StateConflictError{AccountID: string(account.ID), Status: "exists", Op: "create"}
			}
			return fmt.Errorf("failed to create account: %w", err)
		}
		return insertAudit(ctx, tx, account.ID, change)
	})
}

// ListAccounts returns accounts ordered by name. An empty branchID lists
// every branch.
func (s *Store) ListAccounts(ctx context.Context, branchID string) ([]installment.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + accountColumns + " FROM accounts"
	var args []any
	if branchID != "" {
		query += " WHERE branch_id = ?"
		args = append(args, branchID)
	}
	query += " ORDER BY name, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []installment.Account{}
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// UpdateProfile edits name, address and solar type. Terms and overrides
// are left alone.
func (s *Store) UpdateProfile(ctx context.Context, id installment.AccountID, patch installment.ProfilePatch, change installment.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sets := []string{"updated_at = ?"}
	args := []any{change.At.UTC().Format(timeLayout)}
	for _, f := range []struct {
		column string
		value  *string
	}{
		{"name", patch.Name},
		{"address", patch.Address},
		{"solar_type", patch.SolarType},
	} {
		if f.value != nil {
			sets = append(sets, f.column+" = ?")
			args = append(args, *f.value)
		}
	}
	args = append(args, string(id))

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE accounts SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
		if err != nil {
			return fmt.Errorf("failed to update profile: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return &generic.NotFoundError{AccountID: string(id)}
		}
		return insertAudit(ctx, tx, id, change)
	})
}

// DeleteAccount removes an account. Its audit rows cascade.
func (s *Store) DeleteAccount(ctx context.Context, id installment.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", string(id))
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &generic.NotFoundError{AccountID: string(id)}
	}
	return nil
}

// AccountExists backs the id generator's collision check.
func (s *Store) AccountExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// =============================================================================
// AUDIT LOG (installment.AuditLog interface)
// =============================================================================

// AuditTrail returns the changes of an account, oldest first.
func (s *Store) AuditTrail(ctx context.Context, id installment.AccountID) ([]installment.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts WHERE id = ?", string(id)).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to check account: %w", err)
	}
	if count == 0 {
		return nil, &generic.NotFoundError{AccountID: string(id)}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, branch_id, action, installment, detail_json, at
		FROM audit_log WHERE account_id = ?
		ORDER BY at, rowid`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load audit trail: %w", err)
	}
	defer rows.Close()

	entries := []installment.AuditEntry{}
	for rows.Next() {
		var e installment.AuditEntry
		var action, at string
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Caller.ActorID, &e.Caller.BranchID, &action, &e.Installment, &detail, &at); err != nil {
			return nil, err
		}
		e.AccountID = id
		e.Action = installment.ChangeAction(action)
		e.At, _ = time.Parse(timeLayout, at)
		if detail.Valid && detail.String != "" {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("failed to decode audit detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"audit_log", "accounts"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func insertAudit(ctx context.Context, tx *sql.Tx, id installment.AccountID, change installment.Change) error {
	var detail sql.NullString
	if len(change.Detail) > 0 {
		b, err := json.Marshal(change.Detail)
		if err != nil {
			return fmt.Errorf("failed to encode audit detail: %w", err)
		}
		detail = sql.NullString{String: string(b), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (id, account_id, actor_id, branch_id, action, installment, detail_json, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		string(id),
		change.Caller.ActorID,
		change.Caller.BranchID,
		string(change.Action),
		change.Installment,
		detail,
		change.At.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (installment.Account, error) {
	var a installment.Account
	var currency, total, down, start, rate string
	var overridesJSON, createdAt, updatedAt string
	err := row.Scan(&a.ID, &a.BranchID, &a.Name, &a.Address, &a.SolarType, &currency, &total, &down,
		&a.Terms.PaymentTermMonths, &start, &rate, &overridesJSON, &createdAt, &updatedAt)
	if err != nil {
		return installment.Account{}, err
	}

	cur := generic.Currency(currency)
	a.Terms.TotalAmount = generic.NewMoneyFromString(total, cur)
	a.Terms.DownPayment = generic.NewMoneyFromString(down, cur)
	a.Terms.PenaltyRate = generic.MustParseDecimal(rate)
	if a.Terms.StartDate, err = generic.ParseDate(start); err != nil {
		return installment.Account{}, fmt.Errorf("account %s: %w", a.ID, err)
	}
	if a.Overrides, err = decodeOverrides(overridesJSON); err != nil {
		return installment.Account{}, fmt.Errorf("account %s: %w", a.ID, err)
	}
	a.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	a.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return a, nil
}

func encodeOverrides(o installment.Overrides) (string, error) {
	if o == nil {
		return "{}", nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("failed to encode overrides: %w", err)
	}
	return string(b), nil
}

func decodeOverrides(s string) (installment.Overrides, error) {
	o := installment.Overrides{}
	if s == "" {
		return o, nil
	}
	if err := json.Unmarshal([]byte(s), &o); err != nil {
		return nil, fmt.Errorf("failed to decode overrides: %w", err)
	}
	return o, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}
