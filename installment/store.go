/*
store.go - Storage collaborator contract

PURPOSE:
  Defines what the engine needs from persistence. The storage layer is the
  only source of truth for loan terms and overrides; schedules and
  summaries are never stored.

KEY INTERFACES:
  AccountStore:      What the Service needs (load, save overrides, update terms)
  AccountRepository: AccountStore plus account lifecycle (create, list,
                     edit profile, delete)

ATOMICITY:
  Each call is one atomic write. The Service never relies on atomicity
  across two calls.

  UpdateTerms is only used for start-date changes and MUST clear all
  overrides in the same write: installment numbers map to different due
  dates afterwards.

CONCURRENCY:
  Two administrators editing the same account are not arbitrated here.
  The last write wins; there is no version token.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (production)
  - installment/store/memory.go: In-memory (tests, dev)
*/
package installment

import (
	"context"

	"github.com/solarpay/financing-engine/generic"
)

// TermsPatch carries the term fields that may change after creation.
// Only the start date is mutable; a nil field means "unchanged".
type TermsPatch struct {
	StartDate *generic.TimePoint
}

// ProfilePatch carries the descriptive fields an administrator may edit.
// Terms and overrides are never part of it; a nil field means "unchanged".
type ProfilePatch struct {
	Name      *string
	Address   *string
	SolarType *string
}

// IsEmpty reports whether the patch changes nothing.
func (p ProfilePatch) IsEmpty() bool {
	return p.Name == nil && p.Address == nil && p.SolarType == nil
}

// AccountStore is the storage collaborator consumed by the Service.
type AccountStore interface {
	// LoadAccount returns the account or a *generic.NotFoundError.
	LoadAccount(ctx context.Context, id AccountID) (*Account, error)

	// SaveOverrides replaces the override map of an account.
	SaveOverrides(ctx context.Context, id AccountID, overrides Overrides, change Change) error

	// UpdateTerms applies patch and clears all overrides atomically.
	UpdateTerms(ctx context.Context, id AccountID, patch TermsPatch, change Change) error
}

// AccountRepository adds account lifecycle operations.
type AccountRepository interface {
	AccountStore

	// CreateAccount persists a new account. The ID must be set.
	CreateAccount(ctx context.Context, account Account, change Change) error

	// ListAccounts returns accounts of a branch ordered by name.
	// An empty branchID lists every branch.
	ListAccounts(ctx context.Context, branchID string) ([]Account, error)

	// UpdateProfile applies patch without touching terms or overrides.
	UpdateProfile(ctx context.Context, id AccountID, patch ProfilePatch, change Change) error

	// DeleteAccount removes an account or returns a *generic.NotFoundError.
	DeleteAccount(ctx context.Context, id AccountID) error

	// AccountExists backs the ID generator's collision check.
	AccountExists(ctx context.Context, id string) (bool, error)
}

// AuditEntry is one persisted Change.
type AuditEntry struct {
	ID        string
	AccountID AccountID
	Change
}

// AuditLog is implemented by stores that keep the change history.
type AuditLog interface {
	// AuditTrail returns the changes of an account, oldest first.
	AuditTrail(ctx context.Context, id AccountID) ([]AuditEntry, error)
}
