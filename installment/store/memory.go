// Package store provides in-memory storage collaborators.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/solarpay/financing-engine/generic"
	"github.com/solarpay/financing-engine/installment"
)

// =============================================================================
// MEMORY STORE - In-memory AccountRepository (for testing/dev)
// =============================================================================

// Memory keeps accounts and their audit trail in maps. Every read and
// write copies, so callers never share override maps with the store.
type Memory struct {
	mu       sync.RWMutex
	accounts map[installment.AccountID]installment.Account
	audit    map[installment.AccountID][]installment.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[installment.AccountID]installment.Account),
		audit:    make(map[installment.AccountID][]installment.AuditEntry),
	}
}

func (m *Memory) LoadAccount(_ context.Context, id installment.AccountID) (*installment.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acct, ok := m.accounts[id]
	if !ok {
		return nil, &generic.NotFoundError{AccountID: string(id)}
	}
	out := copyAccount(acct)
	return &out, nil
}

func (m *Memory) SaveOverrides(_ context.Context, id installment.AccountID, overrides installment.Overrides, change installment.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return &generic.NotFoundError{AccountID: string(id)}
	}
	if err := overrides.Validate(acct.Terms.PaymentTermMonths); err != nil {
		return err
	}
	acct.Overrides = overrides.Clone()
	acct.UpdatedAt = change.At
	m.accounts[id] = acct
	m.recordLocked(id, change)
	return nil
}

// UpdateTerms applies the patch and clears every override.
func (m *Memory) UpdateTerms(_ context.Context, id installment.AccountID, patch installment.TermsPatch, change installment.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return &generic.NotFoundError{AccountID: string(id)}
	}
	if patch.StartDate != nil {
		acct.Terms.StartDate = *patch.StartDate
	}
	acct.Overrides = installment.Overrides{}
	acct.UpdatedAt = change.At
	m.accounts[id] = acct
	m.recordLocked(id, change)
	return nil
}

func (m *Memory) CreateAccount(_ context.Context, account installment.Account, change installment.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[account.ID]; exists {
		return &generic.StateConflictError{AccountID: string(account.ID), Status: "exists", Op: "create"}
	}
	m.accounts[account.ID] = copyAccount(account)
	m.recordLocked(account.ID, change)
	return nil
}

// ListAccounts returns accounts ordered by name, then id.
func (m *Memory) ListAccounts(_ context.Context, branchID string) ([]installment.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]installment.Account, 0, len(m.accounts))
	for _, acct := range m.accounts {
		if branchID != "" && acct.BranchID != branchID {
			continue
		}
		result = append(result, copyAccount(acct))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// UpdateProfile edits the descriptive fields only.
func (m *Memory) UpdateProfile(_ context.Context, id installment.AccountID, patch installment.ProfilePatch, change installment.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return &generic.NotFoundError{AccountID: string(id)}
	}
	if patch.Name != nil {
		acct.Name = *patch.Name
	}
	if patch.Address != nil {
		acct.Address = *patch.Address
	}
	if patch.SolarType != nil {
		acct.SolarType = *patch.SolarType
	}
	acct.UpdatedAt = change.At
	m.accounts[id] = acct
	m.recordLocked(id, change)
	return nil
}

func (m *Memory) DeleteAccount(_ context.Context, id installment.AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return &generic.NotFoundError{AccountID: string(id)}
	}
	delete(m.accounts, id)
	delete(m.audit, id)
	return nil
}

func (m *Memory) AccountExists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.accounts[installment.AccountID(id)]
	return ok, nil
}

func (m *Memory) AuditTrail(_ context.Context, id installment.AccountID) ([]installment.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.accounts[id]; !ok {
		return nil, &generic.NotFoundError{AccountID: string(id)}
	}
	result := make([]installment.AuditEntry, len(m.audit[id]))
	copy(result, m.audit[id])
	return result, nil
}

// Reset drops every account and audit entry.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = make(map[installment.AccountID]installment.Account)
	m.audit = make(map[installment.AccountID][]installment.AuditEntry)
	return nil
}

func (m *Memory) recordLocked(id installment.AccountID, change installment.Change) {
	m.audit[id] = append(m.audit[id], installment.AuditEntry{
		ID:        uuid.NewString(),
		AccountID: id,
		Change:    change,
	})
}

func copyAccount(a installment.Account) installment.Account {
	a.Overrides = a.Overrides.Clone()
	return a
}
