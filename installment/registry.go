package installment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/solarpay/financing-engine/generic"
	"go.uber.org/zap"
)

// =============================================================================
// ACCOUNT REGISTRY - Lifecycle of financing accounts
// =============================================================================

// Registry opens, lists and closes accounts. Schedule operations live on
// Service; the registry only guards what enters storage.
type Registry struct {
	Repo   AccountRepository
	IDs    *generic.IDGenerator
	Logger *zap.Logger
}

func NewRegistry(repo AccountRepository, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		Repo: repo,
		IDs: generic.NewIDGenerator(func(ctx context.Context, id string) (bool, error) {
			return repo.AccountExists(ctx, id)
		}),
		Logger: logger,
	}
}

// Open validates and persists a new account. An empty ID is replaced by a
// generated one; an empty BranchID defaults to the caller's branch.
func (r *Registry) Open(ctx context.Context, caller Caller, account Account, now time.Time) (Account, error) {
	if err := account.Terms.Validate(); err != nil {
		return Account{}, err
	}
	if err := account.Overrides.Validate(account.Terms.PaymentTermMonths); err != nil {
		return Account{}, err
	}
	if account.Name == "" {
		return Account{}, &generic.ValidationError{Field: "name", Reason: "is required"}
	}

	if account.ID == "" {
		id, err := r.IDs.Next(ctx, now)
		if err != nil {
			return Account{}, &generic.PersistenceError{Op: "generate id", Err: err}
		}
		account.ID = AccountID(id)
	}
	if account.BranchID == "" {
		account.BranchID = caller.BranchID
	}
	account.Overrides = account.Overrides.Clone()
	account.CreatedAt = now
	account.UpdatedAt = now

	change := Change{
		Caller: caller,
		Action: ActionAccountCreated,
		At:     now,
		Detail: map[string]string{
			"principal":  account.Terms.LoanPrincipal().String(),
			"start_date": account.Terms.StartDate.String(),
		},
	}
	if err := r.Repo.CreateAccount(ctx, account, change); err != nil {
		if errors.Is(err, generic.ErrStateConflict) {
			return Account{}, err
		}
		return Account{}, &generic.PersistenceError{Op: "create", AccountID: string(account.ID), Err: err}
	}

	r.Logger.Info("account opened",
		zap.String("account_id", string(account.ID)),
		zap.String("branch_id", account.BranchID),
		zap.String("actor", caller.ActorID))
	return account, nil
}

func (r *Registry) Get(ctx context.Context, id AccountID) (*Account, error) {
	acct, err := r.Repo.LoadAccount(ctx, id)
	if err != nil {
		if generic.IsNotFound(err) {
			return nil, err
		}
		return nil, &generic.PersistenceError{Op: "load", AccountID: string(id), Err: err}
	}
	return acct, nil
}

func (r *Registry) List(ctx context.Context, branchID string) ([]Account, error) {
	accounts, err := r.Repo.ListAccounts(ctx, branchID)
	if err != nil {
		return nil, &generic.PersistenceError{Op: "list", Err: err}
	}
	return accounts, nil
}

// Update edits the account holder's profile. Terms and overrides cannot be
// changed here; moving the schedule goes through Service.ChangeStartDate.
func (r *Registry) Update(ctx context.Context, caller Caller, id AccountID, patch ProfilePatch, now time.Time) (*Account, error) {
	if patch.IsEmpty() {
		return nil, &generic.ValidationError{Reason: "nothing to update"}
	}
	detail := map[string]string{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, &generic.ValidationError{Field: "name", Reason: "is required"}
		}
		patch.Name = &name
		detail["name"] = name
	}
	if patch.Address != nil {
		detail["address"] = *patch.Address
	}
	if patch.SolarType != nil {
		detail["solar_type"] = *patch.SolarType
	}

	change := Change{Caller: caller, Action: ActionProfileUpdated, At: now, Detail: detail}
	if err := r.Repo.UpdateProfile(ctx, id, patch, change); err != nil {
		if generic.IsNotFound(err) {
			return nil, err
		}
		return nil, &generic.PersistenceError{Op: "update profile", AccountID: string(id), Err: err}
	}

	r.Logger.Info("account profile updated",
		zap.String("account_id", string(id)),
		zap.String("actor", caller.ActorID),
		zap.Int("fields", len(detail)))
	return r.Get(ctx, id)
}

// Close deletes an account together with its overrides and audit trail.
// The dropped payments are logged since no history survives the delete.
func (r *Registry) Close(ctx context.Context, caller Caller, id AccountID) error {
	acct, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.Repo.DeleteAccount(ctx, id); err != nil {
		if generic.IsNotFound(err) {
			return err
		}
		return &generic.PersistenceError{Op: "delete", AccountID: string(id), Err: err}
	}
	r.Logger.Info("account closed",
		zap.String("account_id", string(id)),
		zap.String("branch_id", acct.BranchID),
		zap.String("actor", caller.ActorID),
		zap.Ints("overrides_dropped", acct.Overrides.Numbers()),
		zap.String("principal", acct.Terms.LoanPrincipal().String()))
	return nil
}
