/*
service.go - Caller-facing facade over the engine and its collaborators

PURPOSE:
  Exposes the five account operations to the administrative layer:

    GetSchedule      derive the reconciled, penalized schedule
    GetSummary       derive the account summary
    RecordPayment    mark an installment Paid and persist the override
    RevertPayment    remove a Paid override and re-derive the installment
    ChangeStartDate  move the schedule and reset every override

  GetStatement bundles account, schedule and summary from one derivation.

TRANSACTIONAL CONTRACT:
  Writes are optimistic: the engine computes the new schedule in memory,
  the store persists the new override map, and only if that succeeds is
  the new view returned. A failed write returns a *generic.PersistenceError
  and the local result is discarded; the next read re-derives from
  storage.

TIME:
  Every operation receives now from the caller. Nothing here reads the
  wall clock.

NOTIFICATIONS:
  Each derivation may report Pending -> Overdue transitions. They are
  handed to the OverdueNotifier, which de-duplicates and delivers them.
  Delivery never affects the result of an operation.

  Only derivations evaluated on today's date (per Clock) notify. A
  what-if read at another date must not announce transitions that have
  not happened, nor consume the de-duplication key of the real one.
*/
package installment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/solarpay/financing-engine/generic"
	"go.uber.org/zap"
)

// OverdueNotifier receives overdue transitions found while deriving a
// schedule. Implementations handle their own delivery errors.
type OverdueNotifier interface {
	NotifyOverdue(ctx context.Context, account Account, events []OverdueEvent)
}

// Statement is the full read model of one account.
type Statement struct {
	Account  Account
	Schedule []Installment
	Summary  AccountSummary
}

type Service struct {
	Store    AccountStore
	Notifier OverdueNotifier
	Logger   *zap.Logger

	// Clock decides which derivations are live. It never feeds the engine.
	Clock func() time.Time
}

func NewService(store AccountStore, notifier OverdueNotifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Store: store, Notifier: notifier, Logger: logger, Clock: time.Now}
}

// =============================================================================
// READS
// =============================================================================

func (s *Service) GetSchedule(ctx context.Context, id AccountID, now time.Time) ([]Installment, error) {
	acct, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.derive(ctx, acct, now), nil
}

func (s *Service) GetSummary(ctx context.Context, id AccountID, now time.Time) (AccountSummary, error) {
	acct, err := s.load(ctx, id)
	if err != nil {
		return AccountSummary{}, err
	}
	return Summarize(s.derive(ctx, acct, now), acct.Terms), nil
}

func (s *Service) GetStatement(ctx context.Context, id AccountID, now time.Time) (*Statement, error) {
	acct, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	schedule := s.derive(ctx, acct, now)
	return &Statement{
		Account:  *acct,
		Schedule: schedule,
		Summary:  Summarize(schedule, acct.Terms),
	}, nil
}

// =============================================================================
// WRITES
// =============================================================================

// RecordPayment marks installment number Paid as of now.
func (s *Service) RecordPayment(ctx context.Context, caller Caller, id AccountID, number int, now time.Time) (Installment, error) {
	acct, err := s.load(ctx, id)
	if err != nil {
		return Installment{}, err
	}

	schedule := s.derive(ctx, acct, now)
	idx := find(schedule, number)
	var waived generic.Money
	if idx >= 0 {
		waived = schedule[idx].Penalty
	}

	updated, override, err := MarkPaid(schedule, number, now)
	if err != nil {
		return Installment{}, withAccount(err, id)
	}

	change := Change{
		Caller:      caller,
		Action:      ActionPaymentRecorded,
		Installment: number,
		At:          now,
		Detail:      map[string]string{"penalty_waived": waived.String()},
	}
	if err := s.Store.SaveOverrides(ctx, id, withOverride(acct.Overrides, number, override), change); err != nil {
		s.Logger.Error("failed to persist payment",
			zap.String("account_id", string(id)),
			zap.Int("installment", number),
			zap.Error(err))
		return Installment{}, &generic.PersistenceError{Op: "record payment", AccountID: string(id), Installment: number, Err: err}
	}

	s.Logger.Info("payment recorded",
		zap.String("account_id", string(id)),
		zap.Int("installment", number),
		zap.String("actor", caller.ActorID),
		zap.String("penalty_waived", waived.String()))
	return updated[idx], nil
}

// RevertPayment removes the Paid override of installment number. The
// installment comes back as Pending or Overdue depending on now.
func (s *Service) RevertPayment(ctx context.Context, caller Caller, id AccountID, number int, now time.Time) (Installment, error) {
	acct, err := s.load(ctx, id)
	if err != nil {
		return Installment{}, err
	}

	schedule := s.derive(ctx, acct, now)
	updated, removed, err := MarkUnpaid(schedule, number, acct.Terms, now)
	if err != nil {
		return Installment{}, withAccount(err, id)
	}

	change := Change{
		Caller:      caller,
		Action:      ActionPaymentReverted,
		Installment: number,
		At:          now,
	}
	if removed.PaymentDate != nil {
		change.Detail = map[string]string{"reverted_payment_date": removed.PaymentDate.UTC().Format(time.RFC3339)}
	}
	if err := s.Store.SaveOverrides(ctx, id, withoutOverride(acct.Overrides, number), change); err != nil {
		s.Logger.Error("failed to persist payment reversal",
			zap.String("account_id", string(id)),
			zap.Int("installment", number),
			zap.Error(err))
		return Installment{}, &generic.PersistenceError{Op: "revert payment", AccountID: string(id), Installment: number, Err: err}
	}

	inst := updated[find(updated, number)]
	s.Logger.Info("payment reverted",
		zap.String("account_id", string(id)),
		zap.Int("installment", number),
		zap.String("actor", caller.ActorID),
		zap.String("status", string(inst.Status)))
	return inst, nil
}

// ChangeStartDate moves the whole schedule to newStart. Every override is
// cleared in the same write, so all installments fall back to
// Pending/Overdue based purely on the new due dates.
func (s *Service) ChangeStartDate(ctx context.Context, caller Caller, id AccountID, newStart generic.TimePoint, now time.Time) ([]Installment, error) {
	if newStart.IsZero() {
		return nil, &generic.ValidationError{Field: "startDate", Reason: "is required"}
	}

	acct, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	change := Change{
		Caller: caller,
		Action: ActionStartDateChanged,
		At:     now,
		Detail: map[string]string{
			"previous_start_date": acct.Terms.StartDate.String(),
			"new_start_date":      newStart.String(),
			"overrides_cleared":   fmt.Sprint(len(acct.Overrides)),
		},
	}
	if err := s.Store.UpdateTerms(ctx, id, TermsPatch{StartDate: &newStart}, change); err != nil {
		s.Logger.Error("failed to persist start date change",
			zap.String("account_id", string(id)),
			zap.Error(err))
		return nil, &generic.PersistenceError{Op: "change start date", AccountID: string(id), Err: err}
	}

	s.Logger.Info("start date changed",
		zap.String("account_id", string(id)),
		zap.String("actor", caller.ActorID),
		zap.String("start_date", newStart.String()),
		zap.Int("overrides_cleared", len(acct.Overrides)))

	acct.Terms.StartDate = newStart
	acct.Overrides = Overrides{}
	return s.derive(ctx, acct, now), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) load(ctx context.Context, id AccountID) (*Account, error) {
	acct, err := s.Store.LoadAccount(ctx, id)
	if err != nil {
		if generic.IsNotFound(err) {
			return nil, err
		}
		return nil, &generic.PersistenceError{Op: "load", AccountID: string(id), Err: err}
	}
	return acct, nil
}

func (s *Service) derive(ctx context.Context, acct *Account, now time.Time) []Installment {
	schedule, events := Derive(acct.Terms, acct.Overrides, now)
	if len(events) > 0 && s.Notifier != nil && s.isLive(now) {
		for i := range events {
			events[i].AccountID = acct.ID
		}
		s.Notifier.NotifyOverdue(ctx, *acct, events)
	}
	return schedule
}

// isLive reports whether now falls on the current calendar date.
func (s *Service) isLive(now time.Time) bool {
	if s.Clock == nil {
		return true
	}
	return generic.DateOf(now).Equal(generic.DateOf(s.Clock()))
}

// withAccount stamps the account id onto reconciler errors.
func withAccount(err error, id AccountID) error {
	var nf *generic.NotFoundError
	if errors.As(err, &nf) {
		nf.AccountID = string(id)
	}
	var sc *generic.StateConflictError
	if errors.As(err, &sc) {
		sc.AccountID = string(id)
	}
	return err
}
