package installment

import (
	"time"

	"github.com/solarpay/financing-engine/generic"
)

// =============================================================================
// OVERRIDE RECONCILER
// =============================================================================
//
// MarkPaid and MarkUnpaid are pure: they return a new schedule plus the
// override that the storage collaborator has to persist (or forget). The
// Service applies them optimistically and drops the result if the write
// fails, so the in-memory view never diverges from storage.
//
// Paying an installment that is already Paid is an error
// (StateConflictError), not a silent no-op.

const (
	opMarkPaid   = "mark paid"
	opMarkUnpaid = "mark unpaid"
)

// MarkPaid marks installment number Paid at paidAt and clears its penalty.
func MarkPaid(schedule []Installment, number int, paidAt time.Time) ([]Installment, PaymentOverride, error) {
	idx := find(schedule, number)
	if idx < 0 {
		return nil, PaymentOverride{}, &generic.NotFoundError{Installment: number}
	}
	if schedule[idx].Status == StatusPaid {
		return nil, PaymentOverride{}, &generic.StateConflictError{
			Installment: number,
			Status:      string(StatusPaid),
			Op:          opMarkPaid,
		}
	}

	out := cloneSchedule(schedule)
	paid := paidAt
	out[idx].Status = StatusPaid
	out[idx].Penalty = out[idx].Penalty.Zero()
	out[idx].PaymentDate = &paid

	return out, PaymentOverride{Status: StatusPaid, PaymentDate: &paid}, nil
}

// MarkUnpaid removes the Paid status of installment number and re-derives
// its status and penalty against now. The returned override is the one
// being removed.
func MarkUnpaid(schedule []Installment, number int, terms LoanTerms, now time.Time) ([]Installment, PaymentOverride, error) {
	idx := find(schedule, number)
	if idx < 0 {
		return nil, PaymentOverride{}, &generic.NotFoundError{Installment: number}
	}
	if schedule[idx].Status != StatusPaid {
		return nil, PaymentOverride{}, &generic.StateConflictError{
			Installment: number,
			Status:      string(schedule[idx].Status),
			Op:          opMarkUnpaid,
		}
	}

	removed := PaymentOverride{Status: StatusPaid, PaymentDate: schedule[idx].PaymentDate}

	out := cloneSchedule(schedule)
	out[idx].Status = StatusPending
	out[idx].Penalty = generic.ZeroMoney(terms.Currency())
	out[idx].PaymentDate = nil

	out, _ = ApplyStatusAndPenalties(out, terms, now)
	return out, removed, nil
}

// withOverride returns a copy of overrides with number set to ov.
func withOverride(overrides Overrides, number int, ov PaymentOverride) Overrides {
	next := overrides.Clone()
	next[number] = ov
	return next
}

// withoutOverride returns a copy of overrides without number.
func withoutOverride(overrides Overrides, number int) Overrides {
	next := overrides.Clone()
	delete(next, number)
	return next
}
