package installment

import (
	"time"

	"github.com/solarpay/financing-engine/generic"
)

// =============================================================================
// STATUS / PENALTY ENGINE
// =============================================================================

// ApplyStatusAndPenalties classifies every non-paid installment against now.
//
// Overdue means the due date is strictly before now's calendar date; an
// installment due today is still Pending. The penalty is BaseAmount x
// PenaltyRate and accrues once: it is computed on the transition into
// Overdue (or when an Overdue installment still carries no penalty) and
// left untouched afterwards. Installments whose due date is today or later
// become Pending with no penalty, which also undoes an earlier Overdue
// after the start date moved forward.
//
// Paid installments are never touched. The input slice is not modified.
// Calling the function again on its own output with the same now changes
// nothing and reports no events.
//
// Each Pending -> Overdue transition is reported as an OverdueEvent with
// DetectedAt = now. AccountID is left empty for the caller to fill.
func ApplyStatusAndPenalties(schedule []Installment, terms LoanTerms, now time.Time) ([]Installment, []OverdueEvent) {
	today := generic.DateOf(now)
	zero := generic.ZeroMoney(terms.Currency())
	out := cloneSchedule(schedule)

	var events []OverdueEvent
	for i := range out {
		inst := &out[i]
		if inst.Status == StatusPaid {
			continue
		}

		if !inst.DueDate.Before(today) {
			inst.Status = StatusPending
			inst.Penalty = zero
			continue
		}

		switch {
		case inst.Status != StatusOverdue:
			inst.Status = StatusOverdue
			inst.Penalty = terms.PenaltyFor(inst.BaseAmount)
			events = append(events, OverdueEvent{
				Installment: inst.Number,
				DueDate:     inst.DueDate,
				BaseAmount:  inst.BaseAmount,
				Penalty:     inst.Penalty,
				DetectedAt:  now,
			})
		case inst.Penalty.IsZero() && terms.PenaltyRate.IsPositive():
			inst.Penalty = terms.PenaltyFor(inst.BaseAmount)
		}
	}
	return out, events
}

// Derive runs the full read path: generate, reconcile overrides, classify.
func Derive(terms LoanTerms, overrides Overrides, now time.Time) ([]Installment, []OverdueEvent) {
	return ApplyStatusAndPenalties(GenerateSchedule(terms, overrides, now), terms, now)
}
