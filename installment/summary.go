package installment

import (
	"github.com/solarpay/financing-engine/generic"
)

// =============================================================================
// SUMMARY AGGREGATOR
// =============================================================================

// Summarize reduces a reconciled schedule into account totals.
//
// PrincipalPaid is the sum of BaseAmount over Paid installments, capped at
// the loan principal. Base amounts are rounded to cents, so N x monthly
// payment can miss the principal by a few cents; once every installment is
// Paid the principal counts as fully repaid. This keeps
// PrincipalPaid + PrincipalRemaining == LoanPrincipal for every schedule.
//
// Accounts without principal or without a term summarize to zeros with
// State inactive. Callers must use State (or PrincipalRemaining together
// with PaymentTermMonths > 0) as the completion signal, not the absence of
// a next payment.
func Summarize(schedule []Installment, terms LoanTerms) AccountSummary {
	zero := generic.ZeroMoney(terms.Currency())
	if !terms.IsActive() {
		return AccountSummary{
			LoanPrincipal:      zero,
			PrincipalPaid:      zero,
			PrincipalRemaining: zero,
			PenaltiesIncurred:  zero,
			PenaltiesPaid:      zero,
			TotalPaid:          zero,
			State:              StateInactive,
			Advice:             adviceInactive,
		}
	}

	principal := terms.LoanPrincipal()
	paid := zero
	penalties := zero
	made, overdue := 0, 0
	var next *Installment

	for i := range schedule {
		inst := schedule[i]
		switch inst.Status {
		case StatusPaid:
			paid = paid.Add(inst.BaseAmount)
			made++
		case StatusOverdue:
			penalties = penalties.Add(inst.Penalty)
			overdue++
		}
		if inst.IsOpen() && (next == nil || inst.DueDate.Before(next.DueDate)) {
			next = &schedule[i]
		}
	}

	if made == terms.PaymentTermMonths {
		paid = principal
	}
	paid = paid.Min(principal)
	remaining := principal.Sub(paid).Max(zero)

	summary := AccountSummary{
		LoanPrincipal:      principal,
		PrincipalPaid:      paid,
		PrincipalRemaining: remaining,
		PenaltiesIncurred:  penalties,
		PenaltiesPaid:      zero,
		TotalPaid:          paid,
		PaymentsMade:       made,
		PaymentsRemaining:  terms.PaymentTermMonths - made,
		OverdueCount:       overdue,
		State:              StateActive,
	}
	if next != nil {
		due := next.DueDate
		amount := next.AmountDue()
		summary.NextDueDate = &due
		summary.NextPaymentAmount = &amount
	}
	if !remaining.IsPositive() {
		summary.State = StatePaidOff
	}
	summary.Advice = Advise(summary)
	return summary
}
