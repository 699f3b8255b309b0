package installment

import (
	"time"

	"github.com/solarpay/financing-engine/generic"
)

// =============================================================================
// SCHEDULE GENERATOR
// =============================================================================

// GenerateSchedule builds the installments for terms and merges overrides.
//
// Installment n is due StartDate + (n-1) calendar months, clamped to the end
// of short months. Every installment carries the same BaseAmount. An
// override marks its installment Paid; when the override has no payment
// date, now is used instead. Overrides outside [1, N] are ignored.
//
// A non-positive term or nothing left to finance (down payment covering the
// total) yields an empty, non-nil schedule.
func GenerateSchedule(terms LoanTerms, overrides Overrides, now time.Time) []Installment {
	if !terms.IsActive() {
		return []Installment{}
	}

	base := terms.MonthlyPayment()
	zero := generic.ZeroMoney(terms.Currency())
	schedule := make([]Installment, terms.PaymentTermMonths)

	for i := range schedule {
		number := i + 1
		inst := Installment{
			Number:     number,
			DueDate:    terms.StartDate.AddMonths(i),
			BaseAmount: base,
			Status:     StatusPending,
			Penalty:    zero,
		}
		if ov, ok := overrides[number]; ok && ov.Status == StatusPaid {
			paidAt := now
			if ov.PaymentDate != nil {
				paidAt = *ov.PaymentDate
			}
			inst.Status = StatusPaid
			inst.PaymentDate = &paidAt
		}
		schedule[i] = inst
	}
	return schedule
}

// find returns the index of installment number, or -1.
func find(schedule []Installment, number int) int {
	idx := number - 1
	if idx >= 0 && idx < len(schedule) && schedule[idx].Number == number {
		return idx
	}
	for i := range schedule {
		if schedule[i].Number == number {
			return i
		}
	}
	return -1
}

func cloneSchedule(schedule []Installment) []Installment {
	out := make([]Installment, len(schedule))
	copy(out, schedule)
	return out
}
