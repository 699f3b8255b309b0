package installment

import (
	"fmt"

	"github.com/solarpay/financing-engine/generic"
)

const (
	adviceInactive = "No payment plan active or loan is fully cleared."
	advicePaidOff  = "Congratulations! Your solar system payment plan is fully paid off. Thank you for your timely payments."
)

// nearlyDoneThreshold is the remaining balance below which the account is
// considered close to completion.
var nearlyDoneThreshold = generic.MustParseDecimal("20000")

// Advise turns a summary into a short message for the account holder.
// Amounts are plain two-decimal numbers with the currency code appended.
func Advise(s AccountSummary) string {
	switch s.State {
	case StateInactive:
		return adviceInactive
	case StatePaidOff:
		return advicePaidOff
	}

	if s.OverdueCount > 0 {
		msg := fmt.Sprintf("You have %d overdue payment(s)", s.OverdueCount)
		if s.PenaltiesIncurred.IsPositive() {
			msg += fmt.Sprintf(" with %s %s in penalties", s.PenaltiesIncurred, s.PenaltiesIncurred.Currency)
		}
		return msg + ". It's important to address these as soon as possible to avoid further penalties. " +
			"Consider making a payment for the overdue amount(s) immediately. " +
			"If you're facing difficulties, please contact us to discuss potential arrangements."
	}

	remaining := s.PrincipalRemaining
	if remaining.Value.LessThan(nearlyDoneThreshold) {
		return fmt.Sprintf("You're doing great! With only %s %s remaining on your balance, "+
			"you're close to owning your solar system outright. Keep up the excellent work.",
			remaining, remaining.Currency)
	}
	return fmt.Sprintf("Your account is in good standing with a remaining balance of %s %s. "+
		"Continue making timely payments to ensure a smooth completion of your payment plan.",
		remaining, remaining.Currency)
}
