package installment

import (
	"github.com/shopspring/decimal"
	"github.com/solarpay/financing-engine/generic"
)

// MaxTermMonths caps the payment term at 50 years.
const MaxTermMonths = 600

// LoanTerms are fixed once a schedule is generated. Changing StartDate is
// a reset, not a patch: see Service.ChangeStartDate.
type LoanTerms struct {
	TotalAmount       generic.Money
	DownPayment       generic.Money
	PaymentTermMonths int
	StartDate         generic.TimePoint
	PenaltyRate       decimal.Decimal // fraction, 0.05 = 5%
}

func (t LoanTerms) Currency() generic.Currency {
	if t.TotalAmount.Currency != "" {
		return t.TotalAmount.Currency
	}
	return generic.PHP
}

// LoanPrincipal is the financed amount: total minus down payment.
func (t LoanTerms) LoanPrincipal() generic.Money {
	return generic.NewMoney(t.TotalAmount.Value.Sub(t.DownPayment.Value), t.Currency())
}

// MonthlyPayment is the flat installment amount, rounded to cents.
// Zero when there is nothing to finance or no term.
func (t LoanTerms) MonthlyPayment() generic.Money {
	principal := t.LoanPrincipal()
	if !principal.IsPositive() || t.PaymentTermMonths <= 0 {
		return generic.ZeroMoney(t.Currency())
	}
	return principal.Div(decimal.NewFromInt(int64(t.PaymentTermMonths))).RoundCents()
}

// PenaltyFor is the one-time surcharge for an overdue installment.
func (t LoanTerms) PenaltyFor(base generic.Money) generic.Money {
	if !t.PenaltyRate.IsPositive() {
		return generic.ZeroMoney(t.Currency())
	}
	return base.Mul(t.PenaltyRate).RoundCents()
}

// IsActive is false for accounts with nothing left to schedule.
func (t LoanTerms) IsActive() bool {
	return t.LoanPrincipal().IsPositive() && t.PaymentTermMonths > 0
}

// Validate checks the terms an account may be created with. The engine
// itself tolerates invalid terms (e.g. a zero term yields an empty
// schedule); validation guards the storage boundary.
func (t LoanTerms) Validate() error {
	switch {
	case !t.TotalAmount.IsPositive():
		return &generic.ValidationError{Field: "totalAmount", Reason: "must be positive"}
	case t.DownPayment.IsNegative():
		return &generic.ValidationError{Field: "downPayment", Reason: "must not be negative"}
	case t.DownPayment.GreaterThan(t.TotalAmount):
		return &generic.ValidationError{Field: "downPayment", Reason: "must not exceed totalAmount"}
	case t.DownPayment.Currency != "" && t.DownPayment.Currency != t.Currency():
		return &generic.ValidationError{Field: "downPayment", Reason: "currency mismatch"}
	case t.PaymentTermMonths <= 0:
		return &generic.ValidationError{Field: "paymentTermMonths", Reason: "must be positive"}
	case t.PaymentTermMonths > MaxTermMonths:
		return &generic.ValidationError{Field: "paymentTermMonths", Reason: "exceeds maximum term"}
	case t.StartDate.IsZero():
		return &generic.ValidationError{Field: "startDate", Reason: "is required"}
	case t.PenaltyRate.IsNegative():
		return &generic.ValidationError{Field: "penaltyRate", Reason: "must not be negative"}
	case t.PenaltyRate.GreaterThan(decimal.NewFromInt(1)):
		return &generic.ValidationError{Field: "penaltyRate", Reason: "must be a fraction no greater than 1"}
	}
	return nil
}
