/*
Package installment implements the payment schedule derivation and
reconciliation engine for solar equipment financing accounts.

PURPOSE:
  Given an account's loan terms and a sparse map of manually recorded
  payments, rebuild the full installment schedule, classify each
  installment as Pending, Paid or Overdue against a caller-supplied "now",
  compute penalties and reduce everything into an account summary.

DATA FLOW (one way, recomputed on every read):
  LoanTerms + Overrides
      -> GenerateSchedule        (schedule.go)
      -> ApplyStatusAndPenalties (status.go)
      -> Summarize               (summary.go)

  MarkPaid / MarkUnpaid (reconcile.go) produce the next override map; the
  Service (service.go) persists it through the AccountStore collaborator.

KEY INSIGHT:
  The schedule is a VIEW. Storage only ever holds terms and overrides; the
  engine never reads the wall clock and never owns state, so the same
  inputs always produce the same schedule.

SEE ALSO:
  - generic/time.go: Clamped calendar month arithmetic
  - generic/errors.go: Error taxonomy
  - store/sqlite/sqlite.go: Production AccountStore
*/
package installment

import (
	"sort"
	"time"

	"github.com/solarpay/financing-engine/generic"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPending Status = "Pending"
	StatusPaid    Status = "Paid"
	StatusOverdue Status = "Overdue"
)

// =============================================================================
// PAYMENT OVERRIDE - Manually recorded payment
// =============================================================================

// PaymentOverride is an administrative "this installment was paid" record.
// Paid is the only valid status; Pending and Overdue are always derived.
type PaymentOverride struct {
	Status      Status     `json:"status"`
	PaymentDate *time.Time `json:"paymentDate,omitempty"`
}

// Overrides maps 1-based installment numbers to manual payments.
// A missing key means "not manually marked paid".
type Overrides map[int]PaymentOverride

// Numbers returns the installment numbers in ascending order.
func (o Overrides) Numbers() []int {
	nums := make([]int, 0, len(o))
	for n := range o {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// Clone returns an independent copy; a nil map clones to an empty one.
func (o Overrides) Clone() Overrides {
	out := make(Overrides, len(o))
	for n, ov := range o {
		if ov.PaymentDate != nil {
			d := *ov.PaymentDate
			ov.PaymentDate = &d
		}
		out[n] = ov
	}
	return out
}

// Validate checks every key against [1, termMonths] and every status.
func (o Overrides) Validate(termMonths int) error {
	for _, n := range o.Numbers() {
		if n < 1 || n > termMonths {
			return &generic.ValidationError{Field: "paymentOverrides", Reason: "installment number out of range"}
		}
		if o[n].Status != StatusPaid {
			return &generic.ValidationError{Field: "paymentOverrides", Reason: "status must be Paid"}
		}
	}
	return nil
}

// =============================================================================
// INSTALLMENT - One derived monthly obligation
// =============================================================================

type Installment struct {
	Number      int
	DueDate     generic.TimePoint
	BaseAmount  generic.Money
	Status      Status
	Penalty     generic.Money
	PaymentDate *time.Time
}

// AmountDue is what settling the installment costs today.
func (i Installment) AmountDue() generic.Money {
	return i.BaseAmount.Add(i.Penalty)
}

// IsOpen reports whether the installment still awaits payment.
func (i Installment) IsOpen() bool {
	return i.Status == StatusPending || i.Status == StatusOverdue
}

// =============================================================================
// ACCOUNT SUMMARY
// =============================================================================

type AccountState string

const (
	StateActive   AccountState = "active"
	StatePaidOff  AccountState = "paid_off"
	StateInactive AccountState = "inactive" // no principal or no term
)

type AccountSummary struct {
	LoanPrincipal      generic.Money
	PrincipalPaid      generic.Money
	PrincipalRemaining generic.Money
	PenaltiesIncurred  generic.Money
	PenaltiesPaid      generic.Money
	TotalPaid          generic.Money

	// Absent when nothing is Pending or Overdue.
	NextDueDate       *generic.TimePoint
	NextPaymentAmount *generic.Money

	PaymentsMade      int
	PaymentsRemaining int
	OverdueCount      int

	State  AccountState
	Advice string
}

// =============================================================================
// OVERDUE EVENT - Notable transition for the notification layer
// =============================================================================

// OverdueEvent is emitted when an installment moves from Pending to Overdue.
type OverdueEvent struct {
	AccountID   AccountID
	Installment int
	DueDate     generic.TimePoint
	BaseAmount  generic.Money
	Penalty     generic.Money
	DetectedAt  time.Time
}

// =============================================================================
// ACCOUNT - Storage record
// =============================================================================

type Account struct {
	ID        AccountID
	BranchID  string
	Name      string
	Address   string
	SolarType string
	Terms     LoanTerms
	Overrides Overrides
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Caller identifies who performs a mutation. It is passed explicitly into
// every write; there is no ambient session.
type Caller struct {
	ActorID  string
	BranchID string
}

// ChangeAction names a mutation for the audit trail.
type ChangeAction string

const (
	ActionAccountCreated   ChangeAction = "account_created"
	ActionPaymentRecorded  ChangeAction = "payment_recorded"
	ActionPaymentReverted  ChangeAction = "payment_reverted"
	ActionStartDateChanged ChangeAction = "start_date_changed"
	ActionProfileUpdated   ChangeAction = "profile_updated"
)

// Change describes a mutation handed to the storage collaborator.
type Change struct {
	Caller      Caller
	Action      ChangeAction
	Installment int
	At          time.Time
	Detail      map[string]string
}
