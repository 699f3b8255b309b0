/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Money is always a
  two-decimal string ("5833.33") so clients never round through float64;
  dates are YYYY-MM-DD.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Response wrappers

VALIDATION:
  Request types carry validator tags; handlers run them through the
  Handler's validator before touching the service. Account bodies reuse
  factory.AccountJSON and its tags.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/account.go: AccountJSON type
*/
package api

import (
	"time"

	"github.com/solarpay/financing-engine/installment"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

// AccountDTO represents a financing account in API responses.
type AccountDTO struct {
	ID                string `json:"id"`
	BranchID          string `json:"branch_id"`
	Name              string `json:"name"`
	Address           string `json:"address,omitempty"`
	SolarType         string `json:"solar_type,omitempty"`
	Currency          string `json:"currency"`
	TotalAmount       string `json:"total_amount"`
	DownPayment       string `json:"down_payment"`
	LoanPrincipal     string `json:"loan_principal"`
	MonthlyPayment    string `json:"monthly_payment"`
	PaymentTermMonths int    `json:"payment_term_months"`
	StartDate         string `json:"start_date"`
	PenaltyRate       string `json:"penalty_rate"`
	PaidInstallments  []int  `json:"paid_installments"`
	CreatedAt         string `json:"created_at,omitempty"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

func toAccountDTO(a installment.Account) AccountDTO {
	dto := AccountDTO{
		ID:                string(a.ID),
		BranchID:          a.BranchID,
		Name:              a.Name,
		Address:           a.Address,
		SolarType:         a.SolarType,
		Currency:          string(a.Terms.Currency()),
		TotalAmount:       a.Terms.TotalAmount.RoundCents().String(),
		DownPayment:       a.Terms.DownPayment.RoundCents().String(),
		LoanPrincipal:     a.Terms.LoanPrincipal().RoundCents().String(),
		MonthlyPayment:    a.Terms.MonthlyPayment().String(),
		PaymentTermMonths: a.Terms.PaymentTermMonths,
		StartDate:         a.Terms.StartDate.String(),
		PenaltyRate:       a.Terms.PenaltyRate.String(),
		PaidInstallments:  a.Overrides.Numbers(),
	}
	if !a.CreatedAt.IsZero() {
		dto.CreatedAt = a.CreatedAt.Format(time.RFC3339)
	}
	if !a.UpdatedAt.IsZero() {
		dto.UpdatedAt = a.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// SCHEDULE
// =============================================================================

// InstallmentDTO is one row of a payment schedule.
type InstallmentDTO struct {
	Number      int     `json:"number"`
	DueDate     string  `json:"due_date"`
	BaseAmount  string  `json:"base_amount"`
	Status      string  `json:"status"`
	Penalty     string  `json:"penalty"`
	AmountDue   string  `json:"amount_due"`
	PaymentDate *string `json:"payment_date,omitempty"`
}

func toInstallmentDTO(i installment.Installment) InstallmentDTO {
	dto := InstallmentDTO{
		Number:     i.Number,
		DueDate:    i.DueDate.String(),
		BaseAmount: i.BaseAmount.String(),
		Status:     string(i.Status),
		Penalty:    i.Penalty.String(),
		AmountDue:  i.AmountDue().String(),
	}
	if i.PaymentDate != nil {
		s := i.PaymentDate.Format(time.RFC3339)
		dto.PaymentDate = &s
	}
	return dto
}

func toInstallmentDTOs(schedule []installment.Installment) []InstallmentDTO {
	dtos := make([]InstallmentDTO, len(schedule))
	for i, inst := range schedule {
		dtos[i] = toInstallmentDTO(inst)
	}
	return dtos
}

// ScheduleResponse is the schedule of one account as of a date.
type ScheduleResponse struct {
	AccountID    string           `json:"account_id"`
	AsOf         string           `json:"as_of"`
	Installments []InstallmentDTO `json:"installments"`
}

// =============================================================================
// SUMMARY
// =============================================================================

// SummaryDTO mirrors installment.AccountSummary.
type SummaryDTO struct {
	Currency           string  `json:"currency"`
	LoanPrincipal      string  `json:"loan_principal"`
	PrincipalPaid      string  `json:"principal_paid"`
	PrincipalRemaining string  `json:"principal_remaining"`
	PenaltiesIncurred  string  `json:"penalties_incurred"`
	PenaltiesPaid      string  `json:"penalties_paid"`
	TotalPaid          string  `json:"total_paid"`
	NextDueDate        *string `json:"next_due_date"`
	NextPaymentAmount  *string `json:"next_payment_amount"`
	PaymentsMade       int     `json:"payments_made"`
	PaymentsRemaining  int     `json:"payments_remaining"`
	OverdueCount       int     `json:"overdue_count"`
	State              string  `json:"state"`
	Advice             string  `json:"advice"`
}

func toSummaryDTO(s installment.AccountSummary) SummaryDTO {
	dto := SummaryDTO{
		Currency:           string(s.LoanPrincipal.Currency),
		LoanPrincipal:      s.LoanPrincipal.String(),
		PrincipalPaid:      s.PrincipalPaid.String(),
		PrincipalRemaining: s.PrincipalRemaining.String(),
		PenaltiesIncurred:  s.PenaltiesIncurred.String(),
		PenaltiesPaid:      s.PenaltiesPaid.String(),
		TotalPaid:          s.TotalPaid.String(),
		PaymentsMade:       s.PaymentsMade,
		PaymentsRemaining:  s.PaymentsRemaining,
		OverdueCount:       s.OverdueCount,
		State:              string(s.State),
		Advice:             s.Advice,
	}
	if s.NextDueDate != nil {
		d := s.NextDueDate.String()
		dto.NextDueDate = &d
	}
	if s.NextPaymentAmount != nil {
		a := s.NextPaymentAmount.String()
		dto.NextPaymentAmount = &a
	}
	return dto
}

// SummaryResponse is the summary of one account as of a date.
type SummaryResponse struct {
	AccountID string     `json:"account_id"`
	AsOf      string     `json:"as_of"`
	Summary   SummaryDTO `json:"summary"`
}

// StatementDTO is the single-read account statement.
type StatementDTO struct {
	AsOf         string           `json:"as_of"`
	Account      AccountDTO       `json:"account"`
	Summary      SummaryDTO       `json:"summary"`
	Installments []InstallmentDTO `json:"installments"`
}

// =============================================================================
// MUTATIONS
// =============================================================================

// UpdateAccountRequest edits the account holder's profile. Omitted fields
// stay unchanged.
type UpdateAccountRequest struct {
	Name      *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Address   *string `json:"address,omitempty" validate:"omitempty,max=500"`
	SolarType *string `json:"solar_type,omitempty" validate:"omitempty,max=100"`
}

// StartDateRequest changes the first due date of an account.
type StartDateRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
}

// StartDateResponse returns the regenerated schedule.
type StartDateResponse struct {
	AccountID    string           `json:"account_id"`
	StartDate    string           `json:"start_date"`
	AsOf         string           `json:"as_of"`
	Installments []InstallmentDTO `json:"installments"`
}

// =============================================================================
// AUDIT
// =============================================================================

// AuditEntryDTO is one entry of an account's change history.
type AuditEntryDTO struct {
	ID          string            `json:"id"`
	Action      string            `json:"action"`
	Installment int               `json:"installment,omitempty"`
	ActorID     string            `json:"actor_id"`
	BranchID    string            `json:"branch_id,omitempty"`
	At          string            `json:"at"`
	Detail      map[string]string `json:"detail,omitempty"`
}

func toAuditDTOs(entries []installment.AuditEntry) []AuditEntryDTO {
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:          e.ID,
			Action:      string(e.Action),
			Installment: e.Installment,
			ActorID:     e.Caller.ActorID,
			BranchID:    e.Caller.BranchID,
			At:          e.At.Format(time.RFC3339),
			Detail:      e.Detail,
		}
	}
	return dtos
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	AsOf        string   `json:"as_of"`
	Accounts    []string `json:"accounts"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// LoadScenarioResponse lists the accounts a scenario created.
type LoadScenarioResponse struct {
	ScenarioID string       `json:"scenario_id"`
	AsOf       string       `json:"as_of"`
	Accounts   []AccountDTO `json:"accounts"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

// HealthResponse reports liveness of the process and its store.
type HealthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Subscribers int    `json:"subscribers"`
}

func toAccountDTOs(accounts []installment.Account) []AccountDTO {
	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	return dtos
}
