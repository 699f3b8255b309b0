/*
Package factory provides JSON to Go account conversion.

PURPOSE:
  Converts JSON account definitions into validated installment.Account
  values. The HTTP API, demo scenarios and bulk imports all enter through
  here, so every account reaching storage went through the same checks.

JSON SCHEMA:
  {
    "id": "KTR-4821",
    "branch_id": "cebu",
    "name": "Maria Santos",
    "address": "12 Mango Ave, Cebu City",
    "solar_type": "hybrid 5kW",
    "currency": "PHP",
    "total_amount": 150000,
    "down_payment": 10000,
    "payment_term_months": 24,
    "start_date": "2024-01-15",
    "penalty_rate": 0.05,
    "payment_overrides": {
      "1": {"status": "Paid", "paymentDate": "2024-01-14T09:00:00Z"}
    }
  }

  Amounts and rates accept JSON numbers or strings and are parsed as
  decimals. id is optional: the registry generates one when missing.

VALIDATION (two layers):
  1. Shape - go-playground/validator tags on AccountJSON (required
     fields, date layout, currency, term bounds, override status).
  2. Domain - installment.LoanTerms.Validate and Overrides.Validate
     (down payment vs total, penalty rate range, override numbers).
  Both report *generic.ValidationError with the JSON field name.

USAGE:
  f := factory.NewAccountFactory(generic.PHP)
  account, err := f.ParseAccount(jsonString)

SEE ALSO:
  - installment/terms.go: Domain validation
  - api/scenarios.go: Demo accounts defined as JSON
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/solarpay/financing-engine/generic"
	"github.com/solarpay/financing-engine/installment"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// AccountJSON is the JSON representation of a financing account.
type AccountJSON struct {
	ID                string               `json:"id,omitempty" validate:"omitempty,max=64"`
	BranchID          string               `json:"branch_id,omitempty" validate:"max=64"`
	Name              string               `json:"name" validate:"required,max=200"`
	Address           string               `json:"address,omitempty" validate:"max=500"`
	SolarType         string               `json:"solar_type,omitempty" validate:"max=100"`
	Currency          string               `json:"currency,omitempty" validate:"omitempty,oneof=PHP USD"`
	TotalAmount       decimal.Decimal      `json:"total_amount"`
	DownPayment       decimal.Decimal      `json:"down_payment"`
	PaymentTermMonths int                  `json:"payment_term_months" validate:"required,gt=0,lte=600"`
	StartDate         string               `json:"start_date" validate:"required,datetime=2006-01-02"`
	PenaltyRate       decimal.Decimal      `json:"penalty_rate"`
	PaymentOverrides  map[int]OverrideJSON `json:"payment_overrides,omitempty" validate:"dive"`
}

// OverrideJSON is a manually recorded payment.
type OverrideJSON struct {
	Status      string     `json:"status" validate:"required,eq=Paid"`
	PaymentDate *time.Time `json:"paymentDate,omitempty"`
}

// =============================================================================
// ACCOUNT FACTORY
// =============================================================================

// AccountFactory converts JSON accounts to installment.Account.
type AccountFactory struct {
	validate        *validator.Validate
	defaultCurrency generic.Currency
}

// NewAccountFactory creates a factory. Accounts without a currency get
// defaultCurrency.
func NewAccountFactory(defaultCurrency generic.Currency) *AccountFactory {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if defaultCurrency == "" {
		defaultCurrency = generic.PHP
	}
	return &AccountFactory{validate: v, defaultCurrency: defaultCurrency}
}

// ParseAccount parses a JSON string into an Account.
func (f *AccountFactory) ParseAccount(jsonStr string) (installment.Account, error) {
	var aj AccountJSON
	if err := json.Unmarshal([]byte(jsonStr), &aj); err != nil {
		return installment.Account{}, &generic.ValidationError{Reason: fmt.Sprintf("malformed account JSON: %v", err)}
	}
	return f.FromJSON(aj)
}

// FromJSON validates aj and converts it.
func (f *AccountFactory) FromJSON(aj AccountJSON) (installment.Account, error) {
	if err := f.validate.Struct(aj); err != nil {
		return installment.Account{}, toValidationError(err)
	}

	currency := f.defaultCurrency
	if aj.Currency != "" {
		currency = generic.Currency(aj.Currency)
	}
	start, err := generic.ParseDate(aj.StartDate)
	if err != nil {
		return installment.Account{}, &generic.ValidationError{Field: "start_date", Reason: err.Error()}
	}

	account := installment.Account{
		ID:        installment.AccountID(aj.ID),
		BranchID:  aj.BranchID,
		Name:      strings.TrimSpace(aj.Name),
		Address:   aj.Address,
		SolarType: aj.SolarType,
		Terms: installment.LoanTerms{
			TotalAmount:       generic.NewMoney(aj.TotalAmount, currency),
			DownPayment:       generic.NewMoney(aj.DownPayment, currency),
			PaymentTermMonths: aj.PaymentTermMonths,
			StartDate:         start,
			PenaltyRate:       aj.PenaltyRate,
		},
		Overrides: installment.Overrides{},
	}
	for n, oj := range aj.PaymentOverrides {
		account.Overrides[n] = installment.PaymentOverride{
			Status:      installment.Status(oj.Status),
			PaymentDate: oj.PaymentDate,
		}
	}

	if err := account.Terms.Validate(); err != nil {
		return installment.Account{}, jsonField(err)
	}
	if err := account.Overrides.Validate(account.Terms.PaymentTermMonths); err != nil {
		return installment.Account{}, jsonField(err)
	}
	return account, nil
}

// ToJSON is the inverse of FromJSON.
func ToJSON(a installment.Account) AccountJSON {
	aj := AccountJSON{
		ID:                string(a.ID),
		BranchID:          a.BranchID,
		Name:              a.Name,
		Address:           a.Address,
		SolarType:         a.SolarType,
		Currency:          string(a.Terms.Currency()),
		TotalAmount:       a.Terms.TotalAmount.Value,
		DownPayment:       a.Terms.DownPayment.Value,
		PaymentTermMonths: a.Terms.PaymentTermMonths,
		StartDate:         a.Terms.StartDate.String(),
		PenaltyRate:       a.Terms.PenaltyRate,
	}
	if len(a.Overrides) > 0 {
		aj.PaymentOverrides = make(map[int]OverrideJSON, len(a.Overrides))
		for n, ov := range a.Overrides {
			aj.PaymentOverrides[n] = OverrideJSON{Status: string(ov.Status), PaymentDate: ov.PaymentDate}
		}
	}
	return aj
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// domainFields maps LoanTerms field names to their JSON names.
var domainFields = map[string]string{
	"totalAmount":       "total_amount",
	"downPayment":       "down_payment",
	"paymentTermMonths": "payment_term_months",
	"startDate":         "start_date",
	"penaltyRate":       "penalty_rate",
	"paymentOverrides":  "payment_overrides",
}

func jsonField(err error) error {
	var ve *generic.ValidationError
	if errors.As(err, &ve) {
		if name, ok := domainFields[ve.Field]; ok {
			return &generic.ValidationError{Field: name, Reason: ve.Reason}
		}
	}
	return err
}

// toValidationError reports the first failed tag.
func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &generic.ValidationError{Reason: err.Error()}
	}
	fe := fieldErrs[0]
	return &generic.ValidationError{Field: fieldPath(fe), Reason: validationMessage(fe)}
}

// fieldPath drops the struct name: "AccountJSON.payment_overrides[3].status"
// becomes "payment_overrides[3].status".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "eq":
		return "must be " + fe.Param()
	case "datetime":
		return "must be a date formatted YYYY-MM-DD"
	default:
		return "is invalid"
	}
}
