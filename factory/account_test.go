package factory_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/solarpay/financing-engine/factory"
	"github.com/solarpay/financing-engine/generic"
	"github.com/solarpay/financing-engine/installment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mariaJSON = `{
	"id": "KTR-4821",
	"branch_id": "cebu",
	"name": "  Maria Santos ",
	"address": "12 Mango Ave, Cebu City",
	"solar_type": "hybrid 5kW",
	"total_amount": 150000,
	"down_payment": "10000",
	"payment_term_months": 24,
	"start_date": "2024-01-15",
	"penalty_rate": 0.05,
	"payment_overrides": {
		"1": {"status": "Paid", "paymentDate": "2024-01-14T09:00:00Z"},
		"2": {"status": "Paid"}
	}
}`

func TestParseAccount(t *testing.T) {
	f := factory.NewAccountFactory(generic.PHP)

	acct, err := f.ParseAccount(mariaJSON)
	require.NoError(t, err)

	assert.Equal(t, installment.AccountID("KTR-4821"), acct.ID)
	assert.Equal(t, "Maria Santos", acct.Name)
	assert.Equal(t, generic.PHP, acct.Terms.TotalAmount.Currency)
	assert.Equal(t, "140000.00", acct.Terms.LoanPrincipal().String())
	assert.Equal(t, "5833.33", acct.Terms.MonthlyPayment().String())
	assert.Equal(t, "2024-01-15", acct.Terms.StartDate.String())
	assert.Equal(t, "0.05", acct.Terms.PenaltyRate.String())

	assert.Equal(t, []int{1, 2}, acct.Overrides.Numbers())
	require.NotNil(t, acct.Overrides[1].PaymentDate)
	assert.Equal(t, time.Date(2024, time.January, 14, 9, 0, 0, 0, time.UTC), acct.Overrides[1].PaymentDate.UTC())
	assert.Nil(t, acct.Overrides[2].PaymentDate)
}

func TestParseAccount_Defaults(t *testing.T) {
	f := factory.NewAccountFactory(generic.USD)

	acct, err := f.ParseAccount(`{"name":"Ana","total_amount":1200,"payment_term_months":12,"start_date":"2024-05-31"}`)
	require.NoError(t, err)

	assert.Empty(t, acct.ID)
	assert.Equal(t, generic.USD, acct.Terms.Currency())
	assert.True(t, acct.Terms.DownPayment.IsZero())
	assert.True(t, acct.Terms.PenaltyRate.IsZero())
	assert.NotNil(t, acct.Overrides)
}

func TestParseAccount_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		json  string
		field string
	}{
		{"missing name", `{"total_amount":1,"payment_term_months":12,"start_date":"2024-01-15"}`, "name"},
		{"missing term", `{"name":"A","total_amount":1,"start_date":"2024-01-15"}`, "payment_term_months"},
		{"term too long", `{"name":"A","total_amount":1,"payment_term_months":601,"start_date":"2024-01-15"}`, "payment_term_months"},
		{"bad date", `{"name":"A","total_amount":1,"payment_term_months":12,"start_date":"15/01/2024"}`, "start_date"},
		{"bad currency", `{"name":"A","currency":"EUR","total_amount":1,"payment_term_months":12,"start_date":"2024-01-15"}`, "currency"},
		{"zero total", `{"name":"A","total_amount":0,"payment_term_months":12,"start_date":"2024-01-15"}`, "total_amount"},
		{"down above total", `{"name":"A","total_amount":10,"down_payment":11,"payment_term_months":12,"start_date":"2024-01-15"}`, "down_payment"},
		{"rate above one", `{"name":"A","total_amount":10,"penalty_rate":2,"payment_term_months":12,"start_date":"2024-01-15"}`, "penalty_rate"},
		{"override out of range", `{"name":"A","total_amount":10,"payment_term_months":12,"start_date":"2024-01-15","payment_overrides":{"13":{"status":"Paid"}}}`, "payment_overrides"},
		{"override not paid", `{"name":"A","total_amount":10,"payment_term_months":12,"start_date":"2024-01-15","payment_overrides":{"3":{"status":"Overdue"}}}`, "payment_overrides[3].status"},
	}

	f := factory.NewAccountFactory(generic.PHP)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ParseAccount(tt.json)

			var ve *generic.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, generic.ErrValidation)
		})
	}
}

func TestParseAccount_MalformedJSON(t *testing.T) {
	_, err := factory.NewAccountFactory(generic.PHP).ParseAccount(`{"name":`)

	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestToJSON_RoundTrip(t *testing.T) {
	f := factory.NewAccountFactory(generic.PHP)
	acct, err := f.ParseAccount(mariaJSON)
	require.NoError(t, err)

	b, err := json.Marshal(factory.ToJSON(acct))
	require.NoError(t, err)
	again, err := f.ParseAccount(string(b))
	require.NoError(t, err)

	assert.Equal(t, acct.ID, again.ID)
	assert.True(t, acct.Terms.TotalAmount.Equal(again.Terms.TotalAmount))
	assert.True(t, acct.Terms.PenaltyRate.Equal(again.Terms.PenaltyRate))
	assert.Equal(t, acct.Overrides.Numbers(), again.Overrides.Numbers())
}
