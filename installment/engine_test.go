/*
engine_test.go - Executable behavior of the pure schedule engine

ORGANIZATION:
  1. Schedule Generator - count, contiguity, clamped month arithmetic
  2. Status/Penalty Engine - overdue boundary, single accrual, idempotence
  3. Override Reconciler - not found, conflicts, round trip
  4. Summary Aggregator - sum invariant, next payment, inactive accounts

Every test supplies its own "now"; nothing here depends on the wall clock.
*/
package installment_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solarpay/financing-engine/generic"
	"github.com/solarpay/financing-engine/installment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func php(s string) generic.Money {
	return generic.NewMoneyFromString(s, generic.PHP)
}

func at(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 10, 0, 0, 0, time.UTC)
}

// scenarioATerms is the reference account: 150000 total, 10000 down,
// 24 months from 2024-01-15 at a 5% penalty.
func scenarioATerms() installment.LoanTerms {
	return installment.LoanTerms{
		TotalAmount:       php("150000"),
		DownPayment:       php("10000"),
		PaymentTermMonths: 24,
		StartDate:         generic.NewTimePoint(2024, time.January, 15),
		PenaltyRate:       decimal.RequireFromString("0.05"),
	}
}

func assertMoney(t *testing.T, want string, got generic.Money, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, php(want).Equal(got), append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func requireSameSchedule(t *testing.T, want, got []installment.Installment) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Number, got[i].Number)
		assert.True(t, want[i].DueDate.Equal(got[i].DueDate), "due date of #%d", want[i].Number)
		assert.True(t, want[i].BaseAmount.Equal(got[i].BaseAmount), "base amount of #%d", want[i].Number)
		assert.Equal(t, want[i].Status, got[i].Status, "status of #%d", want[i].Number)
		assert.True(t, want[i].Penalty.Equal(got[i].Penalty), "penalty of #%d: want %s got %s",
			want[i].Number, want[i].Penalty, got[i].Penalty)
		assert.Equal(t, want[i].PaymentDate == nil, got[i].PaymentDate == nil, "payment date of #%d", want[i].Number)
	}
}

// =============================================================================
// 1. SCHEDULE GENERATOR
// =============================================================================

func TestGenerateSchedule_ScenarioA(t *testing.T) {
	// GIVEN: The reference account
	terms := scenarioATerms()

	// WHEN: Generating without overrides
	schedule := installment.GenerateSchedule(terms, nil, at(2024, time.January, 1))

	// THEN: 24 installments of 5833.33, the first due on the start date
	require.Len(t, schedule, 24)
	assertMoney(t, "5833.33", terms.MonthlyPayment())
	assert.Equal(t, 1, schedule[0].Number)
	assert.Equal(t, "2024-01-15", schedule[0].DueDate.String())
	assertMoney(t, "5833.33", schedule[0].BaseAmount)
	assert.Equal(t, installment.StatusPending, schedule[0].Status)
	assert.True(t, schedule[0].Penalty.IsZero())
	assert.Nil(t, schedule[0].PaymentDate)
	assert.Equal(t, "2025-12-15", schedule[23].DueDate.String())
}

func TestGenerateSchedule_ContiguousAndOneMonthApart(t *testing.T) {
	starts := []string{"2024-01-15", "2024-01-31", "2023-01-31", "2024-08-30", "2025-12-31"}
	for _, start := range starts {
		t.Run(start, func(t *testing.T) {
			terms := scenarioATerms()
			terms.StartDate = generic.MustParseDate(start)
			terms.PaymentTermMonths = 36

			schedule := installment.GenerateSchedule(terms, nil, at(2024, time.January, 1))

			require.Len(t, schedule, 36)
			for i, inst := range schedule {
				assert.Equal(t, i+1, inst.Number)
				if i == 0 {
					continue
				}
				prev := schedule[i-1].DueDate
				assert.True(t, prev.Before(inst.DueDate), "due dates must increase")
				wantMonth := prev.Time.AddDate(0, 0, 1-prev.Day()).AddDate(0, 1, 0).Month()
				assert.Equal(t, wantMonth, inst.DueDate.Month(), "installment %d one calendar month after %d", i+1, i)
			}
		})
	}
}

func TestGenerateSchedule_ClampsEndOfMonth(t *testing.T) {
	// GIVEN: A loan starting on January 31 of a leap year
	terms := scenarioATerms()
	terms.StartDate = generic.NewTimePoint(2024, time.January, 31)
	terms.PaymentTermMonths = 4

	schedule := installment.GenerateSchedule(terms, nil, at(2024, time.January, 1))

	// THEN: Short months clamp, later months return to the 31st
	got := make([]string, len(schedule))
	for i, inst := range schedule {
		got[i] = inst.DueDate.String()
	}
	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}, got)

	// AND: Non-leap February clamps to the 28th
	terms.StartDate = generic.NewTimePoint(2023, time.January, 31)
	schedule = installment.GenerateSchedule(terms, nil, at(2023, time.January, 1))
	assert.Equal(t, "2023-02-28", schedule[1].DueDate.String())
}

func TestGenerateSchedule_ScenarioD_EmptyForInactiveTerms(t *testing.T) {
	now := at(2024, time.March, 20)

	zeroTerm := scenarioATerms()
	zeroTerm.PaymentTermMonths = 0

	fullyDown := scenarioATerms()
	fullyDown.DownPayment = php("150000")

	for name, terms := range map[string]installment.LoanTerms{"zero term": zeroTerm, "fully paid down": fullyDown} {
		t.Run(name, func(t *testing.T) {
			schedule, events := installment.Derive(terms, nil, now)
			require.NotNil(t, schedule)
			assert.Empty(t, schedule)
			assert.Empty(t, events)
			assert.True(t, terms.MonthlyPayment().IsZero(), "no division by zero")
		})
	}
}

func TestGenerateSchedule_AppliesOverrides(t *testing.T) {
	terms := scenarioATerms()
	now := at(2024, time.March, 20)
	paidOn := time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)

	overrides := installment.Overrides{
		1:  {Status: installment.StatusPaid, PaymentDate: &paidOn},
		2:  {Status: installment.StatusPaid},
		99: {Status: installment.StatusPaid},
	}

	schedule := installment.GenerateSchedule(terms, overrides, now)

	require.Len(t, schedule, 24, "out-of-range override is ignored")
	assert.Equal(t, installment.StatusPaid, schedule[0].Status)
	require.NotNil(t, schedule[0].PaymentDate)
	assert.Equal(t, paidOn, *schedule[0].PaymentDate)

	assert.Equal(t, installment.StatusPaid, schedule[1].Status)
	require.NotNil(t, schedule[1].PaymentDate)
	assert.Equal(t, now, *schedule[1].PaymentDate, "missing payment date falls back to now")

	assert.Equal(t, installment.StatusPending, schedule[2].Status)
}

// =============================================================================
// 2. STATUS / PENALTY ENGINE
// =============================================================================

func TestApplyStatus_ScenarioB(t *testing.T) {
	// GIVEN: The reference account on 2024-03-20 without payments
	terms := scenarioATerms()
	now := at(2024, time.March, 20)

	// WHEN: Deriving
	schedule, events := installment.Derive(terms, nil, now)

	// THEN: #1-#3 are Overdue with a 5% penalty, #4 onward Pending
	for _, inst := range schedule[:3] {
		assert.Equal(t, installment.StatusOverdue, inst.Status, "installment %d", inst.Number)
		assertMoney(t, "291.67", inst.Penalty, "installment %d", inst.Number)
		assertMoney(t, "6125.00", inst.AmountDue())
	}
	for _, inst := range schedule[3:] {
		assert.Equal(t, installment.StatusPending, inst.Status, "installment %d", inst.Number)
		assert.True(t, inst.Penalty.IsZero())
	}

	// AND: One event per transition
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Installment)
		assert.Equal(t, now, ev.DetectedAt)
		assertMoney(t, "291.67", ev.Penalty)
		assert.Empty(t, ev.AccountID, "engine does not know the account")
	}
}

func TestApplyStatus_DueTodayIsNotOverdue(t *testing.T) {
	terms := scenarioATerms()

	// Late evening on the due date is still the due date
	schedule, events := installment.Derive(terms, nil, time.Date(2024, time.January, 15, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, installment.StatusPending, schedule[0].Status)
	assert.Empty(t, events)

	// The next calendar day it is overdue
	schedule, events = installment.Derive(terms, nil, time.Date(2024, time.January, 16, 0, 0, 1, 0, time.UTC))
	assert.Equal(t, installment.StatusOverdue, schedule[0].Status)
	assert.Len(t, events, 1)
}

func TestApplyStatus_UsesCallersCalendarDate(t *testing.T) {
	// GIVEN: 01:00 on Jan 16 in UTC+8 is still Jan 15 in UTC
	manila := time.FixedZone("PHT", 8*60*60)
	now := time.Date(2024, time.January, 16, 1, 0, 0, 0, manila)

	schedule, _ := installment.Derive(scenarioATerms(), nil, now)

	// THEN: The caller's own calendar date decides
	assert.Equal(t, installment.StatusOverdue, schedule[0].Status)
}

func TestApplyStatus_Idempotent(t *testing.T) {
	terms := scenarioATerms()
	now := at(2024, time.March, 20)

	once, _ := installment.ApplyStatusAndPenalties(installment.GenerateSchedule(terms, nil, now), terms, now)
	twice, events := installment.ApplyStatusAndPenalties(once, terms, now)

	requireSameSchedule(t, once, twice)
	assert.Empty(t, events, "no transitions on re-application")
}

func TestApplyStatus_SingleAccrual(t *testing.T) {
	// GIVEN: An overdue installment whose penalty was accrued at an older rate
	terms := scenarioATerms()
	now := at(2024, time.March, 20)
	schedule, _ := installment.Derive(terms, nil, now)
	schedule[0].Penalty = php("100.00")

	// WHEN: Re-running later
	out, events := installment.ApplyStatusAndPenalties(schedule, terms, at(2024, time.June, 1))

	// THEN: The existing penalty is not recomputed
	assertMoney(t, "100.00", out[0].Penalty)
	assert.Equal(t, installment.StatusOverdue, out[0].Status)
	for _, ev := range events {
		assert.NotEqual(t, 1, ev.Installment)
	}
}

func TestApplyStatus_OverdueWithoutPenaltyGetsOne(t *testing.T) {
	terms := scenarioATerms()
	now := at(2024, time.March, 20)
	schedule := installment.GenerateSchedule(terms, nil, now)
	schedule[0].Status = installment.StatusOverdue

	out, events := installment.ApplyStatusAndPenalties(schedule, terms, now)

	assertMoney(t, "291.67", out[0].Penalty)
	require.Len(t, events, 2, "#1 was already overdue, only #2 and #3 transition")
	assert.Equal(t, 2, events[0].Installment)
}

func TestApplyStatus_ZeroRateHasNoPenalty(t *testing.T) {
	terms := scenarioATerms()
	terms.PenaltyRate = decimal.Zero

	schedule, events := installment.Derive(terms, nil, at(2024, time.March, 20))

	assert.Equal(t, installment.StatusOverdue, schedule[0].Status)
	assert.True(t, schedule[0].Penalty.IsZero())
	assert.Len(t, events, 3)
}

func TestApplyStatus_FutureDueDateRevertsToPending(t *testing.T) {
	// GIVEN: An overdue schedule
	terms := scenarioATerms()
	overdue, _ := installment.Derive(terms, nil, at(2024, time.March, 20))

	// WHEN: The due dates are evaluated against an earlier day
	out, events := installment.ApplyStatusAndPenalties(overdue, terms, at(2024, time.January, 1))

	// THEN: Everything is Pending again without penalties
	for _, inst := range out {
		assert.Equal(t, installment.StatusPending, inst.Status)
		assert.True(t, inst.Penalty.IsZero())
	}
	assert.Empty(t, events)

	// AND: The input was not modified
	assert.Equal(t, installment.StatusOverdue, overdue[0].Status)
}

func TestApplyStatus_PaidIsNeverTouched(t *testing.T) {
	terms := scenarioATerms()
	paidOn := at(2024, time.February, 1)
	overrides := installment.Overrides{1: {Status: installment.StatusPaid, PaymentDate: &paidOn}}

	schedule, events := installment.Derive(terms, overrides, at(2025, time.January, 1))

	assert.Equal(t, installment.StatusPaid, schedule[0].Status)
	assert.True(t, schedule[0].Penalty.IsZero())
	for _, ev := range events {
		assert.NotEqual(t, 1, ev.Installment)
	}
}

// =============================================================================
// 3. OVERRIDE RECONCILER
// =============================================================================

func TestMarkPaid_ScenarioC(t *testing.T) {
	// GIVEN: Scenario B
	terms := scenarioATerms()
	now := at(2024, time.March, 20)
	schedule, _ := installment.Derive(terms, nil, now)

	// WHEN: Paying #1 on 2024-03-20
	updated, override, err := installment.MarkPaid(schedule, 1, now)
	require.NoError(t, err)

	// THEN: #1 is Paid with its penalty waived
	assert.Equal(t, installment.StatusPaid, updated[0].Status)
	assert.True(t, updated[0].Penalty.IsZero())
	require.NotNil(t, updated[0].PaymentDate)
	assert.Equal(t, now, *updated[0].PaymentDate)
	assert.Equal(t, installment.StatusPaid, override.Status)
	require.NotNil(t, override.PaymentDate)

	// AND: The summary counts it
	summary := installment.Summarize(updated, terms)
	assertMoney(t, "5833.33", summary.PrincipalPaid)
	assert.Equal(t, 1, summary.PaymentsMade)

	// AND: The input schedule is unchanged
	assert.Equal(t, installment.StatusOverdue, schedule[0].Status)
}

func TestMarkPaid_OutOfRange(t *testing.T) {
	schedule, _ := installment.Derive(scenarioATerms(), nil, at(2024, time.March, 20))

	for _, n := range []int{0, -1, 25} {
		_, _, err := installment.MarkPaid(schedule, n, at(2024, time.March, 20))
		require.Error(t, err)
		assert.ErrorIs(t, err, generic.ErrNotFound)

		var nf *generic.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, n, nf.Installment)
	}
}

func TestMarkPaid_AlreadyPaidConflicts(t *testing.T) {
	now := at(2024, time.March, 20)
	schedule, _ := installment.Derive(scenarioATerms(), nil, now)
	paid, _, err := installment.MarkPaid(schedule, 2, now)
	require.NoError(t, err)

	_, _, err = installment.MarkPaid(paid, 2, now)

	assert.ErrorIs(t, err, generic.ErrStateConflict)
	var conflict *generic.StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 2, conflict.Installment)
	assert.Equal(t, string(installment.StatusPaid), conflict.Status)
}

func TestMarkUnpaid_NotPaidConflicts(t *testing.T) {
	terms := scenarioATerms()
	now := at(2024, time.March, 20)
	schedule, _ := installment.Derive(terms, nil, now)

	_, _, err := installment.MarkUnpaid(schedule, 5, terms, now)
	assert.ErrorIs(t, err, generic.ErrStateConflict)

	_, _, err = installment.MarkUnpaid(schedule, 30, terms, now)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestMarkPaidThenUnpaid_RoundTrip(t *testing.T) {
	// GIVEN: A fresh derivation with #1 overdue
	terms := scenarioATerms()
	now := at(2024, time.March, 20)
	fresh, _ := installment.Derive(terms, nil, now)

	// WHEN: Paying then reverting #1 at the same now
	paid, _, err := installment.MarkPaid(fresh, 1, now)
	require.NoError(t, err)
	reverted, removed, err := installment.MarkUnpaid(paid, 1, terms, now)
	require.NoError(t, err)

	// THEN: The schedule equals the fresh derivation
	requireSameSchedule(t, fresh, reverted)
	assert.Equal(t, installment.StatusOverdue, reverted[0].Status)
	assertMoney(t, "291.67", reverted[0].Penalty)
	require.NotNil(t, removed.PaymentDate)
	assert.Equal(t, now, *removed.PaymentDate)
}

func TestMarkUnpaid_FutureInstallmentBecomesPending(t *testing.T) {
	terms := scenarioATerms()
	now := at(2024, time.March, 20)
	schedule, _ := installment.Derive(terms, nil, now)

	paid, _, err := installment.MarkPaid(schedule, 10, now)
	require.NoError(t, err)
	reverted, _, err := installment.MarkUnpaid(paid, 10, terms, now)
	require.NoError(t, err)

	assert.Equal(t, installment.StatusPending, reverted[9].Status)
	assert.True(t, reverted[9].Penalty.IsZero())
}

// =============================================================================
// 4. SUMMARY AGGREGATOR
// =============================================================================

func TestSummarize_ScenarioB(t *testing.T) {
	terms := scenarioATerms()
	schedule, _ := installment.Derive(terms, nil, at(2024, time.March, 20))

	summary := installment.Summarize(schedule, terms)

	assertMoney(t, "140000", summary.LoanPrincipal)
	assertMoney(t, "0", summary.PrincipalPaid)
	assertMoney(t, "140000", summary.PrincipalRemaining)
	assertMoney(t, "875.01", summary.PenaltiesIncurred)
	assert.Equal(t, 0, summary.PaymentsMade)
	assert.Equal(t, 24, summary.PaymentsRemaining)
	assert.Equal(t, 3, summary.OverdueCount)
	assert.Equal(t, installment.StateActive, summary.State)

	require.NotNil(t, summary.NextDueDate)
	assert.Equal(t, "2024-01-15", summary.NextDueDate.String())
	require.NotNil(t, summary.NextPaymentAmount)
	assertMoney(t, "6125.00", *summary.NextPaymentAmount)

	assert.Contains(t, summary.Advice, "3 overdue payment(s)")
	assert.Contains(t, summary.Advice, "875.01 PHP")
}

func TestSummarize_NextPaymentSkipsPaid(t *testing.T) {
	terms := scenarioATerms()
	now := at(2024, time.March, 20)
	schedule, _ := installment.Derive(terms, nil, now)
	schedule, _, _ = installment.MarkPaid(schedule, 1, now)

	summary := installment.Summarize(schedule, terms)

	assertMoney(t, "134166.67", summary.PrincipalRemaining)
	assertMoney(t, "583.34", summary.PenaltiesIncurred)
	require.NotNil(t, summary.NextDueDate)
	assert.Equal(t, "2024-02-15", summary.NextDueDate.String())
}

func TestSummarize_SumInvariant(t *testing.T) {
	cases := []struct {
		total, down string
		months      int
	}{
		{"150000", "10000", 24},
		{"100000", "0", 3},
		{"100", "0", 7},
		{"99999.99", "0.01", 11},
	}

	for _, tc := range cases {
		terms := scenarioATerms()
		terms.TotalAmount = php(tc.total)
		terms.DownPayment = php(tc.down)
		terms.PaymentTermMonths = tc.months
		now := at(2024, time.March, 20)

		schedule, _ := installment.Derive(terms, nil, now)
		for paid := 0; paid <= tc.months; paid++ {
			summary := installment.Summarize(schedule, terms)
			sum := summary.PrincipalPaid.Add(summary.PrincipalRemaining)
			assert.True(t, sum.Equal(summary.LoanPrincipal),
				"%s/%d after %d payments: %s + %s != %s", tc.total, tc.months, paid,
				summary.PrincipalPaid, summary.PrincipalRemaining, summary.LoanPrincipal)
			assert.Equal(t, paid, summary.PaymentsMade)
			assert.Equal(t, tc.months-paid, summary.PaymentsRemaining)

			if paid < tc.months {
				var err error
				schedule, _, err = installment.MarkPaid(schedule, paid+1, now)
				require.NoError(t, err)
			}
		}
	}
}

func TestSummarize_PaidOff(t *testing.T) {
	terms := scenarioATerms()
	terms.TotalAmount = php("100000")
	terms.DownPayment = php("0")
	terms.PaymentTermMonths = 3
	now := at(2024, time.March, 20)

	overrides := installment.Overrides{}
	for n := 1; n <= 3; n++ {
		overrides[n] = installment.PaymentOverride{Status: installment.StatusPaid}
	}
	schedule, _ := installment.Derive(terms, overrides, now)

	summary := installment.Summarize(schedule, terms)

	// 3 x 33333.33 misses the principal by a cent; full payment still clears it
	assertMoney(t, "100000", summary.PrincipalPaid)
	assertMoney(t, "0", summary.PrincipalRemaining)
	assert.Equal(t, installment.StatePaidOff, summary.State)
	assert.Nil(t, summary.NextDueDate)
	assert.Nil(t, summary.NextPaymentAmount)
	assert.Contains(t, summary.Advice, "fully paid off")
}

func TestSummarize_ScenarioD_Inactive(t *testing.T) {
	terms := scenarioATerms()
	terms.DownPayment = terms.TotalAmount

	summary := installment.Summarize(installment.GenerateSchedule(terms, nil, at(2024, time.March, 20)), terms)

	assert.Equal(t, installment.StateInactive, summary.State)
	assert.True(t, summary.LoanPrincipal.IsZero())
	assert.True(t, summary.PrincipalPaid.IsZero())
	assert.True(t, summary.PrincipalRemaining.IsZero())
	assert.True(t, summary.PenaltiesIncurred.IsZero())
	assert.Zero(t, summary.PaymentsMade)
	assert.Zero(t, summary.PaymentsRemaining)
	assert.Nil(t, summary.NextDueDate)
}

func TestAdvise_Standing(t *testing.T) {
	terms := scenarioATerms()
	schedule, _ := installment.Derive(terms, nil, at(2024, time.January, 1))

	summary := installment.Summarize(schedule, terms)
	assert.Contains(t, summary.Advice, "good standing")
	assert.Contains(t, summary.Advice, "140000.00 PHP")

	summary.PrincipalRemaining = php("12000")
	assert.Contains(t, installment.Advise(summary), "You're doing great")
	assert.Contains(t, installment.Advise(summary), "12000.00 PHP")
}
