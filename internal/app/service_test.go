package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neomorfeo/circulation/internal/app"
	"github.com/neomorfeo/circulation/internal/domain"
)

func TestCreateBook(t *testing.T) {
	f := newFixture(t)

	book := f.book(t, libA, 3)
	assert.NotEmpty(t, book.ID)
	assert.Equal(t, "lib-a", book.TenantID)
	assert.Equal(t, 3, book.AvailableCopies)
	assert.Equal(t, []domain.ChangeKind{domain.ChangeBookCreated}, f.pub.kinds())

	_, err := f.svc.CreateBook(context.Background(), libA, "  ", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.CreateBook(context.Background(), libA, "Dune", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestMissingTenant(t *testing.T) {
	f := newFixture(t)
	noTenant := domain.NewScope("", "staff-1")

	_, err := f.svc.CreateBook(context.Background(), noTenant, "Dune", 1)
	assert.ErrorIs(t, err, domain.ErrTenantRequired)

	_, err = f.svc.RequestReservation(context.Background(), noTenant, "m-1", "b-1")
	assert.ErrorIs(t, err, domain.ErrTenantRequired)

	_, err = f.svc.ListFines(context.Background(), noTenant, domain.FineFilter{})
	assert.ErrorIs(t, err, domain.ErrTenantRequired)
}

func TestRequestReservation_TakesCopy(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, libA, 2)
	f.pub.reset()

	r := f.reserve(t, libA, "m-1", book.ID)

	assert.Equal(t, domain.ReservationPending, r.Status)
	assert.Equal(t, 1, f.available(t, libA, book.ID))
	assert.Equal(t, []domain.ChangeKind{"reservation.pending", domain.ChangeBookUpdated}, f.pub.kinds())
}

func TestRequestReservation_UnknownBook(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RequestReservation(context.Background(), libA, "m-1", "missing")
	assert.ErrorIs(t, err, domain.ErrBookNotFound)
}

func TestRequestReservation_NoCopyLeft(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, libA, 1)
	f.reserve(t, libA, "m-1", book.ID)

	_, err := f.svc.RequestReservation(context.Background(), libA, "m-2", book.ID)
	assert.ErrorIs(t, err, domain.ErrBookUnavailable)
	assert.Equal(t, 0, f.available(t, libA, book.ID))
}

func TestRequestReservation_CapRejectsWithoutLeakingCopy(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, libA, 10)

	for range domain.DefaultReservationCap {
		f.reserve(t, libA, "m-1", book.ID)
	}
	before := f.available(t, libA, book.ID)

	_, err := f.svc.RequestReservation(context.Background(), libA, "m-1", book.ID)
	require.ErrorIs(t, err, domain.ErrReservationCapExceeded)

	var capErr *domain.CapExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 5, capErr.Active)
	assert.Equal(t, before, f.available(t, libA, book.ID))

	// Another member is unaffected.
	f.reserve(t, libA, "m-2", book.ID)
}

func TestRequestReservation_CustomCap(t *testing.T) {
	policy := domain.DefaultPolicy()
	policy.ReservationCap = 1
	f := newFixture(t, app.WithPolicy(policy))
	book := f.book(t, libA, 3)

	f.reserve(t, libA, "m-1", book.ID)
	_, err := f.svc.RequestReservation(context.Background(), libA, "m-1", book.ID)
	assert.ErrorIs(t, err, domain.ErrReservationCapExceeded)
}

func TestCancelledReservationsDoNotCount(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, libA, 10)

	for range domain.DefaultReservationCap {
		f.reserve(t, libA, "m-1", book.ID)
	}
	list, err := f.svc.ListReservations(context.Background(), libA, domain.ReservationFilter{MemberID: "m-1"})
	require.NoError(t, err)
	_, err = f.svc.Cancel(context.Background(), libA, list[0].ID)
	require.NoError(t, err)

	f.reserve(t, libA, "m-1", book.ID)
}

func TestLastCopyRace(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture, scope domain.Scope) {
		book := f.book(t, scope, 1)

		errs := race(10, func(i int) error {
			_, err := f.svc.RequestReservation(context.Background(), scope, fmt.Sprintf("m-%d", i), book.ID)
			return err
		})

		ok, unavailable, other := countErrors(errs, domain.ErrBookUnavailable)
		assert.Equal(t, 1, ok)
		assert.Equal(t, 9, unavailable)
		assert.Zero(t, other)
		assert.Equal(t, 0, f.available(t, scope, book.ID))
	})
}

func TestCapRace(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture, scope domain.Scope) {
		book := f.book(t, scope, 20)

		for range domain.DefaultReservationCap - 1 {
			f.reserve(t, scope, "m-1", book.ID)
		}

		errs := race(6, func(int) error {
			_, err := f.svc.RequestReservation(context.Background(), scope, "m-1", book.ID)
			return err
		})

		ok, capped, other := countErrors(errs, domain.ErrReservationCapExceeded)
		assert.Equal(t, 1, ok)
		assert.Equal(t, 5, capped)
		assert.Zero(t, other)

		active, err := f.svc.ListReservations(context.Background(), scope, domain.ReservationFilter{MemberID: "m-1"})
		require.NoError(t, err)
		assert.Len(t, active, domain.DefaultReservationCap)
		assert.Equal(t, 20-domain.DefaultReservationCap, f.available(t, scope, book.ID))
	})
}

func TestCapRace_NewMember(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture, scope domain.Scope) {
		book := f.book(t, scope, 20)

		errs := race(domain.DefaultReservationCap+3, func(int) error {
			_, err := f.svc.RequestReservation(context.Background(), scope, "m-new", book.ID)
			return err
		})

		ok, capped, other := countErrors(errs, domain.ErrReservationCapExceeded)
		assert.Equal(t, domain.DefaultReservationCap, ok)
		assert.Equal(t, 3, capped)
		assert.Zero(t, other)
		assert.Equal(t, 20-domain.DefaultReservationCap, f.available(t, scope, book.ID))
	})
}

func TestConcurrentApproveAndReject(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture, scope domain.Scope) {
		book := f.book(t, scope, 1)
		r := f.reserve(t, scope, "m-1", book.ID)

		events := []domain.ReservationEvent{domain.ReservationEventApprove, domain.ReservationEventReject}
		errs := race(len(events), func(i int) error {
			_, err := f.svc.TransitionReservation(context.Background(), scope, r.ID, events[i])
			return err
		})

		ok, invalid, other := countErrors(errs, domain.ErrInvalidTransition)
		require.Equal(t, 1, ok)
		assert.Equal(t, 1, invalid)
		assert.Zero(t, other)

		got, err := f.svc.GetReservation(context.Background(), scope, r.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Version)

		if errs[0] == nil {
			assert.Equal(t, domain.ReservationApproved, got.Status)
			assert.Equal(t, 0, f.available(t, scope, book.ID))
		} else {
			assert.Equal(t, domain.ReservationRejected, got.Status)
			assert.Equal(t, 1, f.available(t, scope, book.ID))
		}
	})
}

func TestReservationRoundTripRestoresAvailability(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, libA, 2)

	for _, undo := range []func(context.Context, domain.Scope, string) (domain.Reservation, error){
		f.svc.Cancel,
		f.svc.Reject,
	} {
		before := f.available(t, libA, book.ID)
		r := f.reserve(t, libA, "m-1", book.ID)
		_, err := undo(context.Background(), libA, r.ID)
		require.NoError(t, err)
		assert.Equal(t, before, f.available(t, libA, book.ID))
	}

	r := f.reserve(t, libA, "m-1", book.ID)
	_, err := f.svc.Approve(context.Background(), libA, r.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(context.Background(), libA, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.available(t, libA, book.ID))
}

func TestInvalidTransitionHasNoSideEffect(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, libA, 2)
	r := f.reserve(t, libA, "m-1", book.ID)
	rejected, err := f.svc.Reject(context.Background(), libA, r.ID)
	require.NoError(t, err)
	f.pub.reset()

	_, err = f.svc.Approve(context.Background(), libA, r.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	var trErr *domain.TransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, "rejected", trErr.Current)

	got, err := f.svc.GetReservation(context.Background(), libA, r.ID)
	require.NoError(t, err)
	assert.Equal(t, rejected, got)
	assert.Equal(t, 2, f.available(t, libA, book.ID))
	assert.Empty(t, f.pub.kinds())
}

func TestCompletedReservationIsTerminal(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, libA, 1)
	r := f.reserve(t, libA, "m-1", book.ID)
	_, err := f.svc.Approve(context.Background(), libA, r.ID)
	require.NoError(t, err)
	_, _, err = f.svc.ConfirmPickup(context.Background(), libA, r.ID)
	require.NoError(t, err)

	for _, event := range []domain.ReservationEvent{
		domain.ReservationEventCancel,
		domain.ReservationEventApprove,
		domain.ReservationEventReactivate,
	} {
		_, err := f.svc.TransitionReservation(context.Background(), libA, r.ID, event)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition, "event %s", event)
	}
}

func TestReactivate(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, libA, 1)
	r := f.reserve(t, libA, "m-1", book.ID)
	_, err := f.svc.Cancel(context.Background(), libA, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.available(t, libA, book.ID))

	got, err := f.svc.Reactivate(context.Background(), libA, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationPending, got.Status)
	assert.Equal(t, 0, f.available(t, libA, book.ID))
}

func TestReactivate_NoCopyKeepsPriorState(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, libA, 1)
	r := f.reserve(t, libA, "m-1", book.ID)
	_, err := f.svc.Reject(context.Background(), libA, r.ID)
	require.NoError(t, err)

	f.reserve(t, libA, "m-2", book.ID)

	_, err = f.svc.Reactivate(context.Background(), libA, r.ID)
	require.ErrorIs(t, err, domain.ErrBookUnavailable)

	got, err := f.svc.GetReservation(context.Background(), libA, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationRejected, got.Status)
}

func TestReactivate_RespectsCap(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, libA, 10)
	first := f.reserve(t, libA, "m-1", book.ID)
	_, err := f.svc.Cancel(context.Background(), libA, first.ID)
	require.NoError(t, err)
	for range domain.DefaultReservationCap {
		f.reserve(t, libA, "m-1", book.ID)
	}
	before := f.available(t, libA, book.ID)

	_, err = f.svc.Reactivate(context.Background(), libA, first.ID)
	assert.ErrorIs(t, err, domain.ErrReservationCapExceeded)
	assert.Equal(t, before, f.available(t, libA, book.ID))
}

func TestConfirmPickup_OpensLoan(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, libA, 1)
	r := f.reserve(t, libA, "m-1", book.ID)
	_, err := f.svc.Approve(context.Background(), libA, r.ID)
	require.NoError(t, err)

	pickupAt := start.Add(2 * time.Hour)
	f.clock.Set(pickupAt)
	f.pub.reset()

	completed, loan, err := f.svc.ConfirmPickup(context.Background(), libA, r.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.ReservationCompleted, completed.Status)
	assert.Equal(t, r.ID, loan.ReservationID)
	assert.Equal(t, "m-1", loan.MemberID)
	assert.Equal(t, domain.LoanActive, loan.Status)
	assert.True(t, loan.LoanDate.Equal(pickupAt))
	assert.True(t, loan.DueDate.Equal(pickupAt.Add(14*24*time.Hour)))
	assert.Equal(t, 0, f.available(t, libA, book.ID), "pickup moves the reserved copy to the loan")
	assert.Equal(t, []domain.ChangeKind{"reservation.completed", domain.ChangeLoanCreated}, f.pub.kinds())

	stored, err := f.svc.GetLoan(context.Background(), libA, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.ID, stored.ID)

	// A completed reservation no longer counts against the cap.
	active := domain.ReservationPending
	pending, err := f.svc.ListReservations(context.Background(), libA, domain.ReservationFilter{MemberID: "m-1", Status: &active})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestConfirmPickup_RequiresApproval(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, libA, 1)
	r := f.reserve(t, libA, "m-1", book.ID)

	_, _, err := f.svc.ConfirmPickup(context.Background(), libA, r.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	loans, err := f.svc.ListLoans(context.Background(), libA, domain.LoanFilter{})
	require.NoError(t, err)
	assert.Empty(t, loans)
}

func TestReturnLoan_OnTime(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, libA, 1)
	loan, err := f.svc.Checkout(context.Background(), libA, "m-1", book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.available(t, libA, book.ID))

	f.clock.Set(loan.DueDate)
	res, err := f.svc.ReturnLoan(context.Background(), libA, loan.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.LoanReturned, res.Loan.Status)
	assert.Equal(t, domain.ReturnOnTime, res.Loan.ReturnStatus)
	assert.Nil(t, res.Fine)
	assert.Equal(t, 1, f.available(t, libA, book.ID))

	fines, err := f.svc.ListFines(context.Background(), libA, domain.FineFilter{})
	require.NoError(t, err)
	assert.Empty(t, fines)
}

func TestReturnLoan_LateIssuesExactlyOneFine(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, libA, 1)

	f.clock.Set(time.Date(2023, 12, 27, 10, 0, 0, 0, time.UTC))
	loan, err := f.svc.Checkout(context.Background(), libA, "m-1", book.ID)
	require.NoError(t, err)
	require.True(t, loan.DueDate.Equal(time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)))

	f.clock.Set(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	f.pub.reset()
	res, err := f.svc.ReturnLoan(context.Background(), libA, loan.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.ReturnLate, res.Loan.ReturnStatus)
	require.NotNil(t, res.Fine)
	assert.Equal(t, loan.ID, res.Fine.LoanID)
	assert.Equal(t, "m-1", res.Fine.MemberID)
	assert.Equal(t, 5, res.Fine.DaysLate)
	assert.True(t, res.Fine.Amount.Equal(decimal.RequireFromString("10.00")))
	assert.False(t, res.Fine.Paid)
	assert.Equal(t, []domain.ChangeKind{
		domain.ChangeLoanReturned,
		domain.ChangeBookUpdated,
		domain.ChangeFineIssued,
	}, f.pub.kinds())

	_, err = f.svc.ReturnLoan(context.Background(), libA, loan.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyReturned)

	fines, err := f.svc.ListFines(context.Background(), libA, domain.FineFilter{MemberID: "m-1"})
	require.NoError(t, err)
	assert.Len(t, fines, 1)
	assert.Equal(t, 1, f.available(t, libA, book.ID))
}

func TestReturnLoan_ReturnTwiceConcurrently(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture, scope domain.Scope) {
		book := f.book(t, scope, 1)
		loan, err := f.svc.Checkout(context.Background(), scope, "m-1", book.ID)
		require.NoError(t, err)
		f.clock.Set(loan.DueDate.Add(time.Hour))

		errs := race(4, func(int) error {
			_, err := f.svc.ReturnLoan(context.Background(), scope, loan.ID)
			return err
		})

		ok, returned, other := countErrors(errs, domain.ErrAlreadyReturned)
		assert.Equal(t, 1, ok)
		assert.Equal(t, 3, returned)
		assert.Zero(t, other)

		fines, err := f.svc.ListFines(context.Background(), scope, domain.FineFilter{})
		require.NoError(t, err)
		assert.Len(t, fines, 1)
		assert.Equal(t, 1, f.available(t, scope, book.ID))
	})
}

func TestReturnLoan_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ReturnLoan(context.Background(), libA, "missing")
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
}

func TestCheckout_NoCopy(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, libA, 1)
	f.reserve(t, libA, "m-1", book.ID)

	_, err := f.svc.Checkout(context.Background(), libA, "m-2", book.ID)
	assert.ErrorIs(t, err, domain.ErrBookUnavailable)
}

func TestFines_PaidAndUnpaidTotal(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, libA, 2)

	var fineIDs []string
	for range 2 {
		f.clock.Set(start)
		loan, err := f.svc.Checkout(context.Background(), libA, "m-1", book.ID)
		require.NoError(t, err)
		f.clock.Set(loan.DueDate.Add(25 * time.Hour))
		res, err := f.svc.ReturnLoan(context.Background(), libA, loan.ID)
		require.NoError(t, err)
		require.NotNil(t, res.Fine)
		assert.Equal(t, 2, res.Fine.DaysLate)
		fineIDs = append(fineIDs, res.Fine.ID)
	}

	total, err := f.svc.UnpaidTotal(context.Background(), libA, "m-1")
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("20")), "total = %s", total)

	paidAt := start.Add(30 * 24 * time.Hour)
	f.clock.Set(paidAt)
	paid, err := f.svc.MarkFinePaid(context.Background(), libA, fineIDs[0])
	require.NoError(t, err)
	assert.True(t, paid.Paid)
	require.NotNil(t, paid.PaidAt)

	f.clock.Set(paidAt.Add(time.Hour))
	f.pub.reset()
	again, err := f.svc.MarkFinePaid(context.Background(), libA, fineIDs[0])
	require.NoError(t, err)
	assert.Equal(t, paid.Version, again.Version)
	assert.True(t, again.PaidAt.Equal(paidAt))
	assert.Empty(t, f.pub.kinds())

	total, err = f.svc.UnpaidTotal(context.Background(), libA, "m-1")
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("10")), "total = %s", total)

	total, err = f.svc.UnpaidTotal(context.Background(), libA, "m-2")
	require.NoError(t, err)
	assert.True(t, total.IsZero())

	_, err = f.svc.MarkFinePaid(context.Background(), libB, fineIDs[1])
	assert.ErrorIs(t, err, domain.ErrFineNotFound)
}

func TestCustomFineAmount(t *testing.T) {
	policy := domain.DefaultPolicy()
	policy.FineAmount = decimal.RequireFromString("2.50")
	policy.LoanPeriod = 24 * time.Hour
	f := newFixture(t, app.WithPolicy(policy))
	book := f.book(t, libA, 1)

	loan, err := f.svc.Checkout(context.Background(), libA, "m-1", book.ID)
	require.NoError(t, err)
	f.clock.Set(start.Add(72 * time.Hour))

	res, err := f.svc.ReturnLoan(context.Background(), libA, loan.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Fine)
	assert.True(t, res.Fine.Amount.Equal(decimal.RequireFromString("2.50")))
	assert.Equal(t, 2, res.Fine.DaysLate)
}

func TestSetTotalCopies(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, libA, 3)
	f.reserve(t, libA, "m-1", book.ID)
	f.reserve(t, libA, "m-2", book.ID)

	updated, err := f.svc.SetTotalCopies(context.Background(), libA, book.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.TotalCopies)
	assert.Equal(t, 3, updated.AvailableCopies)

	_, err = f.svc.SetTotalCopies(context.Background(), libA, book.ID, 1)
	assert.ErrorIs(t, err, domain.ErrCopiesInUse)

	updated, err = f.svc.SetTotalCopies(context.Background(), libA, book.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.AvailableCopies)
}

func TestTenantIsolation(t *testing.T) {
	f := newFixture(t)
	bookA := f.book(t, libA, 10)
	bookB := f.book(t, libB, 10)

	_, err := f.svc.GetBook(context.Background(), libB, bookA.ID)
	assert.ErrorIs(t, err, domain.ErrBookNotFound)

	_, err = f.svc.RequestReservation(context.Background(), libB, "m-1", bookA.ID)
	assert.ErrorIs(t, err, domain.ErrBookNotFound)

	// The same member id in two tenants has two independent caps.
	for range domain.DefaultReservationCap {
		f.reserve(t, libA, "m-1", bookA.ID)
	}
	r := f.reserve(t, libB, "m-1", bookB.ID)

	_, err = f.svc.Cancel(context.Background(), libA, r.ID)
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)

	list, err := f.svc.ListReservations(context.Background(), libB, domain.ReservationFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "lib-b", list[0].TenantID)
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("queue down")

	book, err := f.svc.CreateBook(context.Background(), libA, "Dune", 1)
	require.NoError(t, err)

	_, err = f.svc.GetBook(context.Background(), libA, book.ID)
	require.NoError(t, err)
}

func TestChangesCarryActor(t *testing.T) {
	f := newFixture(t)
	member := domain.NewScope("lib-a", "m-7")
	book := f.book(t, libA, 1)
	f.pub.reset()

	r := f.reserve(t, member, "m-7", book.ID)

	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	require.NotEmpty(t, f.pub.changes)
	c := f.pub.changes[0]
	assert.Equal(t, "m-7", c.ActorID)
	assert.Equal(t, r.ID, c.EntityID)
	assert.Equal(t, "pending", c.Status)
	assert.Equal(t, 1, c.Version)
	assert.True(t, c.OccurredAt.Equal(start))
}
