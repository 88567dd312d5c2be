package app

import (
	"context"

	"github.com/neomorfeo/circulation/internal/domain"
)

// TransitionResult is the outcome of a reservation event. Loan is set only
// when a pickup was confirmed.
type TransitionResult struct {
	Reservation domain.Reservation
	Loan        *domain.Loan
}

// TransitionReservation applies event to a reservation. The status change,
// its catalog effect and, on pickup, the new loan commit together; an
// illegal event changes nothing.
func (s *CirculationService) TransitionReservation(ctx context.Context, scope domain.Scope, reservationID string, event domain.ReservationEvent) (TransitionResult, error) {
	if err := scope.Validate(); err != nil {
		return TransitionResult{}, err
	}

	now := s.now()
	var (
		result  TransitionResult
		book    *domain.Book
		changes []domain.Change
	)

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		r, err := tx.LockReservation(ctx, scope.TenantID, reservationID)
		if err != nil {
			return err
		}
		if err := ensureTenant(scope, "reservation", reservationID, r.TenantID); err != nil {
			return err
		}

		dst, err := s.reservations.Apply(ctx, r.Status, event)
		if err != nil {
			return err
		}

		if event == domain.ReservationEventReactivate {
			if err := s.admit(ctx, tx, scope, r.MemberID); err != nil {
				return err
			}
		}

		switch domain.CopyEffectOf(r.Status, dst) {
		case domain.CopyTaken:
			b, err := s.takeCopy(ctx, tx, scope, r.BookID, now)
			if err != nil {
				return err
			}
			book = &b
		case domain.CopyReleased:
			b, err := s.releaseCopy(ctx, tx, scope, r.BookID, now)
			if err != nil {
				return err
			}
			book = &b
		}

		r.MoveTo(dst, now)
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		result.Reservation = r

		if event == domain.ReservationEventConfirmPickup {
			loan := domain.NewLoan(generateID(), scope.TenantID, r.BookID, r.MemberID, r.ID, now, s.policy.LoanPeriod)
			if err := tx.InsertLoan(ctx, loan); err != nil {
				return err
			}
			result.Loan = &loan
		}
		return nil
	})
	if err != nil {
		s.logFailure(ctx, scope, "reservation "+string(event), reservationID, err)
		return TransitionResult{}, err
	}

	r := result.Reservation
	changes = append(changes, s.change(scope, domain.ReservationChange(r.Status), r.ID, string(r.Status), r.Version, now))
	if book != nil {
		changes = append(changes, s.bookChange(scope, *book, now))
	}
	if result.Loan != nil {
		l := result.Loan
		changes = append(changes, s.change(scope, domain.ChangeLoanCreated, l.ID, string(l.Status), l.Version, now))
	}
	s.publish(ctx, changes...)

	return result, nil
}

// Approve moves a pending reservation to approved.
func (s *CirculationService) Approve(ctx context.Context, scope domain.Scope, reservationID string) (domain.Reservation, error) {
	res, err := s.TransitionReservation(ctx, scope, reservationID, domain.ReservationEventApprove)
	return res.Reservation, err
}

// Reject refuses a pending reservation and returns its copy to the shelf.
func (s *CirculationService) Reject(ctx context.Context, scope domain.Scope, reservationID string) (domain.Reservation, error) {
	res, err := s.TransitionReservation(ctx, scope, reservationID, domain.ReservationEventReject)
	return res.Reservation, err
}

// Cancel withdraws a pending or approved reservation and returns its copy.
func (s *CirculationService) Cancel(ctx context.Context, scope domain.Scope, reservationID string) (domain.Reservation, error) {
	res, err := s.TransitionReservation(ctx, scope, reservationID, domain.ReservationEventCancel)
	return res.Reservation, err
}

// ConfirmPickup completes an approved reservation and opens its loan.
// The reserved copy passes to the loan without touching the shelf.
func (s *CirculationService) ConfirmPickup(ctx context.Context, scope domain.Scope, reservationID string) (domain.Reservation, domain.Loan, error) {
	res, err := s.TransitionReservation(ctx, scope, reservationID, domain.ReservationEventConfirmPickup)
	if err != nil {
		return domain.Reservation{}, domain.Loan{}, err
	}
	return res.Reservation, *res.Loan, nil
}

// Reactivate returns a cancelled or rejected reservation to pending if a
// copy is on the shelf and the member is under the cap.
func (s *CirculationService) Reactivate(ctx context.Context, scope domain.Scope, reservationID string) (domain.Reservation, error) {
	res, err := s.TransitionReservation(ctx, scope, reservationID, domain.ReservationEventReactivate)
	return res.Reservation, err
}

// GetReservation returns a reservation of the scope's tenant.
func (s *CirculationService) GetReservation(ctx context.Context, scope domain.Scope, reservationID string) (domain.Reservation, error) {
	if err := scope.Validate(); err != nil {
		return domain.Reservation{}, err
	}
	return s.store.GetReservation(ctx, scope.TenantID, reservationID)
}

// ListReservations returns the tenant's reservations matching filter, newest first.
func (s *CirculationService) ListReservations(ctx context.Context, scope domain.Scope, filter domain.ReservationFilter) ([]domain.Reservation, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListReservations(ctx, scope.TenantID, filter)
}
