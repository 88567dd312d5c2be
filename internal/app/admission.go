package app

import (
	"context"
	"fmt"

	"github.com/neomorfeo/circulation/internal/domain"
)

// RequestReservation admits a member's reservation for a book. The member
// row is locked, active reservations are counted against the cap, and a copy
// is taken off the shelf, all in one transaction. Any failure rolls the whole
// admission back, so a rejected request never leaks a copy.
func (s *CirculationService) RequestReservation(ctx context.Context, scope domain.Scope, memberID, bookID string) (domain.Reservation, error) {
	if err := scope.Validate(); err != nil {
		return domain.Reservation{}, err
	}
	if memberID == "" || bookID == "" {
		return domain.Reservation{}, fmt.Errorf("member and book are required: %w", domain.ErrInvalidInput)
	}

	now := s.now()
	reservation := domain.NewReservation(generateID(), scope.TenantID, bookID, memberID, now)
	var book domain.Book

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := s.admit(ctx, tx, scope, memberID); err != nil {
			return err
		}
		var err error
		if book, err = s.takeCopy(ctx, tx, scope, bookID, now); err != nil {
			return err
		}
		return tx.InsertReservation(ctx, reservation)
	})
	if err != nil {
		s.logFailure(ctx, scope, "reservation request", bookID, err)
		return domain.Reservation{}, err
	}

	s.publish(ctx,
		s.change(scope, domain.ReservationChange(reservation.Status), reservation.ID, string(reservation.Status), reservation.Version, now),
		s.bookChange(scope, book, now),
	)
	return reservation, nil
}

// admit locks the member and fails when they already hold the cap of
// pending or approved reservations.
func (s *CirculationService) admit(ctx context.Context, tx domain.Tx, scope domain.Scope, memberID string) error {
	if err := tx.LockMember(ctx, scope.TenantID, memberID); err != nil {
		return err
	}
	active, err := tx.CountActiveReservations(ctx, scope.TenantID, memberID)
	if err != nil {
		return err
	}
	if active >= s.policy.ReservationCap {
		return &domain.CapExceededError{MemberID: memberID, Active: active, Cap: s.policy.ReservationCap}
	}
	return nil
}
