package app

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/neomorfeo/circulation/internal/domain"
)

// issueFine returns the loan's fine, creating it on first call. It reports
// whether a new fine was written.
func (s *CirculationService) issueFine(ctx context.Context, tx domain.Tx, scope domain.Scope, loan domain.Loan) (domain.Fine, bool, error) {
	existing, err := tx.GetFineByLoan(ctx, scope.TenantID, loan.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Fine{}, false, err
	}

	fine := domain.NewFine(generateID(), loan, s.policy.FineAmount)
	if err := tx.InsertFine(ctx, fine); err != nil {
		return domain.Fine{}, false, err
	}
	return fine, true, nil
}

// MarkFinePaid records a desk payment. Marking a paid fine again returns it
// unchanged.
func (s *CirculationService) MarkFinePaid(ctx context.Context, scope domain.Scope, fineID string) (domain.Fine, error) {
	if err := scope.Validate(); err != nil {
		return domain.Fine{}, err
	}

	now := s.now()
	var (
		fine    domain.Fine
		changed bool
	)

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		fine, err = tx.LockFine(ctx, scope.TenantID, fineID)
		if err != nil {
			return err
		}
		if err := ensureTenant(scope, "fine", fineID, fine.TenantID); err != nil {
			return err
		}
		if changed = fine.MarkPaid(now); !changed {
			return nil
		}
		return tx.UpdateFine(ctx, fine)
	})
	if err != nil {
		s.logFailure(ctx, scope, "mark fine paid", fineID, err)
		return domain.Fine{}, err
	}

	if changed {
		s.publish(ctx, s.change(scope, domain.ChangeFinePaid, fine.ID, "paid", fine.Version, now))
	}
	return fine, nil
}

// UnpaidTotal sums the member's outstanding fines.
func (s *CirculationService) UnpaidTotal(ctx context.Context, scope domain.Scope, memberID string) (decimal.Decimal, error) {
	if err := scope.Validate(); err != nil {
		return decimal.Zero, err
	}
	unpaid := false
	fines, err := s.store.ListFines(ctx, scope.TenantID, domain.FineFilter{MemberID: memberID, Paid: &unpaid})
	if err != nil {
		return decimal.Zero, err
	}
	return domain.SumUnpaid(fines), nil
}

// GetFine returns a fine of the scope's tenant.
func (s *CirculationService) GetFine(ctx context.Context, scope domain.Scope, fineID string) (domain.Fine, error) {
	if err := scope.Validate(); err != nil {
		return domain.Fine{}, err
	}
	return s.store.GetFine(ctx, scope.TenantID, fineID)
}

// ListFines returns the tenant's fines matching filter, newest first.
func (s *CirculationService) ListFines(ctx context.Context, scope domain.Scope, filter domain.FineFilter) ([]domain.Fine, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListFines(ctx, scope.TenantID, filter)
}
