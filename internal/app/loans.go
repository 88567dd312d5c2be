package app

import (
	"context"
	"fmt"

	"github.com/neomorfeo/circulation/internal/domain"
)

// ReturnResult is the outcome of a loan return. Fine is set when the
// return was late.
type ReturnResult struct {
	Loan domain.Loan
	Fine *domain.Fine
}

// Checkout lends a copy straight off the shelf, without a reservation.
func (s *CirculationService) Checkout(ctx context.Context, scope domain.Scope, memberID, bookID string) (domain.Loan, error) {
	if err := scope.Validate(); err != nil {
		return domain.Loan{}, err
	}
	if memberID == "" || bookID == "" {
		return domain.Loan{}, fmt.Errorf("member and book are required: %w", domain.ErrInvalidInput)
	}

	now := s.now()
	loan := domain.NewLoan(generateID(), scope.TenantID, bookID, memberID, "", now, s.policy.LoanPeriod)
	var book domain.Book

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		if book, err = s.takeCopy(ctx, tx, scope, bookID, now); err != nil {
			return err
		}
		return tx.InsertLoan(ctx, loan)
	})
	if err != nil {
		s.logFailure(ctx, scope, "checkout", bookID, err)
		return domain.Loan{}, err
	}

	s.publish(ctx,
		s.change(scope, domain.ChangeLoanCreated, loan.ID, string(loan.Status), loan.Version, now),
		s.bookChange(scope, book, now),
	)
	return loan, nil
}

// ReturnLoan closes a loan, puts its copy back on the shelf and classifies
// the return. A late return issues the loan's fine in the same transaction;
// if any step fails nothing is written.
func (s *CirculationService) ReturnLoan(ctx context.Context, scope domain.Scope, loanID string) (ReturnResult, error) {
	if err := scope.Validate(); err != nil {
		return ReturnResult{}, err
	}

	now := s.now()
	var (
		result     ReturnResult
		book       domain.Book
		fineIssued bool
	)

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		loan, err := tx.LockLoan(ctx, scope.TenantID, loanID)
		if err != nil {
			return err
		}
		if err := ensureTenant(scope, "loan", loanID, loan.TenantID); err != nil {
			return err
		}
		if loan.Status == domain.LoanReturned {
			return domain.ErrAlreadyReturned
		}

		dst, err := s.loans.Apply(ctx, loan.Status, domain.LoanEventReturn)
		if err != nil {
			return err
		}
		loan.Return(dst, now)

		if book, err = s.releaseCopy(ctx, tx, scope, loan.BookID, now); err != nil {
			return err
		}
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		result.Loan = loan

		if loan.ReturnStatus == domain.ReturnLate {
			fine, created, err := s.issueFine(ctx, tx, scope, loan)
			if err != nil {
				return err
			}
			result.Fine = &fine
			fineIssued = created
		}
		return nil
	})
	if err != nil {
		if !expected(err) {
			s.logger.ErrorContext(ctx, "loan return aborted",
				"tenant_id", scope.TenantID,
				"actor_id", scope.ActorID,
				"loan_id", loanID,
				"error", err,
			)
		}
		return ReturnResult{}, err
	}

	l := result.Loan
	changes := []domain.Change{
		s.change(scope, domain.ChangeLoanReturned, l.ID, string(l.ReturnStatus), l.Version, now),
		s.bookChange(scope, book, now),
	}
	if fineIssued {
		f := result.Fine
		changes = append(changes, s.change(scope, domain.ChangeFineIssued, f.ID, "unpaid", f.Version, now))
	}
	s.publish(ctx, changes...)

	return result, nil
}

// GetLoan returns a loan of the scope's tenant.
func (s *CirculationService) GetLoan(ctx context.Context, scope domain.Scope, loanID string) (domain.Loan, error) {
	if err := scope.Validate(); err != nil {
		return domain.Loan{}, err
	}
	return s.store.GetLoan(ctx, scope.TenantID, loanID)
}

// ListLoans returns the tenant's loans matching filter, newest first.
func (s *CirculationService) ListLoans(ctx context.Context, scope domain.Scope, filter domain.LoanFilter) ([]domain.Loan, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListLoans(ctx, scope.TenantID, filter)
}
