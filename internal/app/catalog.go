package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neomorfeo/circulation/internal/domain"
)

// CreateBook adds a title to the tenant's catalog with every copy on the shelf.
func (s *CirculationService) CreateBook(ctx context.Context, scope domain.Scope, title string, totalCopies int) (domain.Book, error) {
	if err := scope.Validate(); err != nil {
		return domain.Book{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Book{}, fmt.Errorf("title is required: %w", domain.ErrInvalidInput)
	}
	if totalCopies < 0 {
		return domain.Book{}, fmt.Errorf("total copies must not be negative: %w", domain.ErrInvalidInput)
	}

	now := s.now()
	book := domain.NewBook(generateID(), scope.TenantID, title, totalCopies, now)

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.InsertBook(ctx, book)
	})
	if err != nil {
		s.logFailure(ctx, scope, "create book", book.ID, err)
		return domain.Book{}, fmt.Errorf("creating book: %w", err)
	}

	s.publish(ctx, s.change(scope, domain.ChangeBookCreated, book.ID, "", book.Version, now))
	return book, nil
}

// SetTotalCopies records copies bought or withdrawn. Copies currently held
// by reservations or loans stay out, so available moves by the same delta.
func (s *CirculationService) SetTotalCopies(ctx context.Context, scope domain.Scope, bookID string, totalCopies int) (domain.Book, error) {
	if err := scope.Validate(); err != nil {
		return domain.Book{}, err
	}
	if totalCopies < 0 {
		return domain.Book{}, fmt.Errorf("total copies must not be negative: %w", domain.ErrInvalidInput)
	}

	now := s.now()
	var book domain.Book

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		book, err = tx.LockBook(ctx, scope.TenantID, bookID)
		if err != nil {
			return err
		}
		if err := ensureTenant(scope, "book", bookID, book.TenantID); err != nil {
			return err
		}
		if err := book.SetTotalCopies(totalCopies, now); err != nil {
			return err
		}
		return tx.UpdateBook(ctx, book)
	})
	if err != nil {
		s.logFailure(ctx, scope, "set total copies", bookID, err)
		return domain.Book{}, err
	}

	s.publish(ctx, s.change(scope, domain.ChangeBookUpdated, book.ID, "", book.Version, now))
	return book, nil
}

// GetBook returns a book of the scope's tenant.
func (s *CirculationService) GetBook(ctx context.Context, scope domain.Scope, bookID string) (domain.Book, error) {
	if err := scope.Validate(); err != nil {
		return domain.Book{}, err
	}
	return s.store.GetBook(ctx, scope.TenantID, bookID)
}

// ListBooks returns the tenant's catalog ordered by title.
func (s *CirculationService) ListBooks(ctx context.Context, scope domain.Scope, page domain.Page) ([]domain.Book, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListBooks(ctx, scope.TenantID, page)
}

// GetAvailability returns total and shelf copies of a book.
func (s *CirculationService) GetAvailability(ctx context.Context, scope domain.Scope, bookID string) (domain.Availability, error) {
	book, err := s.GetBook(ctx, scope, bookID)
	if err != nil {
		return domain.Availability{}, err
	}
	return book.Availability(), nil
}

// takeCopy locks the book row and removes one copy from the shelf.
func (s *CirculationService) takeCopy(ctx context.Context, tx domain.Tx, scope domain.Scope, bookID string, now time.Time) (domain.Book, error) {
	book, err := tx.LockBook(ctx, scope.TenantID, bookID)
	if err != nil {
		return domain.Book{}, err
	}
	if err := ensureTenant(scope, "book", bookID, book.TenantID); err != nil {
		return domain.Book{}, err
	}
	if err := book.Take(now); err != nil {
		return domain.Book{}, err
	}
	if err := tx.UpdateBook(ctx, book); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

// releaseCopy locks the book row and puts one copy back on the shelf.
// An over-capacity release is an integrity failure and is never clamped.
func (s *CirculationService) releaseCopy(ctx context.Context, tx domain.Tx, scope domain.Scope, bookID string, now time.Time) (domain.Book, error) {
	book, err := tx.LockBook(ctx, scope.TenantID, bookID)
	if err != nil {
		return domain.Book{}, err
	}
	if err := ensureTenant(scope, "book", bookID, book.TenantID); err != nil {
		return domain.Book{}, err
	}
	if err := book.Release(now); err != nil {
		s.logger.ErrorContext(ctx, "release over capacity",
			"tenant_id", scope.TenantID,
			"book_id", bookID,
			"total_copies", book.TotalCopies,
			"available_copies", book.AvailableCopies,
		)
		return domain.Book{}, err
	}
	if err := tx.UpdateBook(ctx, book); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

func (s *CirculationService) bookChange(scope domain.Scope, book domain.Book, now time.Time) domain.Change {
	return s.change(scope, domain.ChangeBookUpdated, book.ID, "", book.Version, now)
}
