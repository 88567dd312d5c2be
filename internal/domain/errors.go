package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrNotFound               = errors.New("not found")
	ErrBookNotFound           = fmt.Errorf("book %w", ErrNotFound)
	ErrReservationNotFound    = fmt.Errorf("reservation %w", ErrNotFound)
	ErrLoanNotFound           = fmt.Errorf("loan %w", ErrNotFound)
	ErrFineNotFound           = fmt.Errorf("fine %w", ErrNotFound)
	ErrBookUnavailable        = errors.New("no copy of this book is available")
	ErrReservationCapExceeded = errors.New("reservation limit reached")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrAlreadyReturned        = errors.New("loan has already been returned")
	ErrCopiesInUse            = errors.New("total copies cannot drop below copies currently out")
	ErrInvalidInput           = errors.New("invalid input")
	ErrTenantRequired         = errors.New("tenant context is required")
	ErrTenantMismatch         = errors.New("entity belongs to a different tenant")
	ErrOverCapacity           = errors.New("available copies would exceed total copies")
	ErrConcurrentModification = errors.New("record was modified concurrently")
)

// CapExceededError is returned when a member already holds the maximum
// number of pending or approved reservations.
type CapExceededError struct {
	MemberID string
	Active   int
	Cap      int
}

func (e *CapExceededError) Error() string {
	return fmt.Sprintf("reservation limit reached: member %q holds %d of %d", e.MemberID, e.Active, e.Cap)
}

func (e *CapExceededError) Is(target error) bool {
	return target == ErrReservationCapExceeded
}

// OverCapacityError signals a copy being returned to a book that has none out.
// It points at an upstream defect and is never clamped.
type OverCapacityError struct {
	BookID    string
	Total     int
	Available int
}

func (e *OverCapacityError) Error() string {
	return fmt.Sprintf("book %q: releasing a copy would exceed total copies (%d/%d available)", e.BookID, e.Available, e.Total)
}

func (e *OverCapacityError) Is(target error) bool {
	return target == ErrOverCapacity
}

// TransitionError is returned when a state transition is not allowed.
type TransitionError struct {
	Entity  string
	Event   string
	Current string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid for %s in state %q", e.Event, e.Entity, e.Current)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// IsIntegrityViolation reports whether err indicates corrupted or cross-tenant
// data rather than an expected user-facing condition.
func IsIntegrityViolation(err error) bool {
	return errors.Is(err, ErrOverCapacity) ||
		errors.Is(err, ErrTenantMismatch) ||
		errors.Is(err, ErrConcurrentModification)
}
