package domain

import "context"

// Page bounds list queries.
type Page struct {
	Limit  int
	Offset int
}

// ReservationFilter holds optional criteria for listing reservations.
type ReservationFilter struct {
	MemberID string
	BookID   string
	Status   *ReservationStatus
	Page
}

// LoanFilter holds optional criteria for listing loans.
type LoanFilter struct {
	MemberID string
	Status   *LoanStatus
	Page
}

// FineFilter holds optional criteria for listing fines.
type FineFilter struct {
	MemberID string
	Paid     *bool
	Page
}

// Reader is the read side of the store. Every call is tenant scoped.
type Reader interface {
	GetBook(ctx context.Context, tenantID, id string) (Book, error)
	ListBooks(ctx context.Context, tenantID string, page Page) ([]Book, error)
	GetReservation(ctx context.Context, tenantID, id string) (Reservation, error)
	ListReservations(ctx context.Context, tenantID string, filter ReservationFilter) ([]Reservation, error)
	GetLoan(ctx context.Context, tenantID, id string) (Loan, error)
	ListLoans(ctx context.Context, tenantID string, filter LoanFilter) ([]Loan, error)
	GetFine(ctx context.Context, tenantID, id string) (Fine, error)
	GetFineByLoan(ctx context.Context, tenantID, loanID string) (Fine, error)
	ListFines(ctx context.Context, tenantID string, filter FineFilter) ([]Fine, error)
}

// Tx is a unit of work. Lock* methods hold the row until the transaction
// ends; Update* methods write the entity's new Version only if the stored
// version is the one before it.
type Tx interface {
	Reader

	InsertBook(ctx context.Context, book Book) error
	LockBook(ctx context.Context, tenantID, id string) (Book, error)
	UpdateBook(ctx context.Context, book Book) error

	LockMember(ctx context.Context, tenantID, memberID string) error
	CountActiveReservations(ctx context.Context, tenantID, memberID string) (int, error)

	InsertReservation(ctx context.Context, reservation Reservation) error
	LockReservation(ctx context.Context, tenantID, id string) (Reservation, error)
	UpdateReservation(ctx context.Context, reservation Reservation) error

	InsertLoan(ctx context.Context, loan Loan) error
	LockLoan(ctx context.Context, tenantID, id string) (Loan, error)
	UpdateLoan(ctx context.Context, loan Loan) error

	InsertFine(ctx context.Context, fine Fine) error
	LockFine(ctx context.Context, tenantID, id string) (Fine, error)
	UpdateFine(ctx context.Context, fine Fine) error
}

// Store defines the persistence contract for the circulation engine.
// WithinTx commits when fn returns nil and rolls back otherwise.
type Store interface {
	Reader
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// TransitionValidator checks an event against a transition table and
// returns the destination state.
type TransitionValidator[S ~string, E ~string] interface {
	Apply(ctx context.Context, current S, event E) (S, error)
}

type (
	ReservationValidator = TransitionValidator[ReservationStatus, ReservationEvent]
	LoanValidator        = TransitionValidator[LoanStatus, LoanEvent]
)

// EventPublisher defines the contract for emitting change notifications.
type EventPublisher interface {
	Publish(ctx context.Context, change Change) error
}
