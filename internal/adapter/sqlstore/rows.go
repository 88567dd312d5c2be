package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/neomorfeo/circulation/internal/domain"
)

// timeFormat is fixed width so stored timestamps sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var bookColumns = []any{
	"tenant_id", "id", "title", "total_copies", "available_copies",
	"version", "created_at", "updated_at",
}

type bookRow struct {
	TenantID        string `db:"tenant_id"`
	ID              string `db:"id"`
	Title           string `db:"title"`
	TotalCopies     int    `db:"total_copies"`
	AvailableCopies int    `db:"available_copies"`
	Version         int    `db:"version"`
	CreatedAt       string `db:"created_at"`
	UpdatedAt       string `db:"updated_at"`
}

func (r bookRow) toDomain() (domain.Book, error) {
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return domain.Book{}, err
	}
	updatedAt, err := parseTime(r.UpdatedAt)
	if err != nil {
		return domain.Book{}, err
	}
	return domain.Book{
		ID:              r.ID,
		TenantID:        r.TenantID,
		Title:           r.Title,
		TotalCopies:     r.TotalCopies,
		AvailableCopies: r.AvailableCopies,
		Version:         r.Version,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}, nil
}

var reservationColumns = []any{
	"tenant_id", "id", "book_id", "member_id", "status",
	"version", "created_at", "last_transition_at",
}

type reservationRow struct {
	TenantID         string `db:"tenant_id"`
	ID               string `db:"id"`
	BookID           string `db:"book_id"`
	MemberID         string `db:"member_id"`
	Status           string `db:"status"`
	Version          int    `db:"version"`
	CreatedAt        string `db:"created_at"`
	LastTransitionAt string `db:"last_transition_at"`
}

func (r reservationRow) toDomain() (domain.Reservation, error) {
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return domain.Reservation{}, err
	}
	lastTransitionAt, err := parseTime(r.LastTransitionAt)
	if err != nil {
		return domain.Reservation{}, err
	}
	return domain.Reservation{
		ID:               r.ID,
		TenantID:         r.TenantID,
		BookID:           r.BookID,
		MemberID:         r.MemberID,
		Status:           domain.ReservationStatus(r.Status),
		Version:          r.Version,
		CreatedAt:        createdAt,
		LastTransitionAt: lastTransitionAt,
	}, nil
}

var loanColumns = []any{
	"tenant_id", "id", "book_id", "member_id", "reservation_id",
	"loan_date", "due_date", "return_date", "status", "return_status", "version",
}

type loanRow struct {
	TenantID      string         `db:"tenant_id"`
	ID            string         `db:"id"`
	BookID        string         `db:"book_id"`
	MemberID      string         `db:"member_id"`
	ReservationID string         `db:"reservation_id"`
	LoanDate      string         `db:"loan_date"`
	DueDate       string         `db:"due_date"`
	ReturnDate    sql.NullString `db:"return_date"`
	Status        string         `db:"status"`
	ReturnStatus  string         `db:"return_status"`
	Version       int            `db:"version"`
}

func (r loanRow) toDomain() (domain.Loan, error) {
	loanDate, err := parseTime(r.LoanDate)
	if err != nil {
		return domain.Loan{}, err
	}
	dueDate, err := parseTime(r.DueDate)
	if err != nil {
		return domain.Loan{}, err
	}
	returnDate, err := parseNullTime(r.ReturnDate)
	if err != nil {
		return domain.Loan{}, err
	}
	return domain.Loan{
		ID:            r.ID,
		TenantID:      r.TenantID,
		BookID:        r.BookID,
		MemberID:      r.MemberID,
		ReservationID: r.ReservationID,
		LoanDate:      loanDate,
		DueDate:       dueDate,
		ReturnDate:    returnDate,
		Status:        domain.LoanStatus(r.Status),
		ReturnStatus:  domain.ReturnStatus(r.ReturnStatus),
		Version:       r.Version,
	}, nil
}

var fineColumns = []any{
	"tenant_id", "id", "loan_id", "member_id", "amount",
	"days_late", "issued_date", "paid", "paid_at", "version",
}

type fineRow struct {
	TenantID   string          `db:"tenant_id"`
	ID         string          `db:"id"`
	LoanID     string          `db:"loan_id"`
	MemberID   string          `db:"member_id"`
	Amount     decimal.Decimal `db:"amount"`
	DaysLate   int             `db:"days_late"`
	IssuedDate string          `db:"issued_date"`
	Paid       bool            `db:"paid"`
	PaidAt     sql.NullString  `db:"paid_at"`
	Version    int             `db:"version"`
}

func (r fineRow) toDomain() (domain.Fine, error) {
	issued, err := parseTime(r.IssuedDate)
	if err != nil {
		return domain.Fine{}, err
	}
	paidAt, err := parseNullTime(r.PaidAt)
	if err != nil {
		return domain.Fine{}, err
	}
	return domain.Fine{
		ID:         r.ID,
		TenantID:   r.TenantID,
		LoanID:     r.LoanID,
		MemberID:   r.MemberID,
		Amount:     r.Amount,
		DaysLate:   r.DaysLate,
		IssuedDate: issued,
		Paid:       r.Paid,
		PaidAt:     paidAt,
		Version:    r.Version,
	}, nil
}
