package domain

import (
	"math"
	"time"
)

// LoanStatus represents the lifecycle state of a loan.
type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
)

// ReturnStatus classifies a loan's return against its due date.
type ReturnStatus string

const (
	ReturnPending ReturnStatus = "pending"
	ReturnOnTime  ReturnStatus = "on_time"
	ReturnLate    ReturnStatus = "late"
)

// LoanEvent represents an action that triggers a loan transition.
type LoanEvent string

const LoanEventReturn LoanEvent = "return"

// LoanTransitions defines all valid state changes in the loan lifecycle.
var LoanTransitions = []Transition[LoanStatus, LoanEvent]{
	{Event: LoanEventReturn, Src: LoanActive, Dst: LoanReturned},
}

// Loan is a book copy checked out to a member.
type Loan struct {
	ID            string
	TenantID      string
	BookID        string
	MemberID      string
	ReservationID string // empty for direct checkouts
	LoanDate      time.Time
	DueDate       time.Time
	ReturnDate    *time.Time
	Status        LoanStatus
	ReturnStatus  ReturnStatus
	Version       int
}

// NewLoan creates an active loan due one loan period after now.
func NewLoan(id, tenantID, bookID, memberID, reservationID string, now time.Time, period time.Duration) Loan {
	return Loan{
		ID:            id,
		TenantID:      tenantID,
		BookID:        bookID,
		MemberID:      memberID,
		ReservationID: reservationID,
		LoanDate:      now,
		DueDate:       now.Add(period),
		Status:        LoanActive,
		ReturnStatus:  ReturnPending,
		Version:       1,
	}
}

// ClassifyReturn is on time when the copy comes back no later than the due date.
func ClassifyReturn(dueDate, returnDate time.Time) ReturnStatus {
	if returnDate.After(dueDate) {
		return ReturnLate
	}
	return ReturnOnTime
}

// DaysLate counts started days past the due date; zero when on time.
func DaysLate(dueDate, returnDate time.Time) int {
	late := returnDate.Sub(dueDate)
	if late <= 0 {
		return 0
	}
	return int(math.Ceil(late.Hours() / 24))
}

// Return closes the loan at now and classifies it.
func (l *Loan) Return(status LoanStatus, now time.Time) {
	l.ReturnDate = &now
	l.ReturnStatus = ClassifyReturn(l.DueDate, now)
	l.Status = status
	l.Version++
}

// DaysLate is the display-only lateness of a returned loan.
func (l Loan) DaysLate() int {
	if l.ReturnDate == nil {
		return 0
	}
	return DaysLate(l.DueDate, *l.ReturnDate)
}
