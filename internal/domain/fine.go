package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fine is a flat charge for a late return, settled at the desk.
// Paid is the only field that changes after issue.
type Fine struct {
	ID         string
	TenantID   string
	LoanID     string
	MemberID   string
	Amount     decimal.Decimal
	DaysLate   int
	IssuedDate time.Time
	Paid       bool
	PaidAt     *time.Time
	Version    int
}

// NewFine issues an unpaid fine for a late-returned loan.
func NewFine(id string, loan Loan, amount decimal.Decimal) Fine {
	issued := loan.LoanDate
	if loan.ReturnDate != nil {
		issued = *loan.ReturnDate
	}
	return Fine{
		ID:         id,
		TenantID:   loan.TenantID,
		LoanID:     loan.ID,
		MemberID:   loan.MemberID,
		Amount:     amount,
		DaysLate:   loan.DaysLate(),
		IssuedDate: issued,
		Version:    1,
	}
}

// MarkPaid records an out-of-band desk payment. It reports false if the
// fine was already paid.
func (f *Fine) MarkPaid(now time.Time) bool {
	if f.Paid {
		return false
	}
	f.Paid = true
	f.PaidAt = &now
	f.Version++
	return true
}

// SumUnpaid totals the amounts of unpaid fines.
func SumUnpaid(fines []Fine) decimal.Decimal {
	total := decimal.Zero
	for _, f := range fines {
		if !f.Paid {
			total = total.Add(f.Amount)
		}
	}
	return total
}
