package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultReservationCap = 5
	DefaultLoanPeriod     = 14 * 24 * time.Hour
)

// DefaultFineAmount is the flat late-return fine.
var DefaultFineAmount = decimal.RequireFromString("10.00")

// Policy holds the circulation rules a library runs with.
type Policy struct {
	ReservationCap int
	LoanPeriod     time.Duration
	FineAmount     decimal.Decimal
}

// DefaultPolicy returns a cap of 5 reservations, a 14 day loan period and a 10.00 fine.
func DefaultPolicy() Policy {
	return Policy{
		ReservationCap: DefaultReservationCap,
		LoanPeriod:     DefaultLoanPeriod,
		FineAmount:     DefaultFineAmount,
	}
}
