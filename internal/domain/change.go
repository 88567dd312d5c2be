package domain

import "time"

// ChangeKind names a committed mutation, e.g. "reservation.approved".
type ChangeKind string

const (
	ChangeBookCreated  ChangeKind = "book.created"
	ChangeBookUpdated  ChangeKind = "book.updated"
	ChangeLoanCreated  ChangeKind = "loan.created"
	ChangeLoanReturned ChangeKind = "loan.returned"
	ChangeFineIssued   ChangeKind = "fine.issued"
	ChangeFinePaid     ChangeKind = "fine.paid"
)

// ReservationChange returns the kind for a reservation entering status.
func ReservationChange(status ReservationStatus) ChangeKind {
	return ChangeKind("reservation." + string(status))
}

// Change describes one committed mutation so consumers can refresh
// the record at EntityID once they see a newer Version.
type Change struct {
	Kind       ChangeKind
	TenantID   string
	EntityID   string
	ActorID    string
	Status     string
	Version    int
	OccurredAt time.Time
}
