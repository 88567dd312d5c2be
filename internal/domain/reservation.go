package domain

import "time"

// ReservationStatus represents the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationApproved  ReservationStatus = "approved"
	ReservationRejected  ReservationStatus = "rejected"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationCompleted ReservationStatus = "completed"
)

// Active reports whether the reservation counts against the member's cap.
func (s ReservationStatus) Active() bool {
	return s == ReservationPending || s == ReservationApproved
}

// HoldsCopy reports whether a book copy is out of the shelf on behalf of a
// reservation in this state. A completed reservation's copy belongs to its loan.
func (s ReservationStatus) HoldsCopy() bool {
	return s == ReservationPending || s == ReservationApproved || s == ReservationCompleted
}

// ReservationEvent represents an action that triggers a reservation transition.
type ReservationEvent string

const (
	ReservationEventApprove       ReservationEvent = "approve"
	ReservationEventReject        ReservationEvent = "reject"
	ReservationEventCancel        ReservationEvent = "cancel"
	ReservationEventConfirmPickup ReservationEvent = "confirm_pickup"
	ReservationEventReactivate    ReservationEvent = "reactivate"
)

// ReservationTransitions defines all valid state changes in the reservation lifecycle.
// Completed has no outgoing transition.
var ReservationTransitions = []Transition[ReservationStatus, ReservationEvent]{
	{Event: ReservationEventApprove, Src: ReservationPending, Dst: ReservationApproved},
	{Event: ReservationEventReject, Src: ReservationPending, Dst: ReservationRejected},
	{Event: ReservationEventCancel, Src: ReservationPending, Dst: ReservationCancelled},
	{Event: ReservationEventCancel, Src: ReservationApproved, Dst: ReservationCancelled},
	{Event: ReservationEventConfirmPickup, Src: ReservationApproved, Dst: ReservationCompleted},
	{Event: ReservationEventReactivate, Src: ReservationCancelled, Dst: ReservationPending},
	{Event: ReservationEventReactivate, Src: ReservationRejected, Dst: ReservationPending},
}

// CopyEffect is the change a reservation transition makes to its book's shelf.
type CopyEffect int

const (
	CopyUnchanged CopyEffect = iota
	CopyTaken
	CopyReleased
)

// CopyEffectOf derives the catalog effect of moving from src to dst.
func CopyEffectOf(src, dst ReservationStatus) CopyEffect {
	switch {
	case !src.HoldsCopy() && dst.HoldsCopy():
		return CopyTaken
	case src.HoldsCopy() && !dst.HoldsCopy():
		return CopyReleased
	default:
		return CopyUnchanged
	}
}

// Reservation is a member's claim on one copy of a book.
type Reservation struct {
	ID               string
	TenantID         string
	BookID           string
	MemberID         string
	Status           ReservationStatus
	Version          int
	CreatedAt        time.Time
	LastTransitionAt time.Time
}

// NewReservation creates a reservation in the initial "pending" state.
func NewReservation(id, tenantID, bookID, memberID string, now time.Time) Reservation {
	return Reservation{
		ID:               id,
		TenantID:         tenantID,
		BookID:           bookID,
		MemberID:         memberID,
		Status:           ReservationPending,
		Version:          1,
		CreatedAt:        now,
		LastTransitionAt: now,
	}
}

// MoveTo records a validated transition.
func (r *Reservation) MoveTo(status ReservationStatus, now time.Time) {
	r.Status = status
	r.LastTransitionAt = now
	r.Version++
}
