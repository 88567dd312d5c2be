package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/circulation/internal/domain"
)

// Compile-time checks: the validators implement the domain ports.
var (
	_ domain.ReservationValidator = (*Validator[domain.ReservationStatus, domain.ReservationEvent])(nil)
	_ domain.LoanValidator        = (*Validator[domain.LoanStatus, domain.LoanEvent])(nil)
)

// buildEvents converts a domain transition table into looplab/fsm EventDesc format.
// It consolidates transitions with the same event+destination into a single
// EventDesc with multiple source states (e.g., cancel from "pending" and
// "approved" both go to "cancelled").
func buildEvents[S ~string, E ~string](transitions []domain.Transition[S, E]) []loopfsm.EventDesc {
	type key struct {
		event string
		dst   string
	}
	grouped := make(map[key][]string)
	order := make([]key, 0)

	for _, t := range transitions {
		k := key{event: string(t.Event), dst: string(t.Dst)}
		if _, exists := grouped[k]; !exists {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], string(t.Src))
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		out = append(out, loopfsm.EventDesc{
			Name: k.event,
			Src:  grouped[k],
			Dst:  k.dst,
		})
	}
	return out
}

// Validator implements domain.TransitionValidator using looplab/fsm.
// It creates a short-lived FSM instance per Apply call, initialized with
// the entity's current state. This is necessary because looplab/fsm is
// stateful (it tracks the current state internally).
type Validator[S ~string, E ~string] struct {
	entity string
	events []loopfsm.EventDesc
}

// NewReservationValidator creates a validator for the reservation lifecycle.
func NewReservationValidator() *Validator[domain.ReservationStatus, domain.ReservationEvent] {
	return &Validator[domain.ReservationStatus, domain.ReservationEvent]{
		entity: "reservation",
		events: buildEvents(domain.ReservationTransitions),
	}
}

// NewLoanValidator creates a validator for the loan lifecycle.
func NewLoanValidator() *Validator[domain.LoanStatus, domain.LoanEvent] {
	return &Validator[domain.LoanStatus, domain.LoanEvent]{
		entity: "loan",
		events: buildEvents(domain.LoanTransitions),
	}
}

// Apply checks if the given event is valid from the current status and
// returns the destination status. Returns a domain.TransitionError if
// the transition is not allowed.
func (v *Validator[S, E]) Apply(ctx context.Context, current S, event E) (S, error) {
	machine := loopfsm.NewFSM(string(current), v.events, nil)

	if err := machine.Event(ctx, string(event)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var unknownEvent loopfsm.UnknownEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalidEvent) || errors.As(err, &unknownEvent) || errors.As(err, &noTransition) {
			return current, &domain.TransitionError{
				Entity:  v.entity,
				Event:   string(event),
				Current: string(current),
			}
		}
		return current, err
	}

	return S(machine.Current()), nil
}
