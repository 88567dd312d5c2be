package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/circulation/internal/app"
	"github.com/neomorfeo/circulation/internal/domain"
)

// ReservationResponse is the API representation of a reservation.
type ReservationResponse struct {
	ID               string `json:"id" doc:"Unique identifier"`
	BookID           string `json:"book_id" doc:"Reserved book"`
	MemberID         string `json:"member_id" doc:"Member holding the reservation"`
	Status           string `json:"status" enum:"pending,approved,rejected,cancelled,completed" doc:"Lifecycle state"`
	Version          int    `json:"version" doc:"Record version, bumped on every change"`
	CreatedAt        string `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	LastTransitionAt string `json:"last_transition_at" doc:"Last state change (ISO 8601)"`
}

func toReservationResponse(r domain.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:               r.ID,
		BookID:           r.BookID,
		MemberID:         r.MemberID,
		Status:           string(r.Status),
		Version:          r.Version,
		CreatedAt:        formatTime(r.CreatedAt),
		LastTransitionAt: formatTime(r.LastTransitionAt),
	}
}

type CreateReservationInput struct {
	ScopeHeaders
	Body struct {
		MemberID string `json:"member_id" minLength:"1" doc:"Member requesting the book"`
		BookID   string `json:"book_id" minLength:"1" doc:"Book to reserve"`
	}
}

type ReservationOutput struct {
	Body ReservationResponse
}

type GetReservationInput struct {
	ScopeHeaders
	ID string `path:"id" doc:"Reservation ID"`
}

type ListReservationsInput struct {
	ScopeHeaders
	PageQuery
	MemberID string `query:"member_id" required:"false" doc:"Filter by member"`
	BookID   string `query:"book_id" required:"false" doc:"Filter by book"`
	Status   string `query:"status" required:"false" doc:"Filter by status"`
}

type ListReservationsOutput struct {
	Body []ReservationResponse
}

type ReservationEventInput struct {
	ScopeHeaders
	ID   string `path:"id" doc:"Reservation ID"`
	Body struct {
		Event string `json:"event" enum:"approve,reject,cancel,confirm_pickup,reactivate" doc:"Lifecycle event to apply"`
	}
}

type ReservationEventOutput struct {
	Body struct {
		Reservation ReservationResponse `json:"reservation"`
		Loan        *LoanResponse       `json:"loan,omitempty" doc:"Loan opened by confirm_pickup"`
	}
}

func registerReservations(api huma.API, svc *app.CirculationService) {
	huma.Register(api, huma.Operation{
		OperationID: "create-reservation",
		Method:      http.MethodPost,
		Path:        "/api/v1/reservations",
		Summary:     "Reserve a copy of a book",
		Tags:        []string{"Reservations"},
	}, func(ctx context.Context, input *CreateReservationInput) (*ReservationOutput, error) {
		r, err := svc.RequestReservation(ctx, input.Scope(), input.Body.MemberID, input.Body.BookID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ReservationOutput{Body: toReservationResponse(r)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reservations",
		Method:      http.MethodGet,
		Path:        "/api/v1/reservations",
		Summary:     "List reservations",
		Tags:        []string{"Reservations"},
	}, func(ctx context.Context, input *ListReservationsInput) (*ListReservationsOutput, error) {
		filter := domain.ReservationFilter{
			MemberID: input.MemberID,
			BookID:   input.BookID,
			Page:     input.Page(),
		}
		if input.Status != "" {
			status := domain.ReservationStatus(input.Status)
			filter.Status = &status
		}

		reservations, err := svc.ListReservations(ctx, input.Scope(), filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]ReservationResponse, len(reservations))
		for i, r := range reservations {
			resp[i] = toReservationResponse(r)
		}
		return &ListReservationsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-reservation",
		Method:      http.MethodGet,
		Path:        "/api/v1/reservations/{id}",
		Summary:     "Get a reservation by ID",
		Tags:        []string{"Reservations"},
	}, func(ctx context.Context, input *GetReservationInput) (*ReservationOutput, error) {
		r, err := svc.GetReservation(ctx, input.Scope(), input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ReservationOutput{Body: toReservationResponse(r)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-reservation-event",
		Method:      http.MethodPost,
		Path:        "/api/v1/reservations/{id}/events",
		Summary:     "Apply a lifecycle event to a reservation",
		Tags:        []string{"Reservations"},
	}, func(ctx context.Context, input *ReservationEventInput) (*ReservationEventOutput, error) {
		result, err := svc.TransitionReservation(ctx, input.Scope(), input.ID, domain.ReservationEvent(input.Body.Event))
		if err != nil {
			return nil, toHumaError(err)
		}

		out := &ReservationEventOutput{}
		out.Body.Reservation = toReservationResponse(result.Reservation)
		if result.Loan != nil {
			loan := toLoanResponse(*result.Loan)
			out.Body.Loan = &loan
		}
		return out, nil
	})
}
