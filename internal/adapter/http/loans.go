package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/circulation/internal/app"
	"github.com/neomorfeo/circulation/internal/domain"
)

// LoanResponse is the API representation of a loan.
type LoanResponse struct {
	ID            string `json:"id" doc:"Unique identifier"`
	BookID        string `json:"book_id" doc:"Borrowed book"`
	MemberID      string `json:"member_id" doc:"Borrowing member"`
	ReservationID string `json:"reservation_id,omitempty" doc:"Reservation the loan was picked up from"`
	LoanDate      string `json:"loan_date" doc:"Checkout timestamp (ISO 8601)"`
	DueDate       string `json:"due_date" doc:"Due timestamp (ISO 8601)"`
	ReturnDate    string `json:"return_date,omitempty" doc:"Return timestamp (ISO 8601)"`
	Status        string `json:"status" enum:"active,returned"`
	ReturnStatus  string `json:"return_status" enum:"pending,on_time,late"`
	Version       int    `json:"version"`
}

func toLoanResponse(l domain.Loan) LoanResponse {
	return LoanResponse{
		ID:            l.ID,
		BookID:        l.BookID,
		MemberID:      l.MemberID,
		ReservationID: l.ReservationID,
		LoanDate:      formatTime(l.LoanDate),
		DueDate:       formatTime(l.DueDate),
		ReturnDate:    formatOptionalTime(l.ReturnDate),
		Status:        string(l.Status),
		ReturnStatus:  string(l.ReturnStatus),
		Version:       l.Version,
	}
}

type CheckoutInput struct {
	ScopeHeaders
	Body struct {
		MemberID string `json:"member_id" minLength:"1" doc:"Borrowing member"`
		BookID   string `json:"book_id" minLength:"1" doc:"Book to lend"`
	}
}

type LoanOutput struct {
	Body LoanResponse
}

type GetLoanInput struct {
	ScopeHeaders
	ID string `path:"id" doc:"Loan ID"`
}

type ListLoansInput struct {
	ScopeHeaders
	PageQuery
	MemberID string `query:"member_id" required:"false" doc:"Filter by member"`
	Status   string `query:"status" required:"false" doc:"Filter by status"`
}

type ListLoansOutput struct {
	Body []LoanResponse
}

type ReturnLoanOutput struct {
	Body struct {
		Loan LoanResponse  `json:"loan"`
		Fine *FineResponse `json:"fine,omitempty" doc:"Fine issued for a late return"`
	}
}

func registerLoans(api huma.API, svc *app.CirculationService) {
	huma.Register(api, huma.Operation{
		OperationID: "checkout",
		Method:      http.MethodPost,
		Path:        "/api/v1/loans",
		Summary:     "Lend a book directly at the desk",
		Tags:        []string{"Loans"},
	}, func(ctx context.Context, input *CheckoutInput) (*LoanOutput, error) {
		loan, err := svc.Checkout(ctx, input.Scope(), input.Body.MemberID, input.Body.BookID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &LoanOutput{Body: toLoanResponse(loan)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-loans",
		Method:      http.MethodGet,
		Path:        "/api/v1/loans",
		Summary:     "List loans",
		Tags:        []string{"Loans"},
	}, func(ctx context.Context, input *ListLoansInput) (*ListLoansOutput, error) {
		filter := domain.LoanFilter{MemberID: input.MemberID, Page: input.Page()}
		if input.Status != "" {
			status := domain.LoanStatus(input.Status)
			filter.Status = &status
		}

		loans, err := svc.ListLoans(ctx, input.Scope(), filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]LoanResponse, len(loans))
		for i, l := range loans {
			resp[i] = toLoanResponse(l)
		}
		return &ListLoansOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-loan",
		Method:      http.MethodGet,
		Path:        "/api/v1/loans/{id}",
		Summary:     "Get a loan by ID",
		Tags:        []string{"Loans"},
	}, func(ctx context.Context, input *GetLoanInput) (*LoanOutput, error) {
		loan, err := svc.GetLoan(ctx, input.Scope(), input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &LoanOutput{Body: toLoanResponse(loan)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "return-loan",
		Method:      http.MethodPost,
		Path:        "/api/v1/loans/{id}/return",
		Summary:     "Return a borrowed book",
		Tags:        []string{"Loans"},
	}, func(ctx context.Context, input *GetLoanInput) (*ReturnLoanOutput, error) {
		result, err := svc.ReturnLoan(ctx, input.Scope(), input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}

		out := &ReturnLoanOutput{}
		out.Body.Loan = toLoanResponse(result.Loan)
		if result.Fine != nil {
			fine := toFineResponse(*result.Fine)
			out.Body.Fine = &fine
		}
		return out, nil
	})
}
