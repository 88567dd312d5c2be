package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/circulation/internal/adapter/xlsx"
	"github.com/neomorfeo/circulation/internal/app"
	"github.com/neomorfeo/circulation/internal/domain"
)

// FineResponse is the API representation of a fine. Amounts are decimal
// strings with two places.
type FineResponse struct {
	ID         string `json:"id" doc:"Unique identifier"`
	LoanID     string `json:"loan_id" doc:"Late loan the fine was issued for"`
	MemberID   string `json:"member_id" doc:"Fined member"`
	Amount     string `json:"amount" example:"10.00" doc:"Fine amount"`
	DaysLate   int    `json:"days_late" doc:"Whole days past due, rounded up"`
	IssuedDate string `json:"issued_date" doc:"Issue timestamp (ISO 8601)"`
	Paid       bool   `json:"paid"`
	PaidAt     string `json:"paid_at,omitempty" doc:"Settlement timestamp (ISO 8601)"`
	Version    int    `json:"version"`
}

func toFineResponse(f domain.Fine) FineResponse {
	return FineResponse{
		ID:         f.ID,
		LoanID:     f.LoanID,
		MemberID:   f.MemberID,
		Amount:     f.Amount.StringFixed(2),
		DaysLate:   f.DaysLate,
		IssuedDate: formatTime(f.IssuedDate),
		Paid:       f.Paid,
		PaidAt:     formatOptionalTime(f.PaidAt),
		Version:    f.Version,
	}
}

type FineOutput struct {
	Body FineResponse
}

type GetFineInput struct {
	ScopeHeaders
	ID string `path:"id" doc:"Fine ID"`
}

// FineQuery holds the fine filters shared by the list and export endpoints.
type FineQuery struct {
	MemberID string `query:"member_id" required:"false" doc:"Filter by member"`
	Paid     string `query:"paid" required:"false" doc:"Filter by settlement (true or false)"`
}

func (q FineQuery) filter(page domain.Page) (domain.FineFilter, error) {
	paid, err := parseOptionalBool("paid", q.Paid)
	if err != nil {
		return domain.FineFilter{}, err
	}
	return domain.FineFilter{MemberID: q.MemberID, Paid: paid, Page: page}, nil
}

type ListFinesInput struct {
	ScopeHeaders
	PageQuery
	FineQuery
}

// ExportFinesInput has no paging: the workbook holds every matching fine.
type ExportFinesInput struct {
	ScopeHeaders
	FineQuery
}

type ListFinesOutput struct {
	Body []FineResponse
}

type ExportFinesOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

type UnpaidTotalInput struct {
	ScopeHeaders
	MemberID string `path:"id" doc:"Member ID"`
}

type UnpaidTotalOutput struct {
	Body struct {
		MemberID string `json:"member_id"`
		Total    string `json:"total" example:"20.00" doc:"Sum of unpaid fines"`
	}
}

func registerFines(api huma.API, svc *app.CirculationService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-fines",
		Method:      http.MethodGet,
		Path:        "/api/v1/fines",
		Summary:     "List fines",
		Tags:        []string{"Fines"},
	}, func(ctx context.Context, input *ListFinesInput) (*ListFinesOutput, error) {
		filter, err := input.filter(input.Page())
		if err != nil {
			return nil, err
		}

		fines, err := svc.ListFines(ctx, input.Scope(), filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]FineResponse, len(fines))
		for i, f := range fines {
			resp[i] = toFineResponse(f)
		}
		return &ListFinesOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-fines",
		Method:      http.MethodGet,
		Path:        "/api/v1/fines/export",
		Summary:     "Export fines as a spreadsheet",
		Tags:        []string{"Fines"},
	}, func(ctx context.Context, input *ExportFinesInput) (*ExportFinesOutput, error) {
		filter, err := input.filter(domain.Page{})
		if err != nil {
			return nil, err
		}

		fines, err := svc.ListFines(ctx, input.Scope(), filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		data, err := xlsx.FinesWorkbook(fines)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ExportFinesOutput{
			ContentType:        xlsx.ContentType,
			ContentDisposition: `attachment; filename="fines.xlsx"`,
			Body:               data,
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-fine",
		Method:      http.MethodGet,
		Path:        "/api/v1/fines/{id}",
		Summary:     "Get a fine by ID",
		Tags:        []string{"Fines"},
	}, func(ctx context.Context, input *GetFineInput) (*FineOutput, error) {
		fine, err := svc.GetFine(ctx, input.Scope(), input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &FineOutput{Body: toFineResponse(fine)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-fine-paid",
		Method:      http.MethodPost,
		Path:        "/api/v1/fines/{id}/paid",
		Summary:     "Record a fine as settled",
		Tags:        []string{"Fines"},
	}, func(ctx context.Context, input *GetFineInput) (*FineOutput, error) {
		fine, err := svc.MarkFinePaid(ctx, input.Scope(), input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &FineOutput{Body: toFineResponse(fine)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-unpaid-total",
		Method:      http.MethodGet,
		Path:        "/api/v1/members/{id}/fines/unpaid-total",
		Summary:     "Sum a member's unpaid fines",
		Tags:        []string{"Fines"},
	}, func(ctx context.Context, input *UnpaidTotalInput) (*UnpaidTotalOutput, error) {
		total, err := svc.UnpaidTotal(ctx, input.Scope(), input.MemberID)
		if err != nil {
			return nil, toHumaError(err)
		}

		out := &UnpaidTotalOutput{}
		out.Body.MemberID = input.MemberID
		out.Body.Total = total.StringFixed(2)
		return out, nil
	})
}
