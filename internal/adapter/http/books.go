package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/circulation/internal/app"
	"github.com/neomorfeo/circulation/internal/domain"
)

// BookResponse is the API representation of a catalog entry.
type BookResponse struct {
	ID              string `json:"id" doc:"Unique identifier"`
	Title           string `json:"title" doc:"Title"`
	TotalCopies     int    `json:"total_copies" doc:"Copies the library owns"`
	AvailableCopies int    `json:"available_copies" doc:"Copies on the shelf"`
	Version         int    `json:"version" doc:"Record version, bumped on every change"`
	CreatedAt       string `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt       string `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func toBookResponse(b domain.Book) BookResponse {
	return BookResponse{
		ID:              b.ID,
		Title:           b.Title,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		Version:         b.Version,
		CreatedAt:       formatTime(b.CreatedAt),
		UpdatedAt:       formatTime(b.UpdatedAt),
	}
}

// AvailabilityResponse reports copy counts for one book.
type AvailabilityResponse struct {
	BookID    string `json:"book_id"`
	Total     int    `json:"total"`
	Available int    `json:"available"`
	Version   int    `json:"version"`
}

type CreateBookInput struct {
	ScopeHeaders
	Body struct {
		Title       string `json:"title" minLength:"1" maxLength:"500" doc:"Title"`
		TotalCopies int    `json:"total_copies" minimum:"0" doc:"Copies the library owns"`
	}
}

type BookOutput struct {
	Body BookResponse
}

type GetBookInput struct {
	ScopeHeaders
	ID string `path:"id" doc:"Book ID"`
}

type ListBooksInput struct {
	ScopeHeaders
	PageQuery
}

type ListBooksOutput struct {
	Body []BookResponse
}

type SetCopiesInput struct {
	ScopeHeaders
	ID   string `path:"id" doc:"Book ID"`
	Body struct {
		TotalCopies int `json:"total_copies" minimum:"0" doc:"New number of owned copies"`
	}
}

type AvailabilityOutput struct {
	Body AvailabilityResponse
}

func registerBooks(api huma.API, svc *app.CirculationService) {
	huma.Register(api, huma.Operation{
		OperationID: "create-book",
		Method:      http.MethodPost,
		Path:        "/api/v1/books",
		Summary:     "Add a book to the catalog",
		Tags:        []string{"Catalog"},
	}, func(ctx context.Context, input *CreateBookInput) (*BookOutput, error) {
		book, err := svc.CreateBook(ctx, input.Scope(), input.Body.Title, input.Body.TotalCopies)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &BookOutput{Body: toBookResponse(book)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-books",
		Method:      http.MethodGet,
		Path:        "/api/v1/books",
		Summary:     "List the catalog",
		Tags:        []string{"Catalog"},
	}, func(ctx context.Context, input *ListBooksInput) (*ListBooksOutput, error) {
		books, err := svc.ListBooks(ctx, input.Scope(), input.Page())
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]BookResponse, len(books))
		for i, b := range books {
			resp[i] = toBookResponse(b)
		}
		return &ListBooksOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-book",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}",
		Summary:     "Get a book by ID",
		Tags:        []string{"Catalog"},
	}, func(ctx context.Context, input *GetBookInput) (*BookOutput, error) {
		book, err := svc.GetBook(ctx, input.Scope(), input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &BookOutput{Body: toBookResponse(book)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-book-copies",
		Method:      http.MethodPut,
		Path:        "/api/v1/books/{id}/copies",
		Summary:     "Change the number of owned copies",
		Tags:        []string{"Catalog"},
	}, func(ctx context.Context, input *SetCopiesInput) (*BookOutput, error) {
		book, err := svc.SetTotalCopies(ctx, input.Scope(), input.ID, input.Body.TotalCopies)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &BookOutput{Body: toBookResponse(book)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-book-availability",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}/availability",
		Summary:     "Get total and available copies",
		Tags:        []string{"Catalog"},
	}, func(ctx context.Context, input *GetBookInput) (*AvailabilityOutput, error) {
		a, err := svc.GetAvailability(ctx, input.Scope(), input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &AvailabilityOutput{Body: AvailabilityResponse{
			BookID:    a.BookID,
			Total:     a.Total,
			Available: a.Available,
			Version:   a.Version,
		}}, nil
	})
}
