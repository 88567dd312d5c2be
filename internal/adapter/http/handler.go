package http

import (
	"errors"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/circulation/internal/app"
	"github.com/neomorfeo/circulation/internal/domain"
)

// ScopeHeaders identifies the calling tenant and actor. Every operation
// embeds it; there is no ambient tenant.
type ScopeHeaders struct {
	TenantID string `header:"X-Tenant-ID" required:"true" minLength:"1" doc:"Tenant (library) the request acts in"`
	ActorID  string `header:"X-Actor-ID" required:"true" minLength:"1" doc:"Member or staff id performing the request"`
}

// Scope converts the headers into the domain scope.
func (h ScopeHeaders) Scope() domain.Scope {
	return domain.NewScope(h.TenantID, h.ActorID)
}

// PageQuery holds the pagination parameters shared by list endpoints.
type PageQuery struct {
	Limit  int `query:"limit" required:"false" default:"50" minimum:"0" maximum:"500" doc:"Max results"`
	Offset int `query:"offset" required:"false" default:"0" minimum:"0" doc:"Pagination offset"`
}

func (q PageQuery) Page() domain.Page {
	return domain.Page{Limit: q.Limit, Offset: q.Offset}
}

const timeFormat = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseOptionalBool(name, value string) (*bool, error) {
	if value == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return nil, huma.Error400BadRequest(name + " must be true or false")
	}
	return &b, nil
}

// Register adds all circulation API routes to the Huma API.
func Register(api huma.API, svc *app.CirculationService) {
	registerBooks(api, svc)
	registerReservations(api, svc)
	registerLoans(api, svc)
	registerFines(api, svc)
}

// toHumaError translates domain errors to Huma HTTP errors. Integrity
// failures and anything unexpected stay opaque.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrTenantRequired) || errors.Is(err, domain.ErrInvalidInput) {
		return huma.Error400BadRequest(err.Error())
	}

	if errors.Is(err, domain.ErrNotFound) {
		return huma.Error404NotFound(err.Error())
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	for _, conflict := range []error{
		domain.ErrBookUnavailable,
		domain.ErrReservationCapExceeded,
		domain.ErrAlreadyReturned,
		domain.ErrCopiesInUse,
	} {
		if errors.Is(err, conflict) {
			return huma.Error409Conflict(err.Error())
		}
	}

	return huma.Error500InternalServerError("internal server error")
}
