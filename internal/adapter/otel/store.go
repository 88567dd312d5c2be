package otel

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/circulation/internal/domain"
)

const tracerName = "github.com/neomorfeo/circulation/internal/adapter/otel"

// recordError marks the span failed. Not-found lookups are ordinary
// outcomes and leave the status unset.
func recordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	if !errors.Is(err, domain.ErrNotFound) {
		span.SetStatus(codes.Error, err.Error())
	}
}

// TracingStore wraps a domain.Store with OpenTelemetry tracing.
// Each method creates a span with tenant attributes and records errors.
// Statements inside a transaction are traced by otelsql.
type TracingStore struct {
	next   domain.Store
	tracer trace.Tracer
}

// Compile-time check: TracingStore implements domain.Store.
var _ domain.Store = (*TracingStore)(nil)

// NewTracingStore creates a tracing decorator around the given store.
func NewTracingStore(next domain.Store) *TracingStore {
	return &TracingStore{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (s *TracingStore) start(ctx context.Context, name, tenantID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("tenant.id", tenantID))
	return s.tracer.Start(ctx, "Store."+name, trace.WithAttributes(attrs...))
}

func (s *TracingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	ctx, span := s.tracer.Start(ctx, "Store.WithinTx")
	defer span.End()

	err := s.next.WithinTx(ctx, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *TracingStore) GetBook(ctx context.Context, tenantID, id string) (domain.Book, error) {
	ctx, span := s.start(ctx, "GetBook", tenantID, attribute.String("book.id", id))
	defer span.End()

	book, err := s.next.GetBook(ctx, tenantID, id)
	recordError(span, err)
	return book, err
}

func (s *TracingStore) ListBooks(ctx context.Context, tenantID string, page domain.Page) ([]domain.Book, error) {
	ctx, span := s.start(ctx, "ListBooks", tenantID,
		attribute.Int("page.limit", page.Limit),
		attribute.Int("page.offset", page.Offset),
	)
	defer span.End()

	books, err := s.next.ListBooks(ctx, tenantID, page)
	recordError(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(books)))
	}
	return books, err
}

func (s *TracingStore) GetReservation(ctx context.Context, tenantID, id string) (domain.Reservation, error) {
	ctx, span := s.start(ctx, "GetReservation", tenantID, attribute.String("reservation.id", id))
	defer span.End()

	r, err := s.next.GetReservation(ctx, tenantID, id)
	recordError(span, err)
	return r, err
}

func (s *TracingStore) ListReservations(ctx context.Context, tenantID string, filter domain.ReservationFilter) ([]domain.Reservation, error) {
	ctx, span := s.start(ctx, "ListReservations", tenantID,
		attribute.String("filter.member_id", filter.MemberID),
		attribute.Int("page.limit", filter.Limit),
		attribute.Int("page.offset", filter.Offset),
	)
	defer span.End()

	if filter.Status != nil {
		span.SetAttributes(attribute.String("filter.status", string(*filter.Status)))
	}

	reservations, err := s.next.ListReservations(ctx, tenantID, filter)
	recordError(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(reservations)))
	}
	return reservations, err
}

func (s *TracingStore) GetLoan(ctx context.Context, tenantID, id string) (domain.Loan, error) {
	ctx, span := s.start(ctx, "GetLoan", tenantID, attribute.String("loan.id", id))
	defer span.End()

	loan, err := s.next.GetLoan(ctx, tenantID, id)
	recordError(span, err)
	return loan, err
}

func (s *TracingStore) ListLoans(ctx context.Context, tenantID string, filter domain.LoanFilter) ([]domain.Loan, error) {
	ctx, span := s.start(ctx, "ListLoans", tenantID,
		attribute.String("filter.member_id", filter.MemberID),
		attribute.Int("page.limit", filter.Limit),
		attribute.Int("page.offset", filter.Offset),
	)
	defer span.End()

	loans, err := s.next.ListLoans(ctx, tenantID, filter)
	recordError(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(loans)))
	}
	return loans, err
}

func (s *TracingStore) GetFine(ctx context.Context, tenantID, id string) (domain.Fine, error) {
	ctx, span := s.start(ctx, "GetFine", tenantID, attribute.String("fine.id", id))
	defer span.End()

	fine, err := s.next.GetFine(ctx, tenantID, id)
	recordError(span, err)
	return fine, err
}

func (s *TracingStore) GetFineByLoan(ctx context.Context, tenantID, loanID string) (domain.Fine, error) {
	ctx, span := s.start(ctx, "GetFineByLoan", tenantID, attribute.String("loan.id", loanID))
	defer span.End()

	fine, err := s.next.GetFineByLoan(ctx, tenantID, loanID)
	recordError(span, err)
	return fine, err
}

func (s *TracingStore) ListFines(ctx context.Context, tenantID string, filter domain.FineFilter) ([]domain.Fine, error) {
	ctx, span := s.start(ctx, "ListFines", tenantID,
		attribute.String("filter.member_id", filter.MemberID),
		attribute.Int("page.limit", filter.Limit),
		attribute.Int("page.offset", filter.Offset),
	)
	defer span.End()

	if filter.Paid != nil {
		span.SetAttributes(attribute.Bool("filter.paid", *filter.Paid))
	}

	fines, err := s.next.ListFines(ctx, tenantID, filter)
	recordError(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(fines)))
	}
	return fines, err
}
