package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"github.com/neomorfeo/circulation/internal/domain"
)

const (
	tableBooks        = "books"
	tableMembers      = "members"
	tableReservations = "reservations"
	tableLoans        = "loans"
	tableFines        = "fines"
)

// queries holds the read side shared by Store and txStore. ext is either
// the pool or an open transaction.
type queries struct {
	ext     sqlx.ExtContext
	builder goqu.DialectWrapper
	dialect Dialect
}

func (q queries) with(ext sqlx.ExtContext) queries {
	return queries{ext: ext, builder: q.builder, dialect: q.dialect}
}

// row is a scanned database row that converts into a domain entity.
type row[T any] interface {
	toDomain() (T, error)
}

func get[T any, R row[T]](ctx context.Context, ext sqlx.QueryerContext, ds *goqu.SelectDataset, notFound error) (T, error) {
	var zero T

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return zero, fmt.Errorf("building query: %w", err)
	}

	var r R
	if err := sqlx.GetContext(ctx, ext, &r, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, notFound
		}
		return zero, err
	}
	return r.toDomain()
}

func list[T any, R row[T]](ctx context.Context, ext sqlx.QueryerContext, ds *goqu.SelectDataset) ([]T, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	var rows []R
	if err := sqlx.SelectContext(ctx, ext, &rows, query, args...); err != nil {
		return nil, err
	}

	out := make([]T, 0, len(rows))
	for _, r := range rows {
		v, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func paginate(ds *goqu.SelectDataset, page domain.Page) *goqu.SelectDataset {
	if page.Limit > 0 {
		ds = ds.Limit(uint(page.Limit))
	}
	if page.Offset > 0 {
		ds = ds.Offset(uint(page.Offset))
	}
	return ds
}

// forUpdate adds a row lock on Postgres. SQLite transactions already run
// one at a time on the single connection.
func (q queries) forUpdate(ds *goqu.SelectDataset) *goqu.SelectDataset {
	if q.dialect == Postgres {
		return ds.ForUpdate(exp.Wait)
	}
	return ds
}

func (q queries) byID(table string, columns []any, tenantID, id string) *goqu.SelectDataset {
	return q.builder.From(table).
		Select(columns...).
		Where(goqu.Ex{"tenant_id": tenantID, "id": id})
}

func (q queries) GetBook(ctx context.Context, tenantID, id string) (domain.Book, error) {
	b, err := get[domain.Book, bookRow](ctx, q.ext, q.byID(tableBooks, bookColumns, tenantID, id), domain.ErrBookNotFound)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Book{}, fmt.Errorf("getting book: %w", err)
	}
	return b, err
}

func (q queries) ListBooks(ctx context.Context, tenantID string, page domain.Page) ([]domain.Book, error) {
	ds := q.builder.From(tableBooks).
		Select(bookColumns...).
		Where(goqu.Ex{"tenant_id": tenantID}).
		Order(goqu.I("title").Asc(), goqu.I("id").Asc())

	books, err := list[domain.Book, bookRow](ctx, q.ext, paginate(ds, page))
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	return books, nil
}

func (q queries) GetReservation(ctx context.Context, tenantID, id string) (domain.Reservation, error) {
	r, err := get[domain.Reservation, reservationRow](ctx, q.ext, q.byID(tableReservations, reservationColumns, tenantID, id), domain.ErrReservationNotFound)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Reservation{}, fmt.Errorf("getting reservation: %w", err)
	}
	return r, err
}

func (q queries) ListReservations(ctx context.Context, tenantID string, filter domain.ReservationFilter) ([]domain.Reservation, error) {
	where := goqu.Ex{"tenant_id": tenantID}
	if filter.MemberID != "" {
		where["member_id"] = filter.MemberID
	}
	if filter.BookID != "" {
		where["book_id"] = filter.BookID
	}
	if filter.Status != nil {
		where["status"] = string(*filter.Status)
	}

	ds := q.builder.From(tableReservations).
		Select(reservationColumns...).
		Where(where).
		Order(goqu.I("created_at").Desc(), goqu.I("id").Asc())

	reservations, err := list[domain.Reservation, reservationRow](ctx, q.ext, paginate(ds, filter.Page))
	if err != nil {
		return nil, fmt.Errorf("listing reservations: %w", err)
	}
	return reservations, nil
}

func (q queries) GetLoan(ctx context.Context, tenantID, id string) (domain.Loan, error) {
	l, err := get[domain.Loan, loanRow](ctx, q.ext, q.byID(tableLoans, loanColumns, tenantID, id), domain.ErrLoanNotFound)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Loan{}, fmt.Errorf("getting loan: %w", err)
	}
	return l, err
}

func (q queries) ListLoans(ctx context.Context, tenantID string, filter domain.LoanFilter) ([]domain.Loan, error) {
	where := goqu.Ex{"tenant_id": tenantID}
	if filter.MemberID != "" {
		where["member_id"] = filter.MemberID
	}
	if filter.Status != nil {
		where["status"] = string(*filter.Status)
	}

	ds := q.builder.From(tableLoans).
		Select(loanColumns...).
		Where(where).
		Order(goqu.I("loan_date").Desc(), goqu.I("id").Asc())

	loans, err := list[domain.Loan, loanRow](ctx, q.ext, paginate(ds, filter.Page))
	if err != nil {
		return nil, fmt.Errorf("listing loans: %w", err)
	}
	return loans, nil
}

func (q queries) GetFine(ctx context.Context, tenantID, id string) (domain.Fine, error) {
	f, err := get[domain.Fine, fineRow](ctx, q.ext, q.byID(tableFines, fineColumns, tenantID, id), domain.ErrFineNotFound)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Fine{}, fmt.Errorf("getting fine: %w", err)
	}
	return f, err
}

func (q queries) GetFineByLoan(ctx context.Context, tenantID, loanID string) (domain.Fine, error) {
	ds := q.builder.From(tableFines).
		Select(fineColumns...).
		Where(goqu.Ex{"tenant_id": tenantID, "loan_id": loanID})

	f, err := get[domain.Fine, fineRow](ctx, q.ext, ds, domain.ErrFineNotFound)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Fine{}, fmt.Errorf("getting fine by loan: %w", err)
	}
	return f, err
}

func (q queries) ListFines(ctx context.Context, tenantID string, filter domain.FineFilter) ([]domain.Fine, error) {
	where := goqu.Ex{"tenant_id": tenantID}
	if filter.MemberID != "" {
		where["member_id"] = filter.MemberID
	}
	if filter.Paid != nil {
		where["paid"] = *filter.Paid
	}

	ds := q.builder.From(tableFines).
		Select(fineColumns...).
		Where(where).
		Order(goqu.I("issued_date").Desc(), goqu.I("id").Asc())

	fines, err := list[domain.Fine, fineRow](ctx, q.ext, paginate(ds, filter.Page))
	if err != nil {
		return nil, fmt.Errorf("listing fines: %w", err)
	}
	return fines, nil
}
