package sqlstore

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/neomorfeo/circulation/internal/domain"
)

// Compile-time check: txStore implements domain.Tx.
var _ domain.Tx = (*txStore)(nil)

// txStore runs every read and write on one open transaction.
type txStore struct {
	queries
}

func (t *txStore) exec(ctx context.Context, ds interface {
	ToSQL() (string, []any, error)
}) (int64, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("building statement: %w", err)
	}

	result, err := t.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return rows, nil
}

func (t *txStore) insert(ctx context.Context, table string, record goqu.Record) error {
	_, err := t.exec(ctx, t.builder.Insert(table).Rows(record).Prepared(true))
	return err
}

// update writes record only when the stored version is version-1.
func (t *txStore) update(ctx context.Context, table, tenantID, id string, version int, record goqu.Record) error {
	record["version"] = version
	ds := t.builder.Update(table).
		Set(record).
		Where(goqu.Ex{"tenant_id": tenantID, "id": id, "version": version - 1}).
		Prepared(true)

	rows, err := t.exec(ctx, ds)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %v", domain.ErrOverCapacity, err)
		}
		return err
	}
	if rows == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

func (t *txStore) InsertBook(ctx context.Context, b domain.Book) error {
	err := t.insert(ctx, tableBooks, goqu.Record{
		"tenant_id":        b.TenantID,
		"id":               b.ID,
		"title":            b.Title,
		"total_copies":     b.TotalCopies,
		"available_copies": b.AvailableCopies,
		"version":          b.Version,
		"created_at":       formatTime(b.CreatedAt),
		"updated_at":       formatTime(b.UpdatedAt),
	})
	if err != nil {
		return fmt.Errorf("inserting book: %w", err)
	}
	return nil
}

func (t *txStore) LockBook(ctx context.Context, tenantID, id string) (domain.Book, error) {
	ds := t.forUpdate(t.byID(tableBooks, bookColumns, tenantID, id))
	return get[domain.Book, bookRow](ctx, t.ext, ds, domain.ErrBookNotFound)
}

func (t *txStore) UpdateBook(ctx context.Context, b domain.Book) error {
	err := t.update(ctx, tableBooks, b.TenantID, b.ID, b.Version, goqu.Record{
		"title":            b.Title,
		"total_copies":     b.TotalCopies,
		"available_copies": b.AvailableCopies,
		"updated_at":       formatTime(b.UpdatedAt),
	})
	if err != nil {
		return fmt.Errorf("updating book %s: %w", b.ID, err)
	}
	return nil
}

// LockMember creates the member's anchor row on first use and locks it, so
// admissions for one member run one at a time while other members proceed.
func (t *txStore) LockMember(ctx context.Context, tenantID, memberID string) error {
	upsert := t.builder.Insert(tableMembers).
		Rows(goqu.Record{"tenant_id": tenantID, "id": memberID}).
		OnConflict(goqu.DoNothing()).
		Prepared(true)
	if _, err := t.exec(ctx, upsert); err != nil {
		return fmt.Errorf("creating member anchor: %w", err)
	}

	if t.dialect != Postgres {
		return nil
	}

	ds := t.forUpdate(t.builder.From(tableMembers).
		Select("id").
		Where(goqu.Ex{"tenant_id": tenantID, "id": memberID})).
		Prepared(true)
	query, args, err := ds.ToSQL()
	if err != nil {
		return fmt.Errorf("building query: %w", err)
	}
	var id string
	if err := t.ext.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return fmt.Errorf("locking member: %w", err)
	}
	return nil
}

func (t *txStore) CountActiveReservations(ctx context.Context, tenantID, memberID string) (int, error) {
	ds := t.builder.From(tableReservations).
		Select(goqu.COUNT("*")).
		Where(goqu.Ex{
			"tenant_id": tenantID,
			"member_id": memberID,
			"status":    []string{string(domain.ReservationPending), string(domain.ReservationApproved)},
		}).
		Prepared(true)

	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("building query: %w", err)
	}
	var n int
	if err := t.ext.QueryRowxContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting active reservations: %w", err)
	}
	return n, nil
}

func (t *txStore) InsertReservation(ctx context.Context, r domain.Reservation) error {
	err := t.insert(ctx, tableReservations, goqu.Record{
		"tenant_id":          r.TenantID,
		"id":                 r.ID,
		"book_id":            r.BookID,
		"member_id":          r.MemberID,
		"status":             string(r.Status),
		"version":            r.Version,
		"created_at":         formatTime(r.CreatedAt),
		"last_transition_at": formatTime(r.LastTransitionAt),
	})
	if err != nil {
		return fmt.Errorf("inserting reservation: %w", err)
	}
	return nil
}

func (t *txStore) LockReservation(ctx context.Context, tenantID, id string) (domain.Reservation, error) {
	ds := t.forUpdate(t.byID(tableReservations, reservationColumns, tenantID, id))
	return get[domain.Reservation, reservationRow](ctx, t.ext, ds, domain.ErrReservationNotFound)
}

func (t *txStore) UpdateReservation(ctx context.Context, r domain.Reservation) error {
	err := t.update(ctx, tableReservations, r.TenantID, r.ID, r.Version, goqu.Record{
		"status":             string(r.Status),
		"last_transition_at": formatTime(r.LastTransitionAt),
	})
	if err != nil {
		return fmt.Errorf("updating reservation %s: %w", r.ID, err)
	}
	return nil
}

func (t *txStore) InsertLoan(ctx context.Context, l domain.Loan) error {
	err := t.insert(ctx, tableLoans, goqu.Record{
		"tenant_id":      l.TenantID,
		"id":             l.ID,
		"book_id":        l.BookID,
		"member_id":      l.MemberID,
		"reservation_id": l.ReservationID,
		"loan_date":      formatTime(l.LoanDate),
		"due_date":       formatTime(l.DueDate),
		"return_date":    formatNullTime(l.ReturnDate),
		"status":         string(l.Status),
		"return_status":  string(l.ReturnStatus),
		"version":        l.Version,
	})
	if err != nil {
		return fmt.Errorf("inserting loan: %w", err)
	}
	return nil
}

func (t *txStore) LockLoan(ctx context.Context, tenantID, id string) (domain.Loan, error) {
	ds := t.forUpdate(t.byID(tableLoans, loanColumns, tenantID, id))
	return get[domain.Loan, loanRow](ctx, t.ext, ds, domain.ErrLoanNotFound)
}

func (t *txStore) UpdateLoan(ctx context.Context, l domain.Loan) error {
	err := t.update(ctx, tableLoans, l.TenantID, l.ID, l.Version, goqu.Record{
		"return_date":   formatNullTime(l.ReturnDate),
		"status":        string(l.Status),
		"return_status": string(l.ReturnStatus),
	})
	if err != nil {
		return fmt.Errorf("updating loan %s: %w", l.ID, err)
	}
	return nil
}

func (t *txStore) InsertFine(ctx context.Context, f domain.Fine) error {
	err := t.insert(ctx, tableFines, goqu.Record{
		"tenant_id":   f.TenantID,
		"id":          f.ID,
		"loan_id":     f.LoanID,
		"member_id":   f.MemberID,
		"amount":      f.Amount,
		"days_late":   f.DaysLate,
		"issued_date": formatTime(f.IssuedDate),
		"paid":        f.Paid,
		"paid_at":     formatNullTime(f.PaidAt),
		"version":     f.Version,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("fine for loan %s already exists: %w", f.LoanID, domain.ErrConcurrentModification)
		}
		return fmt.Errorf("inserting fine: %w", err)
	}
	return nil
}

func (t *txStore) LockFine(ctx context.Context, tenantID, id string) (domain.Fine, error) {
	ds := t.forUpdate(t.byID(tableFines, fineColumns, tenantID, id))
	return get[domain.Fine, fineRow](ctx, t.ext, ds, domain.ErrFineNotFound)
}

func (t *txStore) UpdateFine(ctx context.Context, f domain.Fine) error {
	err := t.update(ctx, tableFines, f.TenantID, f.ID, f.Version, goqu.Record{
		"paid":    f.Paid,
		"paid_at": formatNullTime(f.PaidAt),
	})
	if err != nil {
		return fmt.Errorf("updating fine %s: %w", f.ID, err)
	}
	return nil
}
