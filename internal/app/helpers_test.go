package app_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/neomorfeo/circulation/internal/adapter/fsm"
	"github.com/neomorfeo/circulation/internal/adapter/sqlstore"
	"github.com/neomorfeo/circulation/internal/app"
	"github.com/neomorfeo/circulation/internal/domain"
)

// --- Fakes ---

type recordingPublisher struct {
	mu      sync.Mutex
	changes []domain.Change
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, c domain.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.changes = append(p.changes, c)
	return nil
}

func (p *recordingPublisher) kinds() []domain.ChangeKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.ChangeKind, 0, len(p.changes))
	for _, c := range p.changes {
		out = append(out, c.Kind)
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// --- Fixture ---

type fixture struct {
	svc   *app.CirculationService
	store *sqlstore.Store
	pub   *recordingPublisher
	clock *clock
}

var (
	libA  = domain.NewScope("lib-a", "staff-1")
	libB  = domain.NewScope("lib-b", "staff-1")
	start = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
)

// newFixture runs the service on an in-memory SQLite store.
func newFixture(t *testing.T, opts ...app.Option) *fixture {
	t.Helper()

	store, err := sqlstore.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return newFixtureOn(t, store, opts...)
}

// storeCase is a store the concurrency tests run against. scope is unique
// per case so runs sharing a Postgres database never see each other's rows.
type storeCase struct {
	name  string
	scope domain.Scope
	open  func(t *testing.T) *sqlstore.Store
}

// storeCases returns SQLite, plus Postgres when CIRCULATION_TEST_POSTGRES_DSN
// is set. SQLite serializes whole transactions; Postgres exercises the row
// locks and conditional updates under real contention.
func storeCases() []storeCase {
	cases := []storeCase{{
		name:  "sqlite",
		scope: libA,
		open: func(t *testing.T) *sqlstore.Store {
			t.Helper()
			store, err := sqlstore.New(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}}

	dsn := os.Getenv("CIRCULATION_TEST_POSTGRES_DSN")
	if dsn == "" {
		return cases
	}
	return append(cases, storeCase{
		name:  "postgres",
		scope: domain.NewScope("lib-"+uuid.NewString(), "staff-1"),
		open: func(t *testing.T) *sqlstore.Store {
			t.Helper()
			db, err := sql.Open(sqlstore.Postgres.DriverName(), dsn)
			require.NoError(t, err)
			store, err := sqlstore.NewFromDB(db, sqlstore.Postgres)
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	})
}

// forEachStore runs fn once per store case with a fresh fixture.
func forEachStore(t *testing.T, fn func(t *testing.T, f *fixture, scope domain.Scope)) {
	t.Helper()
	for _, sc := range storeCases() {
		t.Run(sc.name, func(t *testing.T) {
			fn(t, newFixtureOn(t, sc.open(t)), sc.scope)
		})
	}
}

func newFixtureOn(t *testing.T, store *sqlstore.Store, opts ...app.Option) *fixture {
	t.Helper()

	f := &fixture{
		store: store,
		pub:   &recordingPublisher{},
		clock: &clock{t: start},
	}
	opts = append([]app.Option{
		app.WithClock(f.clock.Now),
		app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	f.svc = app.NewCirculationService(store, f.pub, fsm.NewReservationValidator(), fsm.NewLoanValidator(), opts...)
	return f
}

func (f *fixture) book(t *testing.T, scope domain.Scope, copies int) domain.Book {
	t.Helper()
	b, err := f.svc.CreateBook(context.Background(), scope, "Dune", copies)
	require.NoError(t, err)
	return b
}

func (f *fixture) reserve(t *testing.T, scope domain.Scope, memberID, bookID string) domain.Reservation {
	t.Helper()
	r, err := f.svc.RequestReservation(context.Background(), scope, memberID, bookID)
	require.NoError(t, err)
	return r
}

func (f *fixture) available(t *testing.T, scope domain.Scope, bookID string) int {
	t.Helper()
	a, err := f.svc.GetAvailability(context.Background(), scope, bookID)
	require.NoError(t, err)
	return a.Available
}

// race runs fn n times concurrently and returns every error.
func race(n int, fn func(i int) error) []error {
	var wg sync.WaitGroup
	errs := make([]error, n)
	ready := make(chan struct{})
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ready
			errs[i] = fn(i)
		}()
	}
	close(ready)
	wg.Wait()
	return errs
}

func countErrors(errs []error, target error) (ok, matched, other int) {
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, target):
			matched++
		default:
			other++
		}
	}
	return ok, matched, other
}
