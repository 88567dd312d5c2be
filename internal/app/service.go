package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/circulation/internal/domain"
)

// CirculationService orchestrates the catalog, reservation, loan and fine
// operations of every tenant. Each mutation runs in one store transaction.
type CirculationService struct {
	store        domain.Store
	publisher    domain.EventPublisher
	reservations domain.ReservationValidator
	loans        domain.LoanValidator
	policy       domain.Policy
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures a CirculationService.
type Option func(*CirculationService)

// WithPolicy overrides the default circulation rules.
func WithPolicy(p domain.Policy) Option {
	return func(s *CirculationService) { s.policy = p }
}

// WithClock sets the time source used for loan dates, returns and fines.
func WithClock(now func() time.Time) Option {
	return func(s *CirculationService) { s.now = now }
}

// WithLogger sets the logger for integrity failures and publish errors.
func WithLogger(logger *slog.Logger) Option {
	return func(s *CirculationService) { s.logger = logger }
}

// NewCirculationService creates a service with the given adapters.
func NewCirculationService(
	store domain.Store,
	publisher domain.EventPublisher,
	reservations domain.ReservationValidator,
	loans domain.LoanValidator,
	opts ...Option,
) *CirculationService {
	s := &CirculationService{
		store:        store,
		publisher:    publisher,
		reservations: reservations,
		loans:        loans,
		policy:       domain.DefaultPolicy(),
		now:          func() time.Time { return time.Now().UTC() },
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the rules the service runs with.
func (s *CirculationService) Policy() domain.Policy {
	return s.policy
}

func (s *CirculationService) change(scope domain.Scope, kind domain.ChangeKind, id, status string, version int, at time.Time) domain.Change {
	return domain.Change{
		Kind:       kind,
		TenantID:   scope.TenantID,
		EntityID:   id,
		ActorID:    scope.ActorID,
		Status:     status,
		Version:    version,
		OccurredAt: at,
	}
}

// publish emits committed changes. A failed notification never undoes or
// fails the mutation it describes.
func (s *CirculationService) publish(ctx context.Context, changes ...domain.Change) {
	for _, c := range changes {
		if err := s.publisher.Publish(ctx, c); err != nil {
			s.logger.WarnContext(ctx, "publishing change",
				"kind", c.Kind,
				"tenant_id", c.TenantID,
				"entity_id", c.EntityID,
				"error", err,
			)
		}
	}
}

// ensureTenant guards against a store handing back another tenant's row.
func ensureTenant(scope domain.Scope, entity, id, tenantID string) error {
	if !scope.Owns(tenantID) {
		return fmt.Errorf("%s %s: %w", entity, id, domain.ErrTenantMismatch)
	}
	return nil
}

// expected reports errors that are normal outcomes of a request.
func expected(err error) bool {
	for _, target := range []error{
		domain.ErrNotFound,
		domain.ErrBookUnavailable,
		domain.ErrReservationCapExceeded,
		domain.ErrInvalidTransition,
		domain.ErrAlreadyReturned,
		domain.ErrCopiesInUse,
		domain.ErrInvalidInput,
		domain.ErrTenantRequired,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// logFailure records aborted mutations that point at a defect rather than
// a rejected request.
func (s *CirculationService) logFailure(ctx context.Context, scope domain.Scope, op, entityID string, err error) {
	if err == nil || expected(err) {
		return
	}
	level := slog.LevelWarn
	if domain.IsIntegrityViolation(err) {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, op+" aborted",
		"tenant_id", scope.TenantID,
		"actor_id", scope.ActorID,
		"entity_id", entityID,
		"error", err,
	)
}
