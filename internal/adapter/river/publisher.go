package river

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/circulation/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// ChangeJobArgs carries a committed change through the job queue. River
// serializes it as JSON, so the worker never reads the circulation tables.
type ChangeJobArgs struct {
	Change     string    `json:"change"`
	TenantID   string    `json:"tenant_id"`
	EntityID   string    `json:"entity_id"`
	ActorID    string    `json:"actor_id"`
	Status     string    `json:"status,omitempty"`
	Version    int       `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (ChangeJobArgs) Kind() string { return "change.published" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues a change notification as an async job in River.
func (p *Publisher) Publish(ctx context.Context, change domain.Change) error {
	_, err := p.client.Insert(ctx, ChangeJobArgs{
		Change:     string(change.Kind),
		TenantID:   change.TenantID,
		EntityID:   change.EntityID,
		ActorID:    change.ActorID,
		Status:     change.Status,
		Version:    change.Version,
		OccurredAt: change.OccurredAt,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing change job: %w", err)
	}
	return nil
}
