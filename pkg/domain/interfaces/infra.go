package interfaces

import (
	"context"
	"time"

	"github.com/m-mizutani/scribe/pkg/domain/model"
	"github.com/m-mizutani/scribe/pkg/domain/types"
)

// Store is the durable event and summary storage. Implementations must make
// InsertEvent atomic under a unique delivery-ID constraint and CompleteEvent
// all-or-nothing.
type Store interface {
	// InsertEvent persists a new event. Returns types.ErrDuplicateDelivery
	// when the delivery ID is already admitted.
	InsertEvent(ctx context.Context, event *model.PersistedEvent) error

	// GetEvent fetches an event by internal ID. Returns types.ErrEventNotFound
	// when absent.
	GetEvent(ctx context.Context, id types.EventID) (*model.PersistedEvent, error)

	// GetEventByDeliveryID fetches an event by its delivery ID.
	GetEventByDeliveryID(ctx context.Context, id types.DeliveryID) (*model.PersistedEvent, error)

	// CompleteEvent inserts the summary record and flips the event's
	// processed flag in one transaction.
	CompleteEvent(ctx context.Context, record *model.SummaryRecord) error

	// MarkEventErrored flags an event whose run failed terminally. Errored
	// events are excluded from reconciliation.
	MarkEventErrored(ctx context.Context, id types.EventID) error

	// ListUnprocessed returns events with processed=false and no error
	// marker admitted before the given time, oldest first.
	ListUnprocessed(ctx context.Context, olderThan time.Time, limit int) ([]*model.PersistedEvent, error)

	// NearestSummary returns the stored summary closest to the embedding by
	// cosine similarity, or nil when none exist.
	NearestSummary(ctx context.Context, embedding []float64) (*model.SummaryRecord, float64, error)
}

// SubscriptionSource resolves the webhook subscription for a repository. The
// subscription data is owned by the account-management service.
type SubscriptionSource interface {
	// SubscriptionByRepo returns types.ErrSubscriptionNotFound when no
	// subscription exists, and types.ErrAmbiguousSubscription when the
	// repository cannot be resolved to exactly one.
	SubscriptionByRepo(ctx context.Context, repoID int64) (*model.Subscription, error)
}

// Queue publishes dispatch messages with at-least-once delivery. Publishing
// the same delivery ID twice must not enqueue a second message.
type Queue interface {
	Publish(ctx context.Context, msg *model.DispatchMessage) error
}
