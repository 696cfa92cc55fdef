package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/scribe/pkg/domain/interfaces"
	"github.com/m-mizutani/scribe/pkg/domain/model"
)

const (
	defaultStaleAfter = 5 * time.Minute
	defaultSweepLimit = 100
)

type reconcileUseCase struct {
	store      interfaces.Store
	queue      interfaces.Queue
	staleAfter time.Duration
	limit      int
	now        func() time.Time
}

// ReconcileOption configures the reconciliation sweep.
type ReconcileOption func(*reconcileUseCase)

// WithStaleAfter sets how old an unprocessed event must be before the sweep
// re-publishes it. Younger events are assumed to still be in flight.
func WithStaleAfter(d time.Duration) ReconcileOption {
	return func(uc *reconcileUseCase) {
		uc.staleAfter = d
	}
}

// WithSweepLimit bounds how many events one sweep touches.
func WithSweepLimit(n int) ReconcileOption {
	return func(uc *reconcileUseCase) {
		uc.limit = n
	}
}

// NewReconcile creates the compensating sweep for events whose dispatch
// message was lost between admission commit and queue publish.
func NewReconcile(store interfaces.Store, queue interfaces.Queue, opts ...ReconcileOption) interfaces.ReconcileUseCase {
	uc := &reconcileUseCase{
		store:      store,
		queue:      queue,
		staleAfter: defaultStaleAfter,
		limit:      defaultSweepLimit,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Republish enqueues dispatch messages for stale unprocessed events. Errored
// events are excluded by the store query, and the broker deduplicates by
// delivery ID, so running the sweep repeatedly cannot amplify work.
func (uc *reconcileUseCase) Republish(ctx context.Context) (int, error) {
	logger := ctxlog.From(ctx)

	events, err := uc.store.ListUnprocessed(ctx, uc.now().Add(-uc.staleAfter), uc.limit)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list stale events")
	}

	published := 0
	for _, event := range events {
		err := uc.queue.Publish(ctx, &model.DispatchMessage{
			EventID:    event.ID,
			DeliveryID: event.DeliveryID,
		})
		if err != nil {
			logger.Warn("failed to re-publish stale event",
				"event_id", event.ID, "error", err)
			continue
		}
		published++
	}

	if published > 0 {
		logger.Info("reconciliation sweep re-published stale events",
			"found", len(events), "published", published)
	}
	return published, nil
}
