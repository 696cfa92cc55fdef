package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/scribe/pkg/domain/interfaces"
	"github.com/m-mizutani/scribe/pkg/domain/model"
	"github.com/m-mizutani/scribe/pkg/domain/types"
)

type admissionUseCase struct {
	store interfaces.Store
	queue interfaces.Queue
}

// NewAdmission creates the admission use case: durable, deduplicated intake
// of verified deliveries plus dispatch onto the queue.
func NewAdmission(store interfaces.Store, queue interfaces.Queue) interfaces.AdmissionUseCase {
	return &admissionUseCase{store: store, queue: queue}
}

// AdmitDelivery persists the delivery keyed by its delivery ID and publishes
// a dispatch message. Redelivery of an already-admitted ID is a no-op: the
// existing event is returned and nothing is enqueued.
//
// The publish happens after the database commit. If it fails, the event
// stays admitted and unpublished; the reconciliation sweep re-publishes it.
// Losing the message is worse than delivering it twice, and the consumer is
// idempotent either way.
func (uc *admissionUseCase) AdmitDelivery(ctx context.Context, delivery *model.InboundDelivery) (*model.PersistedEvent, bool, error) {
	logger := ctxlog.From(ctx)

	payload, err := model.ParseEventPayload(delivery.RawPayload)
	if err != nil {
		return nil, false, err
	}

	event := &model.PersistedEvent{
		ID:         types.EventID(uuid.NewString()),
		DeliveryID: delivery.ID,
		RepoID:     delivery.RepoID,
		Type:       delivery.Type,
		Payload:    delivery.RawPayload,
		OccurredAt: payload.OccurredAt(delivery.ReceivedAt),
	}

	if err := uc.store.InsertEvent(ctx, event); err != nil {
		if errors.Is(err, types.ErrDuplicateDelivery) {
			existing, getErr := uc.store.GetEventByDeliveryID(ctx, delivery.ID)
			if getErr != nil {
				return nil, false, goerr.Wrap(getErr, "delivery deduplicated but event not readable")
			}
			logger.Info("duplicate delivery, skipping",
				"delivery_id", delivery.ID,
				"event_id", existing.ID,
			)
			return existing, false, nil
		}
		return nil, false, err
	}

	if err := uc.queue.Publish(ctx, &model.DispatchMessage{
		EventID:    event.ID,
		DeliveryID: event.DeliveryID,
	}); err != nil {
		logger.Warn("event admitted but dispatch publish failed, leaving for reconciliation",
			"delivery_id", delivery.ID,
			"event_id", event.ID,
			"error", err,
		)
		return event, true, nil
	}

	logger.Info("admitted webhook delivery",
		"delivery_id", delivery.ID,
		"event_id", event.ID,
		"event_type", event.Type,
		"repo_id", event.RepoID,
	)
	return event, true, nil
}
