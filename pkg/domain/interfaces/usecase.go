package interfaces

import (
	"context"

	"github.com/m-mizutani/scribe/pkg/domain/model"
)

// AdmissionUseCase admits verified webhook deliveries into the store and
// hands them to the dispatch queue.
type AdmissionUseCase interface {
	// AdmitDelivery persists the delivery exactly once and publishes a
	// dispatch message. A redelivered ID returns the existing event with
	// admitted=false.
	AdmitDelivery(ctx context.Context, delivery *model.InboundDelivery) (event *model.PersistedEvent, admitted bool, err error)
}

// SummarizeUseCase runs the workflow for one dispatched event and records
// its terminal outcome.
type SummarizeUseCase interface {
	// ProcessEvent loads the referenced event, runs the summarization
	// workflow, and durably commits the result. Already-processed events are
	// a no-op so queue redelivery stays safe.
	ProcessEvent(ctx context.Context, msg *model.DispatchMessage) error
}

// ReconcileUseCase re-publishes admitted events the queue may have lost.
type ReconcileUseCase interface {
	// Republish enqueues dispatch messages for stale unprocessed events and
	// returns how many were published. Safe to run repeatedly.
	Republish(ctx context.Context) (int, error)
}
