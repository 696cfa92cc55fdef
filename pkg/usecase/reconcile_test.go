package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/scribe/pkg/domain/model"
	"github.com/m-mizutani/scribe/pkg/usecase"
)

func TestReconcile_RepublishesOnlyStaleCleanEvents(t *testing.T) {
	store := newMemStore()
	admitQueue := newMemQueue()
	admitQueue.publishErr = context.DeadlineExceeded // every admission publish fails
	admission := usecase.NewAdmission(store, admitQueue)
	ctx := context.Background()

	pending, _, err := admission.AdmitDelivery(ctx, testDelivery("sweep-pending"))
	gt.NoError(t, err)
	done, _, err := admission.AdmitDelivery(ctx, testDelivery("sweep-done"))
	gt.NoError(t, err)
	poison, _, err := admission.AdmitDelivery(ctx, testDelivery("sweep-poison"))
	gt.NoError(t, err)

	store.events[done.ID].Processed = true
	store.events[poison.ID].Errored = true

	sweepQueue := newMemQueue()
	sweep := usecase.NewReconcile(store, sweepQueue, usecase.WithStaleAfter(-time.Minute))

	published, err := sweep.Republish(ctx)
	gt.NoError(t, err)
	gt.N(t, published).Equal(1)
	gt.A(t, sweepQueue.messages).Length(1)
	gt.V(t, sweepQueue.messages[0].EventID).Equal(pending.ID)
}

func TestReconcile_FreshEventsLeftAlone(t *testing.T) {
	store := newMemStore()
	queue := newMemQueue()
	queue.publishErr = context.DeadlineExceeded
	_, _, err := usecase.NewAdmission(store, queue).
		AdmitDelivery(context.Background(), testDelivery("sweep-fresh"))
	gt.NoError(t, err)

	queue.publishErr = nil
	sweep := usecase.NewReconcile(store, queue, usecase.WithStaleAfter(time.Hour))
	published, err := sweep.Republish(context.Background())
	gt.NoError(t, err)
	gt.N(t, published).Equal(0)
}

func TestReconcile_IdempotentEndToEnd(t *testing.T) {
	store := newMemStore()
	queue := newMemQueue()
	queue.publishErr = context.DeadlineExceeded
	event, _, err := usecase.NewAdmission(store, queue).
		AdmitDelivery(context.Background(), testDelivery("sweep-idem"))
	gt.NoError(t, err)
	queue.publishErr = nil

	sweep := usecase.NewReconcile(store, queue, usecase.WithStaleAfter(-time.Minute))
	ctx := context.Background()

	// Two sweeps: the broker-side message ID collapses the second publish.
	_, err = sweep.Republish(ctx)
	gt.NoError(t, err)
	_, err = sweep.Republish(ctx)
	gt.NoError(t, err)
	gt.A(t, queue.messages).Length(1)

	// Draining the queue produces exactly one summary even if the consumer
	// sees the reference more than once.
	summarize := usecase.NewSummarize(store, &stubGenerator{}, &stubGrader{grounded: true}, &stubEmbedder{})
	msg := &model.DispatchMessage{EventID: event.ID, DeliveryID: event.DeliveryID}
	gt.NoError(t, summarize.ProcessEvent(ctx, msg))
	gt.NoError(t, summarize.ProcessEvent(ctx, msg))
	gt.A(t, store.summaries).Length(1)

	// A later sweep finds nothing: the event is processed.
	published, err := sweep.Republish(ctx)
	gt.NoError(t, err)
	gt.N(t, published).Equal(0)
}
