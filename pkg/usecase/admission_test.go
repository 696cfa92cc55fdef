package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/scribe/pkg/usecase"
)

func TestAdmission_IdempotentUnderRedelivery(t *testing.T) {
	store := newMemStore()
	queue := newMemQueue()
	uc := usecase.NewAdmission(store, queue)
	ctx := context.Background()

	first, admitted, err := uc.AdmitDelivery(ctx, testDelivery("delivery-1"))
	gt.NoError(t, err)
	gt.B(t, admitted).True()

	// Redeliver the same delivery ID three more times.
	for i := 0; i < 3; i++ {
		again, admitted, err := uc.AdmitDelivery(ctx, testDelivery("delivery-1"))
		gt.NoError(t, err)
		gt.B(t, admitted).False()
		gt.V(t, again.ID).Equal(first.ID)
	}

	gt.N(t, len(store.events)).Equal(1)
	gt.A(t, queue.messages).Length(1)
	gt.V(t, queue.messages[0].EventID).Equal(first.ID)
}

func TestAdmission_OccurredAtFromPayload(t *testing.T) {
	store := newMemStore()
	uc := usecase.NewAdmission(store, newMemQueue())

	event, admitted, err := uc.AdmitDelivery(context.Background(), testDelivery("delivery-ts"))
	gt.NoError(t, err)
	gt.B(t, admitted).True()

	want := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	gt.B(t, event.OccurredAt.Equal(want)).True()
}

func TestAdmission_PublishFailureLeavesEventForSweep(t *testing.T) {
	store := newMemStore()
	queue := newMemQueue()
	queue.publishErr = goerr.New("broker unavailable")
	uc := usecase.NewAdmission(store, queue)

	event, admitted, err := uc.AdmitDelivery(context.Background(), testDelivery("delivery-2"))
	// Admission must survive a failed publish: the row is durable and the
	// sweep re-publishes it later.
	gt.NoError(t, err)
	gt.B(t, admitted).True()
	gt.N(t, len(store.events)).Equal(1)
	gt.A(t, queue.messages).Length(0)

	queue.publishErr = nil
	sweep := usecase.NewReconcile(store, queue, usecase.WithStaleAfter(-time.Minute))
	published, err := sweep.Republish(context.Background())
	gt.NoError(t, err)
	gt.N(t, published).Equal(1)
	gt.A(t, queue.messages).Length(1)
	gt.V(t, queue.messages[0].EventID).Equal(event.ID)
}

func TestAdmission_RejectsUnparsablePayload(t *testing.T) {
	store := newMemStore()
	uc := usecase.NewAdmission(store, newMemQueue())

	delivery := testDelivery("delivery-3")
	delivery.RawPayload = []byte(`{broken`)

	_, _, err := uc.AdmitDelivery(context.Background(), delivery)
	gt.Error(t, err)
	gt.N(t, len(store.events)).Equal(0)
}
