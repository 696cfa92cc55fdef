package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/scribe/pkg/domain/model"
	"github.com/m-mizutani/scribe/pkg/domain/types"
	"github.com/m-mizutani/scribe/pkg/usecase"
)

func admit(t *testing.T, store *memStore) *model.PersistedEvent {
	t.Helper()
	queue := newMemQueue()
	event, admitted, err := usecase.NewAdmission(store, queue).
		AdmitDelivery(context.Background(), testDelivery("delivery-s1"))
	gt.NoError(t, err)
	gt.B(t, admitted).True()
	return event
}

func TestSummarize_GroundedRun(t *testing.T) {
	store := newMemStore()
	event := admit(t, store)

	gen := &stubGenerator{text: "octocat added a parser"}
	uc := usecase.NewSummarize(store, gen, &stubGrader{grounded: true}, &stubEmbedder{})

	err := uc.ProcessEvent(context.Background(), &model.DispatchMessage{
		EventID:    event.ID,
		DeliveryID: event.DeliveryID,
	})
	gt.NoError(t, err)

	gt.A(t, store.summaries).Length(1)
	record := store.summaries[0]
	gt.V(t, record.SummaryText).Equal("octocat added a parser")
	gt.V(t, record.Status).Equal(types.StatusGrounded)
	gt.B(t, record.OccurredAt.Equal(event.OccurredAt)).True()
	gt.A(t, record.TechStack).Length(1)
	gt.V(t, record.TechStack[0]).Equal("Go")
	gt.A(t, record.Embedding).Length(2)

	stored, err := store.GetEvent(context.Background(), event.ID)
	gt.NoError(t, err)
	gt.B(t, stored.Processed).True()
}

func TestSummarize_ProcessedEventIsNoOp(t *testing.T) {
	store := newMemStore()
	event := admit(t, store)

	gen := &stubGenerator{}
	uc := usecase.NewSummarize(store, gen, &stubGrader{grounded: true}, &stubEmbedder{})
	msg := &model.DispatchMessage{EventID: event.ID, DeliveryID: event.DeliveryID}

	gt.NoError(t, uc.ProcessEvent(context.Background(), msg))
	gt.NoError(t, uc.ProcessEvent(context.Background(), msg)) // redelivery

	gt.A(t, store.summaries).Length(1)
	gt.N(t, gen.calls).Equal(1)
}

func TestSummarize_ExhaustedRunStillRecorded(t *testing.T) {
	store := newMemStore()
	event := admit(t, store)

	uc := usecase.NewSummarize(store, &stubGenerator{}, &stubGrader{grounded: false}, &stubEmbedder{})
	err := uc.ProcessEvent(context.Background(), &model.DispatchMessage{
		EventID:    event.ID,
		DeliveryID: event.DeliveryID,
	})
	gt.NoError(t, err)

	gt.A(t, store.summaries).Length(1)
	gt.V(t, store.summaries[0].Status).Equal(types.StatusExhausted)
}

func TestSummarize_EngineFailureMarksErrored(t *testing.T) {
	store := newMemStore()
	event := admit(t, store)

	gen := &stubGenerator{err: goerr.New("generation timed out")}
	uc := usecase.NewSummarize(store, gen, &stubGrader{grounded: true}, &stubEmbedder{})

	err := uc.ProcessEvent(context.Background(), &model.DispatchMessage{
		EventID:    event.ID,
		DeliveryID: event.DeliveryID,
	})
	gt.Error(t, err)

	stored, getErr := store.GetEvent(context.Background(), event.ID)
	gt.NoError(t, getErr)
	gt.B(t, stored.Errored).True()
	gt.B(t, stored.Processed).False()
	gt.A(t, store.summaries).Length(0)
}

func TestSummarize_CommitFailureLeavesNothingApplied(t *testing.T) {
	store := newMemStore()
	event := admit(t, store)
	store.completeErr = goerr.New("connection lost mid-transaction")

	uc := usecase.NewSummarize(store, &stubGenerator{}, &stubGrader{grounded: true}, &stubEmbedder{})
	err := uc.ProcessEvent(context.Background(), &model.DispatchMessage{
		EventID:    event.ID,
		DeliveryID: event.DeliveryID,
	})
	gt.Error(t, err)

	// The summary insert and processed flip are one transaction: the failure
	// must leave neither applied, and the event must carry the error marker.
	gt.A(t, store.summaries).Length(0)
	stored, getErr := store.GetEvent(context.Background(), event.ID)
	gt.NoError(t, getErr)
	gt.B(t, stored.Processed).False()
	gt.B(t, stored.Errored).True()
}

func TestSummarize_UnknownEvent(t *testing.T) {
	store := newMemStore()
	uc := usecase.NewSummarize(store, &stubGenerator{}, &stubGrader{grounded: true}, &stubEmbedder{})

	err := uc.ProcessEvent(context.Background(), &model.DispatchMessage{
		EventID:    "missing",
		DeliveryID: "missing",
	})
	gt.Error(t, err)
	gt.B(t, errors.Is(err, types.ErrEventNotFound)).True()
}

func TestSummarize_RacedCompletionStaysSingleRecord(t *testing.T) {
	store := newMemStore()
	event := admit(t, store)

	gen := &stubGenerator{text: "raced summary"}
	uc := usecase.NewSummarize(store, gen, &stubGrader{grounded: true}, &stubEmbedder{})
	msg := &model.DispatchMessage{EventID: event.ID, DeliveryID: event.DeliveryID}
	ctx := context.Background()

	gt.NoError(t, uc.ProcessEvent(ctx, msg))

	// A sweep re-publish outside the broker dedup window can hand the same
	// event to a second worker whose processed pre-check read a stale row.
	// The losing completion must be a silent no-op, not an error, and must
	// not produce a second record or an errored marker.
	store.staleProcessedReads = 1
	gt.NoError(t, uc.ProcessEvent(ctx, msg))

	gt.A(t, store.summaries).Length(1)
	gt.N(t, gen.calls).Equal(2) // both runs executed; only one committed

	stored, err := store.GetEvent(ctx, event.ID)
	gt.NoError(t, err)
	gt.B(t, stored.Processed).True()
	gt.B(t, stored.Errored).False()
}
