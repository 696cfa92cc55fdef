package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/scribe/pkg/domain/interfaces"
	"github.com/m-mizutani/scribe/pkg/domain/model"
	"github.com/m-mizutani/scribe/pkg/domain/types"
)

// memStore is an in-memory interfaces.Store with the same atomicity
// contracts as the real one.
type memStore struct {
	mu         sync.Mutex
	events     map[types.EventID]*model.PersistedEvent
	byDelivery map[types.DeliveryID]types.EventID
	summaries  []*model.SummaryRecord

	completeErr error // injected failure: CompleteEvent fails without applying anything

	// staleProcessedReads makes the next N GetEvent calls report
	// processed=false regardless of the stored row, emulating a read that
	// raced an in-flight completion.
	staleProcessedReads int
}

func newMemStore() *memStore {
	return &memStore{
		events:     map[types.EventID]*model.PersistedEvent{},
		byDelivery: map[types.DeliveryID]types.EventID{},
	}
}

func (s *memStore) InsertEvent(ctx context.Context, event *model.PersistedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byDelivery[event.DeliveryID]; ok {
		return goerr.Wrap(types.ErrDuplicateDelivery, "duplicate delivery")
	}
	cp := *event
	cp.CreatedAt = time.Now()
	s.events[event.ID] = &cp
	s.byDelivery[event.DeliveryID] = event.ID
	return nil
}

func (s *memStore) GetEvent(ctx context.Context, id types.EventID) (*model.PersistedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return nil, goerr.Wrap(types.ErrEventNotFound, "not found")
	}
	cp := *event
	if s.staleProcessedReads > 0 {
		s.staleProcessedReads--
		cp.Processed = false
	}
	return &cp, nil
}

func (s *memStore) GetEventByDeliveryID(ctx context.Context, id types.DeliveryID) (*model.PersistedEvent, error) {
	s.mu.Lock()
	eventID, ok := s.byDelivery[id]
	s.mu.Unlock()
	if !ok {
		return nil, goerr.Wrap(types.ErrEventNotFound, "not found")
	}
	return s.GetEvent(context.Background(), eventID)
}

func (s *memStore) CompleteEvent(ctx context.Context, record *model.SummaryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		// Simulated mid-transaction failure: neither the summary insert nor
		// the processed flip survives.
		return s.completeErr
	}
	event, ok := s.events[record.EventID]
	if !ok {
		return goerr.Wrap(types.ErrEventNotFound, "not found")
	}
	// One summary per event: a second completion loses the unique-constraint
	// race and counts as success without applying anything.
	for _, existing := range s.summaries {
		if existing.EventID == record.EventID {
			return nil
		}
	}
	s.summaries = append(s.summaries, record)
	event.Processed = true
	return nil
}

func (s *memStore) MarkEventErrored(ctx context.Context, id types.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event, ok := s.events[id]; ok {
		event.Errored = true
	}
	return nil
}

func (s *memStore) ListUnprocessed(ctx context.Context, olderThan time.Time, limit int) ([]*model.PersistedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.PersistedEvent
	for _, event := range s.events {
		if event.Processed || event.Errored || !event.CreatedAt.Before(olderThan) {
			continue
		}
		cp := *event
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) NearestSummary(ctx context.Context, embedding []float64) (*model.SummaryRecord, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.summaries) == 0 {
		return nil, 0, nil
	}
	return s.summaries[0], 0.5, nil
}

// memQueue is an in-memory interfaces.Queue with broker-side message-ID
// dedup, mirroring JetStream's duplicate window.
type memQueue struct {
	mu       sync.Mutex
	messages []*model.DispatchMessage
	seen     map[types.DeliveryID]bool

	publishErr error
	attempts   int
}

func newMemQueue() *memQueue {
	return &memQueue{seen: map[types.DeliveryID]bool{}}
}

func (q *memQueue) Publish(ctx context.Context, msg *model.DispatchMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.attempts++
	if q.publishErr != nil {
		return q.publishErr
	}
	if q.seen[msg.DeliveryID] {
		return nil
	}
	q.seen[msg.DeliveryID] = true
	q.messages = append(q.messages, msg)
	return nil
}

// grounded/ungrounded canned capabilities for summarize tests.

type stubGenerator struct {
	calls int
	text  string
	err   error
}

func (s *stubGenerator) GenerateSummary(ctx context.Context, req *interfaces.SummaryRequest) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if s.text == "" {
		return "stub summary", nil
	}
	return s.text, nil
}

type stubGrader struct {
	grounded bool
}

func (s *stubGrader) GradeSummary(ctx context.Context, summary string, source *model.EventPayload) (bool, error) {
	return s.grounded, nil
}

type stubEmbedder struct{}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{0.1, 0.2}, nil
}

func pushPayload() []byte {
	return []byte(`{
		"repository": {"id": 42, "full_name": "octo/widgets"},
		"created_at": "2026-08-01T12:00:00Z",
		"essential_data": {
			"actor_login": "octocat",
			"ref": "refs/heads/main",
			"commits": [
				{
					"sha": "aaa111",
					"message": "add parser",
					"files": [
						{"filename": "parser.go", "patch": "+func Parse() {}"},
						{"filename": "parser_test.go", "patch": "+func TestParse() {}"}
					]
				}
			]
		}
	}`)
}

func testDelivery(id string) *model.InboundDelivery {
	return &model.InboundDelivery{
		ID:         types.DeliveryID(id),
		Type:       "push",
		RepoID:     42,
		ReceivedAt: time.Now(),
		RawPayload: pushPayload(),
	}
}
