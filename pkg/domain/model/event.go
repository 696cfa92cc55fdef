package model

import (
	"time"

	"github.com/m-mizutani/scribe/pkg/domain/types"
)

// PersistedEvent is the durable, deduplicated form of an admitted delivery.
// The delivery ID carries a unique constraint in the store; the second
// admission of the same delivery is a no-op, never a second row.
type PersistedEvent struct {
	ID         types.EventID
	DeliveryID types.DeliveryID
	RepoID     int64
	Type       string
	Payload    []byte
	OccurredAt time.Time
	Processed  bool
	Errored    bool
	CreatedAt  time.Time
}

// SummaryRecord is the durable output of one completed workflow run, linked
// to its event by the (event id, occurred at) composite key.
type SummaryRecord struct {
	ID          string
	EventID     types.EventID
	OccurredAt  time.Time
	SummaryText string
	TechStack   []string
	Embedding   []float64
	Status      types.SummaryStatus
	CreatedAt   time.Time
}
