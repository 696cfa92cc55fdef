package model

import (
	"time"

	"github.com/m-mizutani/scribe/pkg/domain/types"
)

// InboundDelivery is the immutable record of one webhook call. It is built
// from the request headers and the exact body bytes as transmitted, before
// any re-serialization, so the HMAC signature stays verifiable.
type InboundDelivery struct {
	ID         types.DeliveryID // X-GitHub-Delivery header
	Type       string           // X-GitHub-Event header
	RepoID     int64            // Resolved from the payload
	ReceivedAt time.Time
	RawPayload []byte
}

// DispatchMessage is the payload carried on the dispatch queue from admission
// to the summarize worker. It references the event, it never carries it.
type DispatchMessage struct {
	EventID    types.EventID    `json:"event_id"`
	DeliveryID types.DeliveryID `json:"delivery_id"`
}
