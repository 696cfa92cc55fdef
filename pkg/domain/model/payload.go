package model

import (
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/scribe/pkg/domain/types"
)

// EventPayload is the typed projection of an enriched event payload. The
// poller delivers the raw platform event plus an essential_data envelope with
// commits expanded to their changed files and patches.
type EventPayload struct {
	Repository RepositoryRef `json:"repository"`
	Essential  EssentialData `json:"essential_data"`
	CreatedAt  string        `json:"created_at"`
}

// RepositoryRef identifies the source repository of an event.
type RepositoryRef struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

// EssentialData holds the normalized activity fields shared across event
// types.
type EssentialData struct {
	ActorLogin string   `json:"actor_login"`
	Ref        string   `json:"ref"`
	PRState    string   `json:"pr_state"`
	Commits    []Commit `json:"commits"`
}

// Commit is one commit in a push or pull request event.
type Commit struct {
	SHA     string       `json:"sha"`
	Message string       `json:"message"`
	Files   []CommitFile `json:"files"`
}

// CommitFile is one file touched by a commit. Patch is empty for binary or
// oversized files.
type CommitFile struct {
	Filename string `json:"filename"`
	Patch    string `json:"patch"`
}

// ParseEventPayload decodes the raw payload bytes of a delivery.
func ParseEventPayload(raw []byte) (*EventPayload, error) {
	var p EventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal event payload")
	}
	return &p, nil
}

// ResolveRepoID extracts the repository identifier from raw payload bytes
// without a full decode. Returns ErrUnresolvableRepository if absent.
func ResolveRepoID(raw []byte) (int64, error) {
	var probe struct {
		Repository struct {
			ID int64 `json:"id"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return 0, goerr.Wrap(err, "invalid JSON payload")
	}
	if probe.Repository.ID == 0 {
		return 0, goerr.Wrap(types.ErrUnresolvableRepository, "missing repository.id")
	}
	return probe.Repository.ID, nil
}

// EventMeta is the metadata extracted from a payload for summarization:
// who acted, which files changed (in commit order), and where.
type EventMeta struct {
	Actor   string
	Files   []string
	Branch  string
	PRState string
}

// OccurredAt resolves the occurrence timestamp of the event. Payloads carry a
// created_at in RFC3339 when the platform provides one; push events often do
// not, in which case the receive time stands in.
func (p *EventPayload) OccurredAt(fallback time.Time) time.Time {
	if p.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, p.CreatedAt); err == nil {
			return ts
		}
	}
	return fallback
}
