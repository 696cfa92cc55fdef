package workflow

import (
	"github.com/m-mizutani/scribe/pkg/domain/model"
	"github.com/m-mizutani/scribe/pkg/domain/types"
)

// Label identifies one state of the summarization workflow.
type Label string

const (
	StateExtractCode Label = "extract_code"
	StateExtractMeta Label = "extract_meta"
	StateSummary     Label = "summary"
	StateRetry       Label = "retry"
	StateReflect     Label = "reflect"
	StateEvaluator   Label = "evaluator"

	// StateEnd is the terminal pseudo-state. No step is registered for it;
	// the engine stops when a step transitions here.
	StateEnd Label = "end"
)

// MaxRetries bounds the retry/reflect loop. The reflect counter starts at
// zero and the retry state forces the evaluator once it reaches this value.
const MaxRetries = 3

// State is the per-run mutable record that flows through the engine. It has
// a fixed shape: every field a stage can produce is explicit, and the whole
// struct is passed by value so a failed step leaves no partial mutation
// behind.
type State struct {
	Payload *model.EventPayload

	CodeBlocks  []string
	Meta        *model.EventMeta
	Summary     string
	Retries     int
	Reflections []string
	Grounded    bool

	Embedding       []float64
	SimilarID       string
	SimilarSummary  string
	SimilarityScore float64

	Status types.SummaryStatus
}

// NewState builds the entry state for one event payload.
func NewState(payload *model.EventPayload) State {
	return State{Payload: payload}
}

// CommitMessages lists the commit messages of the payload in order.
func (s State) CommitMessages() []string {
	msgs := make([]string, 0, len(s.Payload.Essential.Commits))
	for _, c := range s.Payload.Essential.Commits {
		msgs = append(msgs, c.Message)
	}
	return msgs
}
