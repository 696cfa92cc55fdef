package workflow

import (
	"context"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
)

// Step advances the workflow by one state: it takes the current state and
// returns the updated state plus the label of the next state. Steps must not
// retain the state after returning.
type Step func(ctx context.Context, s State) (State, Label, error)

// maxEngineSteps is the hard liveness ceiling: the entry chain (2), the
// retry/reflect loop at its bound (summary+retry+reflect per round), the
// final summary+retry pair, and the evaluator. A transition table respecting
// MaxRetries can never reach it.
const maxEngineSteps = 2 + 3*MaxRetries + 2 + 1

// Engine steps a state through a table of labelled transitions until it
// reaches StateEnd. The engine knows nothing about what the stages do; adding
// a stage means adding an entry to the table.
type Engine struct {
	entry Label
	steps map[Label]Step
}

// NewEngine builds an engine over the given transition table.
func NewEngine(entry Label, steps map[Label]Step) *Engine {
	return &Engine{entry: entry, steps: steps}
}

// Run executes the workflow from the entry state and returns the terminal
// state. Any step error aborts the run; the partially updated state is
// discarded by the caller, never committed.
func (e *Engine) Run(ctx context.Context, s State) (State, error) {
	logger := ctxlog.From(ctx)

	label := e.entry
	for n := 0; label != StateEnd; n++ {
		if n >= maxEngineSteps {
			return s, goerr.New("workflow exceeded step ceiling",
				goerr.V("label", label), goerr.V("steps", n))
		}

		step, ok := e.steps[label]
		if !ok {
			return s, goerr.New("no step registered for state", goerr.V("label", label))
		}

		next, nextLabel, err := step(ctx, s)
		if err != nil {
			return s, goerr.Wrap(err, "workflow step failed", goerr.V("label", label))
		}

		logger.Debug("workflow transition",
			"from", label,
			"to", nextLabel,
			"retries", next.Retries,
		)

		s = next
		label = nextLabel
	}

	return s, nil
}
