package workflow

import (
	"context"
	"fmt"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/scribe/pkg/domain/interfaces"
	"github.com/m-mizutani/scribe/pkg/domain/model"
	"github.com/m-mizutani/scribe/pkg/domain/types"
)

// SummaryIndex retrieves the nearest previously stored summary for the
// evaluator stage. interfaces.Store satisfies it.
type SummaryIndex interface {
	NearestSummary(ctx context.Context, embedding []float64) (*model.SummaryRecord, float64, error)
}

// Stages bundles the capability implementations the workflow states invoke.
// All external calls go through these injected interfaces so tests can
// substitute deterministic fakes.
type Stages struct {
	generator interfaces.SummaryGenerator
	grader    interfaces.GroundednessGrader
	embedder  interfaces.Embedder
	index     SummaryIndex
}

// NewStages wires the stage functions to their capabilities.
func NewStages(
	generator interfaces.SummaryGenerator,
	grader interfaces.GroundednessGrader,
	embedder interfaces.Embedder,
	index SummaryIndex,
) *Stages {
	return &Stages{
		generator: generator,
		grader:    grader,
		embedder:  embedder,
		index:     index,
	}
}

// Engine builds the workflow engine with the full transition table:
//
//	extract_code → extract_meta → summary ─grounded→ evaluator → end
//	                                 │hallucinates
//	                                 ▼
//	                               retry ─counter spent→ evaluator
//	                                 │
//	                                 ▼
//	                              reflect → summary
func (x *Stages) Engine() *Engine {
	return NewEngine(StateExtractCode, map[Label]Step{
		StateExtractCode: x.extractCode,
		StateExtractMeta: x.extractMeta,
		StateSummary:     x.generateAndGrade,
		StateRetry:       x.retry,
		StateReflect:     x.reflect,
		StateEvaluator:   x.evaluate,
	})
}

// extractCode collects the patch text of every changed file, keeping commit
// order. Files without a patch (binary, truncated) contribute nothing.
func (x *Stages) extractCode(ctx context.Context, s State) (State, Label, error) {
	var blocks []string
	for _, commit := range s.Payload.Essential.Commits {
		for _, file := range commit.Files {
			if file.Patch != "" {
				blocks = append(blocks, file.Patch)
			}
		}
	}
	s.CodeBlocks = blocks
	return s, StateExtractMeta, nil
}

// extractMeta derives actor, changed file list, branch and PR state from the
// payload.
func (x *Stages) extractMeta(ctx context.Context, s State) (State, Label, error) {
	ep := s.Payload.Essential

	var files []string
	for _, commit := range ep.Commits {
		for _, file := range commit.Files {
			files = append(files, file.Filename)
		}
	}

	s.Meta = &model.EventMeta{
		Actor:   ep.ActorLogin,
		Files:   files,
		Branch:  ep.Ref,
		PRState: ep.PRState,
	}
	return s, StateSummary, nil
}

// generateAndGrade produces a summary and grades it for groundedness. The
// verdict is computed fresh on every pass: the summary text changes between
// reflections, so a cached verdict would be meaningless.
func (x *Stages) generateAndGrade(ctx context.Context, s State) (State, Label, error) {
	summary, err := x.generator.GenerateSummary(ctx, x.summaryRequest(s))
	if err != nil {
		return s, StateEnd, goerr.Wrap(err, "summary generation failed")
	}
	s.Summary = summary

	grounded, err := x.grader.GradeSummary(ctx, s.Summary, s.Payload)
	if err != nil {
		return s, StateEnd, goerr.Wrap(err, "groundedness grading failed")
	}
	s.Grounded = grounded

	if grounded {
		s.Status = types.StatusGrounded
		return s, StateEvaluator, nil
	}
	return s, StateRetry, nil
}

// retry re-invokes generation with the same inputs, then either loops back
// through reflect or, once the counter is spent, forces the evaluator with
// the degraded-confidence status.
func (x *Stages) retry(ctx context.Context, s State) (State, Label, error) {
	summary, err := x.generator.GenerateSummary(ctx, x.summaryRequest(s))
	if err != nil {
		return s, StateEnd, goerr.Wrap(err, "summary regeneration failed")
	}
	s.Summary = summary

	if s.Retries >= MaxRetries {
		s.Status = types.StatusExhausted
		return s, StateEvaluator, nil
	}
	return s, StateReflect, nil
}

// reflect increments the retry counter and records a note describing the
// attempt, then loops back to summary.
func (x *Stages) reflect(ctx context.Context, s State) (State, Label, error) {
	s.Retries++
	s.Reflections = append(s.Reflections,
		fmt.Sprintf("summary not grounded in source, regenerating (attempt %d)", s.Retries))
	return s, StateSummary, nil
}

// evaluate embeds the final summary and retrieves the nearest prior summary.
// Similarity is best-effort context for downstream readers: a failure here
// must not discard an otherwise finished run, so errors degrade to an empty
// result.
func (x *Stages) evaluate(ctx context.Context, s State) (State, Label, error) {
	logger := ctxlog.From(ctx)

	embedding, err := x.embedder.Embed(ctx, s.Summary)
	if err != nil {
		logger.Warn("embedding failed, skipping similarity evaluation", "error", err)
		return s, StateEnd, nil
	}
	s.Embedding = embedding

	record, score, err := x.index.NearestSummary(ctx, embedding)
	if err != nil {
		logger.Warn("nearest summary lookup failed", "error", err)
		return s, StateEnd, nil
	}
	if record != nil {
		s.SimilarID = record.ID
		s.SimilarSummary = record.SummaryText
		s.SimilarityScore = score
	}
	return s, StateEnd, nil
}

func (x *Stages) summaryRequest(s State) *interfaces.SummaryRequest {
	return &interfaces.SummaryRequest{
		CommitMessages: s.CommitMessages(),
		CodeBlocks:     s.CodeBlocks,
		Meta:           s.Meta,
		Reflections:    s.Reflections,
	}
}
