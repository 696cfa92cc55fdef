package interfaces

import (
	"context"

	"github.com/m-mizutani/scribe/pkg/domain/model"
)

// SummaryRequest is the context handed to the generator: commit messages,
// extracted code blocks, event metadata, and the reflection notes accumulated
// by earlier attempts.
type SummaryRequest struct {
	CommitMessages []string
	CodeBlocks     []string
	Meta           *model.EventMeta
	Reflections    []string
}

// SummaryGenerator produces a natural-language summary of one event.
type SummaryGenerator interface {
	GenerateSummary(ctx context.Context, req *SummaryRequest) (string, error)
}

// GroundednessGrader verifies that a summary's claims are supported by the
// source payload.
type GroundednessGrader interface {
	GradeSummary(ctx context.Context, summary string, source *model.EventPayload) (grounded bool, err error)
}

// Embedder converts text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
